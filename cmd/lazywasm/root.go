package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/config"
)

const defaultConfigFileName = "lazywasm.yaml"

// This is to keep all fields needed for the root command.
type rootCommand struct {
	gs         *globalState
	cmd        *cobra.Command
	configPath string
	noColor    bool
}

func newRootCommand(gs *globalState) *cobra.Command {
	c := &rootCommand{gs: gs}
	c.cmd = &cobra.Command{
		Use:               "lazywasm",
		Short:             "run WebAssembly modules, compiling each function on first call",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}
	c.cmd.PersistentFlags().AddFlagSet(c.rootCmdPersistentFlagSet())
	c.cmd.AddCommand(
		getRunCmd(gs),
		getInspectCmd(gs),
		getScriptCmd(gs),
	)
	return c.cmd
}

func (c *rootCommand) rootCmdPersistentFlagSet() *pflag.FlagSet {
	flags := config.FlagSet()
	flags.StringVarP(&c.configPath, "config", "c", "", "YAML config `file` (default ./"+defaultConfigFileName+" when present)")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	return flags
}

func (c *rootCommand) persistentPreRunE(cmd *cobra.Command, _ []string) error {
	path := c.configPath
	if path == "" {
		if env, ok := c.gs.lookupEnv("LAZYWASM_CONFIG"); ok {
			path = env
		} else {
			path = defaultConfigFileName
		}
	}

	cfg, err := config.Load(c.gs.fs, path, c.gs.lookupEnv, cmd.Flags())
	if err != nil {
		return err
	}
	c.gs.cfg = cfg

	if c.noColor || !c.gs.stdoutTTY {
		c.gs.disableColors()
	}

	logger, err := newLogger(cfg, c.gs.stderr)
	if err != nil {
		return err
	}
	c.gs.logger = logger
	installLogger(logger)
	logger.Debug("configuration loaded",
		zap.String("config", path),
		zap.Bool("native", cfg.NativeEnabled.Bool),
		zap.Int64("maxInterpretedRuns", cfg.MaxInterpretedRunCount.Int64))
	return nil
}
