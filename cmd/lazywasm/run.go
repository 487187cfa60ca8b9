package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/runtime"
)

// entryNames are tried in order when no function is named.
var entryNames = []string{"_start", "run", "main"}

func getRunCmd(gs *globalState) *cobra.Command {
	var (
		funcName    string
		showStats   bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "run <file.wasm> [args...]",
		Short: "instantiate a module and call one of its exports",
		Long: `Instantiate a module and call one of its exports.

Nothing is compiled up front: each function is turned into bytecode on its
first call. Arguments are parsed according to the export's parameter types.
Modules may import env.log_i32, env.log_i64, env.log_f32 and env.log_f64,
which print their argument.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rt, inst, err := instantiateFile(gs, args[0])
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(gs.ctx) }()

			if interactive {
				if !gs.isTerminal() {
					return errors.New("interactive mode needs a terminal")
				}
				return runInteractive(gs, args[0], inst)
			}

			fn, err := pickFunction(inst, funcName)
			if err != nil {
				return err
			}
			ft := fn.FuncType()
			params, err := parseArgs(ft.Params, args[1:])
			if err != nil {
				return fmt.Errorf("%s%s: %w", fn.Export, ft, err)
			}

			if showStats {
				defer printStats(gs.stdout, inst)
			}
			res, err := fn.Call(gs.ctx, params...)
			if err != nil {
				return fmt.Errorf("call %s: %w", fn.Export, err)
			}
			if len(res) == 0 {
				_, _ = gs.dim.Fprintln(gs.stdout, "(no results)")
				return nil
			}
			_, _ = gs.ok.Fprintln(gs.stdout, formatResults(ft.Results, res))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&funcName, "func", "f", "", "export to call (default: _start, run, main or the only export)")
	flags.BoolVar(&showStats, "stats", false, "print each function's tier after the call")
	flags.BoolVarP(&interactive, "interactive", "i", false, "pick exports and arguments in a terminal UI")
	return cmd
}

// instantiateFile loads path, binds it against the print shim and runs its
// start function.
func instantiateFile(gs *globalState, path string) (*runtime.Runtime, *engine.Instance, error) {
	data, err := afero.ReadFile(gs.fs, path)
	if err != nil {
		return nil, nil, fmt.Errorf("read module: %w", err)
	}
	rt, err := runtime.New(gs.ctx, gs.cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := rt.RegisterHost(printHost{w: gs.stdout}); err != nil {
		_ = rt.Close(gs.ctx)
		return nil, nil, err
	}
	inst, err := rt.Instantiate(gs.ctx, data)
	if err != nil {
		_ = rt.Close(gs.ctx)
		return nil, nil, err
	}
	gs.logger.Debug("module instantiated", zap.String("file", path), zap.Int("bytes", len(data)))
	if err := inst.Start(gs.ctx); err != nil {
		_ = rt.Close(gs.ctx)
		return nil, nil, fmt.Errorf("start function: %w", err)
	}
	return rt, inst, nil
}

func pickFunction(inst *engine.Instance, name string) (*engine.ExportedFunction, error) {
	funcs := inst.ExportedFunctions()
	find := func(name string) *engine.ExportedFunction {
		for _, f := range funcs {
			if f.Export == name {
				return f
			}
		}
		return nil
	}

	if name != "" {
		if f := find(name); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("no exported function %q", name)
	}
	for _, n := range entryNames {
		if f := find(n); f != nil {
			return f, nil
		}
	}
	if len(funcs) == 1 {
		return funcs[0], nil
	}

	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Export
	}
	return nil, fmt.Errorf("no entry point found, use --func with one of: %s", strings.Join(names, ", "))
}

func printStats(w io.Writer, inst *engine.Instance) {
	rows := make([][]string, 0)
	for _, st := range inst.Stats() {
		rows = append(rows, []string{
			strconv.FormatUint(uint64(st.Index), 10),
			st.Name,
			string(st.State),
			strconv.FormatInt(st.Runs, 10),
			strconv.Itoa(st.Generations),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("IDX", "FUNCTION", "STATE", "RUNS", "COMPILED").
		Rows(rows...)
	_, _ = fmt.Fprintln(w, t.Render())
}

// printHost serves the env.log_* imports.
type printHost struct {
	w io.Writer
}

func (printHost) Namespace() string { return "env" }

func (h printHost) Register() map[string]any {
	return map[string]any{
		"log_i32": func(v int32) { _, _ = fmt.Fprintln(h.w, v) },
		"log_i64": func(v int64) { _, _ = fmt.Fprintln(h.w, v) },
		"log_f32": func(v float32) { _, _ = fmt.Fprintln(h.w, v) },
		"log_f64": func(v float64) { _, _ = fmt.Fprintln(h.w, v) },
	}
}
