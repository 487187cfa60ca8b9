package main

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/lazywasm/jsapi"
	"github.com/wippyai/lazywasm/runtime"
)

func getScriptCmd(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "script <file.js> [args...]",
		Short: "run a JavaScript file against the Wasm binding",
		Long: `Run a JavaScript file with the Wasm global installed.

Besides Wasm.instantiateModule, scripts get:
  readBinary(path)  the file's contents as an ArrayBuffer
  print(...values)  write the values to stdout, space separated
  args              the remaining command line words`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			src, err := afero.ReadFile(gs.fs, args[0])
			if err != nil {
				return fmt.Errorf("read script: %w", err)
			}

			rt, err := runtime.New(gs.ctx, gs.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close(gs.ctx) }()

			vm := goja.New()
			if _, err := jsapi.Install(gs.ctx, vm, rt.Engine()); err != nil {
				return err
			}
			if err := installScriptGlobals(gs, vm, args[1:]); err != nil {
				return err
			}

			gs.logger.Debug("running script", zap.String("file", args[0]))
			if _, err := vm.RunScript(args[0], string(src)); err != nil {
				return fmt.Errorf("script: %w", err)
			}
			return nil
		},
	}
}

func installScriptGlobals(gs *globalState, vm *goja.Runtime, args []string) error {
	globals := map[string]any{
		"readBinary": func(path string) goja.Value {
			data, err := afero.ReadFile(gs.fs, path)
			if err != nil {
				panic(vm.NewGoError(err))
			}
			return vm.ToValue(vm.NewArrayBuffer(data))
		},
		"print": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, v := range call.Arguments {
				parts[i] = v.String()
			}
			_, _ = fmt.Fprintln(gs.stdout, strings.Join(parts, " "))
			return goja.Undefined()
		},
		"args": args,
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}
