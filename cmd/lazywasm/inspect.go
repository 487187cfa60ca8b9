package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/wasm"
)

var importKinds = map[byte]string{
	wasm.KindFunc:   "func",
	wasm.KindTable:  "table",
	wasm.KindMemory: "memory",
	wasm.KindGlobal: "global",
}

func getInspectCmd(gs *globalState) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.wasm>",
		Short: "list a module's imports and functions without compiling them",
		Long: `List a module's imports and defined functions.

The module is parsed and validated the same way instantiation does, but no
function body is turned into bytecode. Each row shows where the body lives
in the binary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := afero.ReadFile(gs.fs, args[0])
			if err != nil {
				return fmt.Errorf("read module: %w", err)
			}
			mod, err := engine.New(gs.cfg.EngineConfig()).Compile(gs.ctx, data)
			if err != nil {
				return err
			}
			m := mod.Wasm()

			if len(m.Imports) > 0 {
				_, _ = gs.dim.Fprintln(gs.stdout, "imports:")
				for _, imp := range m.Imports {
					line := fmt.Sprintf("  %s %s.%s", importKinds[imp.Desc.Kind], imp.Module, imp.Name)
					if imp.Desc.Kind == wasm.KindFunc && int(imp.Desc.TypeIdx) < len(m.Types) {
						line += " " + m.Types[imp.Desc.TypeIdx].String()
					}
					_, _ = fmt.Fprintln(gs.stdout, line)
				}
			}

			exports := make(map[uint32][]string)
			for _, exp := range m.Exports {
				if exp.Kind == wasm.KindFunc {
					exports[exp.Idx] = append(exports[exp.Idx], exp.Name)
				}
			}

			rows := make([][]string, 0, len(m.Code))
			for _, def := range mod.Defs() {
				rows = append(rows, []string{
					strconv.FormatUint(uint64(def.FuncIdx), 10),
					def.Name,
					m.Types[def.TypeIdx].String(),
					fmt.Sprintf("%#x-%#x", def.Range.Start, def.Range.End()),
					strings.Join(exports[def.FuncIdx], ","),
				})
			}
			t := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("IDX", "NAME", "SIGNATURE", "BODY", "EXPORTS").
				Rows(rows...)
			_, _ = fmt.Fprintln(gs.stdout, t.Render())
			return nil
		},
	}
}
