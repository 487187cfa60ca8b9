// Command lazywasm runs WebAssembly modules on the lazy compilation engine.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	gs := newGlobalState(ctx)
	err := execute(gs, os.Args[1:])
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// execute runs the root command with args and reports a failure on the
// state's stderr.
func execute(gs *globalState, args []string) error {
	cmd := newRootCommand(gs)
	cmd.SetArgs(args)
	cmd.SetOut(gs.stdout)
	cmd.SetErr(gs.stderr)
	if err := cmd.ExecuteContext(gs.ctx); err != nil {
		_, _ = gs.fail.Fprintf(gs.stderr, "error: %v\n", err)
		return err
	}
	return nil
}
