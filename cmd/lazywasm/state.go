package main

import (
	"context"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/lazywasm/config"
)

// globalState holds everything a command touches outside its own flags,
// so tests can swap the filesystem, environment and outputs.
type globalState struct {
	ctx       context.Context
	fs        afero.Fs
	stdout    io.Writer
	stderr    io.Writer
	lookupEnv func(string) (string, bool)
	// isTerminal reports whether interactive mode can take over the screen.
	isTerminal func() bool

	cfg    config.Config
	logger *zap.Logger
	ok     *color.Color
	fail   *color.Color
	dim    *color.Color

	stdoutTTY bool
}

func newGlobalState(ctx context.Context) *globalState {
	stdoutTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return &globalState{
		ctx:       ctx,
		fs:        afero.NewOsFs(),
		stdout:    colorable.NewColorableStdout(),
		stderr:    colorable.NewColorableStderr(),
		lookupEnv: os.LookupEnv,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
		cfg:       config.Default(),
		logger:    zap.NewNop(),
		ok:        color.New(color.FgGreen),
		fail:      color.New(color.FgRed, color.Bold),
		dim:       color.New(color.Faint),
		stdoutTTY: stdoutTTY,
	}
}

// disableColors turns the color helpers into plain printers and strips
// escape sequences from anything else written to the outputs.
func (gs *globalState) disableColors() {
	for _, c := range []*color.Color{gs.ok, gs.fail, gs.dim} {
		c.DisableColor()
	}
	gs.stdout = colorable.NewNonColorable(gs.stdout)
	gs.stderr = colorable.NewNonColorable(gs.stderr)
}
