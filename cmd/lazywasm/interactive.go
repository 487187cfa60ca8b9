package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/lazywasm/engine"
	"github.com/wippyai/lazywasm/wasm"
)

type palette struct {
	header, name, typ, cursor, value, failure, faint lipgloss.Style

	tiers map[engine.FuncState]lipgloss.Style
}

func newPalette() palette {
	fg := func(c string) lipgloss.Style { return lipgloss.NewStyle().Foreground(lipgloss.Color(c)) }
	p := palette{
		header: lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1),
		name:    fg("#98FB98"),
		typ:     fg("#87CEEB"),
		cursor:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")),
		value:   fg("#90EE90"),
		failure: fg("#FF6B6B"),
		faint:   fg("#666666"),
	}
	p.tiers = map[engine.FuncState]lipgloss.Style{
		engine.StatePending:     p.faint,
		engine.StateInterpreted: p.typ,
		engine.StateNative:      p.value,
		engine.StateTrapped:     p.failure,
		engine.StateHost:        p.faint,
	}
	return p
}

type screen int

const (
	screenPick screen = iota
	screenArgs
	screenOutcome
)

// outcome is one finished call, kept so the picker can show the last few.
type outcome struct {
	export string
	text   string
	failed bool
}

const keptOutcomes = 5

type callDoneMsg outcome

type tierModel struct {
	gs       *globalState
	filename string
	funcs    []*engine.ExportedFunction
	style    palette

	screen  screen
	cursor  int
	fields  []textinput.Model
	focused int
	history []outcome
}

func newTierModel(gs *globalState, filename string, inst *engine.Instance) *tierModel {
	return &tierModel{
		gs:       gs,
		filename: filename,
		funcs:    inst.ExportedFunctions(),
		style:    newPalette(),
	}
}

func (m *tierModel) Init() tea.Cmd { return nil }

func (m *tierModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case callDoneMsg:
		m.history = append(m.history, outcome(msg))
		if len(m.history) > keptOutcomes {
			m.history = m.history[1:]
		}
		m.screen = screenOutcome
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		switch m.screen {
		case screenPick:
			return m.pickKey(msg)
		case screenArgs:
			return m.argsKey(msg)
		case screenOutcome:
			return m.outcomeKey(msg)
		}
	}
	return m, nil
}

func (m *tierModel) pickKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = min(m.cursor+1, len(m.funcs)-1)
	case "enter":
		if len(m.funcs) == 0 {
			return m, nil
		}
		m.fields = argFields(m.current().FuncType().Params)
		m.focused = 0
		if len(m.fields) == 0 {
			return m, m.invoke
		}
		m.screen = screenArgs
	}
	return m, nil
}

func (m *tierModel) argsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.screen = screenPick
		m.fields = nil
		return m, nil
	case "enter":
		return m, m.invoke
	case "tab", "shift+tab":
		step := 1
		if msg.String() == "shift+tab" {
			step = len(m.fields) - 1
		}
		m.fields[m.focused].Blur()
		m.focused = (m.focused + step) % len(m.fields)
		return m, m.fields[m.focused].Focus()
	}

	var cmd tea.Cmd
	m.fields[m.focused], cmd = m.fields[m.focused].Update(msg)
	return m, cmd
}

func (m *tierModel) outcomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "enter", "esc":
		m.screen = screenPick
	case "r":
		return m, m.invoke
	}
	return m, nil
}

func (m *tierModel) current() *engine.ExportedFunction { return m.funcs[m.cursor] }

func argFields(params []wasm.ValType) []textinput.Model {
	fields := make([]textinput.Model, len(params))
	for i, p := range params {
		f := textinput.New()
		f.Prompt = fmt.Sprintf("%-4s ", p)
		f.Placeholder = "0"
		f.Width = 32
		fields[i] = f
	}
	if len(fields) > 0 {
		fields[0].Focus()
	}
	return fields
}

// invoke calls the selected export with the typed-in arguments.
func (m *tierModel) invoke() tea.Msg {
	f := m.current()
	ft := f.FuncType()
	done := callDoneMsg{export: f.Export}

	words := make([]string, len(m.fields))
	for i := range m.fields {
		words[i] = m.fields[i].Value()
	}
	args, err := parseArgs(ft.Params, words)
	if err == nil {
		var res []uint64
		if res, err = f.Call(m.gs.ctx, args...); err == nil {
			done.text = "(no results)"
			if len(res) > 0 {
				done.text = formatResults(ft.Results, res)
			}
			return done
		}
	}
	done.text, done.failed = err.Error(), true
	return done
}

func (m *tierModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", m.style.header.Render("lazywasm"), m.filename)

	if len(m.funcs) == 0 {
		b.WriteString("no exported functions\n\n")
		b.WriteString(m.style.faint.Render("q quit"))
		return b.String()
	}

	switch m.screen {
	case screenPick:
		for i, f := range m.funcs {
			row := m.row(f)
			if i == m.cursor {
				row = m.style.cursor.Render("> ") + row
			} else {
				row = "  " + row
			}
			b.WriteString(row + "\n")
		}
		if len(m.history) > 0 {
			b.WriteString("\n" + m.style.faint.Render("recent:") + "\n")
			for _, o := range m.history {
				b.WriteString("  " + m.outcomeLine(o) + "\n")
			}
		}
		b.WriteString("\n" + m.style.faint.Render("↑/↓ move • enter call • q quit"))

	case screenArgs:
		fmt.Fprintf(&b, "%s\n\n", m.row(m.current()))
		for _, f := range m.fields {
			b.WriteString(f.View() + "\n")
		}
		b.WriteString("\n" + m.style.faint.Render("tab next • enter call • esc back"))

	case screenOutcome:
		b.WriteString(m.outcomeLine(m.history[len(m.history)-1]) + "\n\n")
		b.WriteString(m.row(m.current()) + "\n\n")
		b.WriteString(m.style.faint.Render("r call again • enter back • q quit"))
	}
	return b.String()
}

// row renders an export with its signature and current tier.
func (m *tierModel) row(f *engine.ExportedFunction) string {
	st := f.Stats()
	tier := m.style.tiers[st.State].Render(fmt.Sprintf("[%s, %d runs]", st.State, st.Runs))
	return m.style.name.Render(f.Export) + " " + m.style.typ.Render(f.FuncType().String()) + " " + tier
}

func (m *tierModel) outcomeLine(o outcome) string {
	if o.failed {
		return m.style.name.Render(o.export) + " " + m.style.failure.Render("error: "+o.text)
	}
	return m.style.name.Render(o.export) + " = " + m.style.value.Render(o.text)
}

func runInteractive(gs *globalState, filename string, inst *engine.Instance) error {
	_, err := tea.NewProgram(newTierModel(gs, filename, inst), tea.WithAltScreen()).Run()
	return err
}
