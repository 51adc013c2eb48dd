package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/StochasticTinkr/resourcescope/scenario"
)

type modelState int

const (
	stateStepping modelState = iota
	stateNaming
	stateClosed
)

// maxTraceLines bounds the trace pane; older lines scroll off.
const maxTraceLines = 18

type interactiveModel struct {
	run      *scenario.Runner
	err      error
	trace    []string
	input    textinput.Model
	render   renderer
	selected int
	state    modelState
}

func newInteractiveModel(doc *scenario.Document, logger *zap.Logger) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "resource name"
	ti.Prompt = "open: "
	ti.Width = 40

	return &interactiveModel{
		run:    scenario.NewRunner(doc, logger),
		input:  ti,
		render: renderer{styled: true},
		state:  stateStepping,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateNaming {
		switch key.String() {
		case "enter":
			name := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.input.Blur()
			m.state = stateStepping
			if name != "" {
				m.do(scenario.Step{Op: scenario.OpOpen, Scope: m.scope(), Resource: name})
			}
			return m, nil
		case "esc":
			m.input.Reset()
			m.input.Blur()
			m.state = stateStepping
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		m.closeAll()
		return m, tea.Quit

	case "enter", "n", " ":
		if m.state == stateStepping && !m.run.Done() {
			idx := m.run.Next()
			m.record(m.render.step(idx, m.run.Document().Steps[idx]), m.run.Step())
		}

	case "a":
		for m.state == stateStepping && !m.run.Done() {
			idx := m.run.Next()
			m.record(m.render.step(idx, m.run.Document().Steps[idx]), m.run.Step())
		}

	case "tab", "right", "l":
		m.selected = (m.selected + 1) % len(m.run.Document().Scopes)

	case "shift+tab", "left", "h":
		n := len(m.run.Document().Scopes)
		m.selected = (m.selected + n - 1) % n

	case "o":
		if m.state == stateStepping {
			m.state = stateNaming
			return m, m.input.Focus()
		}

	case "t":
		if m.state == stateStepping {
			m.do(scenario.Step{Op: scenario.OpTeardown, Scope: m.scope()})
		}

	case "c":
		m.closeAll()
	}

	return m, nil
}

func (m *interactiveModel) scope() string {
	return m.run.Document().Scopes[m.selected]
}

func (m *interactiveModel) do(st scenario.Step) {
	entries, err := m.run.Do(st)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.record(m.render.style(stepStyle, "  * "+st.String()), entries)
}

func (m *interactiveModel) closeAll() {
	if m.state == stateClosed {
		return
	}
	m.state = stateClosed
	m.record(m.render.style(stepStyle, "    close all"), m.run.Close())
}

func (m *interactiveModel) record(header string, entries []scenario.Entry) {
	m.trace = append(m.trace, header)
	for _, e := range entries {
		m.trace = append(m.trace, m.render.entry(e))
	}
	if len(m.trace) > maxTraceLines {
		m.trace = m.trace[len(m.trace)-maxTraceLines:]
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder
	doc := m.run.Document()

	b.WriteString(titleStyle.Render("scopetrace"))
	b.WriteString(" ")
	b.WriteString(doc.Name)
	b.WriteString("\n\n")

	for i, name := range doc.Scopes {
		if i == m.selected {
			b.WriteString(selectedStyle.Render("> " + name))
		} else {
			b.WriteString("  " + name)
		}
		b.WriteString("  ")
	}
	b.WriteString("\n\n")
	b.WriteString(m.render.scopes(m.run))
	b.WriteString("\n")

	for _, line := range m.trace {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if next := m.run.Next(); m.state != stateClosed && next < len(doc.Steps) {
		b.WriteString(fmt.Sprintf("next: %s\n", m.render.step(next, doc.Steps[next])))
	}
	if m.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	switch m.state {
	case stateNaming:
		b.WriteString(m.input.View())
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter open • esc cancel"))
	case stateClosed:
		b.WriteString(helpStyle.Render("all scopes closed • q quit"))
	default:
		b.WriteString(helpStyle.Render("enter step • a run all • tab scope • o open • t teardown scope • c close all • q quit"))
	}
	return b.String()
}

func runInteractive(doc *scenario.Document, logger *zap.Logger) error {
	p := tea.NewProgram(newInteractiveModel(doc, logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
