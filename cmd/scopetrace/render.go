package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/StochasticTinkr/resourcescope/resource"
	"github.com/StochasticTinkr/resourcescope/scenario"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	scopeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	handleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))
)

// renderer formats trace output, with or without terminal styling.
type renderer struct {
	styled bool
}

func (r renderer) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r renderer) title(text string) string {
	if !r.styled {
		return "== " + text + " =="
	}
	return titleStyle.Render(text)
}

func (r renderer) step(i int, st scenario.Step) string {
	return r.style(stepStyle, fmt.Sprintf("%2d. %s", i+1, st))
}

func (r renderer) entry(e scenario.Entry) string {
	if e.Event != nil {
		line := fmt.Sprintf("    %-16s %s %s",
			e.Event.Type,
			r.style(scopeStyle, e.Event.Scope),
			r.style(handleStyle, e.Event.Handle))
		if e.Event.Err != nil {
			line += " " + r.style(errorStyle, e.Event.Err.Error())
		}
		return line
	}
	return "    " + r.style(errorStyle, fmt.Sprintf("%s failed: %v", e.Op, e.Err))
}

// trace renders a full run: each step followed by the entries it produced,
// then the entries produced by the final teardown.
func (r renderer) trace(doc *scenario.Document, entries []scenario.Entry) string {
	var b strings.Builder
	b.WriteString(r.title("scopetrace " + doc.Name))
	b.WriteString("\n\n")

	i := 0
	for idx, st := range doc.Steps {
		b.WriteString(r.step(idx, st))
		b.WriteString("\n")
		for ; i < len(entries) && entries[i].Step == idx; i++ {
			b.WriteString(r.entry(entries[i]))
			b.WriteString("\n")
		}
	}
	if i < len(entries) {
		b.WriteString(r.style(stepStyle, "    close all"))
		b.WriteString("\n")
		for ; i < len(entries); i++ {
			b.WriteString(r.entry(entries[i]))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// scopes renders the live handles of every scope, in declaration order.
func (r renderer) scopes(run *scenario.Runner) string {
	var b strings.Builder
	for _, name := range run.Document().Scopes {
		s := run.Scope(name)
		state := ""
		if s.Closed() {
			state = " (closed)"
		}
		b.WriteString(r.style(scopeStyle, name) + state + ":")
		members := s.Handles()
		if len(members) == 0 {
			b.WriteString(" -")
		}
		for _, m := range members {
			b.WriteString(" " + r.style(handleStyle, m.Name()))
			if m.State() != resource.StateActive {
				b.WriteString("(" + m.State().String() + ")")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
