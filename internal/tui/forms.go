package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	formBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 2)
	formLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	confirmStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f9e2af"))
)

type field struct {
	label string
	value []rune
}

// form is a small multi-field text prompt. Enter moves to the next field
// and submits on the last one; esc cancels.
type form struct {
	title  string
	fields []field
	focus  int
	submit func(values []string) tea.Cmd
}

func newForm(title string, submit func(values []string) tea.Cmd, labels ...string) *form {
	f := &form{title: title, submit: submit}
	for _, l := range labels {
		f.fields = append(f.fields, field{label: l})
	}
	return f
}

// prefill sets the initial values in field order.
func (f *form) prefill(values ...string) *form {
	for i, v := range values {
		if i < len(f.fields) {
			f.fields[i].value = []rune(v)
		}
	}
	return f
}

func (f *form) values() []string {
	out := make([]string, len(f.fields))
	for i, fl := range f.fields {
		out[i] = string(fl.value)
	}
	return out
}

func (f *form) view() string {
	lines := []string{selectStyle.Render(f.title), ""}
	for i, fl := range f.fields {
		marker := "  "
		cursor := ""
		if i == f.focus {
			marker = "▸ "
			cursor = "▏"
		}
		lines = append(lines, marker+formLabelStyle.Render(fl.label+": ")+string(fl.value)+cursor)
	}
	lines = append(lines, "", helpStyle.Render("enter далее · tab поле · esc отмена"))
	return formBoxStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) handleFormKey(msg tea.KeyMsg) tea.Cmd {
	f := m.form
	cur := &f.fields[f.focus]
	switch msg.Type {
	case tea.KeyCtrlC:
		return tea.Quit
	case tea.KeyEsc:
		m.form = nil
	case tea.KeyTab, tea.KeyDown:
		f.focus = (f.focus + 1) % len(f.fields)
	case tea.KeyShiftTab, tea.KeyUp:
		f.focus = (f.focus + len(f.fields) - 1) % len(f.fields)
	case tea.KeyBackspace:
		if n := len(cur.value); n > 0 {
			cur.value = cur.value[:n-1]
		}
	case tea.KeyEnter:
		if f.focus < len(f.fields)-1 {
			f.focus++
			return nil
		}
		m.form = nil
		return f.submit(f.values())
	case tea.KeySpace:
		cur.value = append(cur.value, ' ')
	case tea.KeyRunes:
		if !msg.Alt {
			cur.value = append(cur.value, msg.Runes...)
		}
	}
	return nil
}

// confirmation guards a destructive operation behind a y/n answer.
type confirmation struct {
	question string
	op       string
	fn       func(ctx context.Context) error
}

func (m *Model) confirmThen(question, op string, fn func(ctx context.Context) error) tea.Cmd {
	m.confirm = &confirmation{question: question, op: op, fn: fn}
	return nil
}

func (m *Model) handleConfirmKey(msg tea.KeyMsg) tea.Cmd {
	c := m.confirm
	m.confirm = nil
	switch msg.String() {
	case "y", "Y", "д", "Д", "enter":
		return m.run(c.op, c.fn)
	case "ctrl+c":
		return tea.Quit
	}
	return nil
}
