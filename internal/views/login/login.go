// Package login renders the sign-in form shown while no operator session
// is active.
package login

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/parkwatch/console/internal/theme"
)

// SubmitMsg is emitted when the operator submits the form.
type SubmitMsg struct {
	Username string
	Password string
}

const (
	fieldUser = iota
	fieldPass
)

// Model is the login form.
type Model struct {
	Width  int
	Height int
	// Busy is set between submit and the login result.
	Busy bool
	Err  string
	// Notice is shown above the form, e.g. after a session expired.
	Notice string

	user  textinput.Model
	pass  textinput.Model
	spin  spinner.Model
	focus int
}

// New returns a form with the username prefilled.
func New(username string) Model {
	u := textinput.New()
	u.Prompt = "Username  "
	u.Placeholder = "operator"
	u.CharLimit = 64
	u.SetValue(username)

	p := textinput.New()
	p.Prompt = "Password  "
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'
	p.CharLimit = 128

	m := Model{
		user: u,
		pass: p,
		spin: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	if username != "" {
		m.focus = fieldPass
	}
	m.applyFocus()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Username returns the current username field.
func (m Model) Username() string {
	return strings.TrimSpace(m.user.Value())
}

// Fail ends a pending submit with an error and clears the password.
func (m *Model) Fail(msg string) {
	m.Busy = false
	m.Err = msg
	m.pass.SetValue("")
	m.focus = fieldPass
	m.applyFocus()
}

// Reset prepares the form for a fresh sign-in, keeping the username.
func (m *Model) Reset(notice string) {
	m.Busy = false
	m.Err = ""
	m.Notice = notice
	m.pass.SetValue("")
	m.focus = fieldPass
	if m.Username() == "" {
		m.focus = fieldUser
	}
	m.applyFocus()
}

func (m *Model) applyFocus() {
	if m.focus == fieldUser {
		m.user.Focus()
		m.pass.Blur()
	} else {
		m.pass.Focus()
		m.user.Blur()
	}
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if !m.Busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.Busy {
			return m, nil
		}
		switch msg.String() {
		case "tab", "shift+tab", "up", "down":
			m.focus = 1 - m.focus
			m.applyFocus()
			return m, nil
		case "enter":
			if m.focus == fieldUser {
				m.focus = fieldPass
				m.applyFocus()
				return m, nil
			}
			return m.submit()
		}
	}

	var cmd tea.Cmd
	if m.focus == fieldUser {
		m.user, cmd = m.user.Update(msg)
	} else {
		m.pass, cmd = m.pass.Update(msg)
	}
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	user, pass := m.Username(), m.pass.Value()
	if user == "" || pass == "" {
		m.Err = "Username and password are required"
		return m, nil
	}
	m.Busy = true
	m.Err = ""
	m.Notice = ""
	return m, tea.Batch(
		func() tea.Msg { return SubmitMsg{Username: user, Password: pass} },
		m.spin.Tick,
	)
}

// View renders the centered form.
func (m Model) View() string {
	title := theme.StyleHeader.Render("PARKWATCH · operator sign-in")

	lines := []string{title, ""}
	if m.Notice != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(m.Notice), "")
	}
	lines = append(lines, m.user.View(), m.pass.View(), "")

	switch {
	case m.Busy:
		lines = append(lines, m.spin.View()+" Signing in…")
	case m.Err != "":
		lines = append(lines, theme.StyleError.Render(m.Err))
	default:
		lines = append(lines, theme.StyleDimmed.Render("enter: sign in  tab: switch field  ctrl+c: quit"))
	}

	box := theme.Panel(44).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
	if m.Width == 0 || m.Height == 0 {
		return box
	}
	return lipgloss.Place(m.Width, m.Height, lipgloss.Center, lipgloss.Center, box)
}
