package login

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func typeText(m Model, s string) Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return m
}

func press(m Model, k tea.KeyType) (Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: k})
}

// submitted runs cmd and returns the SubmitMsg it carries, if any.
func submitted(cmd tea.Cmd) (SubmitMsg, bool) {
	if cmd == nil {
		return SubmitMsg{}, false
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if s, ok := c().(SubmitMsg); ok {
				return s, true
			}
		}
		return SubmitMsg{}, false
	}
	s, ok := msg.(SubmitMsg)
	return s, ok
}

func TestSubmit(t *testing.T) {
	m := New("")
	m = typeText(m, "admin")
	m, _ = press(m, tea.KeyEnter) // moves to password
	m = typeText(m, "secret")
	m, cmd := press(m, tea.KeyEnter)

	if !m.Busy {
		t.Fatal("form should be busy after submit")
	}
	got, ok := submitted(cmd)
	if !ok {
		t.Fatal("no SubmitMsg produced")
	}
	if got.Username != "admin" || got.Password != "secret" {
		t.Errorf("submitted %+v", got)
	}
}

func TestSubmitRequiresBothFields(t *testing.T) {
	m := New("admin")
	m, cmd := press(m, tea.KeyEnter)
	if m.Busy || cmd != nil {
		t.Error("empty password was submitted")
	}
	if !strings.Contains(m.Err, "required") {
		t.Errorf("Err = %q", m.Err)
	}
}

func TestKeysIgnoredWhileBusy(t *testing.T) {
	m := New("admin")
	m = typeText(m, "pw")
	m, _ = press(m, tea.KeyEnter)
	m = typeText(m, "more")
	if m.pass.Value() != "pw" {
		t.Errorf("password changed while busy: %q", m.pass.Value())
	}
}

func TestFailClearsPassword(t *testing.T) {
	m := New("admin")
	m = typeText(m, "wrong")
	m, _ = press(m, tea.KeyEnter)
	m.Fail("Invalid credentials")

	if m.Busy {
		t.Error("still busy after Fail")
	}
	if m.pass.Value() != "" {
		t.Error("password kept after Fail")
	}
	if m.Username() != "admin" {
		t.Errorf("username lost: %q", m.Username())
	}
	if v := m.View(); !strings.Contains(v, "Invalid credentials") {
		t.Errorf("view missing error:\n%s", v)
	}
}

func TestResetShowsNotice(t *testing.T) {
	m := New("admin")
	m.Reset("Session expired, sign in again")
	v := m.View()
	if !strings.Contains(v, "Session expired") {
		t.Errorf("view missing notice:\n%s", v)
	}
	if strings.Contains(v, "secret") {
		t.Error("password echoed in view")
	}
}

func TestTabSwitchesField(t *testing.T) {
	m := New("")
	m, _ = press(m, tea.KeyTab)
	m = typeText(m, "x")
	if m.pass.Value() != "x" || m.user.Value() != "" {
		t.Errorf("tab did not move focus: user=%q pass=%q", m.user.Value(), m.pass.Value())
	}
}
