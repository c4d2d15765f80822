// Package app is the console's root Bubble Tea model. It routes between
// the login form and the live dashboard and owns the lifetime of the
// stream and poller while an operator is signed in.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/dashboard"
	"github.com/parkwatch/console/internal/session"
	"github.com/parkwatch/console/internal/theme"
	"github.com/parkwatch/console/internal/views/alerts"
	"github.com/parkwatch/console/internal/views/debug"
	"github.com/parkwatch/console/internal/views/feed"
	"github.com/parkwatch/console/internal/views/login"
	"github.com/parkwatch/console/internal/views/occupancy"
	"github.com/parkwatch/console/internal/views/status"
	"go.uber.org/zap"
)

// Session is the slice of session.Session the console drives.
type Session interface {
	Login(ctx context.Context, username, password string) (client.Identity, error)
	Restore(ctx context.Context) (client.Identity, error)
	Logout(ctx context.Context)
	Current() (client.Identity, bool)
}

// Stream is the live event subscription.
type Stream interface {
	Connect(ctx context.Context)
	Disconnect()
}

// Poller refreshes the pulled snapshot.
type Poller interface {
	Run(ctx context.Context) error
	Trigger()
}

// Resolver marks an alert resolved on the backend.
type Resolver interface {
	ResolveAlert(ctx context.Context, id string) error
}

// Deps are the collaborators of the root model.
type Deps struct {
	Session  Session
	Stream   Stream
	Poller   Poller
	Resolver Resolver
	Store    *dashboard.Store
	Log      *zap.Logger
	// Username prefills the login form.
	Username string
}

// Screen is the top-level route.
type Screen int

const (
	ScreenLogin Screen = iota
	ScreenDashboard
)

// Overlay identifies which modal is active on the dashboard.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayAlerts
	OverlayDebug
)

// Messages sent into the program from other goroutines.
type (
	// UnauthorizedMsg reports that the backend rejected the credential.
	UnauthorizedMsg struct{}
	// PollResultMsg carries the outcome of one pull.
	PollResultMsg struct{ Err error }
	// StreamStatusMsg reports a live stream connectivity transition. Seq
	// increases with every transition; a message older than the last one
	// seen is dropped.
	StreamStatusMsg struct {
		Connected bool
		Seq       uint64
	}
)

type (
	storeChangedMsg  struct{}
	restoreResultMsg struct {
		id  client.Identity
		err error
	}
	loginResultMsg struct {
		id  client.Identity
		err error
	}
	resolveResultMsg struct {
		id  string
		err error
	}
	logoutDoneMsg    struct{}
	pollerStoppedMsg struct{ err error }
)

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	// liveCancel stops the stream and poller of the current session.
	liveCancel context.CancelFunc

	keys    KeyMap
	width   int
	height  int
	screen  Screen
	overlay Overlay
	// restoring is set until the stored credential has been checked.
	restoring bool
	// streamSeq is the Seq of the last StreamStatusMsg logged.
	streamSeq uint64

	live dashboard.LiveViewState

	loginForm login.Model
	statusBar status.Model
	feed      feed.Model
	gauge     occupancy.Model
	alerts    alerts.Model
	debug     debug.Model
}

// New creates the root model. Cancelling ctx stops everything it started.
func New(ctx context.Context, deps Deps) Model {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(ctx)
	return Model{
		deps:      deps,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		restoring: true,
		loginForm: login.New(deps.Username),
		statusBar: status.New(),
		feed:      feed.New(),
		gauge:     occupancy.New(),
		alerts:    alerts.New(),
		debug:     debug.New(),
	}
}

// Init subscribes to store changes and tries to resume a stored session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForChange(m.deps.Store.Changes()),
		m.restore(),
		m.loginForm.Init(),
	)
}

func waitForChange(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return storeChangedMsg{}
	}
}

func (m Model) restore() tea.Cmd {
	sess, ctx := m.deps.Session, m.ctx
	return func() tea.Msg {
		id, err := sess.Restore(ctx)
		return restoreResultMsg{id: id, err: err}
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.ForceQuit) {
			return m.quit()
		}
		if m.screen == ScreenLogin {
			if m.restoring {
				return m, nil
			}
			var cmd tea.Cmd
			m.loginForm, cmd = m.loginForm.Update(msg)
			return m, cmd
		}
		if m.overlay == OverlayNone && m.feed.Searching() {
			var cmd tea.Cmd
			m.feed, cmd = m.feed.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)

	case storeChangedMsg:
		cmd := m.refresh()
		return m, tea.Batch(waitForChange(m.deps.Store.Changes()), cmd)

	case restoreResultMsg:
		m.restoring = false
		if msg.err != nil {
			if !errors.Is(msg.err, session.ErrNoCredential) {
				m.debug.Addf(debug.KindAuth, "restore failed: %v", msg.err)
				m.loginForm.Reset("Stored session is no longer valid, sign in again")
			}
			return m, nil
		}
		m.debug.Addf(debug.KindAuth, "resumed session for %s", msg.id.Username)
		return m.enterDashboard(msg.id)

	case login.SubmitMsg:
		sess, ctx := m.deps.Session, m.ctx
		return m, func() tea.Msg {
			id, err := sess.Login(ctx, msg.Username, msg.Password)
			return loginResultMsg{id: id, err: err}
		}

	case loginResultMsg:
		if msg.err != nil {
			m.debug.Addf(debug.KindAuth, "login failed: %v", msg.err)
			m.loginForm.Fail(loginError(msg.err))
			return m, nil
		}
		m.debug.Addf(debug.KindAuth, "signed in as %s", msg.id.Username)
		return m.enterDashboard(msg.id)

	case UnauthorizedMsg:
		// A rejected login also trips the guard; the login result reports it.
		if m.screen != ScreenDashboard {
			return m, nil
		}
		m.debug.Addf(debug.KindAuth, "credential rejected by backend")
		m.leaveDashboard("Session expired, sign in again")
		return m, nil

	case logoutDoneMsg:
		m.debug.Addf(debug.KindAuth, "signed out")
		return m, nil

	case PollResultMsg:
		if msg.Err != nil {
			m.statusBar.LastError = msg.Err.Error()
			m.debug.Addf(debug.KindPull, "pull failed: %v", msg.Err)
		} else {
			m.statusBar.LastError = ""
			m.debug.Addf(debug.KindPull, "snapshot applied")
		}
		return m, nil

	case pollerStoppedMsg:
		if msg.err != nil {
			m.debug.Addf(debug.KindPull, "poller stopped: %v", msg.err)
		}
		return m, nil

	case StreamStatusMsg:
		if msg.Seq != 0 && msg.Seq <= m.streamSeq {
			return m, nil
		}
		m.streamSeq = msg.Seq
		if msg.Connected {
			m.debug.Addf(debug.KindStream, "live stream connected")
		} else {
			m.debug.Addf(debug.KindStream, "live stream lost, reconnecting")
		}
		return m, nil

	case resolveResultMsg:
		m.alerts.Busy = ""
		if msg.err != nil {
			m.alerts.Err = msg.err.Error()
			m.debug.Addf(debug.KindError, "resolve %s: %v", msg.id, msg.err)
			return m, nil
		}
		m.alerts.Err = ""
		m.debug.Addf(debug.KindPull, "alert %s resolved", msg.id)
		m.deps.Poller.Trigger()
		return m, nil

	case occupancy.FrameMsg:
		var cmd tea.Cmd
		m.gauge, cmd = m.gauge.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch {
	case m.screen == ScreenLogin:
		m.loginForm, cmd = m.loginForm.Update(msg)
	case m.feed.Searching():
		m.feed, cmd = m.feed.Update(msg)
	}
	return m, cmd
}

func loginError(err error) string {
	if errors.Is(err, session.ErrAuthentication) {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return apiErr.Message
		}
		return "Invalid credentials"
	}
	return fmt.Sprintf("Cannot sign in: %v", err)
}

func (m Model) enterDashboard(id client.Identity) (tea.Model, tea.Cmd) {
	m.screen = ScreenDashboard
	m.overlay = OverlayNone
	m.statusBar.Operator = id.DisplayName()
	m.statusBar.LastError = ""

	if m.liveCancel != nil {
		m.liveCancel()
	}
	ctx, cancel := context.WithCancel(m.ctx)
	m.liveCancel = cancel
	m.deps.Stream.Connect(ctx)
	m.deps.Log.Info("live dashboard started", zap.String("operator", id.Username))

	pol := m.deps.Poller
	return m, func() tea.Msg {
		return pollerStoppedMsg{err: pol.Run(ctx)}
	}
}

func (m *Model) stopLive() {
	if m.liveCancel != nil {
		m.liveCancel()
		m.liveCancel = nil
	}
	m.deps.Stream.Disconnect()
}

func (m *Model) leaveDashboard(notice string) {
	m.stopLive()
	m.deps.Log.Info("live dashboard stopped", zap.String("reason", notice))
	m.deps.Store.ClearLiveEvents()
	m.screen = ScreenLogin
	m.overlay = OverlayNone
	m.statusBar.Operator = ""
	m.loginForm.Reset(notice)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.stopLive()
	m.cancel()
	return m, tea.Quit
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.overlay {
	case OverlayAlerts:
		return m.handleAlertsKey(msg)
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Alerts):
		m.openAlerts(alerts.TabActive)

	case key.Matches(msg, m.keys.History):
		m.openAlerts(alerts.TabHistory)

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug

	case key.Matches(msg, m.keys.EventLog):
		m.feed.Toggle()

	case key.Matches(msg, m.keys.Search):
		return m, m.feed.StartSearch()

	case key.Matches(msg, m.keys.Filter):
		m.feed.CycleDecision()

	case key.Matches(msg, m.keys.Clear):
		m.deps.Store.ClearLiveEvents()

	case key.Matches(msg, m.keys.Resync):
		m.debug.Addf(debug.KindPull, "resync requested")
		m.deps.Poller.Trigger()

	case key.Matches(msg, m.keys.Logout):
		m.leaveDashboard("")
		sess, ctx := m.deps.Session, m.ctx
		return m, func() tea.Msg {
			sess.Logout(ctx)
			return logoutDoneMsg{}
		}
	}
	return m, nil
}

func (m *Model) openAlerts(tab alerts.Tab) {
	m.overlay = OverlayAlerts
	if m.alerts.Tab != tab {
		m.alerts.ToggleTab()
	}
	m.alerts.Detail = false
	m.alerts.Err = ""
}

func (m Model) handleAlertsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		if m.alerts.Detail {
			m.alerts.Detail = false
		} else {
			m.overlay = OverlayNone
		}
	case key.Matches(msg, m.keys.Up):
		m.alerts.Up()
	case key.Matches(msg, m.keys.Down):
		m.alerts.Down()
	case key.Matches(msg, m.keys.Enter):
		m.alerts.Detail = !m.alerts.Detail
	case key.Matches(msg, m.keys.Tab):
		m.alerts.ToggleTab()
	case key.Matches(msg, m.keys.Severity):
		m.alerts.CycleSeverity()
	case key.Matches(msg, m.keys.Resolve):
		a, ok := m.alerts.Selected()
		if !ok || a.Resolved || m.alerts.Busy != "" {
			return m, nil
		}
		m.alerts.Busy = a.ID
		res, ctx, id := m.deps.Resolver, m.ctx, a.ID
		return m, func() tea.Msg {
			return resolveResultMsg{id: id, err: res.ResolveAlert(ctx, id)}
		}
	case key.Matches(msg, m.keys.Quit):
		return m.quit()
	}
	return m, nil
}

// refresh copies the store into the sub-views.
func (m *Model) refresh() tea.Cmd {
	m.live = m.deps.Store.Snapshot()
	m.statusBar.Connected = m.live.Connected
	m.statusBar.Unresolved = m.deps.Store.UnresolvedCount()
	m.statusBar.SyncedAt = m.live.SyncedAt
	m.feed.SetEvents(m.live.Events, m.live.Recent)
	m.alerts.SetAlerts(m.live.Alerts)
	return m.gauge.SetReading(m.live.Occupancy)
}

func (m *Model) layout() {
	m.statusBar.Width = m.width
	m.gauge.Width = m.width
	m.feed.Width = m.width
	// status bar 3, gauge 2, counters 1, banner 1, feed header 2, help 1,
	// spacing 2.
	m.feed.Height = max(m.height-12, 3)
	m.alerts.Width = m.width
	m.alerts.Height = m.height
	m.loginForm.Width = m.width
	m.loginForm.Height = m.height
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.screen == ScreenLogin {
		if m.restoring {
			return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
				theme.StyleDimmed.Render("Restoring session…"))
		}
		return m.loginForm.View()
	}

	var body string
	switch m.overlay {
	case OverlayAlerts:
		body = m.alerts.View()
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	default:
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.gauge.View(),
			m.feed.CountersView(),
			"",
			m.feed.View(),
		)
	}

	sections := []string{m.statusBar.View()}
	if banner := m.banner(); banner != "" {
		sections = append(sections, banner)
	}
	sections = append(sections,
		body,
		theme.StyleDimmed.Render("  a:alerts  h:history  e:event log  /:search  f:filter  c:clear  r:resync  d:debug  L:sign out  q:quit"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) banner() string {
	if a, ok := m.live.CriticalAlert(); ok {
		text := fmt.Sprintf(" ⚠ CRITICAL %s  %s  %s ", a.Type, a.Plate, a.Message)
		return lipgloss.NewStyle().Bold(true).
			Foreground(theme.ColorBright).Background(theme.ColorCritical).
			Render(text)
	}
	if !m.live.Connected {
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render("  OFFLINE · reconnecting to live stream")
	}
	return ""
}
