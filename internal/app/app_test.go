package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/credential"
	"github.com/parkwatch/console/internal/dashboard"
	"github.com/parkwatch/console/internal/mockapi"
	"github.com/parkwatch/console/internal/poller"
	"github.com/parkwatch/console/internal/session"
	"github.com/parkwatch/console/internal/views/login"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var operator = client.Identity{ID: "u1", Username: "admin", FullName: "Lot Administrator", Role: "admin"}

type fakeSession struct {
	restoreErr error
	loginErr   error
	logouts    int
}

func (f *fakeSession) Login(_ context.Context, _, _ string) (client.Identity, error) {
	if f.loginErr != nil {
		return client.Identity{}, f.loginErr
	}
	return operator, nil
}

func (f *fakeSession) Restore(context.Context) (client.Identity, error) {
	if f.restoreErr != nil {
		return client.Identity{}, f.restoreErr
	}
	return operator, nil
}

func (f *fakeSession) Logout(context.Context) { f.logouts++ }

func (f *fakeSession) Current() (client.Identity, bool) { return operator, true }

type fakeStream struct {
	connects, disconnects int
}

func (f *fakeStream) Connect(context.Context) { f.connects++ }
func (f *fakeStream) Disconnect()             { f.disconnects++ }

type fakePoller struct{ triggers int }

func (f *fakePoller) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (f *fakePoller) Trigger() { f.triggers++ }

type fakeResolver struct {
	err      error
	resolved []string
}

func (f *fakeResolver) ResolveAlert(_ context.Context, id string) error {
	f.resolved = append(f.resolved, id)
	return f.err
}

type fixture struct {
	sess     *fakeSession
	stream   *fakeStream
	poller   *fakePoller
	resolver *fakeResolver
	store    *dashboard.Store
}

func newModel(t *testing.T, f *fixture) Model {
	t.Helper()
	if f.sess == nil {
		f.sess = &fakeSession{}
	}
	f.stream = &fakeStream{}
	f.poller = &fakePoller{}
	if f.resolver == nil {
		f.resolver = &fakeResolver{}
	}
	f.store = dashboard.NewStore()
	m := New(context.Background(), Deps{
		Session:  f.sess,
		Stream:   f.stream,
		Poller:   f.poller,
		Resolver: f.resolver,
		Store:    f.store,
	})
	t.Cleanup(m.cancel)
	return update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func signedIn(t *testing.T, f *fixture) Model {
	t.Helper()
	m := newModel(t, f)
	m = update(m, restoreResultMsg{id: operator})
	require.Equal(t, ScreenDashboard, m.screen)
	return m
}

func TestRestoreWithoutCredentialShowsLogin(t *testing.T) {
	f := &fixture{}
	m := newModel(t, f)
	assert.Contains(t, m.View(), "Restoring session")

	m = update(m, restoreResultMsg{err: session.ErrNoCredential})
	assert.Equal(t, ScreenLogin, m.screen)
	assert.Contains(t, m.View(), "operator sign-in")
	assert.NotContains(t, m.View(), "no longer valid")
	assert.Zero(t, f.stream.connects)
}

func TestRestoreRejectedShowsNotice(t *testing.T) {
	m := newModel(t, &fixture{})
	m = update(m, restoreResultMsg{err: errors.New("HTTP 401: Not authenticated")})
	assert.Equal(t, ScreenLogin, m.screen)
	assert.Contains(t, m.View(), "no longer valid")
}

func TestRestoreStartsLiveSession(t *testing.T) {
	f := &fixture{}
	m := newModel(t, f)
	m, cmd := updateCmd(m, restoreResultMsg{id: operator})

	assert.Equal(t, ScreenDashboard, m.screen)
	assert.Equal(t, 1, f.stream.connects)
	assert.NotNil(t, cmd, "poller command expected")
	assert.Contains(t, m.View(), "Lot Administrator")
}

func TestLoginSubmit(t *testing.T) {
	f := &fixture{}
	m := newModel(t, f)
	m = update(m, restoreResultMsg{err: session.ErrNoCredential})

	m, cmd := updateCmd(m, login.SubmitMsg{Username: "admin", Password: "admin"})
	require.NotNil(t, cmd)
	m = update(m, cmd())

	assert.Equal(t, ScreenDashboard, m.screen)
	assert.Equal(t, 1, f.stream.connects)
}

func TestLoginFailureShowsBackendMessage(t *testing.T) {
	apiErr := &client.APIError{StatusCode: 401, Message: "Invalid credentials"}
	f := &fixture{sess: &fakeSession{loginErr: errors.Join(session.ErrAuthentication, apiErr)}}
	m := newModel(t, f)
	m = update(m, restoreResultMsg{err: session.ErrNoCredential})

	_, cmd := updateCmd(m, login.SubmitMsg{Username: "admin", Password: "nope"})
	m = update(m, cmd())

	assert.Equal(t, ScreenLogin, m.screen)
	assert.Contains(t, m.View(), "Invalid credentials")
	assert.Zero(t, f.stream.connects)
}

func TestLoginTransportFailure(t *testing.T) {
	assert.Equal(t, "Cannot sign in: dial tcp: refused", loginError(errors.New("dial tcp: refused")))
	assert.Equal(t, "Invalid credentials", loginError(session.ErrAuthentication))
}

func TestUnauthorizedReturnsToLogin(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)
	f.store.RecordLiveGateEvent(client.GateEvent{ID: "1", Plate: "123TU4567"})

	m = update(m, UnauthorizedMsg{})
	assert.Equal(t, ScreenLogin, m.screen)
	assert.Equal(t, 1, f.stream.disconnects)
	assert.Nil(t, m.liveCancel)
	assert.Empty(t, f.store.Snapshot().Events, "live feed should be cleared on sign-out")
	assert.Contains(t, m.View(), "Session expired")
}

func TestUnauthorizedIgnoredOnLoginScreen(t *testing.T) {
	f := &fixture{}
	m := newModel(t, f)
	m = update(m, restoreResultMsg{err: session.ErrNoCredential})
	m = update(m, UnauthorizedMsg{})
	assert.Equal(t, ScreenLogin, m.screen)
	assert.Zero(t, f.stream.disconnects)
	assert.NotContains(t, m.View(), "Session expired")
}

func TestStoreChangeRefreshesViews(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)

	f.store.SetConnectivity(true)
	f.store.RecordLiveGateEvent(client.GateEvent{ID: "1", Plate: "123TU4567", Gate: "A", Decision: client.DecisionAllow})
	f.store.RecordAlert(client.Alert{ID: "a1", Type: "BLACKLIST", Severity: client.SeverityCritical, Plate: "666TU6666", Message: "Blacklisted vehicle"})
	f.store.SetOccupancy(150, 200)

	m, cmd := updateCmd(m, storeChangedMsg{})
	assert.NotNil(t, cmd)

	v := m.View()
	for _, want := range []string{"● Live", "1 open alerts", "123TU4567", "CRITICAL BLACKLIST"} {
		assert.Contains(t, v, want)
	}
	assert.Equal(t, 75.0, m.gauge.Target())
}

func TestOfflineBanner(t *testing.T) {
	m := signedIn(t, &fixture{})
	m = update(m, storeChangedMsg{})
	assert.Contains(t, m.View(), "OFFLINE")
}

func TestResolveFromAlertsOverlay(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)
	f.store.ReplaceAlerts([]client.Alert{{ID: "a1", Type: "BLACKLIST", Severity: client.SeverityHigh, Message: "x", CreatedAt: time.Now()}})
	m = update(m, storeChangedMsg{})

	m = update(m, keyPress("a"))
	require.Equal(t, OverlayAlerts, m.overlay)

	m, cmd := updateCmd(m, keyPress("x"))
	require.NotNil(t, cmd)
	assert.Equal(t, "a1", m.alerts.Busy)

	// A second press while busy is ignored.
	_, again := updateCmd(m, keyPress("x"))
	assert.Nil(t, again)

	m = update(m, cmd())
	assert.Equal(t, []string{"a1"}, f.resolver.resolved)
	assert.Empty(t, m.alerts.Busy)
	assert.Equal(t, 1, f.poller.triggers, "resolve should trigger a re-pull")

	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, OverlayNone, m.overlay)
}

func TestResolveFailureShown(t *testing.T) {
	f := &fixture{resolver: &fakeResolver{err: &client.APIError{StatusCode: 404, Message: "Alert not found"}}}
	m := signedIn(t, f)
	f.store.ReplaceAlerts([]client.Alert{{ID: "a1", Type: "BLACKLIST", Severity: client.SeverityHigh}})
	m = update(m, storeChangedMsg{})
	m = update(m, keyPress("a"))

	_, cmd := updateCmd(m, keyPress("x"))
	m = update(m, cmd())
	assert.Contains(t, m.View(), "Alert not found")
	assert.Zero(t, f.poller.triggers)
}

func TestHistoryKeyOpensResolvedTab(t *testing.T) {
	m := signedIn(t, &fixture{})
	m = update(m, keyPress("h"))
	assert.Equal(t, OverlayAlerts, m.overlay)
	assert.Contains(t, m.View(), "ALERTS · History")
}

func TestDashboardKeys(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)
	f.store.RecordLiveGateEvent(client.GateEvent{ID: "1", Plate: "P1"})

	m = update(m, keyPress("c"))
	assert.Empty(t, f.store.Snapshot().Events)

	m = update(m, keyPress("r"))
	assert.Equal(t, 1, f.poller.triggers)

	m = update(m, keyPress("e"))
	m = update(m, storeChangedMsg{})
	assert.Contains(t, m.View(), "Event log")

	m = update(m, keyPress("d"))
	assert.Equal(t, OverlayDebug, m.overlay)
	assert.Contains(t, m.View(), "EVENT LOG")
	m = update(m, keyPress("d"))
	assert.Equal(t, OverlayNone, m.overlay)
}

func TestEventLogSearchAndFilter(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)
	now := time.Now()
	f.store.SetRecentEvents([]client.ParkingEvent{
		{ID: "1", Plate: "123TU4567", GateID: "A", EventType: client.EventEntry, Decision: client.DecisionAllow, Timestamp: now},
		{ID: "2", Plate: "666TU6666", GateID: "A", EventType: client.EventEntry, Decision: client.DecisionDeny, Timestamp: now},
		{ID: "3", Plate: "12NA0001", GateID: "B", EventType: client.EventExit, Decision: client.DecisionDeny, Timestamp: now},
	})
	m = update(m, storeChangedMsg{})
	assert.Contains(t, m.View(), "Today's entries")

	// Keys go to the search field while it is open.
	m = update(m, keyPress("/"))
	require.True(t, m.feed.Searching())
	m = update(m, keyPress("q"))
	assert.Equal(t, ScreenDashboard, m.screen)
	assert.Equal(t, "q", m.feed.Query())
	m = update(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.feed.Searching())
	assert.Empty(t, m.feed.Query())
	assert.Equal(t, OverlayNone, m.overlay)

	m = update(m, keyPress("/"))
	m = update(m, keyPress("t"))
	m = update(m, keyPress("u"))
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Contains(t, m.View(), "Event log (2 of 3)")

	// allow, then deny.
	m = update(m, keyPress("f"))
	m = update(m, keyPress("f"))
	assert.Equal(t, client.DecisionDeny, m.feed.Decision)
	got := m.feed.Filtered()
	require.Len(t, got, 1)
	assert.Equal(t, "666TU6666", got[0].Plate)
}

func TestAlertsSeverityKey(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)
	f.store.ReplaceAlerts([]client.Alert{
		{ID: "a1", Type: "BLACKLIST", Severity: client.SeverityCritical},
		{ID: "a2", Type: "UNKNOWN_VEHICLE", Severity: client.SeverityMedium},
	})
	m = update(m, storeChangedMsg{})
	m = update(m, keyPress("a"))

	m = update(m, keyPress("s"))
	assert.Equal(t, client.SeverityCritical, m.alerts.Severity)
	require.Len(t, m.alerts.Visible(), 1)
	assert.Equal(t, "a1", m.alerts.Visible()[0].ID)
}

func TestStaleStreamStatusDropped(t *testing.T) {
	m := signedIn(t, &fixture{})
	m = update(m, StreamStatusMsg{Connected: false, Seq: 2})
	m = update(m, StreamStatusMsg{Connected: true, Seq: 1})

	var lines []string
	for _, e := range m.debug.Entries {
		lines = append(lines, e.Message)
	}
	assert.Contains(t, lines, "live stream lost, reconnecting")
	assert.NotContains(t, lines, "live stream connected")
	assert.Equal(t, uint64(2), m.streamSeq)
}

func TestLogout(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)

	m, cmd := updateCmd(m, keyPress("L"))
	assert.Equal(t, ScreenLogin, m.screen)
	assert.Equal(t, 1, f.stream.disconnects)
	require.NotNil(t, cmd)
	m = update(m, cmd())
	assert.Equal(t, 1, f.sess.logouts)
}

func TestQuit(t *testing.T) {
	f := &fixture{}
	m := signedIn(t, f)
	_, cmd := updateCmd(m, keyPress("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Equal(t, 1, f.stream.disconnects)
}

func TestQuitKeyTypesOnLoginScreen(t *testing.T) {
	f := &fixture{}
	m := newModel(t, f)
	m = update(m, restoreResultMsg{err: session.ErrNoCredential})
	m = update(m, keyPress("q"))
	assert.Equal(t, ScreenLogin, m.screen)
	assert.Equal(t, "q", m.loginForm.Username(), "q must be typed into the form")
}

type recorder struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recorder) send(msg tea.Msg) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

func (r *recorder) hasStreamStatus(connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if s, ok := m.(StreamStatusMsg); ok && s.Connected == connected && s.Seq > 0 {
			return true
		}
	}
	return false
}

func (r *recorder) has(want tea.Msg) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m == want {
			return true
		}
	}
	return false
}

func TestBindAgainstMockBackend(t *testing.T) {
	backend := mockapi.New(mockapi.DefaultConfig(), nil)
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	creds := credential.NewMemory()
	guard := client.NewGuard(nil, creds, nil)
	api := client.NewHTTPClient(srv.URL, guard, 5*time.Second)
	store := dashboard.NewStore()
	stream := client.NewStream(client.StreamConfig{
		URL:           "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		ReconnectBase: 20 * time.Millisecond,
		ReconnectMax:  100 * time.Millisecond,
	}, creds, nil)
	t.Cleanup(stream.Disconnect)

	c := Components{
		Guard:   guard,
		API:     api,
		Session: session.New(api, creds, nil),
		Stream:  stream,
		Poller:  poller.New(api, store, time.Hour, 50, nil),
		Store:   store,
	}
	rec := &recorder{}
	Bind(c, rec.send)

	ctx := context.Background()
	_, err := c.Session.Login(ctx, "admin", "admin")
	require.NoError(t, err)

	stream.Connect(ctx)
	require.Eventually(t, func() bool {
		return store.Connected() && backend.StreamClients() == 1 && rec.hasStreamStatus(true)
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, backend.Push(client.TagGateEvent, client.GateEvent{
		ID: "g1", Plate: "123TU4567", Gate: "A", Decision: client.DecisionAllow, Timestamp: time.Now(),
	}))
	require.NoError(t, backend.Push(client.TagOccupancyUpdate, client.Occupancy{Current: 42, Total: 200}))
	require.Eventually(t, func() bool {
		st := store.Snapshot()
		return len(st.Events) == 1 && st.Occupancy.Current == 42
	}, 5*time.Second, 10*time.Millisecond)

	tok, ok := creds.Get()
	require.True(t, ok)
	backend.Revoke(tok)

	err = c.Poller.Pull(ctx)
	require.True(t, client.IsUnauthorized(err), "got %v", err)
	assert.True(t, rec.has(UnauthorizedMsg{}))
	assert.Equal(t, session.Anonymous, c.Session.State())
	_, ok = creds.Get()
	assert.False(t, ok)
}
