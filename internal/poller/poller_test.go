package poller

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/dashboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	active    []client.Alert
	history   []client.Alert
	occ       client.Occupancy
	events    []client.ParkingEvent
	alertsErr error
	occErr    error
	limit     int
	pulls     int
}

func (f *fakeSource) ListAlerts(context.Context) ([]client.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls++
	if f.alertsErr != nil {
		return nil, f.alertsErr
	}
	return f.active, nil
}

func (f *fakeSource) AlertHistory(context.Context) ([]client.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.history, nil
}

func (f *fakeSource) Occupancy(context.Context) (*client.Occupancy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.occErr != nil {
		return nil, f.occErr
	}
	o := f.occ
	return &o, nil
}

func (f *fakeSource) ListEvents(_ context.Context, limit int) ([]client.ParkingEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
	return f.events, nil
}

func (f *fakeSource) pullCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulls
}

func TestPullAppliesSnapshot(t *testing.T) {
	src := &fakeSource{
		active:  []client.Alert{{ID: "a1"}},
		history: []client.Alert{{ID: "a0", Resolved: true}},
		occ:     client.Occupancy{Current: 42, Total: 200, Percentage: 21},
		events:  []client.ParkingEvent{{ID: "e1", Plate: "123TU4567"}},
	}
	store := dashboard.NewStore()
	p := New(src, store, time.Hour, 50, nil)
	synced := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return synced }

	require.NoError(t, p.Pull(context.Background()))

	st := store.Snapshot()
	assert.Len(t, st.Alerts, 2)
	a0, ok := store.Alert("a0")
	require.True(t, ok)
	assert.True(t, a0.Resolved)
	assert.Equal(t, 42, st.Occupancy.Current)
	assert.Equal(t, 200, st.Occupancy.Total)
	assert.Equal(t, 50, src.limit)
	require.Len(t, st.Recent, 1)
	assert.Equal(t, "123TU4567", st.Recent[0].Plate)
	assert.Equal(t, synced, st.SyncedAt)
}

func TestPullPartialFailure(t *testing.T) {
	src := &fakeSource{
		active: []client.Alert{{ID: "a1"}},
		occErr: &client.APIError{StatusCode: http.StatusInternalServerError, Message: "db down"},
		events: []client.ParkingEvent{{ID: "e1"}},
	}
	store := dashboard.NewStore()
	store.SetOccupancy(10, 100)
	p := New(src, store, time.Hour, 0, nil)

	err := p.Pull(context.Background())
	require.Error(t, err)
	assert.False(t, client.IsUnauthorized(err))

	st := store.Snapshot()
	assert.Equal(t, 10, st.Occupancy.Current, "failed resource keeps its previous view")
	assert.Len(t, st.Alerts, 1)
	assert.Len(t, st.Recent, 1)
	assert.True(t, st.SyncedAt.IsZero())
}

func TestRunStopsOnUnauthorized(t *testing.T) {
	src := &fakeSource{alertsErr: &client.APIError{StatusCode: http.StatusUnauthorized, Message: "expired"}}
	p := New(src, dashboard.NewStore(), 10*time.Millisecond, 0, nil)
	var results []error
	p.OnResult = func(err error) { results = append(results, err) }

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsUnauthorized(err))
	assert.Equal(t, 1, src.pullCount())
	require.Len(t, results, 1)
	assert.True(t, client.IsUnauthorized(results[0]))
}

func TestRunTriggerAndCancel(t *testing.T) {
	src := &fakeSource{}
	p := New(src, dashboard.NewStore(), time.Hour, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return src.pullCount() == 1 }, time.Second, 5*time.Millisecond)
	p.Trigger()
	require.Eventually(t, func() bool { return src.pullCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunKeepsGoingOnTransientErrors(t *testing.T) {
	src := &fakeSource{alertsErr: errors.New("connection refused")}
	p := New(src, dashboard.NewStore(), 5*time.Millisecond, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	require.Eventually(t, func() bool { return src.pullCount() >= 3 }, time.Second, 5*time.Millisecond)
}
