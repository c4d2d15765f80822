// Package dashboard holds the merged live view the console renders: the
// bounded gate event feed, alerts reconciled by id, the latest occupancy
// reading and the stream connectivity flag.
package dashboard

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/parkwatch/console/internal/client"
)

const (
	// MaxLiveEvents bounds the live gate event feed.
	MaxLiveEvents = 50
	// MaxLiveAlerts bounds the live alert feed.
	MaxLiveAlerts = 100
	// MaxRecentEvents bounds the pulled event log.
	MaxRecentEvents = 50
	// DefaultCapacity is the lot size shown before any reading arrives.
	DefaultCapacity = 200
)

// alertEntry is one logical alert. pushed means it is in the live feed;
// pulled means the latest pull returned it.
type alertEntry struct {
	alert  client.Alert
	pushed bool
	pulled bool
}

// LiveViewState is a point-in-time copy of the store.
type LiveViewState struct {
	Events    []client.GateEvent // most recent first
	Feed      []client.Alert     // live alert feed, most recent first
	Alerts    []client.Alert     // every known alert, newest first
	Occupancy client.Occupancy
	Connected bool
	Recent    []client.ParkingEvent
	SyncedAt  time.Time
}

// CriticalAlert returns the first unresolved critical alert in the live
// feed.
func (s LiveViewState) CriticalAlert() (client.Alert, bool) {
	for _, a := range s.Feed {
		if !a.Resolved && a.Severity == client.SeverityCritical {
			return a, true
		}
	}
	return client.Alert{}, false
}

// Store is safe for concurrent use. Mutations never block on observers.
type Store struct {
	mu        sync.RWMutex
	events    []client.GateEvent
	feed      []string
	alerts    map[string]*alertEntry
	occupancy client.Occupancy
	connected bool
	recent    []client.ParkingEvent
	syncedAt  time.Time

	changes chan struct{}
}

// NewStore creates an empty store showing the default lot capacity.
func NewStore() *Store {
	return &Store{
		alerts:    make(map[string]*alertEntry),
		occupancy: client.Occupancy{Total: DefaultCapacity},
		changes:   make(chan struct{}, 1),
	}
}

// Changes signals after mutations. Signals coalesce: a reader that falls
// behind sees one pending signal, then reads Snapshot.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// RecordLiveGateEvent prepends e to the live feed, evicting the oldest
// entry beyond MaxLiveEvents.
func (s *Store) RecordLiveGateEvent(e client.GateEvent) {
	s.mu.Lock()
	s.events = prepend(s.events, e, MaxLiveEvents)
	s.mu.Unlock()
	s.notify()
}

// ClearLiveEvents empties the live gate event feed only.
func (s *Store) ClearLiveEvents() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
	s.notify()
}

// RecordAlert adds a pushed alert to the live feed unless its id is
// already there. An alert a pull returned first joins the feed with its
// pulled fields kept: resolution changes arrive only through ReplaceAlerts.
func (s *Store) RecordAlert(a client.Alert) {
	s.mu.Lock()
	e, ok := s.alerts[a.ID]
	if ok && e.pushed {
		s.mu.Unlock()
		return
	}
	if ok {
		e.pushed = true
	} else {
		s.alerts[a.ID] = &alertEntry{alert: a, pushed: true}
	}
	s.feed = slices.Insert(s.feed, 0, a.ID)
	s.trimFeed()
	s.mu.Unlock()
	s.notify()
}

// trimFeed evicts the oldest feed entries beyond MaxLiveAlerts. An evicted
// alert no pull returned is forgotten. Callers hold mu.
func (s *Store) trimFeed() {
	for len(s.feed) > MaxLiveAlerts {
		evicted := s.feed[len(s.feed)-1]
		s.feed = s.feed[:len(s.feed)-1]
		if e := s.alerts[evicted]; e != nil {
			e.pushed = false
			if !e.pulled {
				delete(s.alerts, evicted)
			}
		}
	}
}

// ReplaceAlerts applies an authoritative pull. Every pulled alert
// overwrites the stored fields for its id. Alerts the previous pull
// returned but this one does not are forgotten unless they are in the live
// feed; alerts that were only ever pushed are kept.
func (s *Store) ReplaceAlerts(list []client.Alert) {
	s.mu.Lock()
	seen := make(map[string]struct{}, len(list))
	for _, a := range list {
		seen[a.ID] = struct{}{}
		if e, ok := s.alerts[a.ID]; ok {
			e.alert = a
			e.pulled = true
			continue
		}
		s.alerts[a.ID] = &alertEntry{alert: a, pulled: true}
	}
	for id, e := range s.alerts {
		if _, ok := seen[id]; ok {
			continue
		}
		e.pulled = false
		if !e.pushed {
			delete(s.alerts, id)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// SetOccupancy overwrites the reading. Snapshot derives the percentage.
func (s *Store) SetOccupancy(current, total int) {
	s.mu.Lock()
	s.occupancy = client.Occupancy{Current: current, Total: total}
	s.mu.Unlock()
	s.notify()
}

// SetConnectivity records the live stream's connection health.
func (s *Store) SetConnectivity(connected bool) {
	s.mu.Lock()
	changed := s.connected != connected
	s.connected = connected
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// SetRecentEvents replaces the pulled event log.
func (s *Store) SetRecentEvents(events []client.ParkingEvent) {
	if len(events) > MaxRecentEvents {
		events = events[:MaxRecentEvents]
	}
	s.mu.Lock()
	s.recent = slices.Clone(events)
	s.mu.Unlock()
	s.notify()
}

// MarkSynced records when the last pull snapshot completed.
func (s *Store) MarkSynced(at time.Time) {
	s.mu.Lock()
	s.syncedAt = at
	s.mu.Unlock()
	s.notify()
}

// Connected reports the live stream's connection health.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// UnresolvedCount is the badge count: unresolved alerts in the live feed.
func (s *Store) UnresolvedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, id := range s.feed {
		if e := s.alerts[id]; e != nil && !e.alert.Resolved {
			n++
		}
	}
	return n
}

// Alert returns the stored alert for id.
func (s *Store) Alert(id string) (client.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.alerts[id]
	if !ok {
		return client.Alert{}, false
	}
	return e.alert, true
}

// Snapshot returns a copy the caller may keep.
func (s *Store) Snapshot() LiveViewState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := LiveViewState{
		Events:    slices.Clone(s.events),
		Occupancy: s.occupancy,
		Connected: s.connected,
		Recent:    slices.Clone(s.recent),
		SyncedAt:  s.syncedAt,
	}
	st.Occupancy.Percentage = percentage(s.occupancy)

	st.Feed = make([]client.Alert, 0, len(s.feed))
	for _, id := range s.feed {
		if e := s.alerts[id]; e != nil {
			st.Feed = append(st.Feed, e.alert)
		}
	}

	st.Alerts = make([]client.Alert, 0, len(s.alerts))
	for _, e := range s.alerts {
		st.Alerts = append(st.Alerts, e.alert)
	}
	slices.SortFunc(st.Alerts, func(a, b client.Alert) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return st
}

func percentage(o client.Occupancy) float64 {
	if o.Total <= 0 {
		return 0
	}
	return float64(o.Current) * 100 / float64(o.Total)
}

func prepend[T any](s []T, v T, limit int) []T {
	s = slices.Insert(s, 0, v)
	if len(s) > limit {
		clear(s[limit:])
		s = s[:limit]
	}
	return s
}
