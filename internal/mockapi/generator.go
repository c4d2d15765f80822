package mockapi

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/parkwatch/console/internal/client"
	"go.uber.org/zap"
)

var (
	mockGates   = []string{"A", "B", "C"}
	mockRegions = []string{"TU", "BE", "NA", "ZG"}
	// Plates that always trip a blacklist alert.
	mockBlacklist = []string{"666TU6666", "13BE1313"}
)

// Generator produces synthetic gate traffic on a Server.
type Generator struct {
	srv  *Server
	rng  *rand.Rand
	tick time.Duration
	now  func() time.Time
}

// NewGenerator creates a Generator that publishes one gate event per tick.
// The same seed replays the same traffic.
func NewGenerator(srv *Server, tick time.Duration, seed uint64) *Generator {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	return &Generator{
		srv:  srv,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		tick: tick,
		now:  time.Now,
	}
}

// Run emits one gate event per tick until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Step()
		}
	}
}

// Step emits one gate event, the occupancy change it causes, and any
// alert it raises.
func (g *Generator) Step() {
	now := g.now().UTC()
	plate := g.plate()
	gate := mockGates[g.rng.IntN(len(mockGates))]
	entry := g.rng.IntN(2) == 0

	decision := client.DecisionAllow
	switch {
	case slices.Contains(mockBlacklist, plate):
		decision = client.DecisionAlert
	case g.rng.IntN(10) == 0:
		decision = client.DecisionDeny
	}

	kind := client.EventExit
	if entry {
		kind = client.EventEntry
	}
	confidence := 0.80 + g.rng.Float64()*0.19
	ev := client.ParkingEvent{
		ID:            uuid.NewString(),
		Plate:         plate,
		GateID:        gate,
		CameraID:      "cam-" + gate,
		EventType:     kind,
		OCRConfidence: &confidence,
		Decision:      decision,
		Timestamp:     now,
	}

	s := g.srv
	s.mu.Lock()
	s.events = append([]client.ParkingEvent{ev}, s.events...)
	if len(s.events) > eventLogLimit {
		s.events = s.events[:eventLogLimit]
	}
	if decision == client.DecisionAllow {
		if entry && s.occupancy.Current < s.occupancy.Total {
			s.occupancy.Current++
		} else if !entry && s.occupancy.Current > 0 {
			s.occupancy.Current--
		}
	}
	occ := s.occupancy
	s.mu.Unlock()

	g.push(client.TagGateEvent, client.GateEvent{
		ID:        ev.ID,
		Plate:     plate,
		Gate:      gate,
		Decision:  decision,
		Timestamp: now,
	})
	g.push(client.TagOccupancyUpdate, client.Occupancy{Current: occ.Current, Total: occ.Total})

	if decision == client.DecisionAllow {
		return
	}
	a := client.Alert{
		ID:        uuid.NewString(),
		Type:      "UNKNOWN_VEHICLE",
		Severity:  client.SeverityMedium,
		Plate:     plate,
		GateID:    gate,
		Message:   fmt.Sprintf("Unregistered vehicle %s denied at gate %s", plate, gate),
		CreatedAt: now,
	}
	if decision == client.DecisionAlert {
		a.Type = "BLACKLIST"
		a.Severity = client.SeverityCritical
		a.Message = fmt.Sprintf("Blacklisted vehicle %s detected at gate %s", plate, gate)
	}
	s.mu.Lock()
	s.alerts = append([]client.Alert{a}, s.alerts...)
	s.mu.Unlock()
	g.push(client.TagNewAlert, a)
}

func (g *Generator) push(tag client.EventTag, payload any) {
	if err := g.srv.Push(tag, payload); err != nil {
		g.srv.log.Error("mock push failed", zap.String("type", string(tag)), zap.Error(err))
	}
}

func (g *Generator) plate() string {
	if g.rng.IntN(25) == 0 {
		return mockBlacklist[g.rng.IntN(len(mockBlacklist))]
	}
	region := mockRegions[g.rng.IntN(len(mockRegions))]
	return fmt.Sprintf("%d%s%04d", 100+g.rng.IntN(900), region, g.rng.IntN(10000))
}
