// Package poller periodically pulls REST snapshots into the dashboard
// store, reconciling whatever the live stream missed.
package poller

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/dashboard"
	"go.uber.org/zap"
)

// Source is the REST surface a pull needs.
type Source interface {
	ListAlerts(ctx context.Context) ([]client.Alert, error)
	AlertHistory(ctx context.Context) ([]client.Alert, error)
	Occupancy(ctx context.Context) (*client.Occupancy, error)
	ListEvents(ctx context.Context, limit int) ([]client.ParkingEvent, error)
}

// Poller pulls on a fixed interval and on demand.
type Poller struct {
	src      Source
	store    *dashboard.Store
	interval time.Duration
	limit    int
	log      *zap.Logger
	now      func() time.Time

	trigger chan struct{}
	// OnResult, when set, is called after every pull with its error.
	OnResult func(error)
}

// New creates a Poller that writes each pull from src into store. A
// non-positive interval or limit falls back to the defaults.
func New(src Source, store *dashboard.Store, interval time.Duration, limit int, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if limit <= 0 {
		limit = dashboard.MaxRecentEvents
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		src:      src,
		store:    store,
		interval: interval,
		limit:    limit,
		log:      log,
		now:      time.Now,
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a pull as soon as possible. Requests coalesce.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run pulls immediately, then every interval or on Trigger, until ctx is
// cancelled or the backend rejects the credential.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		err := p.Pull(ctx)
		if p.OnResult != nil && ctx.Err() == nil {
			p.OnResult(err)
		}
		if client.IsUnauthorized(err) {
			p.log.Info("poller stopping, credential rejected")
			return err
		}
		if err != nil && ctx.Err() == nil {
			p.log.Warn("pull failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-p.trigger:
		}
	}
}

// Pull performs one snapshot. Each resource is applied independently; a
// failed resource leaves its previous view in place.
func (p *Poller) Pull(ctx context.Context) error {
	var errs []error

	if err := p.pullAlerts(ctx); err != nil {
		errs = append(errs, err)
		// Everything else will fail the same way.
		if client.IsUnauthorized(err) {
			return err
		}
	}

	if occ, err := p.src.Occupancy(ctx); err != nil {
		errs = append(errs, fmt.Errorf("occupancy: %w", err))
	} else {
		p.store.SetOccupancy(occ.Current, occ.Total)
	}

	if events, err := p.src.ListEvents(ctx, p.limit); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	} else {
		p.store.SetRecentEvents(events)
	}

	if len(errs) == 0 {
		p.store.MarkSynced(p.now())
	}
	return errors.Join(errs...)
}

// pullAlerts replaces the alert view with active plus resolved alerts.
// Both lists are needed so a pull never forgets a resolution.
func (p *Poller) pullAlerts(ctx context.Context) error {
	active, err := p.src.ListAlerts(ctx)
	if err != nil {
		return fmt.Errorf("alerts: %w", err)
	}
	history, err := p.src.AlertHistory(ctx)
	if err != nil {
		return fmt.Errorf("alert history: %w", err)
	}
	p.store.ReplaceAlerts(slices.Concat(active, history))
	return nil
}
