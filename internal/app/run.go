package app

import (
	"context"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/dashboard"
	"github.com/parkwatch/console/internal/poller"
	"github.com/parkwatch/console/internal/session"
	"go.uber.org/zap"
)

// Components are the concrete collaborators assembled by the CLI.
type Components struct {
	Guard    *client.Guard
	API      *client.HTTPClient
	Session  *session.Session
	Stream   *client.Stream
	Poller   *poller.Poller
	Store    *dashboard.Store
	Log      *zap.Logger
	Username string
}

// Bind routes stream frames into the store and reports auth, pull and
// connectivity outcomes to send. It must be called before the stream
// connects.
func Bind(c Components, send func(tea.Msg)) {
	c.Guard.OnUnauthorized(func() {
		c.Session.Expire()
		send(UnauthorizedMsg{})
	})

	c.Poller.OnResult = func(err error) {
		send(PollResultMsg{Err: err})
	}

	c.Stream.OnGateEvent(c.Store.RecordLiveGateEvent)
	c.Stream.OnAlert(c.Store.RecordAlert)
	c.Stream.OnOccupancy(func(o client.Occupancy) {
		c.Store.SetOccupancy(o.Current, o.Total)
	})
	var seq atomic.Uint64
	c.Stream.OnConnectivity(func(connected bool) {
		c.Store.SetConnectivity(connected)
		// Disconnect runs inside Update and waits for the final
		// announcement, so the program loop cannot be blocked on here.
		// The goroutines may deliver out of order; Seq lets Update drop
		// the stale ones.
		go send(StreamStatusMsg{Connected: connected, Seq: seq.Add(1)})
	})
}

// Run starts the console and blocks until the operator quits or ctx is
// cancelled.
func Run(ctx context.Context, c Components) error {
	m := New(ctx, Deps{
		Session:  c.Session,
		Stream:   c.Stream,
		Poller:   c.Poller,
		Resolver: c.API,
		Store:    c.Store,
		Log:      c.Log,
		Username: c.Username,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	Bind(c, p.Send)

	_, err := p.Run()
	c.Stream.Disconnect()
	return err
}
