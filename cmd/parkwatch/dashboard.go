package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/parkwatch/console/internal/app"
	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/dashboard"
	"github.com/parkwatch/console/internal/poller"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dashboardUser string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Open the live dashboard (default)",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardUser, "username", os.Getenv("PARKWATCH_USERNAME"), "prefill the sign-in form")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	b, err := openBackend(true)
	if err != nil {
		return err
	}
	defer b.log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := dashboard.NewStore()
	stream := client.NewStream(client.StreamConfig{
		URL:           cfg.WSURL,
		ReconnectBase: cfg.Stream.ReconnectBase,
		ReconnectMax:  cfg.Stream.ReconnectMax,
		PingInterval:  cfg.Stream.PingInterval,
		PongTimeout:   cfg.Stream.PongTimeout,
	}, b.creds, b.log.Named("stream"))
	pol := poller.New(b.api, store, cfg.Poll.Interval, cfg.Poll.EventsLimit, b.log.Named("poller"))

	b.log.Info("starting console",
		zap.String("api_url", cfg.APIURL),
		zap.String("ws_url", cfg.WSURL))

	err = app.Run(ctx, app.Components{
		Guard:    b.guard,
		API:      b.api,
		Session:  b.session,
		Stream:   stream,
		Poller:   pol,
		Store:    store,
		Log:      b.log.Named("app"),
		Username: dashboardUser,
	})
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
