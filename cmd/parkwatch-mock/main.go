package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/parkwatch/console/internal/logging"
	"github.com/parkwatch/console/internal/mockapi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	addr     string
	tick     time.Duration
	seed     uint64
	username string
	password string
	capacity int
	quiet    bool
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "parkwatch-mock",
	Short:        "Serve a fake parking backend with synthetic gate traffic",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := logging.NewConsole(logLevel)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := mockapi.DefaultConfig()
		cfg.Username = username
		cfg.Password = password
		cfg.Profile.Username = username
		cfg.Capacity = capacity
		srv := mockapi.New(cfg, log)

		if !quiet {
			if seed == 0 {
				seed = uint64(time.Now().UnixNano())
			}
			go mockapi.NewGenerator(srv, tick, seed).Run(ctx)
		}

		log.Info("mock backend listening",
			zap.String("addr", addr),
			zap.String("username", username),
			zap.Bool("traffic", !quiet))
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&addr, "addr", "127.0.0.1:8000", "listen address")
	f.DurationVar(&tick, "tick", 2*time.Second, "interval between synthetic gate events")
	f.Uint64Var(&seed, "seed", 0, "traffic generator seed (0 picks one)")
	f.StringVar(&username, "username", "admin", "operator username")
	f.StringVar(&password, "password", "admin", "operator password")
	f.IntVar(&capacity, "capacity", 200, "lot capacity")
	f.BoolVar(&quiet, "quiet", false, "serve the API without generating traffic")
	f.StringVar(&logLevel, "log-level", "info", "log level")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
