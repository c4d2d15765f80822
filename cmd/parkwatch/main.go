package main

import (
	"fmt"
	"os"

	"github.com/parkwatch/console/internal/client"
	"github.com/parkwatch/console/internal/config"
	"github.com/parkwatch/console/internal/credential"
	"github.com/parkwatch/console/internal/logging"
	"github.com/parkwatch/console/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	apiURL     string
	wsURL      string
	stateDir   string
	logLevel   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "parkwatch",
	Short:         "Operator console for the parking management backend",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("api-url") {
			c.APIURL = apiURL
			if !flags.Changed("ws-url") {
				c.WSURL = ""
			}
		}
		if flags.Changed("ws-url") {
			c.WSURL = wsURL
		}
		if flags.Changed("state-dir") {
			c.StateDir = stateDir
		}
		if flags.Changed("log-level") {
			c.LogLevel = logLevel
		}
		if err := c.Finalize(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = c
		return nil
	},
	RunE: runDashboard,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "backend REST base URL")
	rootCmd.PersistentFlags().StringVar(&wsURL, "ws-url", "", "live stream URL (derived from --api-url when unset)")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "directory for the credential and log file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}

// backend is the authenticated client stack shared by every command.
type backend struct {
	log     *zap.Logger
	creds   *credential.Store
	guard   *client.Guard
	api     *client.HTTPClient
	session *session.Session
}

// openBackend builds the stack. The dashboard logs to a file since the
// terminal belongs to the UI; other commands log to stderr.
func openBackend(toFile bool) (*backend, error) {
	var (
		log *zap.Logger
		err error
	)
	if toFile {
		log, err = logging.New(cfg.StateDir, cfg.LogLevel)
	} else {
		level := cfg.LogLevel
		if level == "info" {
			level = "warn"
		}
		log, err = logging.NewConsole(level)
	}
	if err != nil {
		return nil, err
	}

	creds, err := credential.Open(cfg.StateDir, log.Named("credential"))
	if err != nil {
		return nil, err
	}
	guard := client.NewGuard(nil, creds, log.Named("guard"))
	api := client.NewHTTPClient(cfg.APIURL, guard, cfg.RequestTimeout)
	return &backend{
		log:     log,
		creds:   creds,
		guard:   guard,
		api:     api,
		session: session.New(api, creds, log.Named("session")),
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
