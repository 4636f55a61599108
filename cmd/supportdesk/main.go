package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/supportdesk/ai/observability/logging"
	"github.com/hrygo/supportdesk/ai/observability/tracing"
	"github.com/hrygo/supportdesk/internal/profile"
	"github.com/hrygo/supportdesk/internal/version"
	"github.com/hrygo/supportdesk/server"
	apiv1 "github.com/hrygo/supportdesk/server/router/api/v1"
)

var (
	rootCmd = &cobra.Command{
		Use:          "supportdesk",
		Short:        `A customer-support orchestration service. Routes conversations to specialists, scrubs sensitive data and escalates to humans.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			// Systemd units carry their own environment file.
			if !isRunningAsSystemdService() {
				_ = godotenv.Load()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("supportdesk %s (schema %s)\n", version.String(), version.SchemaVersion)
		},
	}
)

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres, badger)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")
	rootCmd.PersistentFlags().String("api-key", "", "bearer key required on /api/v1 routes; empty disables auth")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "api-key"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("supportdesk")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(versionCmd, chatCmd)
}

// loadProfile merges flags, environment and defaults into a validated profile.
func loadProfile() (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:    viper.GetString("mode"),
		Addr:    viper.GetString("addr"),
		Port:    viper.GetInt("port"),
		Data:    viper.GetString("data"),
		Driver:  viper.GetString("driver"),
		DSN:     viper.GetString("dsn"),
		APIKey:  viper.GetString("api-key"),
		Version: version.GetCurrentVersion(viper.GetString("mode")),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func serve(parent context.Context) error {
	p, err := loadProfile()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stdout, p.Mode, p.LogLevel)

	ctx, stop := signal.NotifyContext(parent, terminationSignals...)
	defer stop()

	shutdownTracing, err := tracing.Init(tracing.Config{
		ServiceName:    "supportdesk",
		ServiceVersion: p.Version,
		Environment:    p.Mode,
		Enabled:        p.Tracing,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}()

	a, err := newApp(ctx, p, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	api := apiv1.NewAPIV1Service(p, a.orchestrator, a.store, a.metrics.Handler(), logger)
	s, err := server.NewServer(ctx, p, api, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return a.sessions.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.Shutdown(context.WithoutCancel(gctx))
	})

	printGreetings(p)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited", "error", err)
		return err
	}
	return nil
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("SupportDesk %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("Inference backends: %d (enabled: %t)\n", len(profile.Backends), profile.IsInferenceEnabled())

	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
		fmt.Printf("Chat endpoint: http://localhost:%d/api/v1/chat\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
		fmt.Printf("Chat endpoint: http://%s:%d/api/v1/chat\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

// printDatabaseError provides user-friendly error messages for database connection issues
func printDatabaseError(err error, profile *profile.Profile) {
	fmt.Fprintln(os.Stderr, "\nDatabase connection failed")

	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host"):
		fmt.Fprintln(os.Stderr, "  PostgreSQL is not reachable. Start it, or run with --driver=sqlite --data=./data")
	case strings.Contains(errMsg, "SSL is not enabled") || strings.Contains(errMsg, "sslmode"):
		fmt.Fprintln(os.Stderr, "  Add ?sslmode=disable to your DSN.")
	case strings.Contains(errMsg, "password authentication failed"):
		fmt.Fprintln(os.Stderr, "  Check the credentials in the DSN or .env file.")
	case strings.Contains(errMsg, "Cannot acquire directory lock"):
		fmt.Fprintf(os.Stderr, "  Another process holds the badger directory %s.\n", profile.DSN)
	case strings.Contains(errMsg, "permission denied"):
		fmt.Fprintln(os.Stderr, "  Permission denied. Check the data directory and database user permissions.")
	default:
		fmt.Fprintln(os.Stderr, "  Error:", errMsg)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
