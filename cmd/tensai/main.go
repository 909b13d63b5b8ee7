package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/tensai/internal/profile"
	"github.com/hrygo/tensai/internal/version"
	"github.com/hrygo/tensai/server"
	"github.com/hrygo/tensai/server/scheduler/syncjob"
	"github.com/hrygo/tensai/store"
	"github.com/hrygo/tensai/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "tensai",
		Short: `Chat with your friends' personas, grounded in what they actually wrote.`,
		RunE:  runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API and run the scheduled sync",
		RunE:  runServe,
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Embed every message created since the last sync, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			instanceProfile, err := loadProfile()
			if err != nil {
				return err
			}
			if !instanceProfile.IsAIEnabled() {
				return fmt.Errorf("sync requires AI: set TENSAI_OPENAI_API_KEY")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			storeInstance, err := openStore(ctx, instanceProfile)
			if err != nil {
				return err
			}
			defer storeInstance.Close()

			s, err := server.NewServer(ctx, instanceProfile, storeInstance)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			retries := viper.GetInt("retries")
			result, err := s.Scheduler.SyncNow(ctx, retries)
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(version.GetCurrentVersion(viper.GetString("mode")))
		},
	}
)

func init() {
	viper.SetDefault("mode", profile.ModeDevelopment)
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", profile.ModeDevelopment, `mode of server, can be "development" or "production"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver, sqlite or postgres")
	rootCmd.PersistentFlags().String("dsn", "", "database source name of the message store")
	rootCmd.PersistentFlags().String("vector-dsn", "", "database source name of the vector store, defaults to dsn")
	syncCmd.Flags().Int("retries", syncjob.DefaultMaxRetries, "retries after a failed sync attempt")

	for _, name := range []string{"mode", "addr", "port", "data", "driver", "dsn", "vector-dsn"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	if err := viper.BindPFlag("retries", syncCmd.Flags().Lookup("retries")); err != nil {
		panic(err)
	}

	viper.SetEnvPrefix("tensai")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd, syncCmd, versionCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	instanceProfile, err := loadProfile()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	storeInstance, err := openStore(ctx, instanceProfile)
	if err != nil {
		return err
	}

	s, err := server.NewServer(ctx, instanceProfile, storeInstance)
	if err != nil {
		storeInstance.Close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	c := make(chan os.Signal, 1)
	// Trigger graceful shutdown on SIGINT or SIGTERM.
	// The default signal sent by the `kill` command is SIGTERM,
	// which is taken as the graceful shutdown signal for many systems, eg., Kubernetes, Gunicorn.
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	if err := s.Start(ctx); err != nil {
		s.Shutdown(ctx)
		return fmt.Errorf("failed to start server: %w", err)
	}

	printGreetings(instanceProfile)

	go func() {
		<-c
		s.Shutdown(ctx)
		cancel()
	}()

	// Wait for CTRL-C.
	<-ctx.Done()
	return nil
}

// loadProfile assembles the profile from flags, TENSAI_* variables and .env.
func loadProfile() (*profile.Profile, error) {
	instanceProfile := &profile.Profile{
		Mode:      viper.GetString("mode"),
		Addr:      viper.GetString("addr"),
		Port:      viper.GetInt("port"),
		Data:      viper.GetString("data"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		VectorDSN: viper.GetString("vector-dsn"),
	}
	instanceProfile.FromEnv()
	instanceProfile.Version = version.GetCurrentVersion(instanceProfile.Mode)

	setupLogger(instanceProfile)

	if err := instanceProfile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return instanceProfile, nil
}

func setupLogger(p *profile.Profile) {
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler).With("service", "tensai", "mode", p.Mode))
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	dbDriver, vectorDriver, err := db.NewDBDriver(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create db driver: %w", err)
	}

	storeInstance := store.New(dbDriver, vectorDriver, p)
	if err := storeInstance.Migrate(ctx); err != nil {
		storeInstance.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return storeInstance, nil
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("Tensai %s started successfully!\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Database driver: %s\n", p.Driver)
	if p.Addr == "" {
		fmt.Printf("Server running on port %d\n", p.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", p.Addr, p.Port)
	}
	fmt.Printf("AI enabled: %t, sync schedule: %q\n", p.IsAIEnabled(), p.SyncSchedule)
}

func main() {
	// A missing .env file is not an error.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
