// Command fleetsafety runs the inspection and maintenance lifecycle engine
// and its reports.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukydev/fleet-safety/internal/checklist"
	"github.com/ukydev/fleet-safety/internal/config"
	"github.com/ukydev/fleet-safety/internal/db"
	"github.com/ukydev/fleet-safety/internal/lifecycle"
)

const (
	Version = "0.1.0"
	appName = "fleetsafety"
)

// openStore connects the lifecycle store. Replaced in tests.
var openStore = func(ctx context.Context, cfg *config.Config, log *logrus.Entry) (db.Store, func(), error) {
	client, err := db.ConnectMongo(ctx, cfg.MongoURI, 10*time.Second)
	if err != nil {
		return nil, nil, err
	}
	store := db.NewMongoStore(client, cfg.MongoDB)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	return store, func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.WithError(err).Warn("mongo disconnect")
		}
	}, nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile  string
	logLevel string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Vehicle inspection and maintenance lifecycle engine",
		Long: `fleetsafety tracks vehicle inspections, defects, maintenance schedules
and work orders.

It provides:
- serve: consume meter readings and driver quick checks over MQTT
- due:   report overdue and due-soon schedules, inspections and documents
- tco:   total cost of ownership of one vehicle`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded when present")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(&flags), dueCmd(&flags), tcoCmd(&flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// setup loads config and builds the logger shared by every subcommand. Logs
// go to stderr so reports on stdout stay parseable.
func setup(cmd *cobra.Command, flags *globalFlags) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return nil, nil, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(cmd.ErrOrStderr())
	return cfg, logger, nil
}

func newService(store db.Store, cfg *config.Config, log *logrus.Entry, options ...lifecycle.Option) (*lifecycle.Service, error) {
	templates, err := checklist.NewProvider()
	if err != nil {
		return nil, err
	}
	options = append(options, lifecycle.WithLogger(log))
	return lifecycle.NewService(store, templates, cfg.LifecycleOptions(), options...), nil
}
