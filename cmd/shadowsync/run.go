package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/shadowsync/internal/api"
	"github.com/nerrad567/shadowsync/internal/cloud"
	"github.com/nerrad567/shadowsync/internal/device"
	"github.com/nerrad567/shadowsync/internal/hal"
	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
	"github.com/nerrad567/shadowsync/internal/infrastructure/database"
	"github.com/nerrad567/shadowsync/internal/infrastructure/influxdb"
	"github.com/nerrad567/shadowsync/internal/infrastructure/logging"
	"github.com/nerrad567/shadowsync/internal/journal"
	"github.com/nerrad567/shadowsync/internal/shadow"
	"github.com/nerrad567/shadowsync/internal/telemetry"
	"github.com/nerrad567/shadowsync/migrations"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the synchronisation agent until interrupted",
		Long: `Run connects to the shadow service, registers the device state and
reports it every cycle until SIGINT/SIGTERM or a fatal session error.

Example:
  shadowsync run --config /etc/shadowsync/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.ConfigPath)
		},
	}
}

// run is the agent logic, separated from the command for testability.
//
// Startup order: config, logger, hardware, journal (restoring state before
// outputs are driven), telemetry, shadow session and engine, status API.
// Shutdown unwinds in reverse once the poll loop returns.
//
// Parameters:
//   - ctx: Cancelled on shutdown signals
//   - configPath: YAML file, or "" for the built-in defaults
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting shadowsync",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log, err = logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("initialising logger: %w", err)
	}
	defer log.Close() //nolint:errcheck // Nothing left to report to
	log = log.With("thing", cfg.Device.ThingName)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Hardware
	board, err := hal.Open(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	defer func() {
		if closeErr := board.Close(); closeErr != nil {
			log.Error("error closing hardware", "error", closeErr)
		}
	}()
	log.Info("hardware opened", "mode", cfg.Hardware.Mode)

	state := &device.State{}
	ctrl := device.NewController(state, board, cfg.Hardware)
	ctrl.SetLogger(log)

	var recorders shadow.Recorders
	checks := make(map[string]api.HealthChecker)

	// Journal (optional)
	var repo journal.Repository
	if cfg.Database.Enabled {
		jr, db, err := openJournal(ctx, cfg, state, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		defer jr.Close() //nolint:errcheck // Close drains and always returns nil

		repo = jr.Repository()
		recorders = append(recorders, jr)
		checks["database"] = db
	} else {
		log.Info("journal disabled")
	}

	if err := ctrl.ApplyOutputs(); err != nil {
		return fmt.Errorf("driving outputs: %w", err)
	}

	// Telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		recorders = append(recorders, telemetry.NewMirror(influxClient))
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	// Shadow session and engine
	session := cloud.NewSession(cloud.OptionsFromConfig(cfg))
	session.SetLogger(log)
	checks["mqtt"] = session

	engine, err := shadow.NewEngine(shadow.Options{
		Config:    engineConfig(cfg.Shadow),
		Transport: session,
		Logger:    log,
		Recorder:  recorders,
	})
	if err != nil {
		return fmt.Errorf("creating shadow engine: %w", err)
	}

	if err := engine.Connect(ctx, cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port); err != nil {
		// The broker may be up with a failed subscription; stop its reconnect loop.
		engine.Shutdown()
		return fmt.Errorf("connecting shadow session: %w", err)
	}
	if err := ctrl.Register(engine.Registry()); err != nil {
		engine.Shutdown()
		return err
	}
	log.Info("device state registered", "bindings", engine.Registry().Len())

	// Status API (optional)
	if cfg.API.Enabled {
		server, err := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Engine:  engine,
			Journal: repo,
			Checks:  checks,
			Version: version,
		})
		if err != nil {
			engine.Shutdown()
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := server.Start(ctx); err != nil {
			engine.Shutdown()
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	log.Info("initialisation complete, entering poll loop")
	if err := engine.Run(ctx, ctrl.RefreshHooks()...); err != nil {
		return err
	}

	log.Info("shadowsync stopped")
	return nil
}

// openJournal opens and migrates the database, prunes expired rows, restores
// the last applied values into state and starts the journal writer.
func openJournal(ctx context.Context, cfg *config.Config, state *device.State, log *logging.Logger) (*journal.Journal, *database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx, migrations.FS, "."); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	repo := journal.NewSQLiteRepository(db.DB)
	if days := cfg.Database.RetentionDays; days > 0 {
		n, err := repo.Prune(ctx, time.Duration(days)*24*time.Hour)
		if err != nil {
			log.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			log.Info("journal pruned", "rows", n, "retention_days", days)
		}
	}

	jr := journal.New(repo)
	jr.SetLogger(log)

	restored, err := jr.Restore(ctx, cfg.Device.ThingName, state)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("restoring state: %w", err)
	}
	log.Info("state restored from journal", "values", restored)

	jr.Start(ctx)
	return jr, db, nil
}

// engineConfig maps the shadow section onto engine tunables.
func engineConfig(c config.ShadowConfig) shadow.Config {
	return shadow.Config{
		Capacity:         c.Capacity,
		ReportBufferSize: c.ReportBufferSize,
		PollTimeout:      c.PollTimeout,
		CycleInterval:    c.CycleInterval,
		NotReadyBackoff:  c.NotReadyBackoff,
		AckTimeout:       c.AckTimeout,
	}
}
