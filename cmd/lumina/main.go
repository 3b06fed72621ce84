// Lumina Bridge - voice assistant fulfilment for MQTT switches
//
// This is the main entry point for the bridge. It authenticates voice
// platform requests, answers discovery, query and execute intents from a
// device registry and a state cache, publishes commands to devices over
// MQTT and ingests the state they report back.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/lumina-bridge/internal/api"
	"github.com/nerrad567/lumina-bridge/internal/audit"
	"github.com/nerrad567/lumina-bridge/internal/auth"
	"github.com/nerrad567/lumina-bridge/internal/bus"
	"github.com/nerrad567/lumina-bridge/internal/device"
	"github.com/nerrad567/lumina-bridge/internal/fulfilment"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/config"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/database"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/lumina-bridge/internal/metrics"
	"github.com/nerrad567/lumina-bridge/internal/state"
	"github.com/nerrad567/lumina-bridge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"

	// credentialSweepInterval is how often expired codes and tokens are purged.
	credentialSweepInterval = time.Minute

	// auditQueueSize bounds audit entries waiting to be written.
	auditQueueSize = 1024

	// postgresHealthTimeout bounds the registry ping on /healthz.
	postgresHealthTimeout = 2 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath  string
	showVersion bool
	migrateDown bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("lumina", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default $LUMINA_CONFIG or "+defaultConfigPath+")")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	fs.BoolVar(&opts.migrateDown, "migrate-down", false, "roll back the latest database migration and exit")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.configPath == "" {
		opts.configPath = getConfigPath()
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses LUMINA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LUMINA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the application logic, separated from main for testability. It
// returns nil on clean shutdown once ctx is cancelled.
func run(ctx context.Context, args []string) error { //nolint:gocognit,gocyclo // startup wiring is sequential by nature
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("lumina %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting Lumina Bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "config", cfg.Redacted())

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if opts.migrateDown {
		if downErr := db.MigrateDown(ctx, migrations.FS); downErr != nil {
			return fmt.Errorf("rolling back migration: %w", downErr)
		}
		log.Info("rolled back latest migration", "path", cfg.Database.Path)
		return nil
	}
	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	health := map[string]api.HealthChecker{"database": db}

	// Device registry
	registry, closeRegistry, err := openRegistry(ctx, cfg, db.DB, health, log)
	if err != nil {
		return err
	}
	defer closeRegistry()

	// State cache
	cache := state.NewCache(state.NewSQLiteStore(db.DB))
	cache.SetLogger(log.Component("state"))
	if _, warmErr := cache.Warm(ctx); warmErr != nil {
		return fmt.Errorf("warming state cache: %w", warmErr)
	}

	// InfluxDB (optional)
	var history fulfilment.CommandRecorder
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		cache.OnChange(func(ch state.Change) {
			influxClient.RecordStateChange(ch.DeviceID, ch.State.On, ch.State.Online, string(ch.Source), ch.State.UpdatedAt)
		})
		history = influxClient
		health["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	metrics.Init(nil)

	// Command bus
	var commander bus.Commander = bus.NoopCommander{}
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		metrics.SetBusConnected(true)
		mqttClient.SetOnConnect(func() {
			metrics.SetBusConnected(true)
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			metrics.SetBusConnected(false)
			log.Warn("MQTT disconnected", "error", err)
		})
		health["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		commander = bus.NewMQTTCommander(mqttClient, mqttClient.Topics(), mqttClient.QoS())

		consumer := bus.NewConsumer(mqttClient, cache, mqttClient.Topics(), bus.ConsumerConfig{
			Workers:   cfg.MQTT.Telemetry.Workers,
			QueueSize: cfg.MQTT.Telemetry.QueueSize,
			QoS:       mqttClient.QoS(),
		})
		consumer.SetLogger(log.Component("telemetry"))
		if startErr := consumer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting telemetry consumer: %w", startErr)
		}
		defer consumer.Stop()
	} else {
		log.Warn("MQTT disabled; execute requests will report hardError")
	}

	// Credentials
	codes, tokens, sweeper := credentialStores(cfg, db.DB)
	issuer := auth.NewIssuer(codes, tokens, cfg.GetCodeTTL(), cfg.GetTokenTTL())
	issuer.SetLogger(log.Component("auth"))
	resolver := auth.NewResolver(tokens, cfg.Security.StaticToken, cfg.Security.TestOwnerID)
	go auth.RunSweeper(ctx, sweeper, credentialSweepInterval, log.Component("auth"))

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewAsyncRecorder(auditRepo, auditQueueSize)
	recorder.SetLogger(log.Component("audit"))
	auditDone := make(chan struct{})
	go func() {
		defer close(auditDone)
		recorder.Run(ctx)
	}()
	defer func() { <-auditDone }()

	// Intent router
	router := fulfilment.NewRouter(registry, cache, commander, fulfilment.Config{
		Manufacturer:       cfg.Service.Manufacturer,
		DefaultModel:       cfg.Service.DefaultModel,
		ExecuteParallelism: cfg.Service.ExecuteParallelism,
	})
	router.SetLogger(log.Component("fulfilment"))
	router.SetAudit(recorder)
	if history != nil {
		router.SetCommandRecorder(history)
	}

	// HTTP API
	server, err := api.New(api.Deps{
		Config:   *cfg,
		Logger:   log.Component("api"),
		Intents:  router,
		Resolver: resolver,
		Issuer:   issuer,
		Devices:  registry,
		States:   cache,
		Audit:    auditRepo,
		Health:   health,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	cache.OnChange(server.Hub().PublishChange)

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"devices_cached", cache.Len(),
		"address", server.Addr(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// openRegistry builds the device registry over the configured backend and
// returns a func releasing any connection it opened.
func openRegistry(ctx context.Context, cfg *config.Config, db *sql.DB, health map[string]api.HealthChecker, log *logging.Logger) (*device.Registry, func(), error) {
	var repo device.Repository
	closeFn := func() {}

	switch cfg.Registry.Driver {
	case "postgres":
		pg, err := database.OpenPostgres(ctx, cfg.Registry.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening device registry: %w", err)
		}
		closeFn = func() {
			if closeErr := pg.Close(); closeErr != nil {
				log.Error("error closing registry database", "error", closeErr)
			}
		}
		health["registry"] = database.PostgresHealth{DB: pg, Timeout: postgresHealthTimeout}
		repo = device.NewPostgresRepository(pg)
		log.Info("device registry on postgres")

	default:
		sqliteRepo := device.NewSQLiteRepository(db)
		if cfg.Registry.SeedFile != "" {
			devices, err := device.LoadSeed(cfg.Registry.SeedFile)
			if err != nil {
				return nil, nil, fmt.Errorf("loading device seed: %w", err)
			}
			if err := device.Seed(ctx, sqliteRepo, devices); err != nil {
				return nil, nil, fmt.Errorf("seeding device registry: %w", err)
			}
			log.Info("device registry seeded", "path", cfg.Registry.SeedFile, "devices", len(devices))
		}
		repo = sqliteRepo
	}

	registry := device.NewRegistry(repo)
	registry.SetLogger(log.Component("registry"))
	return registry, closeFn, nil
}

// credentialStores returns the code and token stores selected by
// security.credential_store, plus the sweeper that purges them.
func credentialStores(cfg *config.Config, db *sql.DB) (auth.CodeStore, auth.TokenStore, auth.Sweeper) {
	if cfg.Security.CredentialStore == "memory" {
		s := auth.NewMemoryStore()
		return s, s, s
	}
	s := auth.NewSQLiteStore(db)
	return s, s, s
}
