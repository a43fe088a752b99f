// homecore - zigbee2mqtt device bridge and automation engine
//
// This is the main entry point for homecore. It connects to the MQTT
// broker, mirrors zigbee2mqtt device state, runs the automation engine and
// serves the REST and WebSocket API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	_ "github.com/nerrad567/homecore/migrations"

	"github.com/nerrad567/homecore/internal/api"
	"github.com/nerrad567/homecore/internal/automation"
	"github.com/nerrad567/homecore/internal/bridge"
	"github.com/nerrad567/homecore/internal/device"
	"github.com/nerrad567/homecore/internal/infrastructure/cache"
	"github.com/nerrad567/homecore/internal/infrastructure/config"
	"github.com/nerrad567/homecore/internal/infrastructure/database"
	"github.com/nerrad567/homecore/internal/infrastructure/influxdb"
	"github.com/nerrad567/homecore/internal/infrastructure/logging"
	"github.com/nerrad567/homecore/internal/infrastructure/mqtt"
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
	defaultEnvFile    = ".env"

	// pruneSchedule runs the state history retention job.
	pruneSchedule = "@daily"
	pruneTimeout  = time.Minute
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// Deferred cleanups run in reverse order: API, engine, recorder, bridge,
// then the infrastructure clients.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting homecore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := loadDotEnv(getEnvFile()); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

	// Components checked once startup completes.
	var checks []healthCheck

	// State history (optional)
	var history *device.SQLiteStateHistoryRepository
	if cfg.History.Enabled {
		db, dbErr := openDatabase(ctx, cfg.Database, log)
		if dbErr != nil {
			return dbErr
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		history = device.NewSQLiteStateHistoryRepository(db.DB)
		checks = append(checks, healthCheck{name: "database", checker: db})

		pruner, pruneErr := startHistoryPruner(history, cfg.History, loc, log)
		if pruneErr != nil {
			return pruneErr
		}
		defer func() {
			<-pruner.Stop().Done()
		}()
	} else {
		log.Info("state history disabled")
	}

	// InfluxDB (optional)
	influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		checks = append(checks, healthCheck{name: "influxdb", checker: influxClient})
	}

	// Redis state cache (optional)
	stateCache, err := cache.Connect(cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		log.Info("Redis state cache disabled")
	case err != nil:
		return fmt.Errorf("connecting to Redis: %w", err)
	default:
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := stateCache.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
		checks = append(checks, healthCheck{name: "redis", checker: stateCache})
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Bridge
	br := bridge.New(mqttClient, cfg.Bridge, log.Component("bridge"))

	overrides, err := device.LoadOverrides(cfg.Devices.OverridesFile)
	if err != nil {
		return fmt.Errorf("loading device overrides: %w", err)
	}
	br.SetOverrides(overrides)

	recorder := bridge.NewRecorder(recorderOptions(history, influxClient, stateCache, log.Component("recorder"))...)
	recorder.Start()
	defer func() {
		log.Info("stopping state recorder")
		recorder.Close()
	}()
	unsubscribeRecorder := br.Subscribe(recorder)
	defer unsubscribeRecorder()

	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Destroy()
	}()
	log.Info("bridge started", "base_topic", cfg.Bridge.BaseTopic, "overrides", len(overrides))

	// The client logs connection changes itself.
	mqttClient.SetOnConnect(func() {
		if cfg.Bridge.RefreshOnConnect {
			refreshStates(ctx, br, log)
		}
	})
	if cfg.Bridge.RefreshOnConnect {
		refreshStates(ctx, br, log)
	}

	// WebSocket hub, shared by the API and the firing observer
	var hub *api.Hub
	if cfg.API.Enabled {
		hub = api.NewHub(log.Component("websocket"))
		go hub.Run(ctx)
	}

	// Automation engine
	engine := automation.New(
		automation.NewFileStore(cfg.Automation.File),
		br,
		automation.WithLogger(log.Component("automation")),
		automation.WithLocation(loc),
		automation.WithObserver(newFiringObserver(log, hub, mqttClient, cfg.Automation.FiredTopicPrefix)),
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("starting automation engine: %w", err)
	}
	defer func() {
		log.Info("stopping automation engine")
		engine.Destroy()
	}()
	log.Info("automation engine started",
		"file", cfg.Automation.File,
		"automations", len(engine.GetAll()),
	)

	// API
	if cfg.API.Enabled {
		var historyRepo device.StateHistoryRepository
		if history != nil {
			historyRepo = history
		}
		server, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Bridge:  br,
			Engine:  engine,
			History: historyRepo,
			Hub:     hub,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		checks = append(checks, healthCheck{name: "api", checker: server})
	} else {
		log.Info("API disabled")
	}

	checks = append(checks, healthCheck{name: "mqtt", checker: mqttClient, required: true})
	if err := runHealthChecks(ctx, checks, log); err != nil {
		return err
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// healthCheck names a component for the startup check. A failing required
// component aborts startup; others are logged.
type healthCheck struct {
	name     string
	checker  healthChecker
	required bool
}

func runHealthChecks(ctx context.Context, checks []healthCheck, log *logging.Logger) error {
	for _, c := range checks {
		if err := c.checker.HealthCheck(ctx); err != nil {
			if c.required {
				return fmt.Errorf("health check failed: %s: %w", c.name, err)
			}
			log.Warn("health check failed", "component", c.name, "error", err)
			continue
		}
		log.Debug("health check passed", "component", c.name)
	}
	return nil
}

// getConfigPath returns the configuration file path.
// Uses HOMECORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HOMECORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// getEnvFile returns the dotenv file path (HOMECORE_ENV_FILE or .env).
func getEnvFile() string {
	if path := os.Getenv("HOMECORE_ENV_FILE"); path != "" {
		return path
	}
	return defaultEnvFile
}

// loadDotEnv loads environment variables from path. Missing files are
// ignored. Variables already set in the environment win.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", cfg.Path)
	return db, nil
}

// recorderOptions wires the sinks that are configured. Typed nils are not
// passed so the recorder sees absent sinks as nil interfaces.
func recorderOptions(history *device.SQLiteStateHistoryRepository, metrics *influxdb.Client, stateCache *cache.StateCache, log *logging.Logger) []bridge.RecorderOption {
	opts := []bridge.RecorderOption{bridge.WithRecorderLogger(log)}
	if history != nil {
		opts = append(opts, bridge.WithHistory(history))
	}
	if metrics != nil {
		opts = append(opts, bridge.WithMetrics(metrics))
	}
	if stateCache != nil {
		opts = append(opts, bridge.WithStateCache(stateCache))
	}
	return opts
}

func refreshStates(ctx context.Context, br *bridge.Bridge, log *logging.Logger) {
	if err := br.RefreshStates(ctx); err != nil {
		log.Warn("state refresh incomplete", "error", err)
	}
}

// historyPruner is the subset of the history repository the prune job uses.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// startHistoryPruner deletes state history older than the retention period
// once a day. A retention of zero keeps everything.
func startHistoryPruner(repo historyPruner, cfg config.HistoryConfig, loc *time.Location, log *logging.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(loc))
	if cfg.RetentionDays <= 0 {
		log.Info("state history retention unlimited")
		return c, nil
	}

	retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
	_, err := c.AddFunc(pruneSchedule, func() { pruneHistory(repo, retention, log) })
	if err != nil {
		return nil, fmt.Errorf("scheduling history prune: %w", err)
	}
	c.Start()
	log.Info("state history pruning scheduled", "retention_days", cfg.RetentionDays)
	return c, nil
}

func pruneHistory(repo historyPruner, retention time.Duration, log *logging.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	n, err := repo.PruneHistory(ctx, retention)
	if err != nil {
		log.Error("pruning state history failed", "error", err)
		return
	}
	log.Info("state history pruned", "deleted", n)
}

// firingPublisher is the MQTT side of the firing observer.
type firingPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// firingMessage is published to <prefix>/<id>/fired.
type firingMessage struct {
	AutomationID string    `json:"automation_id"`
	Trigger      string    `json:"trigger"`
	At           time.Time `json:"at"`
	Error        string    `json:"error,omitempty"`
}

// newFiringObserver logs each firing, pushes it to WebSocket clients on
// automation.fired and announces it over MQTT. hub and pub may be nil.
func newFiringObserver(log *logging.Logger, hub *api.Hub, pub firingPublisher, prefix string) func(automation.Firing) {
	return func(f automation.Firing) {
		if f.Err != nil {
			log.Warn("automation fired with error",
				"automation_id", f.AutomationID,
				"trigger", f.Trigger,
				"error", f.Err,
			)
		} else {
			log.Info("automation fired", "automation_id", f.AutomationID, "trigger", f.Trigger)
		}

		if hub != nil {
			hub.Broadcast(api.ChannelAutomationFired, f)
		}

		if pub == nil || prefix == "" {
			return
		}
		data, err := json.Marshal(firingMessage{
			AutomationID: f.AutomationID,
			Trigger:      f.Trigger,
			At:           f.At,
			Error:        f.Error,
		})
		if err != nil {
			return
		}
		topic := mqtt.AutomationFired(prefix, f.AutomationID)
		if err := pub.Publish(topic, data, 1, false); err != nil {
			log.Warn("publishing automation firing failed", "topic", topic, "error", err)
		}
	}
}
