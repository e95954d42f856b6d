// ESP-RFID Core - MQTT access-control manager for ESP-RFID door controllers.
//
// This is the main entry point that wires together all components:
// database, MQTT bridge, message router, registration workflow, REST/WebSocket
// API, Home Assistant discovery, and optional InfluxDB telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/esp-rfid-core/internal/api"
	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/hass"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/config"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/database"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/logging"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/esp-rfid-core/internal/registration"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
	"github.com/nerrad567/esp-rfid-core/internal/telemetry"

	// Register embedded SQL migrations.
	_ "github.com/nerrad567/esp-rfid-core/migrations"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logging.Default().Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// run contains the actual application logic, separated from main
// for proper defer handling and error propagation.
func run(ctx context.Context) error {
	// Bootstrap logger until config is loaded
	logger := logging.Default()
	logger.Info("loading configuration", "path", getConfigPath())

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = logging.New(cfg.Logging, version)
	logger.Info("ESP-RFID Core starting",
		"version", version,
		"commit", commit,
		"built", date,
	)

	// --- Database ---
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", "path", db.Path())

	// --- Repositories and device registry ---
	devices := store.NewSQLiteDeviceRepository(db.DB)
	users := store.NewSQLiteUserRepository(db.DB)
	logs := store.NewSQLiteLogRepository(db.DB)
	regs := store.NewSQLiteRegistrationRepository(db.DB)

	registry := device.NewRegistry(devices)
	registry.SetLogger(logger.With("component", "registry"))
	if err := registry.RefreshCache(ctx); err != nil {
		return fmt.Errorf("warming device cache: %w", err)
	}

	// --- MQTT ---
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		if err := mqttClient.Close(); err != nil {
			logger.Error("closing MQTT client", "error", err)
		}
	}()
	mqttClient.SetLogger(logger.With("component", "mqtt"))
	mqttClient.SetOnConnect(func() {
		logger.Info("MQTT connected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		logger.Warn("MQTT disconnected", "error", err)
	})

	// --- InfluxDB (optional) ---
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if err := influxClient.Close(); err != nil {
				logger.Error("closing InfluxDB client", "error", err)
			}
		}()
		influxClient.SetOnError(func(err error) {
			logger.Error("InfluxDB write error", "error", err)
		})
		logger.Info("InfluxDB connected", "url", cfg.InfluxDB.URL)
	}

	// --- Command dispatcher ---
	topics := mqtt.Topics{Base: cfg.Manager.BaseTopic}
	qos := byte(cfg.MQTT.QoS)

	dispatcher := rfid.NewDispatcher(mqttClient, registry, topics, qos, cfg.Manager.SingleDevice)
	dispatcher.SetLogger(logger.With("component", "dispatcher"))

	// --- WebSocket hub and event fan-out ---
	// The hub is created ahead of the API server so the event pipeline can
	// broadcast before HTTP is up.
	hub := api.NewHub(cfg.WebSocket, logger.With("component", "websocket"))
	go hub.Run(ctx)
	hubNotifier := api.NewHubNotifier(hub)

	rfidNotifiers := rfid.MultiNotifier{hubNotifier}
	regNotifiers := registration.MultiNotifier{hubNotifier}

	var hassPub *hass.Publisher
	if cfg.HomeAssistant.Enabled {
		hassPub = hass.NewPublisher(mqttClient, mqtt.HubTopics{Prefix: cfg.HomeAssistant.DiscoveryPrefix}, qos)
		hassPub.SetLogger(logger.With("component", "hass"))
		rfidNotifiers = append(rfidNotifiers, hassPub)
		regNotifiers = append(regNotifiers, hassPub)
	}

	if influxClient != nil {
		recorder := telemetry.NewRecorder(influxClient)
		rfidNotifiers = append(rfidNotifiers, recorder)
		regNotifiers = append(regNotifiers, recorder)
	}

	// --- Card registration workflow ---
	detector := registration.NewDetector(cfg.GetDetectionSessionTTL())
	regService := registration.NewService(detector, regs, dispatcher, regNotifiers)
	regService.SetLogger(logger.With("component", "registration"))

	// --- Message router ---
	router := rfid.NewRouter(rfid.RouterConfig{
		Classifier: rfid.NewClassifier(cfg.Manager.BaseTopic),
		Registry:   registry,
		Users:      users,
		Logs:       logs,
		Dispatcher: dispatcher,
		Unknown:    regService,
		Notifier:   rfidNotifiers,
		Topics:     topics,
		QoS:        qos,
		Logger:     logger.With("component", "router"),
	})
	if err := router.Start(mqttClient); err != nil {
		return fmt.Errorf("starting message router: %w", err)
	}

	// --- Liveness sweeper ---
	sweeper := device.NewSweeper(registry, cfg.GetLivenessTimeout(), cfg.GetSweepInterval())
	sweeper.SetLogger(logger.With("component", "sweeper"))
	sweeper.SetOnOffline(func(ctx context.Context, hostname string) {
		rfidNotifiers.NotifyDeviceStatus(ctx, hostname, store.StatusOffline, false)
	})
	go sweeper.Run(ctx)

	// --- API server ---
	apiServer, err := api.New(api.Deps{
		Config:        cfg.API,
		WS:            cfg.WebSocket,
		Logger:        logger.With("component", "api"),
		Registry:      registry,
		Users:         users,
		Logs:          logs,
		Registration:  regService,
		Dispatcher:    dispatcher,
		DB:            db,
		DeleteQuiesce: cfg.GetDeleteQuiescePeriod(),
		ExternalHub:   hub,
		Version:       version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if err := apiServer.Close(); err != nil {
			logger.Error("closing API server", "error", err)
		}
	}()

	// Re-announce known devices so Home Assistant entities survive restarts
	// of either side.
	if hassPub != nil {
		known, err := registry.List(ctx)
		if err != nil {
			logger.Warn("listing devices for discovery announce", "error", err)
		} else {
			for i := range known {
				if err := hassPub.Announce(ctx, known[i].Hostname); err != nil {
					logger.Warn("discovery announce failed", "hostname", known[i].Hostname, "error", err)
				}
			}
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		logger.Warn("startup health check", "error", err)
	}

	logger.Info("ESP-RFID Core ready",
		"base_topic", cfg.Manager.BaseTopic,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}

// getConfigPath returns the config file path from environment or default.
func getConfigPath() string {
	if path := os.Getenv("ESPRFID_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are functioning.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
