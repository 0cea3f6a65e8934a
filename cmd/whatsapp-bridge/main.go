// Gray Logic WhatsApp Bridge
//
// This is the main entry point for the WhatsApp protocol bridge. The
// bridge sits between one or more whatsapp-web.js bridge servers
// (HTTP + WebSocket) and the Gray Logic Core (MQTT):
//
//	Gray Logic Core ◄─MQTT─► whatsapp-bridge ◄─HTTP/WS─► whatsapp-web.js server
//
// It republishes messaging events onto the bus, executes send commands,
// logs received messages to SQLite, and serves a local REST/WebSocket
// API for panels.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/nerrad567/gray-logic-whatsapp/migrations"

	"github.com/nerrad567/gray-logic-whatsapp/internal/api"
	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-whatsapp/internal/messagelog"
	"github.com/nerrad567/gray-logic-whatsapp/internal/relay"
	"github.com/nerrad567/gray-logic-whatsapp/internal/session"
	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic WhatsApp bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
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
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	store := messagelog.NewStore(db)

	// Connect to MQTT broker
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
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Build one session per configured bridge server
	registry := session.NewRegistry()
	defer func() {
		log.Info("stopping sessions")
		registry.CloseAll()
	}()

	for _, b := range cfg.Bridges {
		client := whatsapp.New(whatsapp.TransportConfig{
			Host:  b.Host,
			Port:  b.Port,
			Token: b.Token,
		})
		client.SetLogger(log)
		client.SetReconnectDelay(b.ReconnectDelay())

		id, addErr := registry.Add(b.ID, client)
		if addErr != nil {
			return fmt.Errorf("registering session: %w", addErr)
		}

		client.Start()
		log.Info("session started",
			"session_id", id,
			"bridge", fmt.Sprintf("%s:%d", b.Host, b.Port),
		)
	}

	// Record received messages into the message log
	startMessageRecorder(ctx, registry, store, log)

	// Start the MQTT relay
	mqttRelay, err := relay.New(relay.Options{
		MQTT:     mqttClient,
		Sessions: registrySessions{reg: registry},
		Version:  version,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	if err := mqttRelay.Start(ctx); err != nil {
		return fmt.Errorf("starting relay: %w", err)
	}
	defer func() {
		log.Info("stopping relay")
		mqttRelay.Stop()
	}()

	// Start the local REST/WebSocket API
	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Sessions: registry,
		Messages: store,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Relay
	// 3. Sessions
	// 4. MQTT
	// 5. Database

	log.Info("Gray Logic WhatsApp bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_WA_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_WA_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	// Session health is reported continuously over MQTT by the relay's
	// health reporter; an unreachable bridge server at startup is not
	// fatal (the listener reconnects forever).

	return nil
}

// startMessageRecorder subscribes to each session's push events and
// records received messages into the message log. Recording failures are
// logged and dropped; the log is an observability aid, not a queue.
func startMessageRecorder(ctx context.Context, registry *session.Registry, store *messagelog.Store, log *logging.Logger) {
	for _, id := range registry.IDs() {
		client, err := registry.Get(id)
		if err != nil {
			continue
		}

		ch := client.Subscribe()
		go func(id string, client *whatsapp.Client, ch <-chan whatsapp.Event) {
			defer client.Unsubscribe(ch)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if ev.Kind != whatsapp.EventMessage {
						continue
					}
					recordMessage(ctx, store, id, ev, log)
				}
			}
		}(id, client, ch)
	}
}

// recordMessage maps one message event payload to a log row.
func recordMessage(ctx context.Context, store *messagelog.Store, sessionID string, ev whatsapp.Event, log *logging.Logger) {
	chatID := stringField(ev.Data, "chatId")
	if chatID == "" {
		chatID = stringField(ev.Data, "from")
	}

	_, err := store.Record(ctx, messagelog.Message{
		SessionID: sessionID,
		Direction: messagelog.DirectionInbound,
		ChatID:    chatID,
		Sender:    stringField(ev.Data, "from"),
		Body:      stringField(ev.Data, "body"),
	})
	if err != nil {
		log.Warn("failed to record message",
			"session_id", sessionID,
			"error", err,
		)
	}
}

// stringField reads a string value from an event payload, returning ""
// for missing or non-string values.
func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

// registrySessions adapts *session.Registry to the relay's Sessions
// interface. The registry returns a concrete client type; the relay
// wants the narrower SessionClient surface.
type registrySessions struct {
	reg *session.Registry
}

// IDs implements relay.Sessions.
func (s registrySessions) IDs() []string {
	return s.reg.IDs()
}

// Get implements relay.Sessions.
func (s registrySessions) Get(id string) (relay.SessionClient, error) {
	client, err := s.reg.Get(id)
	if err != nil {
		return nil, err
	}
	return client, nil
}
