// mqtt-voice - MQTT voice client
//
// Subscribes to MQTT topics, speaks what arrives and reports every status
// change, message and voice command to the configured event sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/mqtt-voice/internal/api"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-voice/internal/journal"
	"github.com/nerrad567/mqtt-voice/internal/notify"
	"github.com/nerrad567/mqtt-voice/internal/session"
	"github.com/nerrad567/mqtt-voice/internal/speech"
	"github.com/nerrad567/mqtt-voice/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, starts every component and blocks until ctx is
// cancelled. Components are closed in reverse start order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting mqtt-voice",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	a, err := start(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// app holds the running components. Fields are nil for disabled features.
type app struct {
	log      *logging.Logger
	db       *database.DB
	influx   *influxdb.Client
	notifier *notify.Notifier
	speech   *speech.Queue
	session  *session.Manager
	server   *api.Server
}

// start brings up the components in dependency order. On error everything
// already started is closed.
func start(ctx context.Context, cfg *config.Config, log *logging.Logger) (_ *app, err error) {
	a := &app{log: log}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	var repo *journal.SQLiteRepository
	if cfg.Database.Enabled {
		if repo, err = a.openJournal(ctx, cfg.Database); err != nil {
			return nil, err
		}
	} else {
		log.Info("event journal disabled")
	}

	if cfg.InfluxDB.Enabled {
		if a.influx, err = influxdb.Connect(ctx, cfg.InfluxDB); err != nil {
			return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		a.influx.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	sinks := []notify.Sink{notify.NewLogSink(log.Component("events"))}
	if repo != nil {
		sinks = append(sinks, repo)
	}
	if a.influx != nil {
		influx := a.influx
		sinks = append(sinks, notify.SinkFunc(func(e notify.Event) {
			influx.WriteEvent(string(e.Kind), e.Text, e.Timestamp)
		}))
	}
	a.notifier = notify.New(notify.Options{
		Logger: log.Component("notify"),
		Sinks:  sinks,
	})

	if a.speech, err = speech.New(cfg.Speech, log.Component("speech"), a.notifier); err != nil {
		return nil, fmt.Errorf("creating speech engine: %w", err)
	}
	a.speech.Start(ctx)
	log.Info("speech engine starting", "engine", cfg.Speech.Engine, "mode", cfg.Speech.Mode)

	var onState func(session.State)
	if a.influx != nil {
		influx := a.influx
		onState = func(s session.State) {
			influx.WriteSessionState(string(s), time.Now())
		}
	}
	a.session, err = session.New(session.Options{
		Dial:           mqtt.NewDialer(mqtt.OptionsFromConfig(cfg.Broker), log.Component("mqtt")),
		Speaker:        a.speech,
		Notifier:       a.notifier,
		Logger:         log.Component("session"),
		ReconnectDelay: cfg.ReconnectDelay(),
		OnStateChange:  onState,
	})
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Session: a.session,
			Speech:  a.speech,
			Events:  a.notifier,
			Version: version,
		}
		if repo != nil {
			deps.Journal = repo
		}
		if a.server, err = api.New(deps); err != nil {
			return nil, fmt.Errorf("creating API server: %w", err)
		}
		a.notifier.AddSink(a.server.Hub())
		if err = a.server.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting API server: %w", err)
		}
		log.Info("API server listening", "addr", a.server.Addr())
	} else {
		log.Info("API server disabled")
	}

	if cfg.Speech.GateConnect {
		if err = a.awaitSpeech(ctx, cfg.SpeechReadyTimeout()); err != nil {
			return nil, err
		}
	}

	conn, err := connectionConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("broker configuration: %w", err)
	}
	if err = a.session.Start(conn); err != nil {
		return nil, fmt.Errorf("starting session: %w", err)
	}
	log.Info("session started",
		"broker", conn.BrokerURL(),
		"client_id", conn.ClientID,
		"topics", conn.Topics,
	)

	return a, nil
}

func (a *app) openJournal(ctx context.Context, cfg config.DatabaseConfig) (*journal.SQLiteRepository, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.db = db
	a.log.Info("database connected", "path", cfg.Path)

	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	a.log.Info("database migrations complete")

	return journal.NewSQLiteRepository(db.DB, cfg.Retention, a.log.Component("journal")), nil
}

// awaitSpeech holds the first connection back until the speech engine has
// initialised. A failed engine is logged and the client continues without it.
func (a *app) awaitSpeech(ctx context.Context, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := a.speech.AwaitReady(waitCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, speech.ErrNotReady):
		a.log.Warn("speech engine unavailable, connecting without speech", "error", err)
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("waiting for speech engine: %w", ctx.Err())
	default:
		a.log.Warn("speech engine not ready in time, connecting anyway", "timeout", timeout)
		return nil
	}
}

// close shuts components down in reverse start order. Safe on a partially
// started app.
func (a *app) close() {
	if a.server != nil {
		a.log.Info("stopping API server")
		if err := a.server.Close(); err != nil {
			a.log.Error("error stopping API server", "error", err)
		}
	}
	if a.session != nil {
		a.log.Info("closing session")
		a.session.Close()
	}
	if a.speech != nil {
		a.log.Info("stopping speech engine")
		a.speech.Close()
	}
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.influx != nil {
		a.log.Info("closing InfluxDB connection")
		if err := a.influx.Close(); err != nil {
			a.log.Error("error closing InfluxDB", "error", err)
		}
	}
	if a.db != nil {
		a.log.Info("closing database")
		if err := a.db.Close(); err != nil {
			a.log.Error("error closing database", "error", err)
		}
	}
	a.log.Info("mqtt-voice stopped")
}

// connectionConfig builds the initial broker connection from configuration.
func connectionConfig(cfg *config.Config) (session.ConnectionConfig, error) {
	scheme, err := session.ParseScheme(cfg.Broker.Scheme)
	if err != nil {
		return session.ConnectionConfig{}, err
	}
	return session.ConnectionConfig{
		Host:     cfg.Broker.Host,
		Port:     cfg.Broker.Port,
		Scheme:   scheme,
		ClientID: cfg.Broker.ClientID,
		Topics:   session.ParseTopics(cfg.Broker.Topics),
		Username: cfg.Auth.Username,
		Password: cfg.Auth.Password,
	}, nil
}

func getConfigPath() string {
	if path := os.Getenv("MQTTVOICE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
