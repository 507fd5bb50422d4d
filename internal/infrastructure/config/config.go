package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// clientIDPrefix is prepended to generated MQTT client identifiers.
const clientIDPrefix = "mqttvoice-"

// Config is the root configuration structure for mqtt-voice.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker    BrokerConfig    `yaml:"broker"`
	Auth      AuthConfig      `yaml:"auth"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Speech    SpeechConfig    `yaml:"speech"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BrokerConfig contains MQTT broker connection details.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"`
	ClientID string `yaml:"client_id"`

	// Topics is a comma-separated list, as typed into the connection form.
	Topics string `yaml:"topics"`

	// KeepAlive is the MQTT keepalive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeout bounds a single connect attempt (seconds).
	ConnectTimeout int `yaml:"connect_timeout"`

	// AutoReconnect lets the MQTT library retry lost connections itself.
	// The session manager still arms its own fallback timer.
	AutoReconnect bool `yaml:"auto_reconnect"`
}

// AuthConfig contains MQTT authentication credentials.
type AuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ReconnectConfig contains the fallback reconnect settings.
type ReconnectConfig struct {
	// Delay is the fixed wait (seconds) between a failure and the next attempt.
	Delay int `yaml:"delay"`
}

// SpeechConfig contains speech sink settings.
type SpeechConfig struct {
	// Engine selects the synthesizer: "log" or "polly".
	Engine string `yaml:"engine"`

	// Mode is "enqueue" (append to queue) or "replace" (flush and interrupt).
	Mode string `yaml:"mode"`

	// GateConnect delays the first broker connection until the engine is ready.
	GateConnect bool `yaml:"gate_connect"`

	// ReadyTimeout bounds the readiness wait (seconds).
	ReadyTimeout int `yaml:"ready_timeout"`

	// QueueSize is the number of pending utterances held before new ones are dropped.
	QueueSize int `yaml:"queue_size"`

	Polly PollyConfig `yaml:"polly"`
}

// PollyConfig contains Amazon Polly synthesizer settings.
type PollyConfig struct {
	Region       string `yaml:"region"`
	VoiceID      string `yaml:"voice_id"`
	Engine       string `yaml:"engine"`
	LanguageCode string `yaml:"language_code"`

	// OutputDir receives one audio file per utterance when set.
	OutputDir string `yaml:"output_dir"`

	// PlayerCommand receives audio on stdin when set (e.g. "mpg123 -q -").
	PlayerCommand string `yaml:"player_command"`

	// Timeout bounds a single synthesis request (seconds).
	Timeout int `yaml:"timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite event journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// Retention is how many journal entries to keep. 0 keeps everything.
	Retention int `yaml:"retention"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTVOICE_SECTION_KEY
// For example: MQTTVOICE_BROKER_HOST, MQTTVOICE_BROKER_TOPICS
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// The broker defaults point at a public test broker.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:           "broker.emqx.io",
			Port:           1883,
			Scheme:         "tcp://",
			Topics:         "test/voice",
			KeepAlive:      60,
			ConnectTimeout: 30,
			AutoReconnect:  true,
		},
		Reconnect: ReconnectConfig{
			Delay: 10,
		},
		Speech: SpeechConfig{
			Engine:       "log",
			Mode:         "enqueue",
			ReadyTimeout: 30,
			QueueSize:    64,
			Polly: PollyConfig{
				Region:  "us-east-1",
				VoiceID: "Zhiyu",
				Engine:  "neural",
				Timeout: 15,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Path:        "./data/mqttvoice.db",
			WALMode:     true,
			BusyTimeout: 5,
			Retention:   1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// GenerateClientID returns a random client identifier that fits the
// 23-character MQTT 3.1 limit.
func GenerateClientID() string {
	return clientIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTVOICE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Broker
	if v := os.Getenv("MQTTVOICE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("MQTTVOICE_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("MQTTVOICE_BROKER_SCHEME"); v != "" {
		cfg.Broker.Scheme = v
	}
	if v := os.Getenv("MQTTVOICE_BROKER_CLIENT_ID"); v != "" {
		cfg.Broker.ClientID = v
	}
	if v := os.Getenv("MQTTVOICE_BROKER_TOPICS"); v != "" {
		cfg.Broker.Topics = v
	}

	// Auth
	if v := os.Getenv("MQTTVOICE_MQTT_USERNAME"); v != "" {
		cfg.Auth.Username = v
	}
	if v := os.Getenv("MQTTVOICE_MQTT_PASSWORD"); v != "" {
		cfg.Auth.Password = v
	}

	// Speech
	if v := os.Getenv("MQTTVOICE_SPEECH_ENGINE"); v != "" {
		cfg.Speech.Engine = v
	}

	// API
	if v := os.Getenv("MQTTVOICE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MQTTVOICE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Broker fields are only checked for presence here; the session package
// performs the authoritative connection validation when Start is called.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Broker.Host) == "" {
		errs = append(errs, "broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		errs = append(errs, "broker.port must be between 1 and 65535")
	}
	if strings.TrimSpace(c.Broker.Topics) == "" {
		errs = append(errs, "broker.topics is required")
	}
	if c.Reconnect.Delay < 1 {
		errs = append(errs, "reconnect.delay must be at least 1 second")
	}

	switch strings.ToLower(c.Speech.Engine) {
	case "log", "polly":
	default:
		errs = append(errs, `speech.engine must be "log" or "polly"`)
	}
	switch strings.ToLower(c.Speech.Mode) {
	case "enqueue", "replace":
	default:
		errs = append(errs, `speech.mode must be "enqueue" or "replace"`)
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the journal is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReconnectDelay returns the fallback reconnect delay as a Duration.
func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.Reconnect.Delay) * time.Second
}

// SpeechReadyTimeout returns the speech readiness wait as a Duration.
func (c *Config) SpeechReadyTimeout() time.Duration {
	return time.Duration(c.Speech.ReadyTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
