package mqtt

import (
	"crypto/tls"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mqtt-voice/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-voice/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a single connect attempt.
	defaultConnectTimeout = 30 * time.Second

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultMaxReconnectInterval caps paho's own reconnect backoff.
	defaultMaxReconnectInterval = 2 * time.Minute

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options tunes the paho client beyond what ConnectionConfig carries.
type Options struct {
	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	// AutoReconnect lets paho re-establish a lost connection itself. The
	// session manager's fallback timer is armed either way.
	AutoReconnect bool

	MaxReconnectInterval time.Duration

	// TLSConfig overrides the default TLS settings for ssl:// brokers.
	TLSConfig *tls.Config
}

// OptionsFromConfig maps the broker section of the config file.
func OptionsFromConfig(cfg config.BrokerConfig) Options {
	return Options{
		KeepAlive:      time.Duration(cfg.KeepAlive) * time.Second,
		ConnectTimeout: time.Duration(cfg.ConnectTimeout) * time.Second,
		AutoReconnect:  cfg.AutoReconnect,
	}
}

func (o Options) withDefaults() Options {
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.MaxReconnectInterval <= 0 {
		o.MaxReconnectInterval = defaultMaxReconnectInterval
	}
	return o
}

// buildClientOptions creates paho MQTT options for one session.
//
// This configures:
//   - Broker URL (<scheme><host>:<port>)
//   - Client ID and optional credentials
//   - Clean session, keepalive and connect timeout
//   - paho auto-reconnect, but no initial connect retry: a failed first
//     attempt is reported so the session manager can schedule its own retry
//   - TLS 1.2+ for ssl:// brokers
//
// Callbacks are installed by Dial.
func buildClientOptions(cfg session.ConnectionConfig, o Options) *pahomqtt.ClientOptions {
	o = o.withDefaults()
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(o.AutoReconnect)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(o.MaxReconnectInterval)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)

	// Subscriptions are re-issued by the session manager on every connect.
	opts.SetResumeSubs(false)

	if cfg.Scheme.Secure() {
		tlsConfig := o.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{
				MinVersion: tlsMinVersion,
				ServerName: cfg.Host,
			}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}
