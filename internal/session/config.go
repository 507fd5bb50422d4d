package session

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Scheme is the transport prefix of a broker URL.
type Scheme string

const (
	// SchemePlain is an unencrypted TCP connection.
	SchemePlain Scheme = "tcp://"

	// SchemeSecure is a TLS connection.
	SchemeSecure Scheme = "ssl://"
)

// ParseScheme accepts "tcp://", "ssl://" or the bare names "tcp", "ssl",
// "tls" (case-insensitive). An empty string selects SchemePlain.
func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tcp", "tcp://", "mqtt", "mqtt://":
		return SchemePlain, nil
	case "ssl", "ssl://", "tls", "tls://", "mqtts", "mqtts://":
		return SchemeSecure, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScheme, s)
	}
}

// Secure reports whether the scheme uses TLS.
func (s Scheme) Secure() bool {
	return s == SchemeSecure
}

// ConnectionConfig describes one broker connection.
type ConnectionConfig struct {
	Host     string
	Port     int
	Scheme   Scheme
	ClientID string

	// Topics are subscribed together at QoS 1.
	Topics []string

	// Username and Password are optional; an empty username disables auth.
	Username string
	Password string
}

// ParseTopics splits a comma-separated topic list, trims each entry and
// drops blanks. "a, b ,c" yields [a b c].
func ParseTopics(s string) []string {
	var topics []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}

// BrokerURL returns scheme + host + ":" + port.
func (c ConnectionConfig) BrokerURL() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = SchemePlain
	}
	return string(scheme) + c.Host + ":" + strconv.Itoa(c.Port)
}

// Validate checks the configuration and returns every problem found.
// The returned error matches the relevant sentinel via errors.Is.
func (c ConnectionConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, ErrNoHost)
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if c.Scheme != "" && c.Scheme != SchemePlain && c.Scheme != SchemeSecure {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidScheme, c.Scheme))
	}
	if strings.TrimSpace(c.ClientID) == "" {
		errs = append(errs, ErrNoClientID)
	}
	if !slices.ContainsFunc(c.Topics, func(t string) bool { return strings.TrimSpace(t) != "" }) {
		errs = append(errs, ErrNoTopics)
	}

	return errors.Join(errs...)
}

// normalized returns a deep copy with host, client id and topics trimmed,
// blank topics removed and the scheme defaulted.
func (c ConnectionConfig) normalized() ConnectionConfig {
	out := c
	out.Host = strings.TrimSpace(c.Host)
	out.ClientID = strings.TrimSpace(c.ClientID)
	if out.Scheme == "" {
		out.Scheme = SchemePlain
	}
	out.Topics = make([]string, 0, len(c.Topics))
	for _, t := range c.Topics {
		if t = strings.TrimSpace(t); t != "" {
			out.Topics = append(out.Topics, t)
		}
	}
	return out
}
