package influxdb

import (
	"time"
	"unicode/utf8"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementVoiceEvents  = "voice_events"
	MeasurementSessionState = "session_state"
)

// WriteEvent records one notifier event. The kind is a tag; the text and
// its length in characters are fields. A zero at uses the current time.
//
//	client.WriteEvent("message", "hello", time.Now())
func (c *Client) WriteEvent(kind, text string, at time.Time) {
	c.WritePoint(MeasurementVoiceEvents,
		map[string]string{"kind": kind},
		map[string]any{
			"text":   text,
			"length": utf8.RuneCountInString(text),
		},
		at,
	)
}

// WriteSessionState records a session lifecycle transition.
func (c *Client) WriteSessionState(state string, at time.Time) {
	c.WritePoint(MeasurementSessionState,
		map[string]string{"state": state},
		map[string]any{"value": 1},
		at,
	)
}

// WritePoint writes a custom point. A zero at uses the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
