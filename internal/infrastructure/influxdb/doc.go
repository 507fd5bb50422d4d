// Package influxdb records voice events as time-series points.
//
// It wraps influxdb-client-go v2 with connection checks, batched
// non-blocking writes, and an asynchronous error callback. Each notifier
// event becomes one voice_events point tagged with its kind, so message
// rates and status churn can be charted per broker session.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteEvent("message", "hello", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are batched according to
// batch_size and flush_interval.
package influxdb
