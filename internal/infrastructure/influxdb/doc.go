// Package influxdb writes shadow telemetry to InfluxDB v2.
//
// Writes are non-blocking and batched by the official client; asynchronous
// failures are delivered to the SetOnError callback. The telemetry package
// turns engine events into points through this client.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WritePoint("shadow_report", tags, fields)
package influxdb
