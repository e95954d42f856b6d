// Package influxdb provides optional time-series telemetry for the
// ESP-RFID manager.
//
// It wraps the official influxdb-client-go v2 library with the same
// connection management, batching and health monitoring patterns as the
// other infrastructure clients.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Access attempt rates per door and per outcome
//   - Device liveness and uptime tracking
//   - Card detection activity during registration sessions
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "esprfid",
//	    Bucket: "access",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record an access attempt
//	client.WriteAccessEvent("frontdoor", "AB12CD34", "Always", true)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
