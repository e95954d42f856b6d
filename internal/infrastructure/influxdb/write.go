package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteAccessEvent records one access attempt as a time-series point.
//
// This is the primary telemetry method: every scan a device reports can be
// charted per door, per user and per outcome. The write is non-blocking;
// data is batched and sent asynchronously.
//
// Parameters:
//   - hostname: Device the scan happened on (e.g., "frontdoor")
//   - uid: Card UID, empty for button-driven events
//   - accessType: Firmware outcome field ("Always", "Denied", "Admin", ...)
//   - granted: Whether the attempt resulted in entry
//
// Example:
//
//	client.WriteAccessEvent("frontdoor", "AB12CD34", "Always", true)
func (c *Client) WriteAccessEvent(hostname, uid, accessType string, granted bool) {
	if !c.IsConnected() {
		return
	}

	grantedVal := 0
	if granted {
		grantedVal = 1
	}

	point := write.NewPoint(
		"access_events",
		map[string]string{
			"hostname":    hostname,
			"access_type": accessType,
		},
		map[string]interface{}{
			"uid":     uid,
			"granted": grantedVal,
			"count":   1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceStatus records a liveness transition for a device.
//
// Online is written as 1 and offline as 0, so uptime percentage falls out
// of a mean() aggregation.
//
// Parameters:
//   - hostname: Device identifier
//   - online: The new liveness state
func (c *Client) WriteDeviceStatus(hostname string, online bool) {
	if !c.IsConnected() {
		return
	}

	onlineVal := 0
	if online {
		onlineVal = 1
	}

	point := write.NewPoint(
		"device_status",
		map[string]string{
			"hostname": hostname,
		},
		map[string]interface{}{
			"online": onlineVal,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCardDetection records an unknown card captured during a detection
// session.
//
// Parameters:
//   - hostname: Device the card was scanned on
//   - uid: The captured card UID
func (c *Client) WriteCardDetection(hostname, uid string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"card_detections",
		map[string]string{
			"hostname": hostname,
		},
		map[string]interface{}{
			"uid":   uid,
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
