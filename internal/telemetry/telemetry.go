// Package telemetry feeds core events into the optional InfluxDB client.
//
// The Recorder sits on the same notifier fan-out as the hub publisher and
// the WebSocket layer; when InfluxDB is disabled it is simply not wired.
package telemetry

import (
	"context"
	"strings"

	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/esp-rfid-core/internal/registration"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// Recorder translates router and registration events into time-series
// writes. All writes are non-blocking; the influx client batches them.
type Recorder struct {
	client *influxdb.Client
}

var (
	_ rfid.Notifier         = (*Recorder)(nil)
	_ registration.Notifier = (*Recorder)(nil)
)

// NewRecorder creates a recorder over a connected InfluxDB client.
func NewRecorder(client *influxdb.Client) *Recorder {
	return &Recorder{client: client}
}

// NotifyDeviceStatus records liveness transitions.
func (r *Recorder) NotifyDeviceStatus(_ context.Context, hostname string, status store.DeviceStatus, _ bool) {
	r.client.WriteDeviceStatus(hostname, status == store.StatusOnline)
}

// NotifyAccess records one access attempt.
func (r *Recorder) NotifyAccess(_ context.Context, msg *rfid.Message) {
	r.client.WriteAccessEvent(msg.Hostname, msg.UID, msg.AccessType, accessGranted(msg))
}

// accessGranted maps a firmware access outcome onto a boolean series value.
// Unknown cards never grant; known cards grant unless the firmware reports a
// refusing outcome.
func accessGranted(msg *rfid.Message) bool {
	if !msg.IsKnown {
		return false
	}
	switch strings.ToLower(msg.AccessType) {
	case "denied", "disabled", "expired":
		return false
	}
	return true
}

// NotifyRaw is part of the router's notifier interface; raw bus traffic is
// not worth a series.
func (r *Recorder) NotifyRaw(context.Context, string, []byte) {}

// NotifyCardDetected records unknown cards captured during detection.
func (r *Recorder) NotifyCardDetected(_ context.Context, uid, hostname string) {
	r.client.WriteCardDetection(hostname, uid)
}
