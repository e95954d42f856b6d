package rfid

import (
	"context"

	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// MultiNotifier fans router events out to several notifiers in order.
// Useful when both the hub publisher and the WebSocket layer want the same
// event stream.
type MultiNotifier []Notifier

// NotifyDeviceStatus implements Notifier.
func (m MultiNotifier) NotifyDeviceStatus(ctx context.Context, hostname string, status store.DeviceStatus, firstSeen bool) {
	for _, n := range m {
		n.NotifyDeviceStatus(ctx, hostname, status, firstSeen)
	}
}

// NotifyAccess implements Notifier.
func (m MultiNotifier) NotifyAccess(ctx context.Context, msg *Message) {
	for _, n := range m {
		n.NotifyAccess(ctx, msg)
	}
}

// NotifyRaw implements Notifier.
func (m MultiNotifier) NotifyRaw(ctx context.Context, topic string, payload []byte) {
	for _, n := range m {
		n.NotifyRaw(ctx, topic, payload)
	}
}
