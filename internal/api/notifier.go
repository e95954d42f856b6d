package api

import (
	"context"
	"encoding/json"

	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// HubNotifier bridges the message router and the registration workflow to
// the WebSocket hub, turning core events into channel broadcasts.
//
// It satisfies both notifier interfaces the core exposes, so one instance
// can be handed to the router and the registration service.
type HubNotifier struct {
	hub *Hub
}

// NewHubNotifier creates a notifier that broadcasts through the given hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

// NotifyDeviceStatus broadcasts liveness transitions.
func (n *HubNotifier) NotifyDeviceStatus(_ context.Context, hostname string, status store.DeviceStatus, firstSeen bool) {
	n.hub.Broadcast(ChannelDeviceStatus, map[string]any{
		"hostname":   hostname,
		"status":     string(status),
		"first_seen": firstSeen,
	})
}

// NotifyAccess broadcasts scan events.
func (n *HubNotifier) NotifyAccess(_ context.Context, msg *rfid.Message) {
	n.hub.Broadcast(ChannelAccessEvent, map[string]any{
		"hostname":    msg.Hostname,
		"uid":         msg.UID,
		"username":    msg.Username,
		"access_type": msg.AccessType,
		"is_known":    msg.IsKnown,
		"door_name":   msg.DoorName,
	})
}

// NotifyRaw mirrors decoded bus traffic for dashboard debugging. Payloads
// that are not valid JSON are passed through as raw strings.
func (n *HubNotifier) NotifyRaw(_ context.Context, topic string, payload []byte) {
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		body = string(payload)
	}
	n.hub.Broadcast(ChannelMQTTMessage, map[string]any{
		"topic":   topic,
		"payload": body,
	})
}

// NotifyCardDetected broadcasts captured unknown cards.
func (n *HubNotifier) NotifyCardDetected(_ context.Context, uid, hostname string) {
	n.hub.Broadcast(ChannelNewCardDetected, map[string]any{
		"uid":      uid,
		"hostname": hostname,
	})
}
