package rfid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// Subscriber is the inbound bus capability the router needs.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// UnknownCardHandler receives unknown-card sightings. The registration
// workflow implements it; whether a sighting becomes a pending registration
// depends on its detection state.
type UnknownCardHandler interface {
	HandleUnknownCard(ctx context.Context, uid, hostname string, seen time.Time) error
}

// Notifier receives routed events for live subscribers and the hub.
// Implementations must not block the message path; errors are theirs to
// handle.
type Notifier interface {
	// NotifyDeviceStatus fires on liveness transitions: a device coming
	// online (firstSeen true on its very first appearance) or going offline.
	NotifyDeviceStatus(ctx context.Context, hostname string, status store.DeviceStatus, firstSeen bool)

	// NotifyAccess fires for every scan-bearing message after it is logged.
	NotifyAccess(ctx context.Context, msg *Message)

	// NotifyRaw fires for every successfully decoded message.
	NotifyRaw(ctx context.Context, topic string, payload []byte)
}

// buttonCommandPattern is the hub-side subscription for unlock buttons.
const buttonCommandPattern = "homeassistant/button/+/cmd"

// Router subscribes to the device topic families and drives the per-kind
// handlers. One instance serves the whole bus.
//
// The liveness refresh runs before kind-specific handling for every decoded
// device message, so even unrouted messages keep a device online. Handler
// errors are logged and never stop the consumption loop.
type Router struct {
	classifier *Classifier
	registry   *device.Registry
	users      store.UserRepository
	logs       store.LogRepository
	dispatcher *Dispatcher
	unknown    UnknownCardHandler
	notifier   Notifier
	topics     mqtt.Topics
	qos        byte
	logger     device.Logger

	// now is the clock, swappable for tests.
	now func() time.Time
}

// RouterConfig carries the router's collaborators.
type RouterConfig struct {
	Classifier *Classifier
	Registry   *device.Registry
	Users      store.UserRepository
	Logs       store.LogRepository
	Dispatcher *Dispatcher
	Unknown    UnknownCardHandler
	Notifier   Notifier
	Topics     mqtt.Topics
	QoS        byte
	Logger     device.Logger
}

// NewRouter creates a message router. Logger and Notifier may be nil.
func NewRouter(cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Router{
		classifier: cfg.Classifier,
		registry:   cfg.Registry,
		users:      cfg.Users,
		logs:       cfg.Logs,
		dispatcher: cfg.Dispatcher,
		unknown:    cfg.Unknown,
		notifier:   cfg.Notifier,
		topics:     cfg.Topics,
		qos:        cfg.QoS,
		logger:     logger,
		now:        time.Now,
	}
}

// Start subscribes to all device topic families and the hub's unlock button
// commands.
func (r *Router) Start(client Subscriber) error {
	patterns := append(r.topics.SubscriptionPatterns(), buttonCommandPattern)
	for _, pattern := range patterns {
		if err := client.Subscribe(pattern, r.qos, r.HandleMessage); err != nil {
			return fmt.Errorf("subscribing to %s: %w", pattern, err)
		}
	}
	r.logger.Info("message router started", "subscriptions", len(patterns))
	return nil
}

// HandleMessage classifies and processes one bus message. The returned
// error is for the bus client's logging only; the message is done either
// way (the bus does not redeliver).
func (r *Router) HandleMessage(topic string, payload []byte) error {
	ctx := context.Background()

	msg, err := r.classifier.Classify(topic, payload)
	if err != nil {
		r.logger.Warn("message dropped", "topic", topic, "error", err)
		return nil
	}

	// Liveness first: every decoded device message refreshes the sender,
	// whatever its kind. Button commands come from the hub, not a device.
	if msg.Kind != KindButtonUnlock && msg.Hostname != "" {
		result, err := r.registry.Touch(ctx, msg.Hostname, msg.IP, r.now())
		if err != nil {
			r.logger.Error("liveness update failed", "hostname", msg.Hostname, "error", err)
		} else if (result.WasOffline || result.FirstSeen) && r.notifier != nil {
			r.notifier.NotifyDeviceStatus(ctx, msg.Hostname, store.StatusOnline, result.FirstSeen)
		}
	}

	if err := r.dispatch(ctx, msg); err != nil {
		r.logger.Error("message handling failed",
			"kind", msg.Kind.String(),
			"hostname", msg.Hostname,
			"error", err,
		)
	}

	if r.notifier != nil && msg.Kind != KindButtonUnlock {
		r.notifier.NotifyRaw(ctx, topic, payload)
	}
	return nil
}

// dispatch runs the kind-specific handler.
func (r *Router) dispatch(ctx context.Context, msg *Message) error {
	switch msg.Kind {
	case KindBoot:
		return r.handleBoot(ctx, msg)
	case KindHeartbeat, KindUnrouted:
		// Liveness refresh is the whole job.
		return nil
	case KindAccess, KindTagScan, KindLogScan, KindCardScan:
		return r.handleScan(ctx, msg)
	case KindGenericEvent:
		return r.handleEvent(ctx, msg)
	case KindUserFileSync:
		return r.handleUserFile(ctx, msg)
	case KindButtonUnlock:
		return r.handleButtonUnlock(ctx, msg)
	default:
		return nil
	}
}

// handleBoot records the boot in the event log.
func (r *Router) handleBoot(ctx context.Context, msg *Message) error {
	r.logger.Info("device booted", "hostname", msg.Hostname)
	return r.logs.InsertEvent(ctx, &store.Event{
		DeviceHostname: msg.Hostname,
		EventType:      "INFO",
		Source:         "system",
		Description:    "Device booted",
		Data:           string(msg.Raw),
		Timestamp:      r.now(),
	})
}

// handleScan processes every scan-bearing kind: append the access log,
// then hand unknown cards to the registration workflow.
//
// The access log write is unconditional and records the device's own
// is_known verdict verbatim; the manager-side user lookup only gates the
// registration hand-off.
func (r *Router) handleScan(ctx context.Context, msg *Message) error {
	if msg.Hostname == "" || msg.UID == "" {
		r.logger.Warn("scan without hostname or uid dropped", "topic", msg.Topic)
		return nil
	}

	unknown, err := r.isUnknownCard(ctx, msg)
	if err != nil {
		return fmt.Errorf("resolving card identity: %w", err)
	}

	username := msg.Username
	if username == "" {
		username = UnknownUsername
	}

	entry := &store.AccessLog{
		DeviceHostname: msg.Hostname,
		UID:            msg.UID,
		Username:       username,
		AccessType:     msg.AccessType,
		IsKnown:        msg.IsKnown,
		DoorName:       msg.DoorName,
		Timestamp:      r.now(),
		RawData:        string(msg.Raw),
	}
	if err := r.logs.InsertAccessLog(ctx, entry); err != nil {
		return fmt.Errorf("appending access log: %w", err)
	}

	if r.notifier != nil {
		r.notifier.NotifyAccess(ctx, msg)
	}

	if unknown && r.unknown != nil {
		if err := r.unknown.HandleUnknownCard(ctx, msg.UID, msg.Hostname, r.now()); err != nil {
			return fmt.Errorf("handling unknown card: %w", err)
		}
	}
	return nil
}

// isUnknownCard reports whether a scan refers to a card with no identity:
// the firmware's "Unknown" sentinel, or a uid with no User record on this
// device.
func (r *Router) isUnknownCard(ctx context.Context, msg *Message) (bool, error) {
	if msg.Username != "" && msg.Username != UnknownUsername {
		return false, nil
	}

	_, err := r.users.Get(ctx, msg.UID, msg.Hostname)
	if errors.Is(err, store.ErrUserNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// handleEvent records a firmware diagnostic in the event log.
func (r *Router) handleEvent(ctx context.Context, msg *Message) error {
	return r.logs.InsertEvent(ctx, &store.Event{
		DeviceHostname: msg.Hostname,
		EventType:      msg.EventType,
		Source:         msg.Source,
		Description:    msg.Description,
		Data:           msg.Data,
		Timestamp:      r.now(),
	})
}

// handleUserFile syncs one user record from a device's user-file dump.
func (r *Router) handleUserFile(ctx context.Context, msg *Message) error {
	if msg.UID == "" || msg.Hostname == "" {
		r.logger.Warn("user file record without uid or hostname dropped", "topic", msg.Topic)
		return nil
	}
	return r.users.Upsert(ctx, &store.User{
		UID:            msg.UID,
		Username:       msg.Username,
		DeviceHostname: msg.Hostname,
		AccType:        msg.AccType,
		ValidSince:     msg.ValidSince,
		ValidUntil:     msg.ValidUntil,
	})
}

// handleButtonUnlock relays a hub button press to the device's relay.
func (r *Router) handleButtonUnlock(ctx context.Context, msg *Message) error {
	r.logger.Info("remote unlock requested", "hostname", msg.Hostname)

	if err := r.dispatcher.OpenDoor(ctx, Target{Hostname: msg.Hostname}); err != nil {
		return fmt.Errorf("relaying unlock for %s: %w", msg.Hostname, err)
	}

	return r.logs.InsertAccessLog(ctx, &store.AccessLog{
		DeviceHostname: msg.Hostname,
		Username:       "Home Assistant",
		AccessType:     "remote_unlock",
		IsKnown:        true,
		Timestamp:      r.now(),
		RawData:        string(msg.Raw),
	})
}
