package hass

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// historyWindow is the number of recent access events kept per device for
// the access_history facet.
const historyWindow = 10

// accessRecord is one entry in a device's access_history attributes.
type accessRecord struct {
	UID        string `json:"uid"`
	Username   string `json:"username"`
	AccessType string `json:"access_type"`
	IsKnown    bool   `json:"is_known"`
	Timestamp  string `json:"timestamp"`
}

// Publisher mirrors registry and access state onto the hub's discovery
// topics. It implements the router's and the registration workflow's
// notifier interfaces; every publish is fire-and-forget.
type Publisher struct {
	bus    rfid.Publisher
	topics mqtt.HubTopics
	qos    byte
	logger Logger

	mu        sync.Mutex
	announced map[string]bool
	history   map[string][]accessRecord

	// now is the clock, swappable for tests.
	now func() time.Time
}

// NewPublisher creates a hub publisher over the given bus.
func NewPublisher(bus rfid.Publisher, topics mqtt.HubTopics, qos byte) *Publisher {
	return &Publisher{
		bus:       bus,
		topics:    topics,
		qos:       qos,
		logger:    noopLogger{},
		announced: make(map[string]bool),
		history:   make(map[string][]accessRecord),
		now:       time.Now,
	}
}

// SetLogger sets the logger for the publisher.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Announce publishes retained discovery configs for every facet of a
// hostname. Safe to call repeatedly; the hub deduplicates identical
// retained configs.
func (p *Publisher) Announce(ctx context.Context, hostname string) error {
	dev := newDeviceBlock(p.topics, hostname)

	for _, f := range facets {
		cfg := f.build(p.topics, hostname, dev)
		payload, err := json.Marshal(cfg)
		if err != nil {
			return err
		}
		topic := p.topics.Config(f.component, hostname, f.name)
		if err := p.bus.Publish(topic, payload, p.qos, true); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.announced[hostname] = true
	p.mu.Unlock()

	p.logger.Info("announced device entities", "hostname", hostname)
	return nil
}

// announceOnce fires Announce the first time a hostname is seen this
// process; later calls are no-ops.
func (p *Publisher) announceOnce(ctx context.Context, hostname string) {
	p.mu.Lock()
	done := p.announced[hostname]
	p.mu.Unlock()
	if done {
		return
	}
	if err := p.Announce(ctx, hostname); err != nil {
		p.logger.Error("device announce failed", "hostname", hostname, "error", err)
	}
}

// NotifyDeviceStatus publishes the online binary sensor on liveness
// transitions, announcing the device's entities first if this is the
// hostname's first appearance.
func (p *Publisher) NotifyDeviceStatus(ctx context.Context, hostname string, status store.DeviceStatus, firstSeen bool) {
	if firstSeen {
		p.announceOnce(ctx, hostname)
	}

	state := "OFF"
	if status == store.StatusOnline {
		state = "ON"
	}
	p.publishState(p.topics.State("binary_sensor", hostname, "online"), []byte(state))
}

// NotifyAccess updates the last_access, door_status and access_history
// facets from a scan-bearing message.
func (p *Publisher) NotifyAccess(ctx context.Context, msg *rfid.Message) {
	if msg.Hostname == "" {
		return
	}

	username := msg.Username
	if username == "" {
		username = rfid.UnknownUsername
	}

	record := accessRecord{
		UID:        msg.UID,
		Username:   username,
		AccessType: msg.AccessType,
		IsKnown:    msg.IsKnown,
		Timestamp:  p.now().UTC().Format(time.RFC3339),
	}

	p.publishState(p.topics.State("sensor", msg.Hostname, "last_access"), []byte(username))
	p.publishJSON(p.topics.Attributes("sensor", msg.Hostname, "last_access"), record)

	doorState := "locked"
	if granted(msg) {
		doorState = "unlocked"
	}
	p.publishState(p.topics.State("sensor", msg.Hostname, "door_status"), []byte(doorState))

	p.mu.Lock()
	window := append(p.history[msg.Hostname], record)
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}
	p.history[msg.Hostname] = window
	count := len(window)
	snapshot := make([]accessRecord, count)
	copy(snapshot, window)
	p.mu.Unlock()

	p.publishState(p.topics.State("sensor", msg.Hostname, "access_history"), []byte(strconv.Itoa(count)))
	p.publishJSON(p.topics.Attributes("sensor", msg.Hostname, "access_history"), map[string]any{
		"history": snapshot,
	})
}

// NotifyRaw is part of the router's notifier interface; the hub has no use
// for raw bus traffic.
func (p *Publisher) NotifyRaw(ctx context.Context, topic string, payload []byte) {}

// NotifyCardDetected publishes the unknown_card facet when the registration
// workflow captures a new card.
func (p *Publisher) NotifyCardDetected(ctx context.Context, uid, hostname string) {
	p.publishState(p.topics.State("sensor", hostname, "unknown_card"), []byte(uid))
	p.publishJSON(p.topics.Attributes("sensor", hostname, "unknown_card"), map[string]string{
		"uid":         uid,
		"hostname":    hostname,
		"detected_at": p.now().UTC().Format(time.RFC3339),
	})
}

// granted reports whether a scan represents a successful entry. The
// firmware reports denial variants ("Denied", "Disabled", "Expired") in the
// access field; anything else from a known card counts as entry.
func granted(msg *rfid.Message) bool {
	if !msg.IsKnown {
		return false
	}
	switch strings.ToLower(msg.AccessType) {
	case "denied", "disabled", "expired":
		return false
	}
	return true
}

// publishState publishes a retained facet state, logging failures.
func (p *Publisher) publishState(topic string, payload []byte) {
	if err := p.bus.Publish(topic, payload, p.qos, true); err != nil {
		p.logger.Error("hub state publish failed", "topic", topic, "error", err)
	}
}

// publishJSON marshals and publishes a retained attribute document.
func (p *Publisher) publishJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.logger.Error("hub attribute encode failed", "topic", topic, "error", err)
		return
	}
	if err := p.bus.Publish(topic, payload, p.qos, true); err != nil {
		p.logger.Error("hub attribute publish failed", "topic", topic, "error", err)
	}
}
