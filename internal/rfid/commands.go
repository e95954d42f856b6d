package rfid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// Dispatcher errors.
var (
	// ErrUnresolvedTarget is returned when a command target matches no known
	// device and single-device fallback is disabled. With several devices on
	// the bus, the shared command topic would deliver the command to all of
	// them, so the degraded path must be opted into explicitly.
	ErrUnresolvedTarget = errors.New("rfid: command target matches no known device")

	// ErrPublish is returned when the bus publish itself fails. The
	// dispatcher never retries; the caller decides what to surface.
	ErrPublish = errors.New("rfid: command publish failed")
)

// Publisher is the outbound bus capability the dispatcher needs.
// *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Target addresses a command. Either field may be empty; resolution prefers
// Hostname, then reverse-looks-up IP against the registry.
type Target struct {
	Hostname string
	IP       string
}

// command is the wire shape ESP-RFID firmware accepts. All value fields
// travel as strings regardless of their logical type; the field names are
// fixed protocol tokens.
type command struct {
	Cmd        string `json:"cmd"`
	UID        string `json:"uid,omitempty"`
	User       string `json:"user,omitempty"`
	AccType    string `json:"acctype,omitempty"`
	ValidSince string `json:"validsince,omitempty"`
	ValidUntil string `json:"validuntil,omitempty"`
	DoorIP     string `json:"doorip,omitempty"`
}

// Dispatcher builds and publishes device commands.
//
// Topic resolution prefers the per-device command topic. The shared topic
// is used only in single-device mode; in multi-device deployments an
// unresolvable target is an error, not a silent broadcast.
type Dispatcher struct {
	publisher    Publisher
	registry     *device.Registry
	topics       mqtt.Topics
	qos          byte
	singleDevice bool
	logger       device.Logger
}

// NewDispatcher creates a command dispatcher.
//
// Parameters:
//   - publisher: The bus client commands are published through
//   - registry: Used to resolve hostnames and reverse-lookup IPs
//   - topics: Topic builders for the configured base topic
//   - qos: QoS level for command publishes
//   - singleDevice: Allow the shared-topic fallback for unresolved targets
func NewDispatcher(publisher Publisher, registry *device.Registry, topics mqtt.Topics, qos byte, singleDevice bool) *Dispatcher {
	return &Dispatcher{
		publisher:    publisher,
		registry:     registry,
		topics:       topics,
		qos:          qos,
		singleDevice: singleDevice,
		logger:       noopLogger{},
	}
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger device.Logger) {
	d.logger = logger
}

// AddUser provisions a card on the target device.
//
// Numeric fields are transmitted as strings; the firmware parses them on
// its side. Zero validity bounds mean unbounded.
func (d *Dispatcher) AddUser(ctx context.Context, target Target, uid, username string, acctype int, validSince, validUntil int64) error {
	return d.send(ctx, target, command{
		Cmd:        "adduser",
		UID:        uid,
		User:       username,
		AccType:    strconv.Itoa(acctype),
		ValidSince: strconv.FormatInt(validSince, 10),
		ValidUntil: strconv.FormatInt(validUntil, 10),
	})
}

// DeleteUser removes a card from the target device.
func (d *Dispatcher) DeleteUser(ctx context.Context, target Target, uid string) error {
	return d.send(ctx, target, command{
		Cmd: "deletuid",
		UID: uid,
	})
}

// OpenDoor triggers the target device's relay.
func (d *Dispatcher) OpenDoor(ctx context.Context, target Target) error {
	return d.send(ctx, target, command{Cmd: "opendoor"})
}

// RequestUserList asks the target device to dump its user file. The device
// answers with one user-file-sync message per provisioned card.
func (d *Dispatcher) RequestUserList(ctx context.Context, target Target) error {
	return d.send(ctx, target, command{Cmd: "getuserlist"})
}

// send resolves the target, completes the command with the device IP, and
// publishes it. Fire-and-forget beyond the publish result.
func (d *Dispatcher) send(ctx context.Context, target Target, cmd command) error {
	topic, doorIP, err := d.resolve(ctx, target)
	if err != nil {
		return err
	}
	cmd.DoorIP = doorIP

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", cmd.Cmd, err)
	}

	if err := d.publisher.Publish(topic, payload, d.qos, false); err != nil {
		return fmt.Errorf("%w: %s to %s: %v", ErrPublish, cmd.Cmd, topic, err)
	}

	d.logger.Info("command dispatched", "cmd", cmd.Cmd, "topic", topic, "doorip", doorIP)
	return nil
}

// resolve determines the command topic and doorip for a target.
//
// Resolution order:
//  1. Known hostname: per-device topic, device's registered IP (unless the
//     caller supplied one).
//  2. IP reverse lookup: the owning device's per-device topic.
//  3. Single-device mode: shared topic, caller's IP passed through.
//  4. Otherwise: ErrUnresolvedTarget.
func (d *Dispatcher) resolve(ctx context.Context, target Target) (topic, doorIP string, err error) {
	if target.Hostname != "" {
		dev, err := d.registry.Get(ctx, target.Hostname)
		if err == nil {
			ip := target.IP
			if ip == "" {
				ip = dev.IPAddress
			}
			return d.topics.DeviceCommand(dev.Hostname), ip, nil
		}
		if !errors.Is(err, store.ErrDeviceNotFound) {
			return "", "", err
		}
	}

	if target.IP != "" {
		dev, err := d.registry.ResolveByIP(ctx, target.IP)
		if err == nil {
			return d.topics.DeviceCommand(dev.Hostname), target.IP, nil
		}
		if !errors.Is(err, store.ErrDeviceNotFound) {
			return "", "", err
		}
	}

	if d.singleDevice {
		d.logger.Warn("command target unresolved, using shared topic",
			"hostname", target.Hostname, "ip", target.IP)
		return d.topics.SharedCommand(), target.IP, nil
	}

	return "", "", fmt.Errorf("%w: hostname=%q ip=%q", ErrUnresolvedTarget, target.Hostname, target.IP)
}
