package rfid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies what an inbound bus message is. The set is closed: every
// successfully decoded message maps to exactly one kind, and dispatch on
// Kind is exhaustive.
type Kind int

const (
	// KindUnrouted matches no known shape. It still refreshes liveness.
	KindUnrouted Kind = iota

	// KindBoot is a device boot announcement (payload type "boot").
	KindBoot

	// KindHeartbeat is a periodic liveness ping (payload type "heartbeat").
	KindHeartbeat

	// KindAccess is an access attempt result (payload type "access").
	KindAccess

	// KindTagScan is a card scan published on a .../tag topic.
	KindTagScan

	// KindGenericEvent is a firmware diagnostic (payload type INFO/WARN/ERRO).
	KindGenericEvent

	// KindUserFileSync is one user record from a getuserlist dump
	// (payload cmd "userfile").
	KindUserFileSync

	// KindLogScan is a log entry pushed by the device (payload cmd "log").
	KindLogScan

	// KindCardScan is an unsolicited card scan: a uid with neither type nor
	// cmd set. This is how unknown cards surface during registration.
	KindCardScan

	// KindButtonUnlock is a hub-originated unlock button press. The payload
	// is not JSON; the target hostname comes from the topic.
	KindButtonUnlock
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindBoot:
		return "boot"
	case KindHeartbeat:
		return "heartbeat"
	case KindAccess:
		return "access"
	case KindTagScan:
		return "tag_scan"
	case KindGenericEvent:
		return "generic_event"
	case KindUserFileSync:
		return "user_file_sync"
	case KindLogScan:
		return "log_scan"
	case KindCardScan:
		return "card_scan"
	case KindButtonUnlock:
		return "button_unlock"
	default:
		return "unrouted"
	}
}

// UnknownUsername is the sentinel the firmware reports for cards it does
// not recognise.
const UnknownUsername = "Unknown"

// Message is one classified bus message. Fields beyond Kind, Topic and
// Hostname are populated only where the kind carries them.
type Message struct {
	Kind     Kind
	Topic    string
	Hostname string
	IP       string

	// Card fields (access, tag, log, card scans, user-file sync)
	UID        string
	Username   string
	AccessType string
	IsKnown    bool
	DoorName   string

	// Event fields (boot, generic events)
	EventType   string
	Source      string
	Description string
	Data        string

	// Provisioning fields (user-file sync)
	AccType    int
	ValidSince int64
	ValidUntil int64

	// Raw is the original payload, preserved for audit logs.
	Raw []byte
}

// buttonIDPattern matches the unlock button entity IDs this manager
// announces to the hub: esp_rfid_<hostname>_unlock.
var buttonIDPattern = regexp.MustCompile(`^esp_rfid_(.+)_unlock$`)

// reservedSegments are topic segments that can never be a hostname.
var reservedSegments = map[string]bool{
	"send": true,
	"cmd":  true,
	"tag":  true,
}

// Classifier turns (topic, payload) pairs into Messages.
//
// Classification is pure: no I/O, no storage access. The caller owns all
// side effects, which keeps the dispatch table testable in isolation from
// the bus.
type Classifier struct {
	base string
}

// NewClassifier creates a classifier for the given device base topic
// (e.g. "/esprfid").
func NewClassifier(baseTopic string) *Classifier {
	return &Classifier{base: baseTopic}
}

// wirePayload is the superset of fields ESP-RFID firmware publishes.
// Several fields are shape-shifters across firmware versions, hence the
// flexible types.
type wirePayload struct {
	Hostname   string       `json:"hostname"`
	IP         string       `json:"ip"`
	Type       string       `json:"type"`
	Cmd        string       `json:"cmd"`
	UID        string       `json:"uid"`
	Username   string       `json:"username"`
	User       string       `json:"user"`
	Access     flexString   `json:"access"`
	IsKnown    flexBool     `json:"isKnown"`
	DoorName   flexString   `json:"doorName"`
	Source     string       `json:"src"`
	Desc       string       `json:"desc"`
	Data       flexString   `json:"data"`
	AccType    flexInt      `json:"acctype"`
	ValidSince flexInt      `json:"validsince"`
	ValidUntil flexInt      `json:"validuntil"`
}

// Classify determines the kind and hostname of an inbound message.
//
// Returns an error for messages that must be dropped: undecodable JSON, or
// a button command whose entity ID is not one of ours. Dropped messages
// carry no liveness side effect.
func (c *Classifier) Classify(topic string, payload []byte) (*Message, error) {
	// Hub button commands bypass JSON decoding entirely; their payload is
	// an opaque press token.
	if hostname, ok := matchButtonTopic(topic); ok {
		return &Message{
			Kind:     KindButtonUnlock,
			Topic:    topic,
			Hostname: hostname,
			Raw:      payload,
		}, nil
	}
	if isButtonTopic(topic) {
		return nil, fmt.Errorf("unrecognised button entity in topic %q", topic)
	}

	var wire wirePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("decoding payload on %q: %w", topic, err)
	}

	msg := &Message{
		Topic:       topic,
		Hostname:    c.resolveHostname(wire.Hostname, topic),
		IP:          wire.IP,
		UID:         wire.UID,
		Username:    firstNonEmpty(wire.Username, wire.User),
		AccessType:  string(wire.Access),
		IsKnown:     bool(wire.IsKnown),
		DoorName:    string(wire.DoorName),
		EventType:   wire.Type,
		Source:      wire.Source,
		Description: wire.Desc,
		Data:        string(wire.Data),
		AccType:     int(wire.AccType),
		ValidSince:  int64(wire.ValidSince),
		ValidUntil:  int64(wire.ValidUntil),
		Raw:         bytes.Clone(payload),
	}

	msg.Kind = resolveKind(topic, &wire)
	return msg, nil
}

// resolveKind applies the priority-ordered dispatch table. First match wins.
func resolveKind(topic string, wire *wirePayload) Kind {
	switch {
	case strings.Contains(topic, "/tag"):
		return KindTagScan
	case wire.Type == "boot":
		return KindBoot
	case wire.Type == "heartbeat":
		return KindHeartbeat
	case wire.Type == "access":
		return KindAccess
	case wire.Type == "INFO" || wire.Type == "WARN" || wire.Type == "ERRO":
		return KindGenericEvent
	case wire.Cmd == "userfile":
		return KindUserFileSync
	case wire.Cmd == "log":
		return KindLogScan
	case wire.UID != "" && wire.Type == "" && wire.Cmd == "":
		return KindCardScan
	default:
		return KindUnrouted
	}
}

// resolveHostname prefers the payload hostname; absent or the "unknown"
// placeholder, it falls back to the topic's device segment.
func (c *Classifier) resolveHostname(payloadHostname, topic string) string {
	if payloadHostname != "" && payloadHostname != "unknown" {
		return payloadHostname
	}
	return c.hostnameFromTopic(topic)
}

// hostnameFromTopic extracts the device segment from a topic like
// "<base>/<hostname>/send". Shared topics ("<base>/send") have no device
// segment and yield an empty hostname.
func (c *Classifier) hostnameFromTopic(topic string) string {
	rest := strings.TrimPrefix(topic, c.base)
	for _, segment := range strings.Split(rest, "/") {
		if segment == "" || reservedSegments[segment] {
			continue
		}
		return segment
	}
	return ""
}

// isButtonTopic reports whether a topic is a hub button command topic.
func isButtonTopic(topic string) bool {
	parts := strings.Split(topic, "/")
	return len(parts) >= 2 &&
		parts[len(parts)-1] == "cmd" &&
		len(parts) >= 3 &&
		parts[len(parts)-3] == "button"
}

// matchButtonTopic extracts the hostname from a recognised unlock button
// command topic (homeassistant/button/esp_rfid_<hostname>_unlock/cmd).
func matchButtonTopic(topic string) (string, bool) {
	if !isButtonTopic(topic) {
		return "", false
	}
	parts := strings.Split(topic, "/")
	entityID := parts[len(parts)-2]
	m := buttonIDPattern.FindStringSubmatch(entityID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
