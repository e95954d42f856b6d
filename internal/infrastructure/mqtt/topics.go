package mqtt

import "fmt"

// TopicManagerStatus is the retained status topic for the manager itself.
// Carries online/offline payloads including the LWT crash status.
const TopicManagerStatus = "esprfid-core/status"

// Topics provides builders for the esp-rfid device topic tree.
//
// Devices publish under a configurable base topic (firmware default
// "/esprfid"). Multi-device installations use a per-hostname level:
//
//	<base>/<hostname>/send   device → manager telemetry
//	<base>/<hostname>/cmd    manager → device commands
//	<base>/<hostname>/tag    device → manager card scans
//
// Single-device installations omit the hostname level:
//
//	<base>/send, <base>/cmd, <base>/tag
//
// Construct with the configured base topic:
//
//	topics := mqtt.Topics{Base: cfg.Manager.BaseTopic}
//	cmdTopic := topics.DeviceCommand("frontdoor")
//	// Returns: "/esprfid/frontdoor/cmd"
type Topics struct {
	// Base is the root of the device topic tree, e.g. "/esprfid".
	Base string
}

// =============================================================================
// Publish Topics
// =============================================================================

// DeviceCommand returns the per-device command topic.
//
// Example: /esprfid/frontdoor/cmd
func (t Topics) DeviceCommand(hostname string) string {
	return fmt.Sprintf("%s/%s/cmd", t.Base, hostname)
}

// SharedCommand returns the bus-wide command topic used by single-device
// installations and as the degraded fallback when no hostname is known.
//
// Example: /esprfid/cmd
func (t Topics) SharedCommand() string {
	return fmt.Sprintf("%s/cmd", t.Base)
}

// DeviceSend returns the per-device telemetry topic.
//
// Example: /esprfid/frontdoor/send
func (t Topics) DeviceSend(hostname string) string {
	return fmt.Sprintf("%s/%s/send", t.Base, hostname)
}

// DeviceTag returns the per-device tag-scan topic.
//
// Example: /esprfid/frontdoor/tag
func (t Topics) DeviceTag(hostname string) string {
	return fmt.Sprintf("%s/%s/tag", t.Base, hostname)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDeviceSend returns a pattern matching telemetry from all devices.
//
// Pattern: <base>/+/send
func (t Topics) AllDeviceSend() string {
	return fmt.Sprintf("%s/+/send", t.Base)
}

// SharedSend returns the single-device telemetry topic.
//
// Pattern: <base>/send
func (t Topics) SharedSend() string {
	return fmt.Sprintf("%s/send", t.Base)
}

// AllDeviceCommands returns a pattern matching command traffic for all devices.
// The manager listens here to observe command responses (userfile, log dumps)
// that devices publish back on their command topics.
//
// Pattern: <base>/+/cmd
func (t Topics) AllDeviceCommands() string {
	return fmt.Sprintf("%s/+/cmd", t.Base)
}

// AllDeviceTags returns a pattern matching card scans from all devices.
//
// Pattern: <base>/+/tag
func (t Topics) AllDeviceTags() string {
	return fmt.Sprintf("%s/+/tag", t.Base)
}

// SharedTag returns the single-device tag-scan topic.
//
// Pattern: <base>/tag
func (t Topics) SharedTag() string {
	return fmt.Sprintf("%s/tag", t.Base)
}

// SubscriptionPatterns returns all device-tree patterns the manager
// subscribes to. Order matches the inbound interface specification:
// per-device and shared variants of send, cmd and tag.
func (t Topics) SubscriptionPatterns() []string {
	return []string{
		t.AllDeviceSend(),
		t.SharedSend(),
		t.AllDeviceCommands(),
		t.SharedCommand(),
		t.AllDeviceTags(),
		t.SharedTag(),
	}
}

// =============================================================================
// Automation Hub Topics (Home Assistant MQTT discovery)
// =============================================================================

// HubTopics provides builders for the automation hub's discovery topic tree.
//
// Each device exposes a set of facets (door_status, last_access, online,
// unknown_card, access_history, unlock) as hub entities. Entity IDs follow
// a fixed pattern so the unlock button commands can be attributed back to
// their hostname:
//
//	esp_rfid_<hostname>_<facet>
//
// Topics follow the hub's discovery layout:
//
//	<prefix>/<component>/<entity>/config      self-describing sensor schema
//	<prefix>/<component>/<entity>/state       current value
//	<prefix>/<component>/<entity>/attributes  JSON attribute document
//	<prefix>/button/<entity>/cmd              inbound button press
type HubTopics struct {
	// Prefix is the hub's discovery root, normally "homeassistant".
	Prefix string
}

// EntityID returns the hub entity identifier for a device facet.
//
// Example: esp_rfid_frontdoor_unlock
func (h HubTopics) EntityID(hostname, facet string) string {
	return fmt.Sprintf("esp_rfid_%s_%s", hostname, facet)
}

// Config returns the discovery config topic for a facet.
//
// Example: homeassistant/sensor/esp_rfid_frontdoor_last_access/config
func (h HubTopics) Config(component, hostname, facet string) string {
	return fmt.Sprintf("%s/%s/%s/config", h.Prefix, component, h.EntityID(hostname, facet))
}

// State returns the state topic for a facet.
//
// Example: homeassistant/sensor/esp_rfid_frontdoor_last_access/state
func (h HubTopics) State(component, hostname, facet string) string {
	return fmt.Sprintf("%s/%s/%s/state", h.Prefix, component, h.EntityID(hostname, facet))
}

// Attributes returns the attributes topic for a facet.
//
// Example: homeassistant/sensor/esp_rfid_frontdoor_last_access/attributes
func (h HubTopics) Attributes(component, hostname, facet string) string {
	return fmt.Sprintf("%s/%s/%s/attributes", h.Prefix, component, h.EntityID(hostname, facet))
}

// ButtonCommand returns the inbound command topic for a device's unlock
// button. The router subscribes to the wildcard form of this topic.
//
// Example: homeassistant/button/esp_rfid_frontdoor_unlock/cmd
func (h HubTopics) ButtonCommand(hostname string) string {
	return fmt.Sprintf("%s/button/%s/cmd", h.Prefix, h.EntityID(hostname, "unlock"))
}
