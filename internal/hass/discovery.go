package hass

import "github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"

// deviceBlock groups a device's entities under one hub device entry.
type deviceBlock struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// entityConfig is the hub's self-describing discovery schema. Only the
// fields a facet needs are set; omitempty keeps the payloads minimal.
type entityConfig struct {
	Name                string      `json:"name"`
	UniqueID            string      `json:"unique_id"`
	StateTopic          string      `json:"state_topic,omitempty"`
	JSONAttributesTopic string      `json:"json_attributes_topic,omitempty"`
	CommandTopic        string      `json:"command_topic,omitempty"`
	DeviceClass         string      `json:"device_class,omitempty"`
	PayloadOn           string      `json:"payload_on,omitempty"`
	PayloadOff          string      `json:"payload_off,omitempty"`
	PayloadPress        string      `json:"payload_press,omitempty"`
	Icon                string      `json:"icon,omitempty"`
	Device              deviceBlock `json:"device"`
}

// facet describes one hub entity exposed per device.
type facet struct {
	// name is the facet suffix in the entity ID, e.g. "last_access".
	name string

	// component is the hub component the entity registers under:
	// sensor, binary_sensor or button.
	component string

	build func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig
}

// facets is the full entity set announced for every device.
var facets = []facet{
	{
		name:      "door_status",
		component: "sensor",
		build: func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig {
			return entityConfig{
				Name:       hostname + " Door Status",
				UniqueID:   t.EntityID(hostname, "door_status"),
				StateTopic: t.State("sensor", hostname, "door_status"),
				Icon:       "mdi:door",
				Device:     dev,
			}
		},
	},
	{
		name:      "last_access",
		component: "sensor",
		build: func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig {
			return entityConfig{
				Name:                hostname + " Last Access",
				UniqueID:            t.EntityID(hostname, "last_access"),
				StateTopic:          t.State("sensor", hostname, "last_access"),
				JSONAttributesTopic: t.Attributes("sensor", hostname, "last_access"),
				Icon:                "mdi:account-key",
				Device:              dev,
			}
		},
	},
	{
		name:      "online",
		component: "binary_sensor",
		build: func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig {
			return entityConfig{
				Name:        hostname + " Online",
				UniqueID:    t.EntityID(hostname, "online"),
				StateTopic:  t.State("binary_sensor", hostname, "online"),
				DeviceClass: "connectivity",
				PayloadOn:   "ON",
				PayloadOff:  "OFF",
				Device:      dev,
			}
		},
	},
	{
		name:      "unknown_card",
		component: "sensor",
		build: func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig {
			return entityConfig{
				Name:                hostname + " Unknown Card",
				UniqueID:            t.EntityID(hostname, "unknown_card"),
				StateTopic:          t.State("sensor", hostname, "unknown_card"),
				JSONAttributesTopic: t.Attributes("sensor", hostname, "unknown_card"),
				Icon:                "mdi:card-bulleted-off",
				Device:              dev,
			}
		},
	},
	{
		name:      "access_history",
		component: "sensor",
		build: func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig {
			return entityConfig{
				Name:                hostname + " Access History",
				UniqueID:            t.EntityID(hostname, "access_history"),
				StateTopic:          t.State("sensor", hostname, "access_history"),
				JSONAttributesTopic: t.Attributes("sensor", hostname, "access_history"),
				Icon:                "mdi:history",
				Device:              dev,
			}
		},
	},
	{
		name:      "unlock",
		component: "button",
		build: func(t mqtt.HubTopics, hostname string, dev deviceBlock) entityConfig {
			return entityConfig{
				Name:         hostname + " Unlock",
				UniqueID:     t.EntityID(hostname, "unlock"),
				CommandTopic: t.ButtonCommand(hostname),
				PayloadPress: "unlock",
				Icon:         "mdi:lock-open-variant",
				Device:       dev,
			}
		},
	},
}

// newDeviceBlock builds the shared device entry for a hostname.
func newDeviceBlock(t mqtt.HubTopics, hostname string) deviceBlock {
	return deviceBlock{
		Identifiers:  []string{t.EntityID(hostname, "device")},
		Name:         "ESP-RFID " + hostname,
		Manufacturer: "esp-rfid",
		Model:        "ESP-RFID Door Controller",
	}
}
