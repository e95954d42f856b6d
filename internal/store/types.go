package store

import "time"

// DeviceStatus is the liveness state of an ESP-RFID device.
type DeviceStatus string

const (
	// StatusOnline means a message was received within the liveness window.
	StatusOnline DeviceStatus = "online"

	// StatusOffline means no message has been received within the liveness
	// window, or the device has never been seen.
	StatusOffline DeviceStatus = "offline"
)

// RegistrationStatus is the lifecycle state of a card registration.
type RegistrationStatus string

const (
	// RegistrationPending means the card was scanned during detection and
	// awaits user assignment.
	RegistrationPending RegistrationStatus = "pending"

	// RegistrationCompleted means the card has been assigned to a user.
	RegistrationCompleted RegistrationStatus = "completed"

	// RegistrationCancelled means the registration was discarded.
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Device represents an ESP-RFID door controller known to the manager.
// This matches the database schema in migrations/20260301_000000_initial_schema.up.sql.
type Device struct {
	ID        int64        `json:"id"`
	Hostname  string       `json:"hostname"`
	IPAddress string       `json:"ip_address"`
	LastSeen  time.Time    `json:"last_seen"`
	Status    DeviceStatus `json:"status"`

	// DoorNames lists the doors this controller drives. Most devices have
	// exactly one; multi-relay boards report several.
	DoorNames []string `json:"door_names"`

	CreatedAt time.Time `json:"created_at"`
}

// User represents a card holder provisioned on a specific device.
// The (UID, DeviceHostname) pair is unique: the same card provisioned on
// two doors is two rows.
type User struct {
	ID             int64  `json:"id"`
	UID            string `json:"uid"`
	Username       string `json:"username"`
	DeviceHostname string `json:"device_hostname"`

	// AccType mirrors the ESP-RFID firmware access type field:
	// 1 = always allowed, 0 = disabled, 99 = admin.
	AccType int `json:"acctype"`

	// ValidSince and ValidUntil are Unix timestamps bounding the card's
	// validity window. Zero means unbounded.
	ValidSince int64 `json:"valid_since"`
	ValidUntil int64 `json:"valid_until"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccessLog is one access attempt reported by a device. Rows are append-only.
type AccessLog struct {
	ID             int64     `json:"id"`
	DeviceHostname string    `json:"device_hostname"`
	UID            string    `json:"uid,omitempty"`
	Username       string    `json:"username,omitempty"`
	AccessType     string    `json:"access_type,omitempty"`
	IsKnown        bool      `json:"is_known"`
	DoorName       string    `json:"door_name,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// RawData preserves the original device payload for auditing.
	RawData string `json:"raw_data,omitempty"`
}

// Event is a device lifecycle or diagnostic event (boot, going offline,
// firmware INFO/WARN/ERRO messages).
type Event struct {
	ID             int64     `json:"id"`
	DeviceHostname string    `json:"device_hostname"`
	EventType      string    `json:"event_type"`
	Source         string    `json:"source,omitempty"`
	Description    string    `json:"description,omitempty"`
	Data           string    `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CardRegistration is a card captured during a detection session, waiting
// to be assigned to a user.
type CardRegistration struct {
	ID             int64              `json:"id"`
	UID            string             `json:"uid"`
	DeviceHostname string             `json:"device_hostname"`
	RegisteredAt   time.Time          `json:"registered_at"`
	Status         RegistrationStatus `json:"status"`
}

// TouchResult reports what a device upsert observed and changed, read from
// the same transaction that performed the write.
type TouchResult struct {
	// FirstSeen is true when the device row was created by this touch.
	FirstSeen bool

	// WasOffline is true when the device existed and was offline before
	// this touch flipped it online. Always true when FirstSeen is true.
	WasOffline bool
}
