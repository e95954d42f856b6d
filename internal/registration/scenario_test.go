package registration

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// TestEnrollmentScenario walks the add-card story end to end through the
// real router and workflow: a device boots, an unregistered fob is scanned
// while detection is active, and the operator completes the registration.
func TestEnrollmentScenario(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
		CREATE TABLE devices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hostname TEXT NOT NULL UNIQUE,
			ip_address TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'offline',
			door_names TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL
		) STRICT;

		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			username TEXT NOT NULL,
			device_hostname TEXT NOT NULL,
			acctype INTEGER NOT NULL DEFAULT 1,
			valid_since INTEGER NOT NULL DEFAULT 0,
			valid_until INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (uid, device_hostname)
		) STRICT;

		CREATE TABLE access_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_hostname TEXT NOT NULL,
			uid TEXT,
			username TEXT,
			access_type TEXT,
			is_known INTEGER NOT NULL DEFAULT 0,
			door_name TEXT,
			timestamp TEXT NOT NULL,
			raw_data TEXT
		) STRICT;

		CREATE TABLE events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_hostname TEXT NOT NULL,
			event_type TEXT NOT NULL,
			source TEXT,
			description TEXT,
			data TEXT,
			timestamp TEXT NOT NULL
		) STRICT;

		CREATE TABLE card_registrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uid TEXT NOT NULL,
			device_hostname TEXT NOT NULL,
			registered_at TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending'
		) STRICT;
		CREATE UNIQUE INDEX idx_card_registrations_pending
			ON card_registrations(uid, device_hostname)
			WHERE status = 'pending';
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	registry := device.NewRegistry(store.NewSQLiteDeviceRepository(db))
	users := store.NewSQLiteUserRepository(db)
	logs := store.NewSQLiteLogRepository(db)
	regs := store.NewSQLiteRegistrationRepository(db)

	pub := &recordingPublisher{}
	topics := mqtt.Topics{Base: "/esprfid"}
	dispatcher := rfid.NewDispatcher(pub, registry, topics, 1, false)

	detector := NewDetector(5 * time.Minute)
	service := NewService(detector, regs, dispatcher, nil)

	router := rfid.NewRouter(rfid.RouterConfig{
		Classifier: rfid.NewClassifier("/esprfid"),
		Registry:   registry,
		Users:      users,
		Logs:       logs,
		Dispatcher: dispatcher,
		Unknown:    service,
		Topics:     topics,
		QoS:        1,
	})

	// The controller boots and announces itself.
	boot := `{"type":"boot","hostname":"frontdoor","ip":"192.168.1.50"}`
	if err := router.HandleMessage("/esprfid/frontdoor/send", []byte(boot)); err != nil {
		t.Fatalf("boot HandleMessage() error = %v", err)
	}
	dev, err := registry.Get(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("device missing after boot: %v", err)
	}
	if dev.Status != store.StatusOnline {
		t.Errorf("Status = %q after boot, want online", dev.Status)
	}

	// Operator opens the add-card dialog, then presents the new fob.
	session := detector.Start()

	scan := `{"hostname":"frontdoor","uid":"AB12","username":"Unknown","access":"Denied"}`
	if err := router.HandleMessage("/esprfid/frontdoor/tag", []byte(scan)); err != nil {
		t.Fatalf("tag HandleMessage() error = %v", err)
	}

	// The denied attempt is in the audit trail.
	entries, err := logs.ListAccessLogsByDevice(ctx, "frontdoor", 10)
	if err != nil {
		t.Fatalf("ListAccessLogs() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d access logs, want 1", len(entries))
	}
	if entries[0].IsKnown {
		t.Error("unregistered fob must be logged as unknown")
	}
	if entries[0].UID != "AB12" {
		t.Errorf("UID = %q, want AB12", entries[0].UID)
	}

	// And the fob is waiting as a pending registration.
	pending, err := service.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending registrations, want 1", len(pending))
	}
	if pending[0].UID != "AB12" || pending[0].DeviceHostname != "frontdoor" {
		t.Errorf("pending = %+v, want AB12 on frontdoor", pending[0])
	}

	// Operator assigns the fob to alice.
	if err := service.Complete(ctx, pending[0].ID, "alice", 1, 0, 0); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	detector.Stop(session)

	pub.mu.Lock()
	provisioned := len(pub.topics) == 1 && pub.topics[0] == "/esprfid/frontdoor/cmd"
	pub.mu.Unlock()
	if !provisioned {
		t.Errorf("adduser published to %v, want [/esprfid/frontdoor/cmd]", pub.topics)
	}

	user, err := users.Get(ctx, "AB12", "frontdoor")
	if err != nil {
		t.Fatalf("users.Get() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want alice", user.Username)
	}

	// The next scan of the same fob is a known card: logged, but no new
	// registration even though the firmware still reports it as Unknown
	// until its local user file catches up.
	if err := router.HandleMessage("/esprfid/frontdoor/tag", []byte(scan)); err != nil {
		t.Fatalf("rescan HandleMessage() error = %v", err)
	}
	pending, err = service.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() error = %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("rescan of a provisioned fob created %d registrations, want 0", len(pending))
	}

	entries, err = logs.ListAccessLogsByDevice(ctx, "frontdoor", 10)
	if err != nil {
		t.Fatalf("ListAccessLogs() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d access logs after rescan, want 2", len(entries))
	}
	for _, e := range entries {
		if !strings.Contains(e.RawData, "AB12") {
			t.Errorf("raw payload not preserved in audit log: %q", e.RawData)
		}
	}
}
