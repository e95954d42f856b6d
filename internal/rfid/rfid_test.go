package rfid

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// testEnv bundles the collaborators router and dispatcher tests need.
type testEnv struct {
	db       *sql.DB
	registry *device.Registry
	users    store.UserRepository
	logs     store.LogRepository
}

// setupEnv creates an in-memory database with the full schema and a warm
// registry over it.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

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
			UNIQUE (uid, device_hostname),
			FOREIGN KEY (device_hostname) REFERENCES devices(hostname) ON DELETE CASCADE
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
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &testEnv{
		db:       db,
		registry: device.NewRegistry(store.NewSQLiteDeviceRepository(db)),
		users:    store.NewSQLiteUserRepository(db),
		logs:     store.NewSQLiteLogRepository(db),
	}
}

// fakePublisher records published messages.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	fail      bool
}

type publishedMessage struct {
	topic   string
	payload []byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errPublishRefused
	}
	f.published = append(f.published, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) last(t *testing.T) publishedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("no message was published")
	}
	return f.published[len(f.published)-1]
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

var errPublishRefused = &publishError{}

type publishError struct{}

func (*publishError) Error() string { return "publish refused" }

// fakeNotifier records notifications.
type fakeNotifier struct {
	mu       sync.Mutex
	statuses []statusNotification
	access   []*Message
	raw      int
}

type statusNotification struct {
	hostname  string
	status    store.DeviceStatus
	firstSeen bool
}

func (f *fakeNotifier) NotifyDeviceStatus(_ context.Context, hostname string, status store.DeviceStatus, firstSeen bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, statusNotification{hostname, status, firstSeen})
}

func (f *fakeNotifier) NotifyAccess(_ context.Context, msg *Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.access = append(f.access, msg)
}

func (f *fakeNotifier) NotifyRaw(_ context.Context, _ string, _ []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raw++
}

// fakeUnknownHandler records unknown-card sightings.
type fakeUnknownHandler struct {
	mu    sync.Mutex
	cards []string
}

func (f *fakeUnknownHandler) HandleUnknownCard(_ context.Context, uid, hostname string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, uid+"@"+hostname)
	return nil
}
