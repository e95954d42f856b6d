package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/config"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/logging"
	"github.com/nerrad567/esp-rfid-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/esp-rfid-core/internal/registration"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// stubPublisher records command publishes and optionally refuses them.
type stubPublisher struct {
	mu     sync.Mutex
	topics []string
	fail   bool
}

func (p *stubPublisher) Publish(topic string, _ []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.topics = append(p.topics, topic)
	return nil
}

func (p *stubPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topics)
}

type serverEnv struct {
	srv      *Server
	router   http.Handler
	registry *device.Registry
	users    store.UserRepository
	logs     store.LogRepository
	service  *registration.Service
	pub      *stubPublisher
}

// testServer creates a Server with real repositories backed by in-memory
// SQLite and a stubbed command bus.
func testServer(t *testing.T) *serverEnv {
	t.Helper()

	db := setupTestDB(t)
	registry := device.NewRegistry(store.NewSQLiteDeviceRepository(db))
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	users := store.NewSQLiteUserRepository(db)
	logs := store.NewSQLiteLogRepository(db)

	pub := &stubPublisher{}
	dispatcher := rfid.NewDispatcher(pub, registry, mqtt.Topics{Base: "/esprfid"}, 1, false)
	service := registration.NewService(
		registration.NewDetector(5*time.Minute),
		store.NewSQLiteRegistrationRepository(db),
		dispatcher,
		nil,
	)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:        log,
		Registry:      registry,
		Users:         users,
		Logs:          logs,
		Registration:  service,
		Dispatcher:    dispatcher,
		DeleteQuiesce: 0,
		Version:       "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(context.Background())

	return &serverEnv{
		srv:      srv,
		router:   srv.buildRouter(),
		registry: registry,
		users:    users,
		logs:     logs,
		service:  service,
		pub:      pub,
	}
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
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
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// doRequest runs a request through the router and decodes the JSON body.
func doRequest(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response body is not JSON: %v\n%s", err, w.Body.String())
		}
	}
	return w, resp
}

// touchDevice registers a device as online at the given time.
func touchDevice(t *testing.T, env *serverEnv, hostname, ip string, seen time.Time) {
	t.Helper()
	if _, err := env.registry.Touch(context.Background(), hostname, ip, seen); err != nil {
		t.Fatalf("Touch(%s) error = %v", hostname, err)
	}
}

func TestHealth(t *testing.T) {
	env := testServer(t)

	w, resp := doRequest(t, env.router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health body = %v", resp)
	}
}

func TestListDevices(t *testing.T) {
	env := testServer(t)
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())
	touchDevice(t, env, "backdoor", "192.168.1.51", time.Now())

	w, resp := doRequest(t, env.router, http.MethodGet, "/api/devices/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	env := testServer(t)

	w, resp := doRequest(t, env.router, http.MethodGet, "/api/devices/ghost/", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if resp["code"] != ErrCodeNotFound {
		t.Errorf("code = %v", resp["code"])
	}
}

func TestDeleteDevice(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())

	// Online device is protected.
	w, _ := doRequest(t, env.router, http.MethodDelete, "/api/devices/frontdoor/", "")
	if w.Code != http.StatusConflict {
		t.Errorf("delete online status = %d, want %d", w.Code, http.StatusConflict)
	}

	if _, err := env.registry.MarkOffline(ctx, []string{"frontdoor"}, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	w, _ = doRequest(t, env.router, http.MethodDelete, "/api/devices/frontdoor/", "")
	if w.Code != http.StatusOK {
		t.Errorf("delete offline status = %d, want %d", w.Code, http.StatusOK)
	}

	w, _ = doRequest(t, env.router, http.MethodGet, "/api/devices/frontdoor/", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCreateUser(t *testing.T) {
	env := testServer(t)
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())

	body := `{"uid":"AB12","username":"alice","hostname":"frontdoor","acctype":1}`
	w, _ := doRequest(t, env.router, http.MethodPost, "/api/users/", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	// Command reached the device's own topic.
	if env.pub.count() != 1 || env.pub.topics[0] != "/esprfid/frontdoor/cmd" {
		t.Errorf("published to %v, want [/esprfid/frontdoor/cmd]", env.pub.topics)
	}

	user, err := env.users.Get(context.Background(), "AB12", "frontdoor")
	if err != nil {
		t.Fatalf("users.Get() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want alice", user.Username)
	}
}

func TestCreateUser_PublishFailure(t *testing.T) {
	env := testServer(t)
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())
	env.pub.fail = true

	body := `{"uid":"AB12","username":"alice","hostname":"frontdoor"}`
	w, _ := doRequest(t, env.router, http.MethodPost, "/api/users/", body)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	// No record without a delivered command.
	if _, err := env.users.Get(context.Background(), "AB12", "frontdoor"); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("user should not be recorded, got err = %v", err)
	}
}

func TestCreateUser_UnknownDevice(t *testing.T) {
	env := testServer(t)

	body := `{"uid":"AB12","username":"alice","hostname":"ghost"}`
	w, _ := doRequest(t, env.router, http.MethodPost, "/api/users/", body)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestDeleteUser(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())
	if err := env.users.Upsert(ctx, &store.User{
		UID: "AB12", Username: "alice", DeviceHostname: "frontdoor", AccType: 1,
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Hostname is required to pick the device binding.
	w, _ := doRequest(t, env.router, http.MethodDelete, "/api/users/AB12", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status without hostname = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w, _ = doRequest(t, env.router, http.MethodDelete, "/api/users/AB12?hostname=frontdoor", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	if _, err := env.users.Get(ctx, "AB12", "frontdoor"); !errors.Is(err, store.ErrUserNotFound) {
		t.Errorf("user should be deleted, got err = %v", err)
	}
	if env.pub.count() != 1 {
		t.Errorf("deletuid publishes = %d, want 1", env.pub.count())
	}
}

func TestListAccessLogs(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()

	for _, hostname := range []string{"frontdoor", "backdoor"} {
		if err := env.logs.InsertAccessLog(ctx, &store.AccessLog{
			DeviceHostname: hostname, UID: "AB12", Username: "alice",
			AccessType: "Always", IsKnown: true,
		}); err != nil {
			t.Fatalf("InsertAccessLog() error = %v", err)
		}
	}

	w, resp := doRequest(t, env.router, http.MethodGet, "/api/access-logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp["count"] != float64(2) {
		t.Errorf("count = %v, want 2", resp["count"])
	}

	w, resp = doRequest(t, env.router, http.MethodGet, "/api/access-logs?hostname=frontdoor", "")
	if w.Code != http.StatusOK {
		t.Fatalf("filtered status = %d, want %d", w.Code, http.StatusOK)
	}
	if resp["count"] != float64(1) {
		t.Errorf("filtered count = %v, want 1", resp["count"])
	}
}

func TestOpenDoor(t *testing.T) {
	env := testServer(t)
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())

	w, _ := doRequest(t, env.router, http.MethodPost, "/api/doors/open", `{"hostname":"frontdoor"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if env.pub.count() != 1 || env.pub.topics[0] != "/esprfid/frontdoor/cmd" {
		t.Errorf("published to %v, want [/esprfid/frontdoor/cmd]", env.pub.topics)
	}

	// Reverse lookup by IP also resolves.
	w, _ = doRequest(t, env.router, http.MethodPost, "/api/doors/open", `{"ip":"192.168.1.50"}`)
	if w.Code != http.StatusOK {
		t.Errorf("open by ip status = %d, want %d", w.Code, http.StatusOK)
	}

	w, _ = doRequest(t, env.router, http.MethodPost, "/api/doors/open", `{"hostname":"ghost"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown target status = %d, want %d", w.Code, http.StatusNotFound)
	}

	w, _ = doRequest(t, env.router, http.MethodPost, "/api/doors/open", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing target status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDetectionAndRegistrationFlow(t *testing.T) {
	env := testServer(t)
	ctx := context.Background()
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())

	// Open a detection session over the API.
	w, resp := doRequest(t, env.router, http.MethodPost, "/api/detection/start", "")
	if w.Code != http.StatusOK {
		t.Fatalf("detection start status = %d", w.Code)
	}
	sessionID, _ := resp["session_id"].(string)
	if sessionID == "" {
		t.Fatal("detection start returned no session_id")
	}

	w, resp = doRequest(t, env.router, http.MethodGet, "/api/detection/", "")
	if w.Code != http.StatusOK || resp["active"] != true {
		t.Errorf("detection status = %d %v, want active", w.Code, resp)
	}

	// An unknown card arrives while detection is active.
	if err := env.service.HandleUnknownCard(ctx, "FF99", "frontdoor", time.Now()); err != nil {
		t.Fatalf("HandleUnknownCard() error = %v", err)
	}

	w, resp = doRequest(t, env.router, http.MethodGet, "/api/card-registrations/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list registrations status = %d", w.Code)
	}
	if resp["count"] != float64(1) {
		t.Fatalf("pending count = %v, want 1", resp["count"])
	}
	regs, _ := resp["registrations"].([]any)
	reg, _ := regs[0].(map[string]any)
	id := int64(reg["id"].(float64))

	// Complete it with an operator-assigned username.
	body := `{"username":"alice","acctype":1}`
	w, _ = doRequest(t, env.router, http.MethodPost, "/api/card-registrations/"+strconv.FormatInt(id, 10)+"/complete", body)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d", w.Code)
	}

	user, err := env.users.Get(ctx, "FF99", "frontdoor")
	if err != nil {
		t.Fatalf("users.Get() error = %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want alice", user.Username)
	}

	// A second complete reports the conflict.
	w, _ = doRequest(t, env.router, http.MethodPost, "/api/card-registrations/"+strconv.FormatInt(id, 10)+"/complete", body)
	if w.Code != http.StatusConflict {
		t.Errorf("second complete status = %d, want %d", w.Code, http.StatusConflict)
	}

	// Close the session.
	w, _ = doRequest(t, env.router, http.MethodPost, "/api/detection/stop", `{"session_id":"`+sessionID+`"}`)
	if w.Code != http.StatusOK {
		t.Errorf("detection stop status = %d", w.Code)
	}
	w, resp = doRequest(t, env.router, http.MethodGet, "/api/detection/", "")
	if w.Code != http.StatusOK || resp["active"] != false {
		t.Errorf("detection should be inactive after stop, got %v", resp)
	}
}

func TestSyncUsers(t *testing.T) {
	env := testServer(t)
	touchDevice(t, env, "frontdoor", "192.168.1.50", time.Now())

	w, _ := doRequest(t, env.router, http.MethodPost, "/api/devices/frontdoor/sync-users", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if env.pub.count() != 1 {
		t.Errorf("getuserlist publishes = %d, want 1", env.pub.count())
	}
}
