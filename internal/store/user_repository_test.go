package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

// seedDevice inserts a device row so user foreign keys resolve.
func seedDevice(t *testing.T, repo *SQLiteDeviceRepository, hostname string) {
	t.Helper()
	_, err := repo.Touch(context.Background(), hostname, "192.168.1.50",
		time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("seeding device %q: %v", hostname, err)
	}
}

func TestUserUpsert_InsertAndReplace(t *testing.T) {
	db := setupTestDB(t)
	devices := NewSQLiteDeviceRepository(db)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()
	seedDevice(t, devices, "frontdoor")

	user := &User{
		UID:            "aabbccdd",
		Username:       "alice",
		DeviceHostname: "frontdoor",
		AccType:        1,
		ValidUntil:     1893456000,
	}
	if err := repo.Upsert(ctx, user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	firstCreated := user.CreatedAt

	// Same (uid, hostname) with new details replaces, not duplicates.
	updated := &User{
		UID:            "aabbccdd",
		Username:       "alice-renamed",
		DeviceHostname: "frontdoor",
		AccType:        99,
	}
	if err := repo.Upsert(ctx, updated); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	got, err := repo.Get(ctx, "aabbccdd", "frontdoor")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Username != "alice-renamed" {
		t.Errorf("Username = %q, want %q", got.Username, "alice-renamed")
	}
	if got.AccType != 99 {
		t.Errorf("AccType = %d, want 99", got.AccType)
	}
	if !got.CreatedAt.Equal(firstCreated.Truncate(time.Second)) {
		t.Errorf("CreatedAt = %v, want original %v preserved", got.CreatedAt, firstCreated)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List() returned %d users, want 1", len(all))
	}
}

func TestUserUpsert_SameCardDifferentDevices(t *testing.T) {
	db := setupTestDB(t)
	devices := NewSQLiteDeviceRepository(db)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()
	seedDevice(t, devices, "frontdoor")
	seedDevice(t, devices, "backdoor")

	for _, hostname := range []string{"frontdoor", "backdoor"} {
		err := repo.Upsert(ctx, &User{UID: "aabbccdd", Username: "alice", DeviceHostname: hostname, AccType: 1})
		if err != nil {
			t.Fatalf("Upsert(%q) error = %v", hostname, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("same card on two devices should be two rows, got %d", len(all))
	}
}

func TestUserGet_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteUserRepository(db)

	_, err := repo.Get(context.Background(), "aabbccdd", "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Get() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserListByDevice(t *testing.T) {
	db := setupTestDB(t)
	devices := NewSQLiteDeviceRepository(db)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()
	seedDevice(t, devices, "frontdoor")
	seedDevice(t, devices, "backdoor")

	seed := []User{
		{UID: "11111111", Username: "alice", DeviceHostname: "frontdoor", AccType: 1},
		{UID: "22222222", Username: "bob", DeviceHostname: "frontdoor", AccType: 1},
		{UID: "33333333", Username: "carol", DeviceHostname: "backdoor", AccType: 1},
	}
	for i := range seed {
		if err := repo.Upsert(ctx, &seed[i]); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	front, err := repo.ListByDevice(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("ListByDevice() error = %v", err)
	}
	if len(front) != 2 {
		t.Errorf("ListByDevice(frontdoor) returned %d users, want 2", len(front))
	}
	if front[0].Username != "alice" || front[1].Username != "bob" {
		t.Errorf("ListByDevice() order = [%s %s], want [alice bob]", front[0].Username, front[1].Username)
	}
}

func TestUserDelete(t *testing.T) {
	db := setupTestDB(t)
	devices := NewSQLiteDeviceRepository(db)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()
	seedDevice(t, devices, "frontdoor")

	if err := repo.Upsert(ctx, &User{UID: "aabbccdd", Username: "alice", DeviceHostname: "frontdoor", AccType: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := repo.Delete(ctx, "aabbccdd", "frontdoor"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.Delete(ctx, "aabbccdd", "frontdoor"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second Delete() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserDeleteByDevice(t *testing.T) {
	db := setupTestDB(t)
	devices := NewSQLiteDeviceRepository(db)
	repo := NewSQLiteUserRepository(db)
	ctx := context.Background()
	seedDevice(t, devices, "frontdoor")
	seedDevice(t, devices, "backdoor")

	seed := []User{
		{UID: "11111111", Username: "alice", DeviceHostname: "frontdoor", AccType: 1},
		{UID: "22222222", Username: "bob", DeviceHostname: "frontdoor", AccType: 1},
		{UID: "33333333", Username: "carol", DeviceHostname: "backdoor", AccType: 1},
	}
	for i := range seed {
		if err := repo.Upsert(ctx, &seed[i]); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	removed, err := repo.DeleteByDevice(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("DeleteByDevice() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("DeleteByDevice() removed %d, want 2", removed)
	}

	remaining, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].DeviceHostname != "backdoor" {
		t.Errorf("remaining users = %v, want only backdoor's", remaining)
	}
}
