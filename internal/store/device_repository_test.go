package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTouch_NewDevice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	result, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", now)
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if !result.FirstSeen {
		t.Error("FirstSeen should be true for a new device")
	}
	if !result.WasOffline {
		t.Error("WasOffline should be true for a new device")
	}

	device, err := repo.GetByHostname(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if device.Status != StatusOnline {
		t.Errorf("Status = %q, want %q", device.Status, StatusOnline)
	}
	if device.IPAddress != "192.168.1.50" {
		t.Errorf("IPAddress = %q, want %q", device.IPAddress, "192.168.1.50")
	}
	if !device.LastSeen.Equal(now) {
		t.Errorf("LastSeen = %v, want %v", device.LastSeen, now)
	}
}

func TestTouch_ExistingOnlineDevice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
		t.Fatalf("first Touch() error = %v", err)
	}

	result, err := repo.Touch(ctx, "frontdoor", "192.168.1.51", base.Add(10*time.Second))
	if err != nil {
		t.Fatalf("second Touch() error = %v", err)
	}
	if result.FirstSeen {
		t.Error("FirstSeen should be false for a known device")
	}
	if result.WasOffline {
		t.Error("WasOffline should be false for an already-online device")
	}

	device, err := repo.GetByHostname(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if device.IPAddress != "192.168.1.51" {
		t.Errorf("IPAddress = %q, want updated %q", device.IPAddress, "192.168.1.51")
	}
}

func TestTouch_OfflineDeviceComesBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := repo.MarkOffline(ctx, []string{"frontdoor"}, base.Add(time.Minute)); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}

	result, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if result.FirstSeen {
		t.Error("FirstSeen should be false for a known device")
	}
	if !result.WasOffline {
		t.Error("WasOffline should be true when the device was offline")
	}

	device, err := repo.GetByHostname(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if device.Status != StatusOnline {
		t.Errorf("Status = %q, want %q after touch", device.Status, StatusOnline)
	}
}

func TestGetByHostname_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)

	_, err := repo.GetByHostname(context.Background(), "ghost")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByHostname() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestGetByIP(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := repo.Touch(ctx, "backdoor", "192.168.1.51", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	device, err := repo.GetByIP(ctx, "192.168.1.51")
	if err != nil {
		t.Fatalf("GetByIP() error = %v", err)
	}
	if device.Hostname != "backdoor" {
		t.Errorf("Hostname = %q, want %q", device.Hostname, "backdoor")
	}

	if _, err := repo.GetByIP(ctx, "10.0.0.1"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByIP() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestGetByIP_MostRecentWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	// DHCP churn: two hostnames have reported the same address. The more
	// recently seen device owns it.
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "olddoor", "192.168.1.50", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := repo.Touch(ctx, "newdoor", "192.168.1.50", base.Add(time.Hour)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	device, err := repo.GetByIP(ctx, "192.168.1.50")
	if err != nil {
		t.Fatalf("GetByIP() error = %v", err)
	}
	if device.Hostname != "newdoor" {
		t.Errorf("Hostname = %q, want %q", device.Hostname, "newdoor")
	}
}

func TestListOnlineOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "stale", "192.168.1.50", base.Add(-2*time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := repo.Touch(ctx, "fresh", "192.168.1.51", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := repo.Touch(ctx, "boundary", "192.168.1.52", base.Add(-90*time.Second)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	// Cutoff exactly at the boundary device's last_seen: strictly-before
	// means the boundary device is NOT stale.
	cutoff := base.Add(-90 * time.Second)
	stale, err := repo.ListOnlineOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListOnlineOlderThan() error = %v", err)
	}
	if len(stale) != 1 || stale[0] != "stale" {
		t.Errorf("ListOnlineOlderThan() = %v, want [stale]", stale)
	}

	// One second past the boundary and the boundary device qualifies.
	stale, err = repo.ListOnlineOlderThan(ctx, cutoff.Add(time.Second))
	if err != nil {
		t.Fatalf("ListOnlineOlderThan() error = %v", err)
	}
	if len(stale) != 2 {
		t.Errorf("ListOnlineOlderThan() = %v, want [boundary stale]", stale)
	}
}

func TestListOnlineOlderThan_IgnoresOffline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "gone", "192.168.1.50", base.Add(-time.Hour)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := repo.MarkOffline(ctx, []string{"gone"}, base); err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}

	stale, err := repo.ListOnlineOlderThan(ctx, base)
	if err != nil {
		t.Fatalf("ListOnlineOlderThan() error = %v", err)
	}
	if len(stale) != 0 {
		t.Errorf("already-offline devices should not be returned, got %v", stale)
	}
}

func TestMarkOffline(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, h := range []string{"a", "b", "c"} {
		if _, err := repo.Touch(ctx, h, "192.168.1.50", base); err != nil {
			t.Fatalf("Touch(%q) error = %v", h, err)
		}
	}

	demoted, err := repo.MarkOffline(ctx, []string{"a", "c", "missing"}, base.Add(time.Minute))
	if err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	if len(demoted) != 2 || demoted[0] != "a" || demoted[1] != "c" {
		t.Errorf("MarkOffline() = %v, want [a c]", demoted)
	}

	devices, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := map[string]DeviceStatus{"a": StatusOffline, "b": StatusOnline, "c": StatusOffline}
	for _, d := range devices {
		if d.Status != want[d.Hostname] {
			t.Errorf("device %q status = %q, want %q", d.Hostname, d.Status, want[d.Hostname])
		}
	}
}

func TestMarkOffline_EmptyList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)

	demoted, err := repo.MarkOffline(context.Background(), nil, time.Now())
	if err != nil {
		t.Errorf("MarkOffline(nil) error = %v, want nil", err)
	}
	if len(demoted) != 0 {
		t.Errorf("MarkOffline(nil) = %v, want none", demoted)
	}
}

func TestMarkOffline_SkipsFreshlyTouchedDevice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := base.Add(-90 * time.Second)
	if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(-2*time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	stale, err := repo.ListOnlineOlderThan(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListOnlineOlderThan() error = %v", err)
	}
	if len(stale) != 1 || stale[0] != "frontdoor" {
		t.Fatalf("ListOnlineOlderThan() = %v, want [frontdoor]", stale)
	}

	// A message arrives between the stale listing and the demotion.
	if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	demoted, err := repo.MarkOffline(ctx, stale, cutoff)
	if err != nil {
		t.Fatalf("MarkOffline() error = %v", err)
	}
	if len(demoted) != 0 {
		t.Errorf("MarkOffline() = %v, want none for a freshly touched device", demoted)
	}

	device, err := repo.GetByHostname(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if device.Status != StatusOnline {
		t.Errorf("Status = %q, want %q preserved", device.Status, StatusOnline)
	}
	if !device.LastSeen.Equal(base) {
		t.Errorf("LastSeen = %v, want the later message's %v", device.LastSeen, base)
	}
}

func TestUpdateDoorNames(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSQLiteDeviceRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	if err := repo.UpdateDoorNames(ctx, "frontdoor", []string{"Front Door", "Side Gate"}); err != nil {
		t.Fatalf("UpdateDoorNames() error = %v", err)
	}

	device, err := repo.GetByHostname(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if len(device.DoorNames) != 2 || device.DoorNames[0] != "Front Door" {
		t.Errorf("DoorNames = %v, want [Front Door, Side Gate]", device.DoorNames)
	}

	if err := repo.UpdateDoorNames(ctx, "ghost", []string{"x"}); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("UpdateDoorNames() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestDelete_CascadesToUsers(t *testing.T) {
	db := setupTestDB(t)
	devices := NewSQLiteDeviceRepository(db)
	users := NewSQLiteUserRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if _, err := devices.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if err := users.Upsert(ctx, &User{UID: "aabbccdd", Username: "alice", DeviceHostname: "frontdoor", AccType: 1}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := devices.Delete(ctx, "frontdoor"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := users.Get(ctx, "aabbccdd", "frontdoor"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("user should be cascade-deleted with device, got err = %v", err)
	}

	if err := devices.Delete(ctx, "frontdoor"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("second Delete() error = %v, want ErrDeviceNotFound", err)
	}
}
