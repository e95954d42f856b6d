package device

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/esp-rfid-core/internal/store"
)

const (
	testTimeout  = 90 * time.Second
	testInterval = 15 * time.Second
)

func TestSweep_DemotesStaleDevices(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := registry.Touch(ctx, "quiet", "192.168.1.50", base.Add(-2*time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if _, err := registry.Touch(ctx, "chatty", "192.168.1.51", base.Add(-10*time.Second)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	var demoted []string
	sweeper := NewSweeper(registry, testTimeout, testInterval)
	sweeper.SetOnOffline(func(_ context.Context, hostname string) {
		demoted = append(demoted, hostname)
	})

	sweeper.Sweep(ctx, base)

	if len(demoted) != 1 || demoted[0] != "quiet" {
		t.Errorf("demoted = %v, want [quiet]", demoted)
	}

	quiet, err := registry.Get(ctx, "quiet")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if quiet.Status != store.StatusOffline {
		t.Errorf("quiet status = %q, want offline", quiet.Status)
	}

	chatty, err := registry.Get(ctx, "chatty")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if chatty.Status != store.StatusOnline {
		t.Errorf("chatty status = %q, want online", chatty.Status)
	}
}

func TestSweep_TimeoutBoundary(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		silence     time.Duration
		wantOffline bool
	}{
		{"just under timeout", 89 * time.Second, false},
		{"exactly at timeout", 90 * time.Second, false},
		{"just over timeout", 91 * time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := registry.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(-tt.silence)); err != nil {
				t.Fatalf("Touch() error = %v", err)
			}

			sweeper := NewSweeper(registry, testTimeout, testInterval)
			sweeper.Sweep(ctx, base)

			device, err := registry.Get(ctx, "frontdoor")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			gotOffline := device.Status == store.StatusOffline
			if gotOffline != tt.wantOffline {
				t.Errorf("after %v of silence: offline = %v, want %v", tt.silence, gotOffline, tt.wantOffline)
			}
		})
	}
}

func TestSweep_CallbackOncePerTransition(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := registry.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(-5*time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	var calls int
	sweeper := NewSweeper(registry, testTimeout, testInterval)
	sweeper.SetOnOffline(func(_ context.Context, _ string) {
		calls++
	})

	// Repeated sweeps over an already-offline device must not re-fire.
	sweeper.Sweep(ctx, base)
	sweeper.Sweep(ctx, base.Add(testInterval))
	sweeper.Sweep(ctx, base.Add(2*testInterval))

	if calls != 1 {
		t.Errorf("offline callback fired %d times, want 1", calls)
	}
}

func TestSweep_TouchResurrectsDevice(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := registry.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(-5*time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	sweeper := NewSweeper(registry, testTimeout, testInterval)
	sweeper.Sweep(ctx, base)

	// Device speaks again: back online, and the transition is reported.
	result, err := registry.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(time.Second))
	if err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	if !result.WasOffline {
		t.Error("touch after sweep should report WasOffline")
	}
	if result.FirstSeen {
		t.Error("touch after sweep should not report FirstSeen")
	}
}

// touchDuringMarkRepo lets a device message land between the sweeper's stale
// listing and its demotion, as a concurrent MQTT handler would.
type touchDuringMarkRepo struct {
	store.DeviceRepository
	beforeMark func()
}

func (r *touchDuringMarkRepo) MarkOffline(ctx context.Context, hostnames []string, cutoff time.Time) ([]string, error) {
	if r.beforeMark != nil {
		fn := r.beforeMark
		r.beforeMark = nil
		fn()
	}
	return r.DeviceRepository.MarkOffline(ctx, hostnames, cutoff)
}

func TestSweep_MessageDuringSweepKeepsDeviceOnline(t *testing.T) {
	registry := setupRegistry(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := registry.Touch(ctx, "frontdoor", "192.168.1.50", base.Add(-5*time.Minute)); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}

	repo := registry.repo
	registry.repo = &touchDuringMarkRepo{
		DeviceRepository: repo,
		beforeMark: func() {
			if _, err := repo.Touch(ctx, "frontdoor", "192.168.1.50", base); err != nil {
				t.Errorf("interleaved Touch() error = %v", err)
			}
		},
	}

	var demoted []string
	sweeper := NewSweeper(registry, testTimeout, testInterval)
	sweeper.SetOnOffline(func(_ context.Context, hostname string) {
		demoted = append(demoted, hostname)
	})

	sweeper.Sweep(ctx, base)

	if len(demoted) != 0 {
		t.Errorf("demoted = %v, want none; the device spoke during the sweep", demoted)
	}

	stored, err := repo.GetByHostname(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("GetByHostname() error = %v", err)
	}
	if stored.Status != store.StatusOnline {
		t.Errorf("stored status = %q, want %q preserved", stored.Status, store.StatusOnline)
	}
	if !stored.LastSeen.Equal(base) {
		t.Errorf("stored LastSeen = %v, want the interleaved message's %v", stored.LastSeen, base)
	}

	cached, err := registry.Get(ctx, "frontdoor")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cached.Status != store.StatusOnline {
		t.Errorf("cached status = %q, want %q preserved", cached.Status, store.StatusOnline)
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	registry := setupRegistry(t)

	sweeper := NewSweeper(registry, testTimeout, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after context cancellation")
	}
}
