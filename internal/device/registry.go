package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry tracks ESP-RFID devices with caching and thread safety.
// It wraps a store.DeviceRepository and adds an in-memory cache keyed by
// hostname for fast lookups on the message hot path.
//
// The cache is populated on startup via RefreshCache() and kept in sync by
// every mutating operation. The repository remains the source of truth; the
// cache only ever mirrors committed state.
//
// All public methods are thread-safe.
type Registry struct {
	repo    store.DeviceRepository
	cache   map[string]*store.Device // Cached devices by hostname
	cacheMu sync.RWMutex             // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo store.DeviceRepository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*store.Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*store.Device, len(devices))
	for i := range devices {
		d := devices[i]
		r.cache[d.Hostname] = copyDevice(&d)
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// Touch records a message from a device: persists the liveness update and
// mirrors the committed state into the cache.
//
// The returned TouchResult comes from the repository transaction, so
// WasOffline is reliable for exactly-once online announcements even with
// concurrent messages from the same device.
func (r *Registry) Touch(ctx context.Context, hostname, ip string, seen time.Time) (store.TouchResult, error) {
	result, err := r.repo.Touch(ctx, hostname, ip, seen)
	if err != nil {
		return store.TouchResult{}, err
	}

	// The repository column is whole-second RFC 3339; truncate so the cache
	// never reports finer timestamps than a repository read would.
	seen = seen.UTC().Truncate(time.Second)

	r.cacheMu.Lock()
	cached, ok := r.cache[hostname]
	if ok {
		cached.IPAddress = ip
		cached.LastSeen = seen
		cached.Status = store.StatusOnline
	} else {
		r.cache[hostname] = &store.Device{
			Hostname:  hostname,
			IPAddress: ip,
			LastSeen:  seen,
			Status:    store.StatusOnline,
			DoorNames: []string{},
			CreatedAt: seen,
		}
	}
	r.cacheMu.Unlock()

	if result.FirstSeen {
		r.logger.Info("new device discovered", "hostname", hostname, "ip", ip)
	} else if result.WasOffline {
		r.logger.Info("device back online", "hostname", hostname, "ip", ip)
	}

	return result, nil
}

// Get retrieves a device by hostname.
// Returns store.ErrDeviceNotFound if the device does not exist.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, hostname string) (*store.Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[hostname]
	r.cacheMu.RUnlock()

	if ok {
		return copyDevice(cached), nil
	}

	// Fall back to repository (might be a device not yet cached)
	device, err := r.repo.GetByHostname(ctx, hostname)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[hostname] = copyDevice(device)
	r.cacheMu.Unlock()

	return device, nil
}

// ResolveByIP retrieves a device by its last reported IP address.
// Returns store.ErrDeviceNotFound if no device has that address.
//
// Command payloads address devices by doorip, so this is the reverse lookup
// the dispatcher uses to find the per-device command topic.
func (r *Registry) ResolveByIP(ctx context.Context, ip string) (*store.Device, error) {
	r.cacheMu.RLock()
	var match *store.Device
	for _, d := range r.cache {
		if d.IPAddress != ip {
			continue
		}
		if match == nil || d.LastSeen.After(match.LastSeen) {
			match = d
		}
	}
	r.cacheMu.RUnlock()

	if match != nil {
		return copyDevice(match), nil
	}

	return r.repo.GetByIP(ctx, ip)
}

// List retrieves all devices ordered by hostname.
// The returned devices are copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]store.Device, error) {
	// Always hit the repository for listings: it orders consistently and
	// listings are off the hot path.
	return r.repo.List(ctx)
}

// MarkOffline demotes the named devices that are still silent past the
// cutoff and mirrors the result into the cache.
//
// The repository re-checks status and last_seen inside the demoting
// transaction, so a device that spoke after the caller built its candidate
// list stays online. Only the hostnames actually demoted are returned, and
// only those are flipped in the cache; a cache entry refreshed past the
// cutoff in the meantime is left alone.
func (r *Registry) MarkOffline(ctx context.Context, hostnames []string, cutoff time.Time) ([]string, error) {
	cutoff = cutoff.UTC().Truncate(time.Second)

	demoted, err := r.repo.MarkOffline(ctx, hostnames, cutoff)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	for _, hostname := range demoted {
		if cached, ok := r.cache[hostname]; ok && cached.LastSeen.Before(cutoff) {
			cached.Status = store.StatusOffline
		}
	}
	r.cacheMu.Unlock()

	return demoted, nil
}

// UpdateDoorNames replaces the door name list for a device.
// Returns store.ErrDeviceNotFound if the device does not exist.
func (r *Registry) UpdateDoorNames(ctx context.Context, hostname string, doorNames []string) error {
	if err := r.repo.UpdateDoorNames(ctx, hostname, doorNames); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[hostname]; ok {
		cached.DoorNames = append([]string(nil), doorNames...)
	}
	r.cacheMu.Unlock()

	return nil
}

// Delete removes a device and its provisioned users.
//
// Live devices cannot be deleted: the next message would immediately
// re-create the row and resurrect the device. When quiesce is positive the
// device must have been silent for longer than it, whatever the status flag
// says: a stale online flag counts as offline, and a freshly-offline device
// is still protected. With quiesce zero only the status flag is consulted.
// Returns ErrDeviceOnline when the device is still protected, and
// store.ErrDeviceNotFound if the hostname is unknown.
func (r *Registry) Delete(ctx context.Context, hostname string, quiesce time.Duration) error {
	device, err := r.Get(ctx, hostname)
	if err != nil {
		return err
	}
	if quiesce > 0 {
		if time.Since(device.LastSeen) <= quiesce {
			return fmt.Errorf("%w: %s", ErrDeviceOnline, hostname)
		}
	} else if device.Status == store.StatusOnline {
		return fmt.Errorf("%w: %s", ErrDeviceOnline, hostname)
	}

	if err := r.repo.Delete(ctx, hostname); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, hostname)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "hostname", hostname)
	return nil
}

// copyDevice creates an independent copy of a device so cache entries are
// never shared with callers.
func copyDevice(d *store.Device) *store.Device {
	if d == nil {
		return nil
	}
	cp := *d
	cp.DoorNames = append([]string(nil), d.DoorNames...)
	return &cp
}
