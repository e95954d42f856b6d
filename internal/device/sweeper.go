package device

import (
	"context"
	"time"
)

// OfflineFunc is invoked once per device the sweeper demotes to offline.
// Implementations publish hub state updates, insert events, and notify
// websocket clients. Errors are the callback's problem; the sweep continues.
type OfflineFunc func(ctx context.Context, hostname string)

// Sweeper periodically demotes devices that have gone quiet.
//
// Liveness is time-based and one-directional here: only message arrival
// (Registry.Touch) flips a device online, and only the sweeper flips it
// offline. The timeout should be several multiples of the device heartbeat
// interval so a single lost heartbeat does not flap the device.
type Sweeper struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration

	onOffline OfflineFunc
	logger    Logger
}

// NewSweeper creates a liveness sweeper.
//
// Parameters:
//   - registry: The device registry to sweep
//   - timeout: How long a device may stay silent before it is offline
//   - interval: How often the sweep runs
func NewSweeper(registry *Registry, timeout, interval time.Duration) *Sweeper {
	return &Sweeper{
		registry: registry,
		timeout:  timeout,
		interval: interval,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetOnOffline sets the callback invoked for each demoted device.
func (s *Sweeper) SetOnOffline(fn OfflineFunc) {
	s.onOffline = fn
}

// Run executes sweeps at the configured interval until ctx is cancelled.
// It blocks; run it in its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("liveness sweeper started",
		"timeout", s.timeout.String(),
		"interval", s.interval.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("liveness sweeper stopped")
			return
		case now := <-ticker.C:
			s.Sweep(ctx, now)
		}
	}
}

// Sweep demotes every online device whose last message is older than the
// timeout, then fires the offline callback once per demoted device.
//
// A device last seen exactly timeout ago is still considered alive; only
// strictly older devices are demoted. A device that receives a message after
// the candidate list is taken is not demoted and gets no callback: the
// demotion itself re-checks last_seen against the cutoff, so the sweep never
// overwrites a concurrent Touch. Storage errors are logged and the sweep
// retried on the next tick.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) {
	cutoff := now.Add(-s.timeout)

	stale, err := s.registry.repo.ListOnlineOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("liveness sweep query failed", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}

	demoted, err := s.registry.MarkOffline(ctx, stale, cutoff)
	if err != nil {
		s.logger.Error("liveness sweep mark offline failed", "error", err, "count", len(stale))
		return
	}

	for _, hostname := range demoted {
		s.logger.Warn("device offline", "hostname", hostname, "timeout", s.timeout.String())
		if s.onOffline != nil {
			s.onOffline(ctx, hostname)
		}
	}
}
