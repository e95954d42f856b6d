package registration

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Detector gates whether unknown-card scans become registration records.
//
// Detection is modelled as a set of sessions rather than one global flag:
// each operator opening an add-card UI starts their own session and stops
// it when done, so one operator closing their browser cannot switch off a
// colleague's capture. Detection is active while at least one unexpired
// session exists.
//
// Sessions expire after a TTL as a safety net for clients that never send
// the stop signal.
type Detector struct {
	mu       sync.Mutex
	sessions map[string]time.Time // session id -> expiry
	ttl      time.Duration

	// now is the clock, swappable for tests.
	now func() time.Time
}

// NewDetector creates a detector whose sessions expire after ttl.
func NewDetector(ttl time.Duration) *Detector {
	return &Detector{
		sessions: make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Start opens a detection session and returns its ID. The caller must pass
// the same ID to Stop.
func (d *Detector) Start() string {
	id := uuid.New().String()

	d.mu.Lock()
	d.sessions[id] = d.now().Add(d.ttl)
	d.mu.Unlock()

	return id
}

// Stop closes a detection session. Unknown session IDs (already expired,
// or never issued) report false.
func (d *Detector) Stop(sessionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[sessionID]; !ok {
		return false
	}
	delete(d.sessions, sessionID)
	return true
}

// Active reports whether any detection session is open. Expired sessions
// are pruned as a side effect.
func (d *Detector) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for id, expiry := range d.sessions {
		if expiry.Before(now) {
			delete(d.sessions, id)
		}
	}
	return len(d.sessions) > 0
}

// SessionCount returns the number of open, unexpired sessions.
func (d *Detector) SessionCount() int {
	d.Active() // prune first
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}
