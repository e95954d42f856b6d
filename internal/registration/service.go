package registration

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/esp-rfid-core/internal/device"
	"github.com/nerrad567/esp-rfid-core/internal/rfid"
	"github.com/nerrad567/esp-rfid-core/internal/store"
)

// Notifier receives new-card notifications while detection is active.
type Notifier interface {
	NotifyCardDetected(ctx context.Context, uid, hostname string)
}

// MultiNotifier fans new-card notifications out to several notifiers.
type MultiNotifier []Notifier

// NotifyCardDetected implements Notifier.
func (m MultiNotifier) NotifyCardDetected(ctx context.Context, uid, hostname string) {
	for _, n := range m {
		n.NotifyCardDetected(ctx, uid, hostname)
	}
}

// Service is the card registration workflow: capture unknown cards while
// detection is active, and provision them onto a device on completion.
type Service struct {
	detector   *Detector
	regs       store.RegistrationRepository
	dispatcher *rfid.Dispatcher
	notifier   Notifier
	logger     device.Logger
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NewService creates the registration workflow. Notifier may be nil.
func NewService(detector *Detector, regs store.RegistrationRepository, dispatcher *rfid.Dispatcher, notifier Notifier) *Service {
	return &Service{
		detector:   detector,
		regs:       regs,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger device.Logger) {
	s.logger = logger
}

// Detector exposes the detection session controls to the API layer.
func (s *Service) Detector() *Detector {
	return s.detector
}

// HandleUnknownCard processes an unknown-card sighting from the router.
//
// While detection is inactive this is a no-op: the scan has already been
// logged upstream, and turning every stray card into a pending registration
// would drown operators in noise. While active, the sighting becomes an
// idempotent pending registration; repeated scans of the same card on the
// same device collapse to one record and one notification.
func (s *Service) HandleUnknownCard(ctx context.Context, uid, hostname string, seen time.Time) error {
	if !s.detector.Active() {
		return nil
	}

	created, err := s.regs.InsertPending(ctx, uid, hostname, seen)
	if err != nil {
		return fmt.Errorf("recording card registration: %w", err)
	}
	if !created {
		return nil
	}

	s.logger.Info("new card detected", "uid", uid, "hostname", hostname)
	if s.notifier != nil {
		s.notifier.NotifyCardDetected(ctx, uid, hostname)
	}
	return nil
}

// ListPending returns the registrations awaiting an operator.
func (s *Service) ListPending(ctx context.Context) ([]store.CardRegistration, error) {
	return s.regs.ListPending(ctx)
}

// Complete provisions a pending registration onto its device.
//
// The adduser command must succeed first; only then is the user record
// written and the registration marked completed, both in one transaction.
// On command failure the registration stays pending for a later retry by
// the operator. Completion is exactly-once: a second Complete for the same
// ID fails with store.ErrRegistrationNotPending.
func (s *Service) Complete(ctx context.Context, id int64, username string, acctype int, validSince, validUntil int64) error {
	reg, err := s.regs.Get(ctx, id)
	if err != nil {
		return err
	}
	if reg.Status != store.RegistrationPending {
		return fmt.Errorf("%w: id %d", store.ErrRegistrationNotPending, id)
	}

	err = s.dispatcher.AddUser(ctx, rfid.Target{Hostname: reg.DeviceHostname},
		reg.UID, username, acctype, validSince, validUntil)
	if err != nil {
		return fmt.Errorf("provisioning card %s on %s: %w", reg.UID, reg.DeviceHostname, err)
	}

	user := &store.User{
		UID:            reg.UID,
		Username:       username,
		DeviceHostname: reg.DeviceHostname,
		AccType:        acctype,
		ValidSince:     validSince,
		ValidUntil:     validUntil,
	}
	if err := s.regs.Complete(ctx, id, user); err != nil {
		return err
	}

	s.logger.Info("card registration completed",
		"uid", reg.UID, "hostname", reg.DeviceHostname, "username", username)
	return nil
}

// Cancel discards a pending registration.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	return s.regs.Cancel(ctx, id)
}
