package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RegistrationRepository defines the interface for card registration
// persistence. Registrations are created while card detection is active and
// resolved when an operator assigns the card to a user.
type RegistrationRepository interface {
	// InsertPending records a pending registration for (uid, hostname).
	// If a pending registration for the same pair already exists, no row is
	// written and created is false. Completed or cancelled history does not
	// block a new pending row.
	InsertPending(ctx context.Context, uid, hostname string, registeredAt time.Time) (created bool, err error)

	// Get retrieves a registration by ID.
	// Returns ErrRegistrationNotFound if the ID does not exist.
	Get(ctx context.Context, id int64) (*CardRegistration, error)

	// ListPending retrieves all pending registrations, oldest first.
	ListPending(ctx context.Context) ([]CardRegistration, error)

	// Complete atomically marks a pending registration completed and
	// provisions the resulting user row in the same transaction.
	// Returns ErrRegistrationNotFound if the ID does not exist, and
	// ErrRegistrationNotPending if it was already resolved. Exactly one
	// concurrent Complete for a given ID can succeed.
	Complete(ctx context.Context, id int64, user *User) error

	// Cancel marks a pending registration cancelled.
	// Returns ErrRegistrationNotFound or ErrRegistrationNotPending on the
	// same terms as Complete.
	Cancel(ctx context.Context, id int64) error
}

// SQLiteRegistrationRepository implements RegistrationRepository using SQLite.
type SQLiteRegistrationRepository struct {
	db *sql.DB
}

// NewSQLiteRegistrationRepository creates a new SQLite-backed registration repository.
func NewSQLiteRegistrationRepository(db *sql.DB) *SQLiteRegistrationRepository {
	return &SQLiteRegistrationRepository{db: db}
}

// InsertPending records a pending registration for (uid, hostname).
//
// The partial unique index on (uid, device_hostname) WHERE status='pending'
// makes the INSERT OR IGNORE a no-op when a pending row already exists, so
// repeated scans of the same unknown card collapse to one registration.
func (r *SQLiteRegistrationRepository) InsertPending(ctx context.Context, uid, hostname string, registeredAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO card_registrations (uid, device_hostname, registered_at, status)
		VALUES (?, ?, ?, ?)`,
		uid,
		hostname,
		registeredAt.UTC().Format(time.RFC3339),
		string(RegistrationPending),
	)
	if err != nil {
		return false, fmt.Errorf("inserting card registration: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Get retrieves a registration by ID.
func (r *SQLiteRegistrationRepository) Get(ctx context.Context, id int64) (*CardRegistration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, uid, device_hostname, registered_at, status
		FROM card_registrations
		WHERE id = ?`, id)

	reg, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("querying card registration: %w", err)
	}
	return reg, nil
}

// ListPending retrieves all pending registrations, oldest first.
func (r *SQLiteRegistrationRepository) ListPending(ctx context.Context) ([]CardRegistration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, uid, device_hostname, registered_at, status
		FROM card_registrations
		WHERE status = ?
		ORDER BY id`, string(RegistrationPending))
	if err != nil {
		return nil, fmt.Errorf("querying pending registrations: %w", err)
	}
	defer rows.Close()

	var regs []CardRegistration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning card registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating card registrations: %w", err)
	}
	return regs, nil
}

// Complete atomically marks a pending registration completed and provisions
// the user row.
//
// The UPDATE's status guard is the exactly-once mechanism: the first
// transaction to flip pending -> completed wins, later attempts see zero
// rows affected and fail with ErrRegistrationNotPending.
func (r *SQLiteRegistrationRepository) Complete(ctx context.Context, id int64, user *User) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning complete transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := r.resolve(ctx, tx, id, RegistrationCompleted); err != nil {
		return err
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (uid, username, device_hostname, acctype, valid_since, valid_until, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid, device_hostname) DO UPDATE SET
			username = excluded.username,
			acctype = excluded.acctype,
			valid_since = excluded.valid_since,
			valid_until = excluded.valid_until,
			updated_at = excluded.updated_at`,
		user.UID,
		user.Username,
		user.DeviceHostname,
		user.AccType,
		user.ValidSince,
		user.ValidUntil,
		user.CreatedAt.Format(time.RFC3339),
		user.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("provisioning user for registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration completion: %w", err)
	}
	return nil
}

// Cancel marks a pending registration cancelled.
func (r *SQLiteRegistrationRepository) Cancel(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cancel transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if err := r.resolve(ctx, tx, id, RegistrationCancelled); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing registration cancel: %w", err)
	}
	return nil
}

// resolve flips a pending registration to the given terminal status inside
// an existing transaction.
func (r *SQLiteRegistrationRepository) resolve(ctx context.Context, tx *sql.Tx, id int64, status RegistrationStatus) error {
	result, err := tx.ExecContext(ctx, `
		UPDATE card_registrations
		SET status = ?
		WHERE id = ? AND status = ?`,
		string(status), id, string(RegistrationPending),
	)
	if err != nil {
		return fmt.Errorf("resolving card registration: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish missing from already-resolved.
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM card_registrations WHERE id = ?", id,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking registration exists: %w", err)
		}
		if exists == 0 {
			return ErrRegistrationNotFound
		}
		return ErrRegistrationNotPending
	}
	return nil
}

// scanRegistration scans a row or rows result into a CardRegistration.
func scanRegistration(scanner rowScanner) (*CardRegistration, error) {
	var reg CardRegistration
	var registeredAt, status string

	err := scanner.Scan(&reg.ID, &reg.UID, &reg.DeviceHostname, &registeredAt, &status)
	if err != nil {
		return nil, err
	}

	reg.Status = RegistrationStatus(status)
	if reg.RegisteredAt, err = time.Parse(time.RFC3339, registeredAt); err != nil {
		return nil, fmt.Errorf("parsing registered_at: %w", err)
	}
	return &reg, nil
}
