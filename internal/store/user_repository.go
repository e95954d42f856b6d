package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserRepository defines the interface for card holder persistence.
type UserRepository interface {
	// Upsert inserts a user or replaces the existing row for the same
	// (uid, device_hostname) pair. The created_at of an existing row is
	// preserved; updated_at always advances.
	Upsert(ctx context.Context, user *User) error

	// Get retrieves a user by (uid, hostname).
	// Returns ErrUserNotFound if no such user exists.
	Get(ctx context.Context, uid, hostname string) (*User, error)

	// List retrieves all users ordered by username, then hostname.
	List(ctx context.Context) ([]User, error)

	// ListByDevice retrieves users provisioned on a specific device.
	ListByDevice(ctx context.Context, hostname string) ([]User, error)

	// Delete removes a user by (uid, hostname).
	// Returns ErrUserNotFound if no such user exists.
	Delete(ctx context.Context, uid, hostname string) error

	// DeleteByDevice removes all users provisioned on a device.
	// Returns the number of users removed.
	DeleteByDevice(ctx context.Context, hostname string) (int64, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewSQLiteUserRepository creates a new SQLite-backed user repository.
func NewSQLiteUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Upsert inserts or replaces a user for the (uid, device_hostname) pair.
//
// The upsert clause keeps the original created_at so re-provisioning a card
// does not rewrite history.
func (r *SQLiteUserRepository) Upsert(ctx context.Context, user *User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
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
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}

// Get retrieves a user by (uid, hostname).
func (r *SQLiteUserRepository) Get(ctx context.Context, uid, hostname string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, uid, username, device_hostname, acctype, valid_since, valid_until, created_at, updated_at
		FROM users
		WHERE uid = ? AND device_hostname = ?`, uid, hostname)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	return user, nil
}

// List retrieves all users.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	return r.queryUsers(ctx, `
		SELECT id, uid, username, device_hostname, acctype, valid_since, valid_until, created_at, updated_at
		FROM users
		ORDER BY username, device_hostname`)
}

// ListByDevice retrieves users provisioned on a specific device.
func (r *SQLiteUserRepository) ListByDevice(ctx context.Context, hostname string) ([]User, error) {
	return r.queryUsers(ctx, `
		SELECT id, uid, username, device_hostname, acctype, valid_since, valid_until, created_at, updated_at
		FROM users
		WHERE device_hostname = ?
		ORDER BY username`, hostname)
}

// Delete removes a user by (uid, hostname).
func (r *SQLiteUserRepository) Delete(ctx context.Context, uid, hostname string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM users WHERE uid = ? AND device_hostname = ?", uid, hostname)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeleteByDevice removes all users provisioned on a device.
func (r *SQLiteUserRepository) DeleteByDevice(ctx context.Context, hostname string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM users WHERE device_hostname = ?", hostname)
	if err != nil {
		return 0, fmt.Errorf("deleting users by device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return rowsAffected, nil
}

// queryUsers executes a query and returns a slice of users.
func (r *SQLiteUserRepository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// scanUser scans a row or rows result into a User.
func scanUser(scanner rowScanner) (*User, error) {
	var u User
	var createdAt, updatedAt string

	err := scanner.Scan(
		&u.ID,
		&u.UID,
		&u.Username,
		&u.DeviceHostname,
		&u.AccType,
		&u.ValidSince,
		&u.ValidUntil,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if u.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &u, nil
}
