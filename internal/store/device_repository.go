package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DeviceRepository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type DeviceRepository interface {
	// Touch records a message from a device: creates the row if the hostname
	// is new, otherwise updates ip_address and last_seen and flips the device
	// online. The returned TouchResult reflects the state observed inside the
	// same transaction that performed the write, so concurrent touches cannot
	// both claim the offline-to-online transition.
	Touch(ctx context.Context, hostname, ip string, seen time.Time) (TouchResult, error)

	// GetByHostname retrieves a device by hostname.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByHostname(ctx context.Context, hostname string) (*Device, error)

	// GetByIP retrieves a device by its last reported IP address.
	// Returns ErrDeviceNotFound if no device has that address.
	GetByIP(ctx context.Context, ip string) (*Device, error)

	// List retrieves all devices ordered by hostname.
	List(ctx context.Context) ([]Device, error)

	// ListOnlineOlderThan retrieves the hostnames of online devices whose
	// last_seen is strictly before the cutoff. A device seen exactly at the
	// cutoff is not returned.
	ListOnlineOlderThan(ctx context.Context, cutoff time.Time) ([]string, error)

	// MarkOffline demotes the named devices, but only those still online and
	// last seen strictly before the cutoff. The guard runs in the same
	// transaction as the update, so a Touch that commits after the caller
	// selected its stale list keeps that device online. Returns the
	// hostnames actually demoted; unknown hostnames are ignored.
	MarkOffline(ctx context.Context, hostnames []string, cutoff time.Time) ([]string, error)

	// UpdateDoorNames replaces the door name list for a device.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateDoorNames(ctx context.Context, hostname string, doorNames []string) error

	// Delete removes a device and, via cascade, its provisioned users.
	// Returns ErrDeviceNotFound if the device does not exist.
	Delete(ctx context.Context, hostname string) error
}

// SQLiteDeviceRepository implements DeviceRepository using SQLite.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository creates a new SQLite-backed device repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteDeviceRepository(db *sql.DB) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{db: db}
}

// Touch records a message from a device.
//
// The previous status is read and the row written inside one transaction.
// With the database package's single-writer pool this serialises concurrent
// touches for the same hostname, so exactly one caller observes the
// offline-to-online transition.
func (r *SQLiteDeviceRepository) Touch(ctx context.Context, hostname, ip string, seen time.Time) (TouchResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return TouchResult{}, fmt.Errorf("beginning touch transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var prevStatus string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM devices WHERE hostname = ?", hostname,
	).Scan(&prevStatus)

	var result TouchResult
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result = TouchResult{FirstSeen: true, WasOffline: true}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO devices (hostname, ip_address, last_seen, status, door_names, created_at)
			VALUES (?, ?, ?, ?, '[]', ?)`,
			hostname,
			ip,
			seen.UTC().Format(time.RFC3339),
			string(StatusOnline),
			seen.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return TouchResult{}, fmt.Errorf("inserting device: %w", err)
		}

	case err != nil:
		return TouchResult{}, fmt.Errorf("reading device status: %w", err)

	default:
		result = TouchResult{WasOffline: prevStatus == string(StatusOffline)}
		_, err = tx.ExecContext(ctx, `
			UPDATE devices
			SET ip_address = ?, last_seen = ?, status = ?
			WHERE hostname = ?`,
			ip,
			seen.UTC().Format(time.RFC3339),
			string(StatusOnline),
			hostname,
		)
		if err != nil {
			return TouchResult{}, fmt.Errorf("updating device: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return TouchResult{}, fmt.Errorf("committing touch: %w", err)
	}
	return result, nil
}

// GetByHostname retrieves a device by hostname.
func (r *SQLiteDeviceRepository) GetByHostname(ctx context.Context, hostname string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, hostname, ip_address, last_seen, status, door_names, created_at
		FROM devices
		WHERE hostname = ?`, hostname)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by hostname: %w", err)
	}
	return device, nil
}

// GetByIP retrieves a device by its last reported IP address.
// If multiple devices share an address (DHCP churn), the most recently
// seen one wins.
func (r *SQLiteDeviceRepository) GetByIP(ctx context.Context, ip string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, hostname, ip_address, last_seen, status, door_names, created_at
		FROM devices
		WHERE ip_address = ?
		ORDER BY last_seen DESC
		LIMIT 1`, ip)

	device, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by ip: %w", err)
	}
	return device, nil
}

// List retrieves all devices ordered by hostname.
func (r *SQLiteDeviceRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, hostname, ip_address, last_seen, status, door_names, created_at
		FROM devices
		ORDER BY hostname`)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// ListOnlineOlderThan retrieves hostnames of online devices last seen
// strictly before the cutoff.
//
// RFC 3339 UTC strings compare lexicographically in timestamp order, so a
// plain < works here.
func (r *SQLiteDeviceRepository) ListOnlineOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hostname
		FROM devices
		WHERE status = ? AND last_seen < ?
		ORDER BY hostname`,
		string(StatusOnline),
		cutoff.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("querying stale devices: %w", err)
	}
	defer rows.Close()

	var hostnames []string
	for rows.Next() {
		var hostname string
		if err := rows.Scan(&hostname); err != nil {
			return nil, fmt.Errorf("scanning hostname: %w", err)
		}
		hostnames = append(hostnames, hostname)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hostnames: %w", err)
	}
	return hostnames, nil
}

// MarkOffline demotes the named devices that are still online and silent
// past the cutoff.
//
// The candidate list the caller passes in may be stale by the time this
// runs: a device can receive a message between being listed and being
// demoted. The status and last_seen guard re-checks both inside one
// transaction, so such a device keeps its fresh state and is not reported
// as demoted.
func (r *SQLiteDeviceRepository) MarkOffline(ctx context.Context, hostnames []string, cutoff time.Time) ([]string, error) {
	if len(hostnames) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning offline transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	selectArgs := make([]any, 0, len(hostnames)+2)
	selectArgs = append(selectArgs, string(StatusOnline), cutoff.UTC().Format(time.RFC3339))
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`
		SELECT hostname
		FROM devices
		WHERE status = ? AND last_seen < ? AND hostname IN (%s)
		ORDER BY hostname`, inPlaceholders(len(hostnames))),
		append(selectArgs, asAnySlice(hostnames)...)...)
	if err != nil {
		return nil, fmt.Errorf("selecting stale devices: %w", err)
	}

	var demoted []string
	for rows.Next() {
		var hostname string
		if err := rows.Scan(&hostname); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning hostname: %w", err)
		}
		demoted = append(demoted, hostname)
	}
	// The transaction holds a single connection, so the result set must be
	// drained and closed before the update can run on it.
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("reading stale devices: %w", err)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating stale devices: %w", err)
	}

	if len(demoted) == 0 {
		return nil, tx.Commit()
	}

	updateArgs := make([]any, 0, len(demoted)+1)
	updateArgs = append(updateArgs, string(StatusOffline))
	query := fmt.Sprintf("UPDATE devices SET status = ? WHERE hostname IN (%s)", inPlaceholders(len(demoted)))
	if _, err := tx.ExecContext(ctx, query, append(updateArgs, asAnySlice(demoted)...)...); err != nil {
		return nil, fmt.Errorf("marking devices offline: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing offline update: %w", err)
	}
	return demoted, nil
}

// inPlaceholders builds a "?,?,?" list for an IN clause of n values.
func inPlaceholders(n int) string {
	placeholders := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

// asAnySlice widens a string slice for use as query arguments.
func asAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// UpdateDoorNames replaces the door name list for a device.
func (r *SQLiteDeviceRepository) UpdateDoorNames(ctx context.Context, hostname string, doorNames []string) error {
	if doorNames == nil {
		doorNames = []string{}
	}
	doorJSON, err := json.Marshal(doorNames)
	if err != nil {
		return fmt.Errorf("marshalling door names: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET door_names = ? WHERE hostname = ?",
		string(doorJSON), hostname,
	)
	if err != nil {
		return fmt.Errorf("updating door names: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device. The schema's ON DELETE CASCADE removes the
// device's provisioned users in the same statement.
func (r *SQLiteDeviceRepository) Delete(ctx context.Context, hostname string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE hostname = ?", hostname)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var lastSeen, createdAt, status, doorJSON string

	err := scanner.Scan(
		&d.ID,
		&d.Hostname,
		&d.IPAddress,
		&lastSeen,
		&status,
		&doorJSON,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	d.Status = DeviceStatus(status)

	if d.LastSeen, err = time.Parse(time.RFC3339, lastSeen); err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	if err := json.Unmarshal([]byte(doorJSON), &d.DoorNames); err != nil {
		return nil, fmt.Errorf("unmarshalling door_names: %w", err)
	}

	return &d, nil
}
