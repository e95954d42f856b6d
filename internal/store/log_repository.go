package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// defaultListLimit caps list queries when the caller passes limit <= 0.
const defaultListLimit = 100

// LogRepository defines the interface for the append-only access log and
// the device event log.
type LogRepository interface {
	// InsertAccessLog appends one access attempt. Rows are never updated
	// or deleted through this interface.
	InsertAccessLog(ctx context.Context, entry *AccessLog) error

	// ListAccessLogs retrieves the most recent access logs, newest first.
	// A limit <= 0 applies the default limit.
	ListAccessLogs(ctx context.Context, limit int) ([]AccessLog, error)

	// ListAccessLogsByDevice retrieves recent access logs for one device,
	// newest first.
	ListAccessLogsByDevice(ctx context.Context, hostname string, limit int) ([]AccessLog, error)

	// InsertEvent appends one device event.
	InsertEvent(ctx context.Context, event *Event) error

	// ListEvents retrieves the most recent events, newest first.
	// A limit <= 0 applies the default limit.
	ListEvents(ctx context.Context, limit int) ([]Event, error)
}

// SQLiteLogRepository implements LogRepository using SQLite.
type SQLiteLogRepository struct {
	db *sql.DB
}

// NewSQLiteLogRepository creates a new SQLite-backed log repository.
func NewSQLiteLogRepository(db *sql.DB) *SQLiteLogRepository {
	return &SQLiteLogRepository{db: db}
}

// InsertAccessLog appends one access attempt.
func (r *SQLiteLogRepository) InsertAccessLog(ctx context.Context, entry *AccessLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO access_logs (device_hostname, uid, username, access_type, is_known, door_name, timestamp, raw_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.DeviceHostname,
		entry.UID,
		entry.Username,
		entry.AccessType,
		boolToInt(entry.IsKnown),
		entry.DoorName,
		entry.Timestamp.UTC().Format(time.RFC3339),
		entry.RawData,
	)
	if err != nil {
		return fmt.Errorf("inserting access log: %w", err)
	}
	return nil
}

// ListAccessLogs retrieves the most recent access logs, newest first.
func (r *SQLiteLogRepository) ListAccessLogs(ctx context.Context, limit int) ([]AccessLog, error) {
	return r.queryAccessLogs(ctx, `
		SELECT id, device_hostname, uid, username, access_type, is_known, door_name, timestamp, raw_data
		FROM access_logs
		ORDER BY id DESC
		LIMIT ?`, clampLimit(limit))
}

// ListAccessLogsByDevice retrieves recent access logs for one device.
func (r *SQLiteLogRepository) ListAccessLogsByDevice(ctx context.Context, hostname string, limit int) ([]AccessLog, error) {
	return r.queryAccessLogs(ctx, `
		SELECT id, device_hostname, uid, username, access_type, is_known, door_name, timestamp, raw_data
		FROM access_logs
		WHERE device_hostname = ?
		ORDER BY id DESC
		LIMIT ?`, hostname, clampLimit(limit))
}

// InsertEvent appends one device event.
func (r *SQLiteLogRepository) InsertEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (device_hostname, event_type, source, description, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`,
		event.DeviceHostname,
		event.EventType,
		event.Source,
		event.Description,
		event.Data,
		event.Timestamp.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ListEvents retrieves the most recent events, newest first.
func (r *SQLiteLogRepository) ListEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_hostname, event_type, source, description, data, timestamp
		FROM events
		ORDER BY id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var source, description, data sql.NullString
		var timestamp string
		err := rows.Scan(&e.ID, &e.DeviceHostname, &e.EventType, &source, &description, &data, &timestamp)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Source = source.String
		e.Description = description.String
		e.Data = data.String
		if e.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
			return nil, fmt.Errorf("parsing event timestamp: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating events: %w", err)
	}
	return events, nil
}

// queryAccessLogs executes a query and returns a slice of access logs.
func (r *SQLiteLogRepository) queryAccessLogs(ctx context.Context, query string, args ...any) ([]AccessLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying access logs: %w", err)
	}
	defer rows.Close()

	var logs []AccessLog
	for rows.Next() {
		var l AccessLog
		var uid, username, accessType, doorName, rawData sql.NullString
		var isKnown int
		var timestamp string
		err := rows.Scan(&l.ID, &l.DeviceHostname, &uid, &username, &accessType, &isKnown, &doorName, &timestamp, &rawData)
		if err != nil {
			return nil, fmt.Errorf("scanning access log: %w", err)
		}
		l.UID = uid.String
		l.Username = username.String
		l.AccessType = accessType.String
		l.DoorName = doorName.String
		l.RawData = rawData.String
		l.IsKnown = isKnown != 0
		if l.Timestamp, err = time.Parse(time.RFC3339, timestamp); err != nil {
			return nil, fmt.Errorf("parsing access log timestamp: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating access logs: %w", err)
	}
	return logs, nil
}

// clampLimit applies the default limit for non-positive values.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// boolToInt converts a boolean to 0/1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
