// Package store provides SQLite persistence for ESP-RFID Core.
//
// It holds the record types and repositories behind the manager: devices,
// card holders, the append-only access log, device events, and pending card
// registrations. Each repository method is atomic; operations that must
// observe and mutate state together (device touch, registration completion)
// run inside a single transaction.
//
// # Key Types
//
//   - Device: An ESP-RFID door controller and its liveness state
//   - User: A card holder provisioned on one device
//   - AccessLog: One access attempt, append-only
//   - Event: A device lifecycle or diagnostic event
//   - CardRegistration: An unknown card captured during detection
//
// # Usage
//
//	devices := store.NewSQLiteDeviceRepository(db.DB)
//	result, err := devices.Touch(ctx, "frontdoor", "192.168.1.50", time.Now())
//	if err != nil {
//	    return err
//	}
//	if result.WasOffline {
//	    // announce the device coming online
//	}
//
// # Thread Safety
//
// All repositories are safe for concurrent use; they hold no state beyond
// the *sql.DB handle.
package store
