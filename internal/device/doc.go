// Package device provides the Device Registry for ESP-RFID Core.
//
// The registry is the authoritative catalogue of ESP-RFID door controllers
// and their liveness state. Devices register themselves implicitly: the
// first message from an unknown hostname creates its row, and every
// subsequent message refreshes it.
//
// # Liveness Model
//
// A device is online while messages keep arriving and offline once it has
// been silent longer than the configured timeout:
//
//	message arrives ──▶ Touch ──▶ online, last_seen refreshed
//	silence > timeout ─▶ Sweeper ─▶ offline, callback fired
//
// Only these two paths change status. The timeout (default 90s) is several
// multiples of the firmware heartbeat interval, so one dropped heartbeat
// never flaps a device.
//
// # Key Types
//
//   - Registry: Cached device lookups and liveness updates
//   - Sweeper: Periodic offline demotion
//
// # Usage
//
//	registry := device.NewRegistry(store.NewSQLiteDeviceRepository(db.DB))
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	sweeper := device.NewSweeper(registry, 90*time.Second, 15*time.Second)
//	sweeper.SetOnOffline(func(ctx context.Context, hostname string) {
//	    hub.PublishDeviceStatus(hostname, "offline")
//	})
//	go sweeper.Run(ctx)
//
// # Thread Safety
//
// The Registry is safe for concurrent use. All cache access is protected by
// a read-write mutex, and liveness transitions are decided inside repository
// transactions, not in the cache.
package device
