// Package hass mirrors device state onto the automation hub's MQTT
// discovery topics.
//
// Each device is announced as a set of Home Assistant entities, one per
// facet:
//
//	door_status     sensor         locked / unlocked from access traffic
//	last_access     sensor         username of the most recent scan
//	online          binary_sensor  liveness, driven by the registry
//	unknown_card    sensor         last unregistered card seen
//	access_history  sensor         rolling window of recent scans
//	unlock          button         remote door release
//
// # Announce Semantics
//
// Discovery configs are published retained, once per hostname per process,
// the first time the registry reports the hostname. Re-announcing is
// idempotent: the hub treats an identical retained config as a no-op, so a
// restart simply republishes what is already there.
//
// # Delivery
//
// The publisher sits behind the router's notifier interface and must never
// block the message path: publish failures are logged and dropped, never
// retried and never propagated to the caller.
package hass
