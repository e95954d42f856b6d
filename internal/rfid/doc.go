// Package rfid is the message core of ESP-RFID Core: it classifies inbound
// bus traffic, keeps device liveness current, and addresses outbound
// commands.
//
// # Message Flow
//
//	bus message ──▶ Classifier ──▶ Registry.Touch ──▶ kind handler
//	                                                   │
//	                          access log / event / user sync / unlock relay
//
// Classification is a closed tagged union (see Kind); the priority order is
// fixed and the first match wins. Every decoded device message refreshes
// liveness before its kind handler runs, so even unrecognised payloads keep
// their sender online.
//
// # Commands
//
// The Dispatcher builds the firmware's JSON command shapes (adduser,
// deletuid, opendoor, getuserlist) and resolves the per-device command
// topic from the registry, reverse-looking-up IPs when needed. The shared
// command topic is only used in single-device deployments; with several
// devices it would broadcast the command, so an unresolvable target is an
// error instead.
//
// # Error Discipline
//
// The bus does not redeliver. Malformed payloads are logged and dropped,
// handler failures are logged and the loop continues, and publish failures
// surface to the caller exactly once with no retry.
package rfid
