// Package registration implements the card registration workflow.
//
// Unknown cards scanned on a device only become registration records while
// an operator holds a detection session open; otherwise they are plain
// access-log noise. A captured card waits as a pending registration until
// an operator assigns it a username, at which point the card is provisioned
// onto the device and the registration completes, exactly once.
//
//	unknown scan ──(detection active?)──▶ pending registration + notification
//	operator completes ──▶ adduser command ──▶ user record, registration completed
//
// Detection sessions replace a single global on/off flag so concurrent
// operators do not interfere: each holds their own session token, and
// capture stays active until the last session stops or expires.
package registration
