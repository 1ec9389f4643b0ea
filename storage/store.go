// Package storage defines the key-value contract the client persists
// through. The core never assumes more than these three operations; the
// backing implementation (file database, in-memory map) is chosen at
// process start.
package storage

// Fixed keys used by the client. One JSON-serialized value per key.
const (
	KeySession         = "punchclock.session"
	KeyUserInfo        = "punchclock.user"
	KeyAttendanceCache = "punchclock.cache.attendance"
	KeyTimerCache      = "punchclock.cache.timer"
)

// Store is the persistence substrate for session and cache records.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(key string) (string, bool)
	// Set creates or replaces the value for key.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}
