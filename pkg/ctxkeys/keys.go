// Package ctxkeys defines typed context keys to avoid SA1029 lint warnings
// and prevent key collisions across packages.
package ctxkeys

// Key is a typed context key to prevent collisions.
type Key string

// Auth context keys
const (
	KeyChannelID    Key = "channel_id"
	KeyOpaqueUserID Key = "opaque_user_id"
	KeyUserID       Key = "user_id"
	KeyRole         Key = "role"
	KeyAuthType     Key = "auth_type"
)

// Request context keys
const (
	KeyRequestID Key = "request_id"
)
