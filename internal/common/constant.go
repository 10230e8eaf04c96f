package common

// AuthorizationHeaderName is the HTTP header used to carry the session token
// on outbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the session token in the authorization header.
const BearerPrefix = "Bearer "

// Credential store keys. Each entry is independently settable and gettable.
const (
	KeyDeviceID     = "device_id"
	KeyUserID       = "user_id"
	KeySessionToken = "session_token"
)
