package models

// Identity is the registration state of this installation. UserID and
// SessionToken stay empty until the first successful registration.
type Identity struct {
	DeviceID     string
	UserID       string
	SessionToken string
}

// Registered reports whether the backend has issued a user and a session.
func (i Identity) Registered() bool {
	return i.UserID != "" && i.SessionToken != ""
}
