package credentials

import (
	"errors"
	"fmt"
)

// ErrCredentialAccess is matched by every platform-level failure of the store.
var ErrCredentialAccess = errors.New("credential access error")

// CredentialAccessError reports which operation on which key failed.
type CredentialAccessError struct {
	Op  string
	Key string
	Err error
}

func (e *CredentialAccessError) Error() string {
	return fmt.Sprintf("credential %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *CredentialAccessError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCredentialAccess}
	}
	return []error{ErrCredentialAccess, e.Err}
}

func accessError(op, key string, err error) error {
	return &CredentialAccessError{Op: op, Key: key, Err: err}
}
