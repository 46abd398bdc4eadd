package common

import "errors"

var ErrUnauthorized = errors.New("unauthorized")

// RequireOwner is the capability check performed at the start of every
// owner-only operation. An unset owner denies everyone.
func RequireOwner(owner, caller [20]byte) error {
	if owner == ([20]byte{}) || caller != owner {
		return ErrUnauthorized
	}
	return nil
}
