package domain

import "errors"

var (
	// ErrNotFound is returned by repositories on a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrAccessDenied marks a permission failure on the primary keyed store
	// and triggers the session-store fallback.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotInCountry rejects locations outside the operating country.
	ErrNotInCountry = errors.New("location outside operating country")
	// ErrUnknownCategory rejects category selections the tenant does not offer.
	ErrUnknownCategory = errors.New("unknown deal category")
)
