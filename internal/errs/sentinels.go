// Package errs contains sentinel errors shared by the resolver, prefetcher and
// replanning layers. Callers match them with errors.Is.
package errs

import "errors"

var (
	// ErrPermissionDenied indicates the user refused location or notification access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrProviderUnavailable covers network, HTTP and decode failures of a timings source.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrDataIntegrity indicates data that must not be used: missing prayer
	// fields, a date key mismatch, or a suspicious cache run.
	ErrDataIntegrity = errors.New("data integrity")

	// ErrNotFound indicates a cache miss or an unresolvable entity.
	ErrNotFound = errors.New("not found")
)
