// Package fetch retrieves URLs over HTTP with a fast direct path and a
// stealth fallback for sites that actively block automated access.
package fetch

import "errors"

// Typed fetch failures. All are recoverable at the caller level: an
// article that cannot be fetched is skipped, never fatal to the run.
var (
	// ErrBlocked means the site is actively denying automated access
	// and the stealth path also failed.
	ErrBlocked = errors.New("fetch: blocked by site")
	// ErrTimeout means the request exceeded its deadline after retries.
	ErrTimeout = errors.New("fetch: timeout")
	// ErrMalformed means the response body is empty or not usable HTML/XML.
	ErrMalformed = errors.New("fetch: malformed response")
	// ErrNotFound means the server returned 404 for the URL.
	ErrNotFound = errors.New("fetch: not found")
)

// IsRecoverable reports whether the error is one of the typed per-URL
// failures that the pipeline records and skips.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrBlocked) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrMalformed) ||
		errors.Is(err, ErrNotFound)
}
