// File path: internal/catalog/errors.go
package catalog

import "errors"

var (
	// ErrNotFound marks a missing knowledge base, file, or chunk-set id.
	ErrNotFound = errors.New("record not found")

	// ErrStorageUnavailable wraps relational or object store failures. The
	// condition is retryable, but retry policy belongs to the caller; the
	// core never retries on its own.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInconsistentState marks a broken cross-reference, such as a file
	// row pointing at a missing object. Stat recomputation self-heals the
	// aggregate side; the rest is surfaced for manual repair.
	ErrInconsistentState = errors.New("inconsistent catalog state")
)
