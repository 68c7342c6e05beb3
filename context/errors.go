package context

import "errors"

// Error taxonomy per spec.md §7. Input and not-found errors are safe to
// surface to a caller as-is; structural errors indicate a content-addressed
// object resolved to the wrong Entry variant and are fatal to the request
// that triggered them, but never panic the store.
var (
	// ErrEmptyKey is returned by set/delete/copy/get when a key has zero
	// path segments; only tree-prefix queries may use an empty key.
	ErrEmptyKey = errors.New("context: key must have at least one segment")

	// ErrUnknownCommit is returned when checkout/get_history/prefix queries
	// reference a commit hash not resolvable to a Commit entry.
	ErrUnknownCommit = errors.New("context: unknown commit hash")

	// ErrKeyNotFound is returned when a key path does not resolve to a
	// blob within the tree being read — distinct from ErrEntryNotFound,
	// which signals a missing object in the backing KV store.
	ErrKeyNotFound = errors.New("context: key not found in tree")

	// ErrNotABlob is returned when a key resolves to a Tree rather than a
	// Blob.
	ErrNotABlob = errors.New("context: key does not reference a blob")

	// ErrEntryNotFound is the distinguished "entry missing from KV
	// backend" error described in spec.md §4.1 Failure semantics,
	// separate from ErrKeyNotFound.
	ErrEntryNotFound = errors.New("context: entry not found in backend")

	// ErrWrongEntryKind is the structural-error class of §7: an Entry
	// hash was expected to resolve to one variant (Tree/Blob/Commit) but
	// resolved to another.
	ErrWrongEntryKind = errors.New("context: entry has unexpected kind")
)
