package schedule

import "errors"

// Failure classes. Adapters wrap these with context; callers branch with errors.Is.
var (
	// ErrFetch means a page did not load or its expected markup never appeared.
	ErrFetch = errors.New("page fetch failed")
	// ErrNormalize means date or time text did not match the expected shape.
	ErrNormalize = errors.New("date/time normalization failed")
	// ErrMissingIdentity means a speaker profile URL was absent or carried no id.
	ErrMissingIdentity = errors.New("speaker has no identity key")
	// ErrPersist means the store rejected a write or was unreachable.
	ErrPersist = errors.New("persistence failed")
)
