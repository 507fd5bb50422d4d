package journal

import "errors"

// ErrInvalidKind is returned for an event kind the journal does not store.
var ErrInvalidKind = errors.New("journal: invalid event kind")
