package store

import (
	"context"
	"strings"
)

// Store is the persistence backend for chat sessions. Records are open-ended
// JSON values: objects carry two semantically meaningful fields, "id"
// (string, always re-derived from the storage key at list time) and
// "timestamp" (float64 milliseconds since epoch, used only for ordering).
// Everything else is opaque to the store.
//
// Implementations do not coordinate concurrent writers: two saves to the
// same id race and the last writer wins. This is a known limitation, not a
// bug; the host dispatches one operation at a time.
type Store interface {
	// Save writes (creates or overwrites) a session and returns the
	// resolved id. A non-empty string "id" field in the input is used
	// verbatim; otherwise an id of the form chat_<unix-millis> is
	// synthesized. Non-object input fails with ErrInvalidFormat before
	// anything is written.
	Save(ctx context.Context, session any) (string, error)

	// List returns every readable session, newest first by effective
	// timestamp. Corrupt or unreadable records are skipped, never fatal;
	// a missing store degrades to an empty result.
	List(ctx context.Context) ([]any, error)

	// Load returns one session verbatim, with no id or timestamp repair
	// applied. An unreadable record fails with ErrNotFound.
	Load(ctx context.Context, id string) (any, error)

	// Delete removes a session permanently. Deleting a missing session
	// fails with an ErrIO-classified error.
	Delete(ctx context.Context, id string) error
}

// validateID rejects ids that could resolve outside the store. The id is
// used verbatim as a filename stem, so the checks mirror the path rules of
// every backend.
func validateID(id string) error {
	if id == "" {
		return invalidIDError("id cannot be empty")
	}
	if strings.Contains(id, "..") {
		return invalidIDError("id cannot contain '..'")
	}
	if strings.ContainsAny(id, "/\\") {
		return invalidIDError("id cannot contain path separators")
	}
	if strings.Contains(id, "\x00") {
		return invalidIDError("id cannot contain null bytes")
	}
	return nil
}

// effectiveTimestamp is the ordering key for a listed record: the document's
// own "timestamp" when it is a number, else zero. Non-object records always
// sort as zero.
func effectiveTimestamp(v any) float64 {
	obj, ok := v.(map[string]any)
	if !ok {
		return 0
	}
	ts, ok := obj["timestamp"].(float64)
	if !ok {
		return 0
	}
	return ts
}
