package store

import (
	"errors"
	"fmt"
)

// Sentinel errors classify store failures. Callers match them with errors.Is;
// the bridge maps them onto RPC error codes.
var (
	// ErrInvalidFormat is returned when the value handed to Save is not a
	// JSON object.
	ErrInvalidFormat = errors.New("session must be a JSON object")

	// ErrInvalidID is returned for ids that could escape the store
	// directory. Ids become filename stems verbatim, so path separators,
	// traversal sequences and NUL bytes are rejected before any path is
	// built.
	ErrInvalidID = errors.New("invalid session id")

	// ErrNotFound is returned by Load when the record cannot be read. The
	// message is fixed; the underlying OS detail is deliberately not
	// exposed to the host UI.
	ErrNotFound = errors.New("chat not found")

	// ErrIO classifies directory-creation, serialization, write and delete
	// failures. The underlying message is preserved.
	ErrIO = errors.New("storage failure")

	// ErrParse classifies JSON decoding failures on Load. The decoder's
	// message is preserved.
	ErrParse = errors.New("malformed session record")
)

func ioError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrIO, op, err)
}

func parseError(err error) error {
	return fmt.Errorf("%w: %v", ErrParse, err)
}

func invalidIDError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidID, reason)
}
