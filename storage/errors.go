package storage

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// ErrNotFound is returned when a key is not present in Redis.
var ErrNotFound = errors.New("storage: key not found in redis")

// ErrTransport wraps any Redis I/O failure that isn't a plain miss.
// Callers compare with errors.Is; the pkg/errors-wrapped cause is still
// reachable via errors.Unwrap for logging.
var ErrTransport = errors.New("storage: redis transport failure")

// ErrSerialization is returned when the configured Marshaller fails to
// encode or decode a value or control message.
var ErrSerialization = errors.New("storage: serialization failure")

// WrapTransport wraps a raw transport error so errors.Is(result,
// ErrTransport) succeeds, while pkg/errors still attaches a
// stack-annotated message for logs.
func WrapTransport(err error, msg string) error {
	return pkgerrors.Wrap(fmt.Errorf("%w: %w", ErrTransport, err), msg)
}

// WrapSerialization wraps a raw marshal/unmarshal error so
// errors.Is(result, ErrSerialization) succeeds.
func WrapSerialization(err error, msg string) error {
	return pkgerrors.Wrap(fmt.Errorf("%w: %w", ErrSerialization, err), msg)
}
