package query

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by a checkpoint when the snapshot it runs
	// under has been superseded by a cancellation request.
	ErrCancelled = errors.New("query: cancelled")

	// ErrSnapshotReleased is returned by a checkpoint on a snapshot that was
	// already released.
	ErrSnapshotReleased = errors.New("query: snapshot released")
)

// IsCancelled reports whether err carries a cancellation outcome.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// CycleError is the panic value raised when a query transitively depends on
// itself.
type CycleError struct {
	Key Key
}

// Error names the query that reached itself.
func (e *CycleError) Error() string {
	return fmt.Sprintf("query: dependency cycle through %s", e.Key)
}
