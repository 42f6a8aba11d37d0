package lifecycle

import (
	"errors"
	"fmt"

	"github.com/loykin/servhub/internal/registry"
)

// StatusError reports a lifecycle operation invoked from a state that does
// not permit it. The operation had no side effect; callers must not retry
// without a state change.
type StatusError struct {
	Key    string
	Op     string
	Status registry.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cannot %s server %s while %s", e.Op, e.Key, e.Status)
}

// IsStatusError reports whether err is a StatusError.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// ErrUnknownServer is returned for operations on keys with no record.
var ErrUnknownServer = errors.New("unknown server")
