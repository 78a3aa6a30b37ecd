package internal

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when an update or delete references an unknown id.
	ErrNotFound = errors.New("subscription not found")

	// ErrInvalidSubscription is returned when a record fails validation at the store boundary.
	ErrInvalidSubscription = errors.New("invalid subscription")

	// ErrInvalidSetting is returned when a settings setter receives an out-of-range value.
	ErrInvalidSetting = errors.New("invalid setting")

	// ErrRateFetch wraps failures talking to the exchange rate source.
	ErrRateFetch = errors.New("fetching exchange rates")
)

// NotFoundError lists the ids that could not be matched.
type NotFoundError struct {
	IDs []uuid.UUID
}

func (e *NotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("%v: %s", ErrNotFound, strings.Join(ids, ", "))
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
