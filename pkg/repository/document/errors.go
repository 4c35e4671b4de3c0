package document

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation classifies invalid caller input: bad configuration, ids or page numbers.
	ErrValidation = errors.New("document validation error")
	// ErrInvalidID is returned when an id string is not a valid native identifier.
	ErrInvalidID = fmt.Errorf("%w: invalid document id", ErrValidation)
	// ErrNotFound classifies reads and mutations that target a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrConflict classifies uniqueness violations on key fields.
	ErrConflict = errors.New("document conflict")
)

func documentError(kind error, message string) error {
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}
