package pagination

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPage classifies every page-number validation failure.
	ErrInvalidPage = errors.New("invalid page")
	// ErrPageNotInteger is returned when the page number cannot be read as an integer.
	ErrPageNotInteger = fmt.Errorf("%w: page number must be an integer", ErrInvalidPage)
	// ErrPageLessThanOne is returned for page numbers below 1.
	ErrPageLessThanOne = fmt.Errorf("%w: page number must be greater than 0", ErrInvalidPage)
	// ErrEmptyPage is returned when the requested page holds no records.
	ErrEmptyPage = fmt.Errorf("%w: requested page contains no records", ErrInvalidPage)
)
