package store

import (
	"errors"

	"github.com/phrazzld/audiopaper-api/internal/domain"
)

// Store errors. The not-found and conflict errors alias the domain sentinels
// so errors.Is works the same on either side of the store boundary.
var (
	ErrNotFound         = domain.ErrNotFound
	ErrTaskNotFound     = domain.ErrTaskNotFound
	ErrDocumentNotFound = domain.ErrDocumentNotFound
	ErrActiveTaskExists = domain.ErrActiveTaskExists

	// ErrDuplicate is returned when an insert collides with an existing row.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation or a
	// database constraint. The wrapped error carries the detail.
	ErrInvalidEntity = errors.New("invalid entity")
)

// IsNotFoundError reports whether err is any kind of not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
