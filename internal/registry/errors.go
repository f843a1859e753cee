package registry

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-registry/internal/database"
)

var (
	// ErrUnsupportedMedia is returned for images that are neither JPEG nor PNG.
	ErrUnsupportedMedia = errors.New("unsupported image type, only image/jpeg and image/png are accepted")
	// ErrDuplicateFace matches any *DuplicateFaceError via errors.Is.
	ErrDuplicateFace = errors.New("face already registered")
	// ErrDuplicateEmail is returned when another identity uses the same email.
	ErrDuplicateEmail = database.ErrDuplicateEmail
	// ErrNotFound is returned when the identity does not exist.
	ErrNotFound = database.ErrNotFound
)

// ValidationError reports a malformed or missing input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// DuplicateFaceError is returned when the submitted face is closer than the
// duplicate threshold to an already registered identity.
type DuplicateFaceError struct {
	ExistingID int64
	Distance   float64
}

func (e *DuplicateFaceError) Error() string {
	return fmt.Sprintf("face already registered (identity %d, distance %.4f)", e.ExistingID, e.Distance)
}

func (e *DuplicateFaceError) Is(target error) bool {
	return target == ErrDuplicateFace
}

// StorageError wraps a failure of the image store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("image storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
