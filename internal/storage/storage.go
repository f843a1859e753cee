// Package storage persists identity photographs and resolves the relative
// references stored alongside each identity.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-registry/internal/constants"
)

// Accepted image content types
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
)

var (
	// ErrUnsupportedType is returned for content types other than JPEG and PNG.
	ErrUnsupportedType = errors.New("unsupported content type")
	// ErrImageNotFound is returned when a reference points at nothing.
	ErrImageNotFound = errors.New("image not found")
	// ErrInvalidRef is returned for references that escape the image root.
	ErrInvalidRef = errors.New("invalid image reference")
)

// AllowedMIMETypes maps allowed MIME types to their file extensions
var AllowedMIMETypes = map[string]string{
	MIMEImageJPEG: ".jpg",
	MIMEImagePNG:  ".png",
}

// ImageStore saves and serves identity images by relative reference.
type ImageStore interface {
	// Save stores data and returns its new reference, e.g. usuarios/<uuid>.jpg
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	// Open returns the image bytes, ErrImageNotFound if missing
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Delete removes the image; deleting a missing image is not an error
	Delete(ctx context.Context, ref string) error
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	if _, ok := AllowedMIMETypes[contentType]; !ok {
		return ErrUnsupportedType
	}
	return nil
}

// NewRef generates a fresh reference for an image of the given type.
func NewRef(contentType string) (string, error) {
	ext, ok := AllowedMIMETypes[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	return constants.ImageSubdir + "/" + uuid.NewString() + ext, nil
}

// CleanRef validates a reference and returns it in canonical form. Absolute
// paths and anything that climbs out of the image root are rejected.
func CleanRef(ref string) (string, error) {
	if ref == "" || strings.HasPrefix(ref, "/") || strings.Contains(ref, "\\") {
		return "", ErrInvalidRef
	}
	cleaned := path.Clean(ref)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidRef
	}
	return cleaned, nil
}

// ContentTypeForRef derives the served content type from the reference extension.
func ContentTypeForRef(ref string) string {
	switch strings.ToLower(path.Ext(ref)) {
	case ".png":
		return MIMEImagePNG
	case ".jpg", ".jpeg":
		return MIMEImageJPEG
	}
	return "application/octet-stream"
}
