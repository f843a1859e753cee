package registry

import (
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/storage"
)

// \w is ASCII-only in RE2; non-ASCII local parts are rejected.
var emailPattern = regexp.MustCompile(`^[\w.\-]+@[\w.\-]+\.\w+$`)

// NormalizeName trims and NFC-normalizes a name or surname and checks its length.
func NormalizeName(field, value string) (string, error) {
	value = strings.TrimSpace(norm.NFC.String(value))
	if value == "" {
		return "", &ValidationError{Field: field, Message: "must not be empty"}
	}
	if utf8.RuneCountInString(value) > constants.MaxNameLength {
		return "", &ValidationError{Field: field, Message: "is too long"}
	}
	return value, nil
}

// NormalizeEmail trims and lowercases an email. An empty email is accepted
// only when not required.
func NormalizeEmail(value string, required bool) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		if required {
			return "", &ValidationError{Field: "email", Message: "must not be empty"}
		}
		return "", nil
	}
	if len(value) > constants.MaxEmailLength {
		return "", &ValidationError{Field: "email", Message: "is too long"}
	}
	if !emailPattern.MatchString(value) {
		return "", &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	return value, nil
}

// checkImage verifies an uploaded image and returns its bare content type.
func checkImage(img Image) (string, error) {
	if len(img.Data) == 0 {
		return "", &ValidationError{Field: "image", Message: "is required"}
	}
	contentType := strings.ToLower(strings.TrimSpace(img.ContentType))
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	if storage.ValidateContentType(contentType) != nil {
		return "", ErrUnsupportedMedia
	}
	return contentType, nil
}
