// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultFaceThreshold is the default maximum cosine distance at which a
	// probe is recognized and a new registration is rejected as a duplicate.
	// Lower values = stricter matching
	DefaultFaceThreshold = 0.37

	// DefaultDuplicateNeighbors is the number of HNSW neighbours inspected per
	// identity when auditing the registry for near-duplicates
	DefaultDuplicateNeighbors = 5
)

// Identity validation constants
const (
	// MaxNameLength is the maximum length (in characters) of name and surname
	MaxNameLength = 100

	// MaxEmailLength is the maximum length of a stored email address
	MaxEmailLength = 255
)

// Upload constants
const (
	// MaxUploadSize is the maximum multipart body accepted by upload endpoints
	MaxUploadSize = 20 << 20

	// MaxImageSize is the maximum dimension (width or height) sent to the
	// embedding provider; larger images are downscaled first
	MaxImageSize = 1920

	// ImageSubdir is the logical subpath under which identity photos are stored
	ImageSubdir = "usuarios"
)

// Token constants
const (
	// TokenDigits is the width of an issued session token
	TokenDigits = 6
)

// History constants
const (
	// DefaultHistoryLimit is the number of audit records returned when no limit is given
	DefaultHistoryLimit = 100

	// MaxHistoryLimit caps the limit query parameter on history listings
	MaxHistoryLimit = 1000

	// AuditWriteTimeout bounds a single detached audit write
	AuditWriteTimeout = 5 * time.Second
)

// Server constants
const (
	// ShutdownTimeout is how long serve waits for in-flight requests on exit
	ShutdownTimeout = 30 * time.Second

	// RequestTimeout is the per-request deadline applied by the router
	RequestTimeout = 2 * time.Minute
)
