package database

import (
	"time"
)

// Identity is a registered person together with their face embedding.
type Identity struct {
	ID        int64
	Name      string
	Surname   string
	Email     string    // empty when not provided; stored as NULL
	Embedding []float32 // fixed length per embedding model, never empty once stored
	ImageRef  string    // relative image path (usuarios/<uuid>.jpg), empty when none
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AuditRecord is one immutable entry of the request history.
type AuditRecord struct {
	ID        int64
	Action    string
	Method    string
	Endpoint  string
	Status    int
	IP        string
	UserAgent string
	Timestamp time.Time
}

// DuplicatePair is two stored identities whose embeddings are closer than
// the duplicate threshold.
type DuplicatePair struct {
	A, B     int64
	Distance float64
}
