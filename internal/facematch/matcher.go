// Package facematch decides identity from face embeddings: recognition of a
// probe against the registry and rejection of near-duplicate registrations.
package facematch

import (
	"github.com/kozaktomas/face-registry/internal/database"
)

// Outcome is the kind of a recognition result.
type Outcome string

const (
	Recognized   Outcome = "recognized"    // nearest identity is within the match threshold
	Unmatched    Outcome = "unmatched"     // identities exist but none is close enough
	NoCandidates Outcome = "no_candidates" // nothing registered to compare against
)

// Candidate is one stored embedding taking part in a comparison.
type Candidate struct {
	ID        int64
	Embedding []float32
}

// Result is the outcome of Recognize. ID is set only for Recognized and
// Distance is meaningless for NoCandidates.
type Result struct {
	Outcome  Outcome
	ID       int64
	Distance float64
}

// Matcher holds the two distance thresholds. Comparisons are strict: a
// distance equal to the threshold does not match.
type Matcher struct {
	MatchThreshold     float64
	DuplicateThreshold float64
}

// NewMatcher creates a matcher with the given thresholds.
func NewMatcher(matchThreshold, duplicateThreshold float64) *Matcher {
	return &Matcher{MatchThreshold: matchThreshold, DuplicateThreshold: duplicateThreshold}
}

// Candidates converts identities to candidates, preserving order.
func Candidates(identities []database.Identity) []Candidate {
	out := make([]Candidate, len(identities))
	for i := range identities {
		out[i] = Candidate{ID: identities[i].ID, Embedding: identities[i].Embedding}
	}
	return out
}

// Nearest returns the candidate closest to query. Candidates without an
// embedding and the candidate with ID exclude (when non-zero) are skipped.
// On equal distances the earlier candidate wins. ok is false when no
// candidate was compared.
func Nearest(query []float32, candidates []Candidate, exclude int64) (best Candidate, distance float64, ok bool) {
	for _, c := range candidates {
		if len(c.Embedding) == 0 || (exclude != 0 && c.ID == exclude) {
			continue
		}
		d := database.CosineDistance(query, c.Embedding)
		if !ok || d < distance {
			best, distance, ok = c, d, true
		}
	}
	return best, distance, ok
}

// Recognize matches a probe embedding against the registry.
func (m *Matcher) Recognize(query []float32, candidates []Candidate) Result {
	best, distance, ok := Nearest(query, candidates, 0)
	if !ok {
		return Result{Outcome: NoCandidates}
	}
	if distance < m.MatchThreshold {
		return Result{Outcome: Recognized, ID: best.ID, Distance: distance}
	}
	return Result{Outcome: Unmatched, Distance: distance}
}

// FindDuplicate reports the nearest candidate closer than the duplicate
// threshold, ignoring the identity being updated (exclude, 0 for none).
// An empty registry never has a duplicate.
func (m *Matcher) FindDuplicate(query []float32, candidates []Candidate, exclude int64) (Candidate, float64, bool) {
	best, distance, ok := Nearest(query, candidates, exclude)
	if !ok || distance >= m.DuplicateThreshold {
		return Candidate{}, distance, false
	}
	return best, distance, true
}
