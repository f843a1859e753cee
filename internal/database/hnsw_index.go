package database

import (
	"errors"
	"sync"

	"github.com/coder/hnsw"
)

// ErrIndexEmpty is returned when searching an index that holds no vectors.
var ErrIndexEmpty = errors.New("index not initialized")

// IdentityIndex wraps an HNSW graph over identity embeddings.
// Distances returned by Search are exact cosine distances recomputed from the
// stored vectors, the graph is only used to pick candidates.
type IdentityIndex struct {
	graph *hnsw.Graph[int64]
	dims  int
	mu    sync.RWMutex
}

// NewIdentityIndex creates a new empty index.
func NewIdentityIndex() *IdentityIndex {
	return &IdentityIndex{}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index contents with the given identities.
// Identities with empty or zero embeddings, or with a dimension that differs
// from the first indexed one, are skipped; their IDs are returned.
func (h *IdentityIndex) Build(identities []Identity) (skipped []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graph = nil
	h.dims = 0

	for i := range identities {
		if !h.addLocked(identities[i].ID, identities[i].Embedding) {
			skipped = append(skipped, identities[i].ID)
		}
	}
	return skipped
}

// Add inserts one identity. It reports false when the embedding cannot be indexed.
func (h *IdentityIndex) Add(id int64, embedding []float32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addLocked(id, embedding)
}

func (h *IdentityIndex) addLocked(id int64, embedding []float32) bool {
	if IsZeroVector(embedding) {
		return false
	}
	if h.graph == nil {
		h.graph = newGraph()
		h.dims = len(embedding)
	}
	if len(embedding) != h.dims {
		return false
	}
	h.graph.Add(hnsw.MakeNode(id, embedding))
	return true
}

// Delete removes an identity from the index.
func (h *IdentityIndex) Delete(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.graph == nil {
		return false
	}
	return h.graph.Delete(id)
}

// Search finds the k nearest neighbors to the query embedding.
// Returns identity IDs and their distances, closest first.
func (h *IdentityIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil || h.graph.Len() == 0 {
		return nil, nil, ErrIndexEmpty
	}
	if len(query) != h.dims || IsZeroVector(query) {
		return nil, nil, nil
	}

	neighbors := h.graph.Search(query, k)

	ids := make([]int64, len(neighbors))
	distances := make([]float64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.Key
		distances[i] = CosineDistance(query, n.Value)
	}

	return ids, distances, nil
}

// Count returns the number of indexed identities.
func (h *IdentityIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.graph == nil {
		return 0
	}
	return h.graph.Len()
}

// Dims returns the embedding dimension of the index, 0 when empty.
func (h *IdentityIndex) Dims() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dims
}
