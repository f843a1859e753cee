package facematch

import (
	"cmp"
	"slices"

	"github.com/kozaktomas/face-registry/internal/database"
)

// FindDuplicatePairs scans the registry for pairs of identities closer than
// threshold. The HNSW index proposes up to k neighbours per identity and the
// exact cosine distance decides. progress, when set, is called once per
// identity. Pairs are sorted closest first and each appears once with A < B.
func FindDuplicatePairs(index *database.IdentityIndex, identities []database.Identity, threshold float64, k int, progress func()) ([]database.DuplicatePair, error) {
	if index.Count() == 0 {
		return nil, nil
	}

	seen := make(map[[2]int64]bool)
	var pairs []database.DuplicatePair

	for i := range identities {
		if progress != nil {
			progress()
		}
		ids, distances, err := index.Search(identities[i].Embedding, k+1)
		if err != nil {
			return nil, err
		}
		for j, other := range ids {
			if other == identities[i].ID || distances[j] >= threshold {
				continue
			}
			key := [2]int64{min(other, identities[i].ID), max(other, identities[i].ID)}
			if seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, database.DuplicatePair{A: key[0], B: key[1], Distance: distances[j]})
		}
	}

	slices.SortFunc(pairs, func(a, b database.DuplicatePair) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		if c := cmp.Compare(a.A, b.A); c != 0 {
			return c
		}
		return cmp.Compare(a.B, b.B)
	})
	return pairs, nil
}
