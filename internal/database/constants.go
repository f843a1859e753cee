package database

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100
)

// RegistryLockName is the advisory lock taken around duplicate-check-then-write.
const RegistryLockName = "face_registry_write"

// RegistryLockKey is RegistryLockName as a PostgreSQL advisory lock key.
const RegistryLockKey int64 = 0x66616365 // "face"
