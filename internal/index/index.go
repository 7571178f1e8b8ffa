package index

import "github.com/starford/ansuz/internal/notebook"

// PageIndex defines the persistence operations the search coordinator
// needs. Consumers should depend on this interface rather than the
// concrete *DB type to facilitate testing with mocks.
type PageIndex interface {
	Fingerprints(provenance string) (map[string]string, error)
	Upsert(records []Record) error
	Remove(pageIDs []string) error
	Count() (int, error)
	Search(queryVec []float32, k int, scope notebook.Scope) ([]Hit, error)
	Reset() error
	Close() error
}

// Verify *DB satisfies PageIndex at compile time.
var _ PageIndex = (*DB)(nil)
