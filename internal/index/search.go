package index

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/starford/ansuz/internal/notebook"
)

// minScore filters out hits with near-zero similarity so unrelated pages
// never pad the result list.
const minScore = 0.1

// Hit is one semantic search result.
type Hit struct {
	PageID     string
	Notebook   string
	Section    string
	Title      string
	Provenance string
	Modified   time.Time
	Score      float32
}

// Search returns up to k pages ranked by cosine similarity to queryVec,
// restricted to scope when it is non-zero. Pages without a stored vector
// are skipped. Equal scores break ties by most recent modification, then
// title.
func (db *DB) Search(queryVec []float32, k int, scope notebook.Scope) ([]Hit, error) {
	if k <= 0 {
		k = 10
	}

	query := `SELECT page_id, notebook, section, title, provenance, modified, vector
		FROM pages WHERE vector IS NOT NULL`
	args := []any{}
	if scope.Notebook != "" {
		query += ` AND notebook = ? COLLATE NOCASE`
		args = append(args, scope.Notebook)
	}
	if scope.Section != "" {
		query += ` AND section = ? COLLATE NOCASE`
		args = append(args, scope.Section)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		if err := rows.Scan(&h.PageID, &h.Notebook, &h.Section, &h.Title, &h.Provenance, &h.Modified, &blob); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		if vec == nil {
			continue
		}
		h.Score = cosineSimilarity(queryVec, vec)
		if h.Score < minScore {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if !hits[i].Modified.Equal(hits[j].Modified) {
			return hits[i].Modified.After(hits[j].Modified)
		}
		return hits[i].Title < hits[j].Title
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
