// Package search coordinates the incremental indexing passes and query
// execution over the page index.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/embedding"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/notebook"
)

// snippetRadius is how many characters of context an exact-match snippet
// carries on each side of the hit.
const snippetRadius = 80

// Stats summarizes one indexing pass.
type Stats struct {
	Total    int `json:"total"`
	Embedded int `json:"embedded"`
	Kept     int `json:"kept"`
	Removed  int `json:"removed"`
	Skipped  int `json:"skipped"`
}

// Result is one search hit, semantic or exact.
type Result struct {
	PageID     string    `json:"page_id"`
	Title      string    `json:"title"`
	Notebook   string    `json:"notebook"`
	Section    string    `json:"section"`
	Provenance string    `json:"provenance"`
	Score      float32   `json:"score,omitempty"`
	Snippet    string    `json:"snippet,omitempty"`
	Modified   time.Time `json:"modified"`
}

// EventSink receives page change notifications. The SSE broker satisfies it.
type EventSink interface {
	PublishPageEvent(kind, pageID string)
}

// Coordinator owns the index lifecycle. One mutex serializes indexing
// passes and queries: a search that arrives during a refresh waits for
// the refresh to finish and then sees its results.
type Coordinator struct {
	db       index.PageIndex
	embedder embedding.Embedder
	logger   *slog.Logger
	events   EventSink

	mu       sync.Mutex
	sources  map[notebook.Provenance]notebook.Source
	active   notebook.Provenance
	snapshot map[notebook.Provenance][]notebook.Page
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithEvents wires an event sink for page change notifications.
func WithEvents(sink EventSink) Option {
	return func(c *Coordinator) { c.events = sink }
}

// NewCoordinator creates a coordinator over the given index and embedder.
// Sources are registered separately; the first registered source becomes
// active.
func NewCoordinator(db index.PageIndex, embedder embedding.Embedder, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		db:       db,
		embedder: embedder,
		logger:   logger,
		sources:  make(map[notebook.Provenance]notebook.Source),
		snapshot: make(map[notebook.Provenance][]notebook.Page),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterSource adds a page source. The first registered source becomes
// the active one.
func (c *Coordinator) RegisterSource(src notebook.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sources) == 0 {
		c.active = src.Provenance()
	}
	c.sources[src.Provenance()] = src
}

// SetActive switches the active backend.
func (c *Coordinator) SetActive(prov notebook.Provenance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sources[prov]; !ok {
		return fmt.Errorf("search: source %q not configured: %w", prov, apperr.ErrSourceUnavailable)
	}
	c.active = prov
	return nil
}

// Active reports the active backend.
func (c *Coordinator) Active() notebook.Provenance {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Coordinator) activeSource() (notebook.Source, error) {
	src, ok := c.sources[c.active]
	if !ok {
		return nil, fmt.Errorf("search: no source configured: %w", apperr.ErrSourceUnavailable)
	}
	return src, nil
}

// Refresh brings the index up to date with the active source:
//   - new and changed pages are embedded and upserted
//   - unchanged pages (same fingerprint) are left alone
//   - pages that disappeared from the source are removed
//
// Removal is scoped to the active source's provenance so refreshing one
// backend never purges the other's records.
func (c *Coordinator) Refresh(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, false)
}

// Rebuild re-embeds every page of the active source, ignoring stored
// fingerprints.
func (c *Coordinator) Rebuild(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx, true)
}

func (c *Coordinator) refreshLocked(ctx context.Context, force bool) (Stats, error) {
	var stats Stats

	src, err := c.activeSource()
	if err != nil {
		return stats, err
	}
	prov := string(src.Provenance())

	pages, err := src.Pages(ctx, notebook.Scope{})
	if err != nil {
		return stats, fmt.Errorf("search: list pages: %w", err)
	}
	stats.Total = len(pages)

	stored, err := c.db.Fingerprints(prov)
	if err != nil {
		return stats, err
	}

	var records []index.Record
	seen := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		seen[p.ID] = struct{}{}

		fp := checksum.PageSum(p.Title+"\n"+p.Text, p.ImageTexts)
		if !force && stored[p.ID] == fp {
			stats.Kept++
			continue
		}

		rec := index.Record{
			PageID:      p.ID,
			Fingerprint: fp,
			Notebook:    p.Notebook,
			Section:     p.Section,
			Title:       p.Title,
			Provenance:  prov,
			Modified:    p.Modified,
		}

		// Pages without text are tracked for change detection but carry
		// no vector, so they never surface in semantic search.
		if text := strings.TrimSpace(p.EmbedText()); text != "" {
			vec, err := c.embedder.Embed(ctx, text)
			if err != nil {
				// Leave any prior record in place and retry next pass.
				c.logger.Warn("search: embed failed",
					slog.String("page", p.ID),
					slog.String("error", err.Error()))
				stats.Skipped++
				continue
			}
			rec.Vector = vec
			stats.Embedded++
		}
		records = append(records, rec)
	}

	var removed []string
	for id := range stored {
		if _, ok := seen[id]; !ok {
			removed = append(removed, id)
		}
	}

	if err := c.db.Upsert(records); err != nil {
		return stats, err
	}
	if err := c.db.Remove(removed); err != nil {
		return stats, err
	}
	stats.Removed = len(removed)

	c.snapshot[src.Provenance()] = pages

	if c.events != nil {
		for _, r := range records {
			c.events.PublishPageEvent("indexed", r.PageID)
		}
		for _, id := range removed {
			c.events.PublishPageEvent("removed", id)
		}
	}

	c.logger.Info("search: index refreshed",
		slog.String("source", prov),
		slog.Int("total", stats.Total),
		slog.Int("embedded", stats.Embedded),
		slog.Int("kept", stats.Kept),
		slog.Int("removed", stats.Removed))
	return stats, nil
}

// Search refreshes the index and then runs the query. exact switches
// from semantic ranking to case-insensitive substring matching over the
// current page snapshot.
func (c *Coordinator) Search(ctx context.Context, query string, k int, exact bool, scope notebook.Scope) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	if k <= 0 {
		k = 10
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Queries always see the current source state.
	if _, err := c.refreshLocked(ctx, false); err != nil {
		c.logger.Warn("search: refresh before query failed", slog.String("error", err.Error()))
	}

	if exact {
		return c.exactLocked(query, k, scope), nil
	}

	vec, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %v: %w", err, apperr.ErrEmbedderUnavailable)
	}
	hits, err := c.db.Search(vec, k, scope)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			PageID:     h.PageID,
			Title:      h.Title,
			Notebook:   h.Notebook,
			Section:    h.Section,
			Provenance: h.Provenance,
			Score:      h.Score,
			Modified:   h.Modified,
		})
	}
	return results, nil
}

// exactLocked scans the active snapshot for substring matches, in page
// enumeration order.
func (c *Coordinator) exactLocked(query string, k int, scope notebook.Scope) []Result {
	needle := strings.ToLower(query)

	var results []Result
	for _, p := range c.snapshot[c.active] {
		if !scope.Matches(p.Notebook, p.Section) {
			continue
		}
		haystack := p.Title + "\n" + p.FullText()
		pos := strings.Index(strings.ToLower(haystack), needle)
		if pos < 0 {
			continue
		}
		results = append(results, Result{
			PageID:     p.ID,
			Title:      p.Title,
			Notebook:   p.Notebook,
			Section:    p.Section,
			Provenance: string(p.Provenance),
			Snippet:    snippet(haystack, pos, len(query)),
			Modified:   p.Modified,
		})
		if len(results) == k {
			break
		}
	}
	return results
}

// snippet returns the match with surrounding context, ellipsized where
// the page continues beyond the window. Cut points back off to rune
// boundaries so multi-byte text never gets split mid-rune.
func snippet(text string, pos, matchLen int) string {
	start := pos - snippetRadius
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := pos + matchLen + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	s := strings.ReplaceAll(text[start:end], "\n", " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(text) {
		s += "..."
	}
	return s
}

// Notebooks lists the active source's notebooks.
func (c *Coordinator) Notebooks(ctx context.Context) ([]notebook.NotebookRef, error) {
	c.mu.Lock()
	src, err := c.activeSource()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return src.Notebooks(ctx)
}

// Sections lists one notebook's sections from the active source.
func (c *Coordinator) Sections(ctx context.Context, nb string) ([]notebook.SectionRef, error) {
	c.mu.Lock()
	src, err := c.activeSource()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	secs, err := src.Sections(ctx, nb)
	if err != nil {
		return nil, err
	}
	if len(secs) == 0 {
		available, listErr := c.availableNotebooks(ctx, src)
		if listErr == nil && !containsFold(available, nb) {
			return nil, fmt.Errorf("search: notebook %q: %w (available: %s)",
				nb, apperr.ErrNotFound, strings.Join(available, ", "))
		}
	}
	return secs, nil
}

// Pages lists in-scope pages from the active source.
func (c *Coordinator) Pages(ctx context.Context, scope notebook.Scope) ([]notebook.Page, error) {
	c.mu.Lock()
	src, err := c.activeSource()
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return src.Pages(ctx, scope)
}

// ReadPage finds one page by notebook, section and title. Title matching
// is case-insensitive; the not-found error names the titles that exist.
func (c *Coordinator) ReadPage(ctx context.Context, nb, sec, title string) (*notebook.Page, error) {
	pages, err := c.Pages(ctx, notebook.Scope{Notebook: nb, Section: sec})
	if err != nil {
		return nil, err
	}
	var titles []string
	for i := range pages {
		if strings.EqualFold(pages[i].Title, title) {
			return &pages[i], nil
		}
		titles = append(titles, pages[i].Title)
	}
	return nil, fmt.Errorf("search: page %q in %s/%s: %w (available: %s)",
		title, nb, sec, apperr.ErrNotFound, strings.Join(titles, ", "))
}

// Count reports the number of indexed pages.
func (c *Coordinator) Count() (int, error) {
	return c.db.Count()
}

func (c *Coordinator) availableNotebooks(ctx context.Context, src notebook.Source) ([]string, error) {
	nbs, err := src.Notebooks(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(nbs))
	for _, n := range nbs {
		names = append(names, n.Name)
	}
	return names, nil
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
