package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/starford/ansuz/internal/apperr"
)

func testServer(t *testing.T, hierarchyCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/me/onenote/notebooks", func(w http.ResponseWriter, r *http.Request) {
		if hierarchyCalls != nil {
			hierarchyCalls.Add(1)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"value": []Notebook{
				{ID: "nb1", Name: "Work", Sections: []Section{{ID: "s1", Name: "Planning"}}},
				{ID: "nb2", Name: "Home", Sections: nil},
			},
		})
	})
	mux.HandleFunc("/me/onenote/sections/s1/pages", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"value": []PageMeta{{ID: "p1", Title: "Roadmap"}},
			})
		case http.MethodPost:
			if ct := r.Header.Get("Content-Type"); ct != "application/xhtml+xml" {
				t.Errorf("create content type = %q", ct)
			}
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"id": "p-new"})
		}
	})
	mux.HandleFunc("/me/onenote/pages/p1/content", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Write([]byte("<html><body><p>hello</p></body></html>"))
		case http.MethodPatch:
			var patch []map[string]string
			if err := json.NewDecoder(r.Body).Decode(&patch); err != nil || len(patch) != 1 {
				t.Errorf("bad patch body: %v", err)
			}
			if patch[0]["action"] != "append" {
				t.Errorf("action = %q", patch[0]["action"])
			}
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"no such resource"}}`, http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_HierarchyCached(t *testing.T) {
	var calls atomic.Int32
	srv := testServer(t, &calls)
	c := NewClient(srv.URL, StaticToken("test-token"))
	ctx := context.Background()

	nbs, err := c.ListNotebooks(ctx)
	if err != nil {
		t.Fatalf("ListNotebooks: %v", err)
	}
	if len(nbs) != 2 || nbs[0].Name != "Work" {
		t.Errorf("notebooks = %+v", nbs)
	}

	// Second listing and section lookups reuse the cache.
	if _, err := c.ListSections(ctx, "work"); err != nil {
		t.Fatalf("ListSections: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("hierarchy fetched %d times, want 1", calls.Load())
	}

	c.InvalidateCache()
	if _, err := c.ListNotebooks(ctx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("hierarchy fetched %d times after invalidate, want 2", calls.Load())
	}
}

func TestClient_UnknownNamesListAvailable(t *testing.T) {
	srv := testServer(t, nil)
	c := NewClient(srv.URL, StaticToken("test-token"))
	ctx := context.Background()

	_, err := c.ListSections(ctx, "Nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "Work") {
		t.Errorf("error should list available notebooks: %v", err)
	}

	_, err = c.ListPages(ctx, "Work", "Nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "Planning") {
		t.Errorf("error should list available sections: %v", err)
	}
}

func TestClient_PagesAndContent(t *testing.T) {
	srv := testServer(t, nil)
	c := NewClient(srv.URL, StaticToken("test-token"))
	ctx := context.Background()

	pages, err := c.ListPages(ctx, "Work", "planning")
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 1 || pages[0].Title != "Roadmap" {
		t.Errorf("pages = %+v", pages)
	}

	html, err := c.PageContent(ctx, "p1")
	if err != nil {
		t.Fatalf("PageContent: %v", err)
	}
	if !strings.Contains(html, "hello") {
		t.Errorf("content = %q", html)
	}
}

func TestClient_CreateAndAppend(t *testing.T) {
	srv := testServer(t, nil)
	c := NewClient(srv.URL, StaticToken("test-token"))
	ctx := context.Background()

	id, err := c.CreatePage(ctx, "Work", "Planning", "New Page", "line one\nline two")
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	if id != "p-new" {
		t.Errorf("id = %q", id)
	}

	if err := c.AppendToPage(ctx, "p1", "more text"); err != nil {
		t.Fatalf("AppendToPage: %v", err)
	}
}

func TestClient_AuthError(t *testing.T) {
	srv := testServer(t, nil)
	c := NewClient(srv.URL, StaticToken("wrong"))

	_, err := c.ListNotebooks(context.Background())
	if err == nil || !strings.Contains(err.Error(), "re-authenticate") {
		t.Errorf("err = %v, want re-authenticate hint", err)
	}
}

func TestWrapPlainText(t *testing.T) {
	if got := wrapPlainText("<b>bold</b>"); got != "<b>bold</b>" {
		t.Errorf("markup should pass through, got %q", got)
	}
	got := wrapPlainText("a & b\nc")
	if got != "<p>a &amp; b</p>\n<p>c</p>" {
		t.Errorf("plain text wrap = %q", got)
	}
}

func TestFileToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte("  secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	tok, err := FileToken(path).Token()
	if err != nil {
		t.Fatal(err)
	}
	if tok != "secret" {
		t.Errorf("token = %q", tok)
	}

	if _, err := FileToken(filepath.Join(t.TempDir(), "missing")).Token(); err == nil {
		t.Error("expected error for missing token file")
	}
}
