// Package remote implements a client for a Graph-style OneNote HTTP API:
// notebook/section hierarchy, page listing, page content, and page writes.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// TokenSource supplies the bearer token for API calls.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a fixed token, useful for tests and pre-issued tokens.
type StaticToken string

func (s StaticToken) Token() (string, error) {
	if s == "" {
		return "", fmt.Errorf("remote: no access token configured")
	}
	return string(s), nil
}

// FileToken reads the token from a file on every call, so an external
// auth helper can refresh it without restarting the server.
type FileToken string

func (f FileToken) Token() (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("remote: read token file: %w", err)
	}
	tok := strings.TrimSpace(string(data))
	if tok == "" {
		return "", fmt.Errorf("remote: token file is empty")
	}
	return tok, nil
}

// Notebook is one remote notebook with its sections.
type Notebook struct {
	ID       string    `json:"id"`
	Name     string    `json:"displayName"`
	Sections []Section `json:"sections"`
}

// Section is one remote section.
type Section struct {
	ID   string `json:"id"`
	Name string `json:"displayName"`
}

// PageMeta is page metadata as listed by the API, without content.
type PageMeta struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Created  time.Time `json:"createdDateTime"`
	Modified time.Time `json:"lastModifiedDateTime"`
}

// Client talks to the remote notebook API. The notebook/section
// hierarchy is cached in memory until invalidated; page listings and
// content are always fetched fresh.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client

	mu        sync.Mutex
	hierarchy []Notebook
}

// NewClient returns a client for baseURL (no trailing slash).
func NewClient(baseURL string, tokens TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// InvalidateCache clears the cached hierarchy so the next call refetches.
func (c *Client) InvalidateCache() {
	c.mu.Lock()
	c.hierarchy = nil
	c.mu.Unlock()
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, error) {
	token, err := c.tokens.Token()
	if err != nil {
		return nil, err
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %v: %w", method, path, err, apperr.ErrSourceUnavailable)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// checkStatus maps common API failures to descriptive errors.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := apiErrorMessage(resp)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("remote: authentication expired or invalid, re-authenticate and retry (%s)", msg)
	case http.StatusTooManyRequests:
		return fmt.Errorf("remote: rate limited, wait a moment and try again (%s)", msg)
	case http.StatusNotFound:
		return fmt.Errorf("remote: %s: %w", msg, apperr.ErrNotFound)
	default:
		return fmt.Errorf("remote: api error %d: %s", resp.StatusCode, msg)
	}
}

func apiErrorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) ensureHierarchy(ctx context.Context) ([]Notebook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hierarchy != nil {
		return c.hierarchy, nil
	}

	resp, err := c.do(ctx, http.MethodGet,
		"/me/onenote/notebooks?$expand=sections($select=id,displayName)&$select=id,displayName", "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Value []Notebook `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote: decode hierarchy: %w", err)
	}
	c.hierarchy = payload.Value
	return c.hierarchy, nil
}

// ListNotebooks returns all remote notebooks.
func (c *Client) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	return c.ensureHierarchy(ctx)
}

// ListSections returns the sections of the named notebook. Lookup is
// case-insensitive; the error for an unknown notebook names the
// available ones.
func (c *Client) ListSections(ctx context.Context, notebookName string) ([]Section, error) {
	nb, err := c.findNotebook(ctx, notebookName)
	if err != nil {
		return nil, err
	}
	return nb.Sections, nil
}

func (c *Client) findNotebook(ctx context.Context, name string) (*Notebook, error) {
	notebooks, err := c.ensureHierarchy(ctx)
	if err != nil {
		return nil, err
	}
	for i := range notebooks {
		if strings.EqualFold(notebooks[i].Name, name) {
			return &notebooks[i], nil
		}
	}
	names := make([]string, 0, len(notebooks))
	for _, nb := range notebooks {
		names = append(names, nb.Name)
	}
	return nil, fmt.Errorf("remote: notebook %q: %w (available: %s)",
		name, apperr.ErrNotFound, strings.Join(names, ", "))
}

func (c *Client) findSection(ctx context.Context, notebookName, sectionName string) (*Section, error) {
	nb, err := c.findNotebook(ctx, notebookName)
	if err != nil {
		return nil, err
	}
	for i := range nb.Sections {
		if strings.EqualFold(nb.Sections[i].Name, sectionName) {
			return &nb.Sections[i], nil
		}
	}
	names := make([]string, 0, len(nb.Sections))
	for _, s := range nb.Sections {
		names = append(names, s.Name)
	}
	return nil, fmt.Errorf("remote: section %q in %q: %w (available: %s)",
		sectionName, nb.Name, apperr.ErrNotFound, strings.Join(names, ", "))
}

// ListPages returns the page metadata for one section, in creation order.
func (c *Client) ListPages(ctx context.Context, notebookName, sectionName string) ([]PageMeta, error) {
	sec, err := c.findSection(ctx, notebookName, sectionName)
	if err != nil {
		return nil, err
	}

	path := fmt.Sprintf("/me/onenote/sections/%s/pages?$select=id,title,createdDateTime,lastModifiedDateTime&$orderby=createdDateTime", sec.ID)
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Value []PageMeta `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("remote: decode pages: %w", err)
	}
	return payload.Value, nil
}

// PageContent fetches the raw HTML content of a page.
func (c *Client) PageContent(ctx context.Context, pageID string) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/me/onenote/pages/"+pageID+"/content", "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("remote: read page content: %w", err)
	}
	return string(raw), nil
}

// looksLikeHTML reports whether content already carries markup.
var looksLikeHTML = regexp.MustCompile(`<[a-zA-Z]`)

// wrapPlainText converts plain text to paragraph HTML; content that
// already contains tags passes through unchanged.
func wrapPlainText(content string) string {
	if looksLikeHTML.MatchString(content) {
		return content
	}
	return "<p>" + strings.ReplaceAll(html.EscapeString(content), "\n", "</p>\n<p>") + "</p>"
}

// CreatePage creates a page in the named section and returns its ID.
// The API requires a full XHTML document with the title in <head>.
func (c *Client) CreatePage(ctx context.Context, notebookName, sectionName, title, content string) (string, error) {
	sec, err := c.findSection(ctx, notebookName, sectionName)
	if err != nil {
		return "", err
	}

	doc := fmt.Sprintf("<!DOCTYPE html>\n<html>\n<head>\n  <title>%s</title>\n</head>\n<body>\n  %s\n</body>\n</html>",
		html.EscapeString(title), wrapPlainText(content))

	resp, err := c.do(ctx, http.MethodPost, "/me/onenote/sections/"+sec.ID+"/pages",
		"application/xhtml+xml", []byte(doc))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("remote: decode create response: %w", err)
	}
	return created.ID, nil
}

// AppendToPage appends content to the body of an existing page.
func (c *Client) AppendToPage(ctx context.Context, pageID, content string) error {
	patch := []map[string]string{{
		"target":  "body",
		"action":  "append",
		"content": "<div>" + wrapPlainText(content) + "</div>",
	}}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("remote: marshal patch: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/me/onenote/pages/"+pageID+"/content",
		"application/json", body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
