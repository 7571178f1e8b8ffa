// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes notebook tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/notebook"
	"github.com/starford/ansuz/internal/search"
)

// PageWriter handles page writes on the remote backend. nil disables the
// write tools with a descriptive error.
type PageWriter interface {
	CreatePage(ctx context.Context, nb, sec, title, content string) (string, error)
	AppendToPage(ctx context.Context, pageID, content string) error
}

// Server wraps the MCP server with notebook tools.
type Server struct {
	mcp    *server.MCPServer
	coord  *search.Coordinator
	writer PageWriter
}

// New creates a new MCP server with all notebook tools registered.
func New(coord *search.Coordinator, writer PageWriter) *Server {
	s := &Server{coord: coord, writer: writer}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notebooks",
		mcp.WithDescription("List all notebooks of the active data source."),
	), s.listNotebooks)

	s.mcp.AddTool(mcp.NewTool("list_sections",
		mcp.WithDescription("List the sections of a notebook."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name (case-insensitive)")),
	), s.listSections)

	s.mcp.AddTool(mcp.NewTool("list_all_sections",
		mcp.WithDescription("List every section across all notebooks, grouped by notebook."),
	), s.listAllSections)

	s.mcp.AddTool(mcp.NewTool("get_notebook_summary",
		mcp.WithDescription("Summarize one notebook: its sections and how many pages each holds."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name (case-insensitive)")),
	), s.notebookSummary)

	s.mcp.AddTool(mcp.NewTool("list_pages",
		mcp.WithDescription("List the page titles in a section."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Section name")),
	), s.listPages)

	s.mcp.AddTool(mcp.NewTool("read_section",
		mcp.WithDescription("Read the full text of every page in a section."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Section name")),
	), s.readSection)

	s.mcp.AddTool(mcp.NewTool("read_page",
		mcp.WithDescription("Read the full text of one page."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Section name")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Page title (case-insensitive)")),
	), s.readPage)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Search pages by meaning, or by exact substring when exact_match is true. "+
			"The index refreshes automatically before every search."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithBoolean("exact_match", mcp.Description("Match the query as a literal substring instead of semantically")),
		mcp.WithString("notebook", mcp.Description("Restrict to one notebook")),
		mcp.WithString("section", mcp.Description("Restrict to one section")),
		mcp.WithNumber("k", mcp.Description("Maximum number of results (default 10)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("rebuild_search_index",
		mcp.WithDescription("Re-embed every page from scratch. Use after changing the embedding model "+
			"or when search results look stale."),
	), s.rebuildSearchIndex)

	s.mcp.AddTool(mcp.NewTool("create_page",
		mcp.WithDescription("Create a new page on the remote backend. Content may be plain text or HTML."),
		mcp.WithString("notebook", mcp.Required(), mcp.Description("Notebook name")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Section name")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title for the new page")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Page content")),
	), s.createPage)

	s.mcp.AddTool(mcp.NewTool("append_to_page",
		mcp.WithDescription("Append content to an existing remote page."),
		mcp.WithString("page_id", mcp.Required(), mcp.Description("Page ID from the remote backend")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Content to append")),
	), s.appendToPage)

	s.mcp.AddTool(mcp.NewTool("set_data_source",
		mcp.WithDescription("Switch the active data source between 'local' backup files and the 'remote' API."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Either 'local' or 'remote'")),
	), s.setDataSource)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listNotebooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nbs, err := s.coord.Notebooks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(nbs) == 0 {
		return mcp.NewToolResultText("No notebooks found."), nil
	}
	names := make([]string, 0, len(nbs))
	for _, nb := range nbs {
		names = append(names, "- "+nb.Name)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Notebooks (%s source):\n%s",
		s.coord.Active(), strings.Join(names, "\n"))), nil
}

func (s *Server) listSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	secs, err := s.coord.Sections(ctx, nb)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(secs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Notebook '%s' has no sections.", nb)), nil
	}
	names := make([]string, 0, len(secs))
	for _, sec := range secs {
		names = append(names, "- "+sec.Name)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Sections in '%s':\n%s", nb, strings.Join(names, "\n"))), nil
}

func (s *Server) listAllSections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nbs, err := s.coord.Notebooks(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(nbs) == 0 {
		return mcp.NewToolResultText("No notebooks found."), nil
	}
	var b strings.Builder
	for i, nb := range nbs {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Notebook '%s':\n", nb.Name)
		secs, err := s.coord.Sections(ctx, nb.Name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if len(secs) == 0 {
			b.WriteString("- (no sections)\n")
			continue
		}
		for _, sec := range secs {
			fmt.Fprintf(&b, "- %s\n", sec.Name)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) notebookSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	secs, err := s.coord.Sections(ctx, nb)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(secs) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Notebook '%s' has no sections.", nb)), nil
	}

	var b strings.Builder
	total := 0
	var lines []string
	for _, sec := range secs {
		pages, err := s.coord.Pages(ctx, notebook.Scope{Notebook: nb, Section: sec.Name})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		total += len(pages)
		lines = append(lines, fmt.Sprintf("- %s: %d pages", sec.Name, len(pages)))
	}
	fmt.Fprintf(&b, "Notebook '%s': %d sections, %d pages\n", nb, len(secs), total)
	b.WriteString(strings.Join(lines, "\n"))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sec, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pages, err := s.coord.Pages(ctx, notebook.Scope{Notebook: nb, Section: sec})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(pages) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No pages in %s/%s.", nb, sec)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Pages in %s/%s:\n", nb, sec)
	for _, p := range pages {
		fmt.Fprintf(&b, "- %s\n", p.Title)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) readSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sec, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pages, err := s.coord.Pages(ctx, notebook.Scope{Notebook: nb, Section: sec})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(pages) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No pages in %s/%s.", nb, sec)), nil
	}
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "# %s\n\n%s", p.Title, p.FullText())
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) readPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sec, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.coord.ReadPage(ctx, nb, sec, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("# %s\n\n%s", page.Title, page.FullText())), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	exact := req.GetBool("exact_match", false)
	k := req.GetInt("k", 10)
	scope := notebook.Scope{
		Notebook: req.GetString("notebook", ""),
		Section:  req.GetString("section", ""),
	}

	results, err := s.coord.Search(ctx, query, k, exact, scope)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No matching pages."), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) rebuildSearchIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.coord.Rebuild(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Index rebuilt: %d pages, %d embedded, %d skipped, %d removed.",
		stats.Total, stats.Embedded, stats.Skipped, stats.Removed)), nil
}

func (s *Server) createPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.writer == nil {
		return mcp.NewToolResultError("create_page requires the remote backend; switch with set_data_source"), nil
	}
	nb, err := req.RequireString("notebook")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sec, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.writer.CreatePage(ctx, nb, sec, title, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Page '%s' created (ID: %s).", title, id)), nil
}

func (s *Server) appendToPage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.writer == nil {
		return mcp.NewToolResultError("append_to_page requires the remote backend; switch with set_data_source"), nil
	}
	pageID, err := req.RequireString("page_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.writer.AppendToPage(ctx, pageID, content); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("Content appended."), nil
}

func (s *Server) setDataSource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("source")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	prov := notebook.Provenance(strings.ToLower(source))
	if prov != notebook.ProvenanceLocal && prov != notebook.ProvenanceRemote {
		return mcp.NewToolResultError("source must be 'local' or 'remote'"), nil
	}
	if err := s.coord.SetActive(prov); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Active data source is now '%s'.", prov)), nil
}
