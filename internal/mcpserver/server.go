// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the annotation index to LLMs via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/models"
	"github.com/starford/todotrail/internal/workspace"
)

const syntaxURI = "todotrail://annotation-syntax"

// maxListed caps list_annotations output.
const maxListed = 200

// Server wraps the MCP server with todotrail tools.
type Server struct {
	mcp    *server.MCPServer
	corpus *index.Corpus
	ws     *workspace.Workspace
	now    func() time.Time
}

// record is the tool-facing rendering of an annotation. Lines are one-based.
type record struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Type     string `json:"type"`
	Literal  string `json:"literal_type,omitempty"`
	Author   string `json:"author,omitempty"`
	Text     string `json:"text"`
	Revision string `json:"revision,omitempty"`
	Age      string `json:"age,omitempty"`
}

type authorCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// New creates a new MCP server with all tools registered.
func New(c *index.Corpus, ws *workspace.Workspace, version string) *Server {
	s := &Server{corpus: c, ws: ws, now: time.Now}

	s.mcp = server.NewMCPServer(
		"todotrail",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_annotations",
		mcp.WithDescription("List TODO/FIXME/NOTE/HACK/XXX annotations in the workspace, "+
			"most severe first. All arguments are optional and combine with AND."),
		mcp.WithString("type", mcp.Description("Annotation type, e.g. FIXME")),
		mcp.WithString("author", mcp.Description("Case-insensitive substring of the author")),
		mcp.WithString("text", mcp.Description("Case-insensitive substring of the body")),
		mcp.WithString("age", mcp.Description("Age filter"), mcp.Enum("all", "older-than-90-days", "newer-than-7-days")),
		mcp.WithString("file", mcp.Description("Restrict to one file (workspace-relative path)")),
	), s.listAnnotations)

	s.mcp.AddTool(mcp.NewTool("list_authors",
		mcp.WithDescription("List annotation authors with the number of annotations each owns."),
	), s.listAuthors)

	s.mcp.AddTool(mcp.NewTool("get_attribution",
		mcp.WithDescription("Resolve version-history author, date and revision for the annotation at a line."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Workspace-relative file path")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("One-based line number")),
	), s.getAttribution)

	s.mcp.AddTool(mcp.NewTool("resolve_attribution",
		mcp.WithDescription("Resolve version-history attribution for every annotation. "+
			"Needed before age filters can see history dates."),
	), s.resolveAttribution)

	s.mcp.AddTool(mcp.NewTool("refresh_index",
		mcp.WithDescription("Rescan the workspace. Unchanged files are served from cache."),
	), s.refreshIndex)

	s.mcp.AddTool(mcp.NewTool("get_annotation_syntax",
		mcp.WithDescription("Returns the comment forms that are recognised as annotations. "+
			"Call this before adding annotations to source files."),
	), s.getAnnotationSyntax)

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Annotation Syntax",
			mcp.WithResourceDescription("Comment forms recognised as annotations and how they are classified."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
	)

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

func (s *Server) toRecord(a models.Annotation) record {
	r := record{
		File:   s.ws.Rel(a.File),
		Line:   a.Line + 1,
		Type:   a.Type,
		Author: a.Author,
		Text:   a.Text,
	}
	if a.Inferred {
		r.Literal = a.LiteralType
	}
	if a.Attribution != nil {
		r.Revision = a.Attribution.Revision
	}
	if ts, ok := a.Timestamp(); ok {
		r.Age = string(models.BucketOf(ts, s.now()))
	}
	return r
}

func (s *Server) listAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var f index.FilterState
	f.Type, _ = req.RequireString("type")
	f.Author, _ = req.RequireString("author")
	f.Text, _ = req.RequireString("text")
	if v, err := req.RequireString("age"); err == nil {
		age, err := models.ParseAgeFilter(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.Age = age
	}
	if v, err := req.RequireString("file"); err == nil && v != "" {
		abs, err := s.ws.Resolve(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		f.ActiveFile = abs
	}

	anns := index.Query(s.corpus.All(), f, s.now())
	if len(anns) == 0 {
		return mcp.NewToolResultText("no annotations found"), nil
	}
	total := len(anns)
	if total > maxListed {
		anns = anns[:maxListed]
	}
	out := struct {
		Total       int      `json:"total"`
		Annotations []record `json:"annotations"`
	}{Total: total, Annotations: make([]record, len(anns))}
	for i, a := range anns {
		out.Annotations[i] = s.toRecord(a)
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listAuthors(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names := s.corpus.ListAuthors()
	if len(names) == 0 {
		return mcp.NewToolResultText("no authors found"), nil
	}
	out := make([]authorCount, len(names))
	for i, name := range names {
		out[i] = authorCount{Name: name, Count: s.corpus.CountForAuthor(name)}
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) getAttribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	line, err := req.RequireInt("line")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if line < 1 {
		return mcp.NewToolResultError("line must be at least 1"), nil
	}
	abs, err := s.ws.Resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.corpus.Lookup(ctx, abs, line-1)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no annotation at %s:%d", path, line)), nil
	}
	if a.Attribution == nil {
		return mcp.NewToolResultText(fmt.Sprintf("%s:%d has no version history (uncommitted or untracked)", path, line)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "author: %s\n", a.Attribution.Author)
	fmt.Fprintf(&b, "date: %s\n", a.Attribution.Timestamp.Format("2006-01-02"))
	fmt.Fprintf(&b, "revision: %s\n", a.Attribution.Revision)
	fmt.Fprintf(&b, "age: %s\n", models.BucketOf(a.Attribution.Timestamp, s.now()))
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) resolveAttribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n := s.corpus.ResolveAttribution(ctx)
	return mcp.NewToolResultText(fmt.Sprintf("resolved: %d", n)), nil
}

func (s *Server) refreshIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.corpus.Refresh(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	g := s.corpus.Snapshot()
	return mcp.NewToolResultText(fmt.Sprintf("refreshed: %d annotations in %d files", len(g.Annotations), g.Files)), nil
}

func (s *Server) getAnnotationSyntax(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AnnotationSyntax), nil
}

func (s *Server) readSyntaxResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     AnnotationSyntax,
		},
	}, nil
}
