package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/todotrail/internal/attribution"
	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/matcher"
	"github.com/starford/todotrail/internal/testutil"
)

const blame = "1f3870be274f6c49b3e31a0c6728957f6d8b2a1c 9 9 1\n" +
	"author Lee Park\n" +
	"author-mail <lee@example.com>\n" +
	"author-time 1700000000\n" +
	"author-tz +0000\n" +
	"summary logout\n" +
	"filename auth/login.go\n" +
	"\t// FIXME: crash on null\n"

type stubExecutor struct{ out string }

func (s stubExecutor) Run(context.Context, string, string, ...string) ([]byte, error) {
	return []byte(s.out), nil
}

const loginFile = `package auth

func Login() error {
	// TODO(said): fix login
	return nil
}

func Logout() {
	// FIXME: crash on null
}
`

func testServer(t *testing.T) (*Server, string) {
	t.Helper()
	root, ws := testutil.TestWorkspace(t)
	res, err := attribution.New(attribution.WithExecutor(stubExecutor{out: blame}), attribution.WithLogger(testutil.Logger()))
	if err != nil {
		t.Fatal(err)
	}
	c := index.NewCorpus(ws, matcher.MustNew([]string{"TODO", "FIXME", "NOTE"}),
		index.WithAttributor(res),
		index.WithLogger(testutil.Logger()),
	)
	return New(c, ws, "test"), root
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_annotations":
		result, err = srv.listAnnotations(ctx, req)
	case "list_authors":
		result, err = srv.listAuthors(ctx, req)
	case "get_attribution":
		result, err = srv.getAttribution(ctx, req)
	case "resolve_attribution":
		result, err = srv.resolveAttribution(ctx, req)
	case "refresh_index":
		result, err = srv.refreshIndex(ctx, req)
	case "get_annotation_syntax":
		result, err = srv.getAnnotationSyntax(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

type listed struct {
	Total       int      `json:"total"`
	Annotations []record `json:"annotations"`
}

func TestRefreshAndList(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteFile(t, root, "auth/login.go", loginFile)

	r := callTool(t, srv, "refresh_index", nil)
	if text := resultText(r); text != "refreshed: 2 annotations in 1 files" {
		t.Errorf("refresh = %q", text)
	}

	r = callTool(t, srv, "list_annotations", map[string]any{})
	var got listed
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if got.Total != 2 || got.Annotations[0].Type != "FIXME" || got.Annotations[0].Line != 9 {
		t.Errorf("list = %+v", got)
	}
	if got.Annotations[1].File != "auth/login.go" || got.Annotations[1].Author != "said" {
		t.Errorf("second = %+v", got.Annotations[1])
	}

	r = callTool(t, srv, "list_annotations", map[string]any{"type": "todo", "file": "auth/login.go"})
	got = listed{}
	_ = json.Unmarshal([]byte(resultText(r)), &got)
	if got.Total != 1 || got.Annotations[0].Text != "fix login" {
		t.Errorf("filtered = %+v", got)
	}
}

func TestListAnnotations_DoesNotTouchCorpusFilters(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteFile(t, root, "a.go", "// TODO(said): one\n")
	callTool(t, srv, "refresh_index", nil)

	callTool(t, srv, "list_annotations", map[string]any{"author": "nobody"})
	if srv.corpus.Filters().Active() {
		t.Errorf("filters = %+v, want none", srv.corpus.Filters())
	}
}

func TestListAnnotations_Errors(t *testing.T) {
	srv, _ := testServer(t)

	if r := callTool(t, srv, "list_annotations", map[string]any{"age": "ancient"}); !r.IsError {
		t.Error("expected error for unknown age filter")
	}
	if r := callTool(t, srv, "list_annotations", map[string]any{"file": "../outside.go"}); !r.IsError {
		t.Error("expected error for path outside the workspace")
	}
	r := callTool(t, srv, "list_annotations", map[string]any{})
	if text := resultText(r); text != "no annotations found" {
		t.Errorf("empty = %q", text)
	}
}

func TestGetAttribution(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteFile(t, root, "auth/login.go", loginFile)
	callTool(t, srv, "refresh_index", nil)

	r := callTool(t, srv, "get_attribution", map[string]any{"path": "auth/login.go", "line": 9})
	text := resultText(r)
	if r.IsError || !strings.Contains(text, "author: Lee Park") || !strings.Contains(text, "revision: 1f3870be") {
		t.Errorf("attribution = %q", text)
	}

	// The FIXME had no explicit author, so history fills it in.
	var got listed
	_ = json.Unmarshal([]byte(resultText(callTool(t, srv, "list_annotations", map[string]any{"type": "FIXME"}))), &got)
	if got.Total != 1 || got.Annotations[0].Author != "Lee Park" {
		t.Errorf("enriched = %+v", got)
	}

	if r := callTool(t, srv, "get_attribution", map[string]any{"path": "auth/login.go", "line": 2}); !r.IsError {
		t.Error("expected error for line without annotation")
	}
	if r := callTool(t, srv, "get_attribution", map[string]any{"path": "auth/login.go", "line": 0}); !r.IsError {
		t.Error("expected error for line 0")
	}
	if r := callTool(t, srv, "get_attribution", map[string]any{"path": "auth/login.go"}); !r.IsError {
		t.Error("expected error for missing line")
	}
}

func TestResolveAttributionAndAuthors(t *testing.T) {
	srv, root := testServer(t)
	testutil.WriteFile(t, root, "auth/login.go", loginFile)
	callTool(t, srv, "refresh_index", nil)

	if text := resultText(callTool(t, srv, "resolve_attribution", nil)); text != "resolved: 2" {
		t.Errorf("resolve = %q", text)
	}
	if text := resultText(callTool(t, srv, "resolve_attribution", nil)); text != "resolved: 0" {
		t.Errorf("second resolve = %q", text)
	}

	var authors []authorCount
	if err := json.Unmarshal([]byte(resultText(callTool(t, srv, "list_authors", nil))), &authors); err != nil {
		t.Fatal(err)
	}
	if len(authors) != 2 || authors[0].Name != "Lee Park" || authors[1].Name != "said" {
		t.Errorf("authors = %+v", authors)
	}
}

func TestAnnotationSyntax(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_annotation_syntax", nil)
	if !strings.Contains(resultText(r), "TODO(alice)") {
		t.Error("syntax text missing author form")
	}

	contents, err := srv.readSyntaxResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != syntaxURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}
