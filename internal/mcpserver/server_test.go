package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/postservice"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/storage"
)

func testServer(t *testing.T) (*Server, *postservice.Service, string) {
	t.Helper()

	contentDir := t.TempDir()
	store, err := storage.NewFS(contentDir)
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "ansuz-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := registry.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	svc := postservice.NewService(store, db, "https://blog.example.com", false)
	assetsDir := t.TempDir()
	srv := New(svc, assetsDir)
	return srv, svc, assetsDir
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call
	// the handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "search_posts":
		result, err = srv.searchPosts(ctx, req)
	case "read_post":
		result, err = srv.readPost(ctx, req)
	case "draft_post":
		result, err = srv.draftPost(ctx, req)
	case "lint_posts":
		result, err = srv.lintPosts(ctx, req)
	case "list_series":
		result, err = srv.listSeries(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_authoring_contract":
		result, err = srv.getAuthoringContract(ctx, req)
	case "upload_asset":
		result, err = srv.uploadAsset(ctx, req)
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

func publish(t *testing.T, svc *postservice.Service, title, date, body string, series []string) *postservice.PostDetail {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	post, err := svc.CreatePost(context.Background(), postservice.DraftRequest{
		Title:   title,
		Date:    d,
		Body:    body,
		Series:  series,
		Publish: true,
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	return post
}

func TestDraftAndReadPost(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "draft_post", map[string]interface{}{
		"title": "Hello World",
		"date":  "2020-12-30",
	})
	if r.IsError {
		t.Fatalf("draft_post error: %s", resultText(r))
	}
	var created map[string]string
	_ = json.Unmarshal([]byte(resultText(r)), &created)
	if created["path"] != "2020-12-30-hello-world.md" {
		t.Errorf("path = %q", created["path"])
	}
	if created["permalink"] != "/blog/2020/12/30/hello-world/" {
		t.Errorf("permalink = %q", created["permalink"])
	}

	// Read by path.
	r = callTool(t, srv, "read_post", map[string]interface{}{"path": created["path"]})
	if !strings.Contains(resultText(r), "title: Hello World") {
		t.Errorf("read by path = %q", resultText(r))
	}

	// Read by permalink.
	r = callTool(t, srv, "read_post", map[string]interface{}{"path": created["permalink"]})
	if !strings.Contains(resultText(r), "title: Hello World") {
		t.Errorf("read by permalink = %q", resultText(r))
	}
}

func TestDraftPost_BadDate(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "draft_post", map[string]interface{}{
		"title": "X",
		"date":  "30/12/2020",
	})
	if !r.IsError {
		t.Error("expected error for bad date")
	}
}

func TestDraftPost_DuplicateIdentity(t *testing.T) {
	srv, _, _ := testServer(t)
	callTool(t, srv, "draft_post", map[string]interface{}{"title": "Dup", "date": "2020-12-30"})
	r := callTool(t, srv, "draft_post", map[string]interface{}{"title": "Dup", "date": "2020-12-30"})
	if !r.IsError {
		t.Error("expected error for duplicate identity")
	}
}

func TestReadPostMissing(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "read_post", map[string]interface{}{"path": "2020-01-01-nope.md"})
	if !r.IsError {
		t.Error("expected error for missing post")
	}
}

func TestSearchPosts(t *testing.T) {
	srv, svc, _ := testServer(t)
	publish(t, svc, "Findable", "2020-12-30", "xyzzytoken appears here", nil)

	r := callTool(t, srv, "search_posts", map[string]interface{}{"query": "xyzzytoken"})
	if !strings.Contains(resultText(r), "2020-12-30-findable.md") {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestListSeries(t *testing.T) {
	srv, svc, _ := testServer(t)

	r := callTool(t, srv, "list_series", map[string]interface{}{})
	if resultText(r) != "no series found" {
		t.Errorf("empty series = %q", resultText(r))
	}

	publish(t, svc, "Part One", "2020-12-28", "start", []string{"infra"})
	publish(t, svc, "Part Two", "2020-12-29", "more", []string{"infra"})

	r = callTool(t, srv, "list_series", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"infra"`) {
		t.Errorf("series = %q", resultText(r))
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, svc, _ := testServer(t)

	target := publish(t, svc, "Target A", "2020-12-28", "content", nil)
	publish(t, svc, "Referrer", "2020-12-29",
		"See [a][a].\n\n[a]: {{< baseurl >}}"+target.Permalink, nil)

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"target": target.Permalink})
	if resultText(r) != "2020-12-29-referrer.md" {
		t.Errorf("backlinks = %q", resultText(r))
	}
}

func TestLintPosts(t *testing.T) {
	srv, _, _ := testServer(t)

	callTool(t, srv, "draft_post", map[string]interface{}{
		"title": "Broken",
		"date":  "2020-12-30",
		"body":  "Bad [x][x].\n\n[x]: {{< baseurl >}}/blog/1999/01/01/never/",
	})

	r := callTool(t, srv, "lint_posts", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "dangling-link") {
		t.Errorf("lint output = %q", text)
	}
	if !strings.Contains(text, "files checked") {
		t.Errorf("lint output missing summary: %q", text)
	}
}

func TestAuthoringContract(t *testing.T) {
	srv, _, _ := testServer(t)
	r := callTool(t, srv, "get_authoring_contract", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "Authoring Contract") || !strings.Contains(text, "{{< baseurl >}}") {
		t.Errorf("contract = %q", text)
	}
}

func TestUploadAsset_DataURI(t *testing.T) {
	srv, _, assetsDir := testServer(t)

	// Minimal valid PNG signature so content sniffing accepts it.
	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	r := callTool(t, srv, "upload_asset", map[string]interface{}{
		"url":      uri,
		"filename": "graph.png",
	})
	if r.IsError {
		t.Fatalf("upload error: %s", resultText(r))
	}
	var res uploadResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if !strings.HasPrefix(res.SavedPath, "/assets/") || !strings.HasSuffix(res.SavedPath, "graph.png") {
		t.Errorf("savedPath = %q", res.SavedPath)
	}

	now := time.Now().UTC()
	onDisk := filepath.Join(assetsDir, now.Format("2006"), now.Format("01"), "graph.png")
	if _, err := os.Stat(onDisk); err != nil {
		t.Errorf("asset not on disk: %v", err)
	}
}

func TestUploadAsset_RejectsBadExtension(t *testing.T) {
	srv, _, _ := testServer(t)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a})
	r := callTool(t, srv, "upload_asset", map[string]interface{}{
		"url":      uri,
		"filename": "script.exe",
	})
	if !r.IsError {
		t.Error("expected error for .exe upload")
	}
}
