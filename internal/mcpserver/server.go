// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Ansuz tools for LLM integration via stdio transport.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/postservice"
)

// Server wraps the MCP server with Ansuz tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *postservice.Service
	assetsDir string
}

// New creates a new MCP server with all Ansuz tools registered.
func New(svc *postservice.Service, assetsDir string) *Server {
	s := &Server{svc: svc, assetsDir: assetsDir}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Full-text search through post content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read the full content of a post."),
		mcp.WithString("path", mcp.Required(),
			mcp.Description("Post file path (YYYY-MM-DD-slug.md) or permalink (/blog/YYYY/MM/DD/slug/)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("draft_post",
		mcp.WithDescription("Scaffold a new draft post with correct frontmatter and filename. "+
			"The date and slug become the permanent permalink, so choose them carefully. "+
			"Read the contract first via the get_authoring_contract tool or the "+
			"ansuz://authoring-contract resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Post title")),
		mcp.WithString("date", mcp.Description("Publication date as YYYY-MM-DD (defaults to today)")),
		mcp.WithString("slug", mcp.Description("URL slug (defaults to a slugified title)")),
		mcp.WithString("series", mcp.Description("Comma-separated series names")),
		mcp.WithString("body", mcp.Description("Initial Markdown body")),
	), s.draftPost)

	s.mcp.AddTool(mcp.NewTool("lint_posts",
		mcp.WithDescription("Check the whole content tree against the authoring conventions "+
			"and report every violation in compiler style."),
	), s.lintPosts)

	s.mcp.AddTool(mcp.NewTool("list_series",
		mcp.WithDescription("List the series groupings derived from published posts."),
	), s.listSeries)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all posts that link to the given target."),
		mcp.WithString("target", mcp.Required(),
			mcp.Description("Permalink, baseurl-placeholder link, or post file path")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("get_authoring_contract",
		mcp.WithDescription("Returns the canonical Ansuz post authoring contract. "+
			"Call this before drafting or editing posts to ensure correct structure."),
	), s.getAuthoringContract)

	s.mcp.AddTool(mcp.NewTool("upload_asset",
		mcp.WithDescription("Upload an image or document from a URL or base64 data URI "+
			"into the site's assets directory. Returns a Markdown image snippet."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI of the file")),
		mcp.WithString("filename", mcp.Description("Optional filename override")),
	), s.uploadAsset)

	// Resource: post authoring contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://authoring-contract", "Post Authoring Contract",
			mcp.WithResourceDescription("Canonical post format and linking conventions that all posts must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var post *postservice.PostDetail
	if id, perr := permalink.Parse(ref); perr == nil {
		post, err = s.svc.GetPost(ctx, id)
	} else {
		post, err = s.svc.GetPostByPath(ctx, ref)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", ref)), nil
	}
	return mcp.NewToolResultText(post.Content), nil
}

func (s *Server) draftPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	dr := postservice.DraftRequest{Title: title}
	if v, e := req.RequireString("date"); e == nil && v != "" {
		dr.Date, err = time.ParseInLocation("2006-01-02", v, time.UTC)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("date must be YYYY-MM-DD: %s", v)), nil
		}
	}
	if v, e := req.RequireString("slug"); e == nil {
		dr.Slug = v
	}
	if v, e := req.RequireString("series"); e == nil {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				dr.Series = append(dr.Series, name)
			}
		}
	}
	if v, e := req.RequireString("body"); e == nil {
		dr.Body = v
	}

	post, err := s.svc.CreatePost(ctx, dr)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, _ := json.Marshal(map[string]string{
		"path":      post.Path,
		"permalink": post.Permalink,
	})
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) lintPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.LintReport(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var buf bytes.Buffer
	if err := report.WriteText(&buf); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) listSeries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	series, err := s.svc.ListSeries(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(series) == 0 {
		return mcp.NewToolResultText("no series found"), nil
	}
	out, _ := json.MarshalIndent(series, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	target, err := req.RequireString("target")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bl, err := s.svc.Backlinks(ctx, target)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(bl) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return mcp.NewToolResultText(strings.Join(bl, "\n")), nil
}

func (s *Server) getAuthoringContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AuthoringContract), nil
}

func (s *Server) readContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://authoring-contract",
			MIMEType: "text/markdown",
			Text:     AuthoringContract,
		},
	}, nil
}
