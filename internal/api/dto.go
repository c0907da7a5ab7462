package api

import (
	"time"

	"github.com/starford/ansuz/internal/lint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/postservice"
)

// CreatePostRequest is the request body for scaffolding a new post. Title is
// required; date defaults to today and slug to a slugified title.
type CreatePostRequest struct {
	Title      string   `json:"title" example:"Proxies All The Way Down" validate:"required"`
	Slug       string   `json:"slug,omitempty" example:"proxies-all-the-way-down"`
	Date       string   `json:"date,omitempty" example:"2020-12-30"`
	Series     []string `json:"series,omitempty" example:"infrastructure"`
	Categories []string `json:"categories,omitempty" example:"networking"`
	Body       string   `json:"body,omitempty" example:"Opening paragraph."`
	Publish    bool     `json:"publish,omitempty" example:"false"`
}

// UpdatePostRequest is the request body for replacing a post's content.
type UpdatePostRequest struct {
	Content string `json:"content" example:"---\ntitle: Hello\n---\nBody" validate:"required"`
}

// PostDetail is the full post response type (aliased from the domain layer).
type PostDetail = postservice.PostDetail

// PostListItem is a lightweight item in a list response (aliased from the domain layer).
type PostListItem = postservice.PostListItem

// ResolveResult reports where a link target leads (aliased from the domain layer).
type ResolveResult = postservice.ResolveResult

// SeriesInfo summarizes one derived series (aliased from the domain layer).
type SeriesInfo = models.SeriesInfo

// LintReport is the full lint run result (aliased from the lint engine).
type LintReport = lint.Report

// PostListResponse wraps paginated post listings.
type PostListResponse struct {
	Posts []PostListItem `json:"posts" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SeriesListResponse wraps the derived series groupings.
type SeriesListResponse struct {
	Series []SeriesInfo `json:"series" validate:"required"`
}

// SeriesDetailResponse wraps one series with its posts, oldest first.
type SeriesDetailResponse struct {
	Name  string         `json:"name" example:"infrastructure" validate:"required"`
	Count int            `json:"count" example:"3" validate:"required"`
	Posts []PostListItem `json:"posts" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"2020-12-30-hello.md" validate:"required"`
	Title   string `json:"title" example:"Hello" validate:"required"`
	Snippet string `json:"snippet" example:"...matched text..." validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// BacklinksResponse lists the posts that reference a target.
type BacklinksResponse struct {
	Target    string   `json:"target" example:"/blog/2020/12/30/hello/" validate:"required"`
	Backlinks []string `json:"backlinks" validate:"required"`
}

// GraphNode is a node in the cross-reference graph.
type GraphNode struct {
	ID    string `json:"id" example:"/blog/2020/12/30/hello/" validate:"required"`
	Title string `json:"title,omitempty" example:"Hello"`
}

// GraphLink is an edge in the cross-reference graph.
type GraphLink struct {
	Source string `json:"source" example:"/blog/2020/12/30/hello/" validate:"required"`
	Target string `json:"target" example:"/blog/2019/07/01/proxies/" validate:"required"`
}

// GraphResponse wraps the cross-reference graph.
type GraphResponse struct {
	Nodes []GraphNode `json:"nodes" validate:"required"`
	Links []GraphLink `json:"links" validate:"required"`
}

// AssetUploadResponse is returned after a successful asset upload.
type AssetUploadResponse struct {
	Filename string `json:"filename" example:"diagram.png" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	URL      string `json:"url" example:"/assets/2020/12/diagram.png" validate:"required"`
}

// PostListItemDTO mirrors PostListItem for swag.
type PostListItemDTO struct {
	Path      string    `json:"path" example:"2020-12-30-hello.md"`
	Permalink string    `json:"permalink" example:"/blog/2020/12/30/hello/"`
	Title     string    `json:"title" example:"Hello"`
	Date      string    `json:"date" example:"2020-12-30"`
	Slug      string    `json:"slug" example:"hello"`
	Series    []string  `json:"series" example:"infrastructure"`
	Draft     bool      `json:"draft" example:"false"`
	Checksum  string    `json:"checksum" example:"abc123..."`
	UpdatedAt time.Time `json:"updated_at"`
}
