package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/postservice"
)

// SiteMeta is the public identity of the site, used when rendering feeds.
type SiteMeta struct {
	Title       string
	Description string
	Author      string
	BaseURL     string
}

// Handler holds API route handlers.
type Handler struct {
	svc  *postservice.Service
	site SiteMeta
}

// NewHandler creates a new Handler.
func NewHandler(svc *postservice.Service, site SiteMeta) *Handler {
	return &Handler{svc: svc, site: site}
}

// postIdentity rebuilds the permalink from the four URL segments and parses
// it, so route values get the same validation as link targets (zero-padded
// months, lowercase slug).
func postIdentity(r *http.Request) (permalink.Identity, error) {
	p := permalink.Prefix + chi.URLParam(r, "year") + "/" + chi.URLParam(r, "month") + "/" +
		chi.URLParam(r, "day") + "/" + chi.URLParam(r, "slug") + "/"
	return permalink.Parse(p)
}

// ListPosts handles GET /api/posts.
//
//	@Summary		List posts with optional pagination and filtering
//	@Tags			posts
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			series	query		string	false	"Filter by series"
//	@Param			sort	query		string	false	"Sort field"	Enums(date, title, path)
//	@Param			drafts	query		bool	false	"Include drafts"
//	@Success		200		{object}	PostListResponse
//	@Security		BearerAuth
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	series := q.Get("series")
	sort := q.Get("sort")
	drafts, _ := strconv.ParseBool(q.Get("drafts"))

	items, total, err := h.svc.ListPosts(r.Context(), limit, offset, series, sort, drafts)
	if err != nil {
		slog.Error("list posts failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"posts": items,
		"total": total,
	})
}

// GetPost handles GET /api/posts/{year}/{month}/{day}/{slug}.
//
//	@Summary		Get a single post by its permalink identity
//	@Tags			posts
//	@Produce		json
//	@Param			year	path		string	true	"Four-digit year"
//	@Param			month	path		string	true	"Zero-padded month"
//	@Param			day		path		string	true	"Zero-padded day"
//	@Param			slug	path		string	true	"Post slug"
//	@Success		200		{object}	PostDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{year}/{month}/{day}/{slug} [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, err := postIdentity(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("not a valid permalink"))
		return
	}
	post, err := h.svc.GetPost(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get post failed", slog.String("permalink", id.Path()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", checksum.ETag(post.Checksum))
	writeJSON(w, http.StatusOK, post)
}

// CreatePost handles POST /api/posts.
//
//	@Summary		Scaffold a new post
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePostRequest	true	"Post to scaffold"
//	@Success		201		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [post]
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("title is required"))
		return
	}
	var date time.Time
	if req.Date != "" {
		var err error
		date, err = time.ParseInLocation("2006-01-02", req.Date, time.UTC)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("date must be YYYY-MM-DD"))
			return
		}
	}

	post, err := h.svc.CreatePost(r.Context(), postservice.DraftRequest{
		Title:      req.Title,
		Slug:       req.Slug,
		Date:       date,
		Series:     req.Series,
		Categories: req.Categories,
		Body:       req.Body,
		Publish:    req.Publish,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrDuplicateIdentity):
			writeJSON(w, http.StatusConflict, errorBody("a post with this date and slug already exists"))
		case errors.Is(err, apperr.ErrMalformedSlug):
			writeJSON(w, http.StatusBadRequest, errorBody("slug must be lowercase words joined by hyphens"))
		default:
			slog.Error("create post failed", slog.String("title", req.Title), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", checksum.ETag(post.Checksum))
	writeJSON(w, http.StatusCreated, post)
}

// UpdatePost handles PUT /api/posts/{year}/{month}/{day}/{slug}.
//
//	@Summary		Replace a post's content with optimistic concurrency
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			year		path	string				true	"Four-digit year"
//	@Param			month		path	string				true	"Zero-padded month"
//	@Param			day			path	string				true	"Zero-padded day"
//	@Param			slug		path	string				true	"Post slug"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdatePostRequest	true	"Updated content"
//	@Success		200		{object}	PostDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{year}/{month}/{day}/{slug} [put]
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	id, err := postIdentity(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("not a valid permalink"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	var req UpdatePostRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := r.Header.Get("If-Match")
	// Strip surrounding quotes if present (standard ETag format).
	ifMatch = strings.Trim(ifMatch, `"`)

	post, err := h.svc.UpdatePost(r.Context(), id, []byte(req.Content), ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
		case errors.Is(err, apperr.ErrIdentityChanged):
			writeJSON(w, http.StatusConflict, errorBody("date and slug are fixed by the filename and cannot change"))
		default:
			slog.Error("update post failed", slog.String("permalink", id.Path()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.Header().Set("ETag", checksum.ETag(post.Checksum))
	writeJSON(w, http.StatusOK, post)
}

// ListSeries handles GET /api/series.
//
//	@Summary		List the derived series groupings
//	@Tags			series
//	@Produce		json
//	@Success		200	{object}	SeriesListResponse
//	@Security		BearerAuth
//	@Router			/series [get]
func (h *Handler) ListSeries(w http.ResponseWriter, r *http.Request) {
	series, err := h.svc.ListSeries(r.Context())
	if err != nil {
		slog.Error("list series failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"series": series,
	})
}

// GetSeries handles GET /api/series/{name}.
//
//	@Summary		Get one series with its posts, oldest first
//	@Tags			series
//	@Produce		json
//	@Param			name	path		string	true	"Series name"
//	@Success		200		{object}	SeriesDetailResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/series/{name} [get]
func (h *Handler) GetSeries(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("series name is required"))
		return
	}
	posts, err := h.svc.SeriesPosts(r.Context(), name)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get series failed", slog.String("name", name), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, SeriesDetailResponse{Name: name, Count: len(posts), Posts: posts})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across posts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
	})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the cross-reference graph of published posts
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		slog.Error("graph failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes": nodes,
		"links": links,
	})
}

// Backlinks handles GET /api/backlinks.
//
//	@Summary		List posts that reference a target
//	@Tags			graph
//	@Produce		json
//	@Param			target	query		string	true	"Permalink, baseurl-placeholder link, or post path"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	bl, err := h.svc.Backlinks(r.Context(), target)
	if err != nil {
		slog.Error("backlinks failed", slog.String("target", target), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"target":    target,
		"backlinks": bl,
	})
}

// Resolve handles GET /api/resolve.
//
//	@Summary		Resolve a link target to a published post
//	@Tags			graph
//	@Produce		json
//	@Param			target	query		string	true	"Link target as written in a post body"
//	@Success		200		{object}	ResolveResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/resolve [get]
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	res, err := h.svc.Resolve(r.Context(), target)
	if err != nil {
		slog.Error("resolve failed", slog.String("target", target), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Lint handles GET /api/lint.
//
//	@Summary		Run the convention checks over the whole content tree
//	@Tags			lint
//	@Produce		json
//	@Success		200	{object}	LintReport
//	@Security		BearerAuth
//	@Router			/lint [get]
func (h *Handler) Lint(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.LintReport(r.Context())
	if err != nil {
		slog.Error("lint failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
