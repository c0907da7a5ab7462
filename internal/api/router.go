package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/postservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// assetsDir is where uploaded assets live.
func NewRouter(svc *postservice.Service, site SiteMeta, authEnabled bool, token string, sseHandler http.Handler, assetsDir string) chi.Router {
	h := NewHandler(svc, site)
	ah := NewAssetHandler(assetsDir)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Posts. There is no DELETE: a published permalink stays reserved even
	// after its file is gone, and removing one is a lint error, not an API
	// operation.
	r.Get("/posts", h.ListPosts)
	r.Post("/posts", h.CreatePost)
	r.Get("/posts/{year}/{month}/{day}/{slug}", h.GetPost)
	r.Put("/posts/{year}/{month}/{day}/{slug}", h.UpdatePost)

	// Series.
	r.Get("/series", h.ListSeries)
	r.Get("/series/{name}", h.GetSeries)

	// Search and cross-references.
	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)
	r.Get("/backlinks", h.Backlinks)
	r.Get("/resolve", h.Resolve)

	// Lint.
	r.Get("/lint", h.Lint)

	// Feeds.
	r.Get("/feed.xml", h.Feed)
	r.Get("/sitemap.xml", h.Sitemap)

	// Assets.
	r.Post("/assets", ah.Upload)
	r.Get("/assets/*", ah.ServeFile)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
