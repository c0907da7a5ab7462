package api

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type rssFeed struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title          string    `xml:"title"`
	Link           string    `xml:"link"`
	Description    string    `xml:"description"`
	ManagingEditor string    `xml:"managingEditor,omitempty"`
	Items          []rssItem `xml:"item"`
}

type rssItem struct {
	Title       string   `xml:"title"`
	Link        string   `xml:"link"`
	Description string   `xml:"description,omitempty"`
	Category    []string `xml:"category,omitempty"`
	PubDate     string   `xml:"pubDate"`
	GUID        string   `xml:"guid"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Feed handles GET /api/feed.xml.
//
//	@Summary		RSS 2.0 feed of the newest published posts
//	@Tags			feeds
//	@Produce		xml
//	@Success		200
//	@Security		BearerAuth
//	@Router			/feed.xml [get]
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.FeedPosts(r.Context(), 20)
	if err != nil {
		slog.Error("feed failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	base := strings.TrimSuffix(h.site.BaseURL, "/")
	items := make([]rssItem, 0, len(posts))
	for _, p := range posts {
		link := base + p.Permalink
		items = append(items, rssItem{
			Title:       p.Title,
			Link:        link,
			Description: p.Excerpt,
			Category:    p.Series,
			PubDate:     p.Date.Format(time.RFC1123Z),
			GUID:        link,
		})
	}
	writeXML(w, http.StatusOK, "application/rss+xml; charset=utf-8", rssFeed{
		Version: "2.0",
		Channel: rssChannel{
			Title:          h.site.Title,
			Link:           base + "/",
			Description:    h.site.Description,
			ManagingEditor: h.site.Author,
			Items:          items,
		},
	})
}

// Sitemap handles GET /api/sitemap.xml.
//
//	@Summary		Sitemap of every published permalink
//	@Tags			feeds
//	@Produce		xml
//	@Success		200
//	@Security		BearerAuth
//	@Router			/sitemap.xml [get]
func (h *Handler) Sitemap(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.PublishedPosts(r.Context())
	if err != nil {
		slog.Error("sitemap failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	base := strings.TrimSuffix(h.site.BaseURL, "/")
	urls := []sitemapURL{{Loc: base + "/"}}
	for _, p := range posts {
		if p.Permalink == "" {
			continue
		}
		urls = append(urls, sitemapURL{
			Loc:     base + p.Permalink,
			LastMod: p.UpdatedAt.UTC().Format("2006-01-02"),
		})
	}
	writeXML(w, http.StatusOK, "application/xml; charset=utf-8", sitemapURLSet{
		XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9",
		URLs:  urls,
	})
}
