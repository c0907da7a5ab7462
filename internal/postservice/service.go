package postservice

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/lint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/reflink"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/storage"
)

// PostDetail is the full representation of a post.
type PostDetail struct {
	Path       string    `json:"path"`
	Permalink  string    `json:"permalink,omitempty"`
	Title      string    `json:"title"`
	Date       string    `json:"date,omitempty"`
	Slug       string    `json:"slug,omitempty"`
	Content    string    `json:"content"`
	Checksum   string    `json:"checksum"`
	Series     []string  `json:"series"`
	Categories []string  `json:"categories"`
	Draft      bool      `json:"draft"`
	Backlinks  []string  `json:"backlinks"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// PostListItem is a lightweight item in a list response.
type PostListItem struct {
	Path      string    `json:"path"`
	Permalink string    `json:"permalink,omitempty"`
	Title     string    `json:"title"`
	Date      string    `json:"date,omitempty"`
	Slug      string    `json:"slug,omitempty"`
	Series    []string  `json:"series"`
	Draft     bool      `json:"draft"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DraftRequest describes a post to scaffold. Title is the only required
// field; everything else has a sensible default.
type DraftRequest struct {
	Title      string
	Slug       string
	Date       time.Time
	Series     []string
	Categories []string
	Body       string
	Publish    bool
}

// ResolveResult reports where a link target leads.
type ResolveResult struct {
	Target    string `json:"target"`
	Kind      string `json:"kind"`
	Permalink string `json:"permalink,omitempty"`
	Path      string `json:"path,omitempty"`
	Title     string `json:"title,omitempty"`
	Found     bool   `json:"found"`
}

// FeedPost is one entry for feed rendering, newest first.
type FeedPost struct {
	Permalink string
	Title     string
	Date      time.Time
	Updated   time.Time
	Excerpt   string
	Series    []string
}

// Service coordinates storage and registry operations.
type Service struct {
	store         storage.Provider
	db            *registry.DB
	baseURL       string
	strictUpdated bool
}

// NewService creates a new post service. baseURL is the site's public base
// URL, used to classify hardcoded self-links.
func NewService(store storage.Provider, db *registry.DB, baseURL string, strictUpdated bool) *Service {
	return &Service{store: store, db: db, baseURL: baseURL, strictUpdated: strictUpdated}
}

// GetPost looks up a post by its identity and reads it from storage.
func (s *Service) GetPost(_ context.Context, id permalink.Identity) (*PostDetail, error) {
	row, err := s.db.GetByIdentity(id.DateString(), id.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	data, err := s.store.Read(row.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(row.Path, data)
}

// GetPostByPath reads a post addressed by its content-relative path.
func (s *Service) GetPostByPath(_ context.Context, path string) (*PostDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return s.buildDetail(path, data)
}

// CreatePost scaffolds a new post file from the request and indexes it.
// The filename is derived from the identity and is the one place date and
// slug live; the frontmatter merely repeats them.
func (s *Service) CreatePost(_ context.Context, req DraftRequest) (*PostDetail, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, fmt.Errorf("postservice: title is required")
	}
	slug := req.Slug
	if slug == "" {
		slug = permalink.Slugify(title)
	}
	if !permalink.ValidSlug(slug) {
		return nil, fmt.Errorf("postservice: %q: %w", slug, apperr.ErrMalformedSlug)
	}
	date := req.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}
	id := permalink.Identity{Date: date, Slug: slug}

	if _, err := s.db.GetByIdentity(id.DateString(), id.Slug); err == nil {
		return nil, fmt.Errorf("postservice: %s: %w", id, apperr.ErrDuplicateIdentity)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	path := id.Filename()
	if _, err := s.store.Read(path); err == nil {
		return nil, fmt.Errorf("postservice: %s: %w", path, apperr.ErrDuplicateIdentity)
	}

	content, err := scaffold(id, title, req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if err := registry.IndexFile(s.db, s.baseURL, path, content, time.Now()); err != nil {
		return nil, err
	}
	return s.buildDetail(path, content)
}

// UpdatePost replaces a post's content with optimistic concurrency. The
// filename never changes here, so the identity cannot drift; frontmatter
// that contradicts it is refused outright.
func (s *Service) UpdatePost(_ context.Context, id permalink.Identity, content []byte, ifMatch string) (*PostDetail, error) {
	row, err := s.db.GetByIdentity(id.DateString(), id.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	existing, err := s.store.Read(row.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != checksum.Sum(existing) {
		return nil, apperr.ErrConflict
	}
	if err := checkIdentityAgreement(id, content); err != nil {
		return nil, err
	}
	if err := s.store.Write(row.Path, content); err != nil {
		return nil, err
	}
	if err := registry.IndexFile(s.db, s.baseURL, row.Path, content, time.Now()); err != nil {
		return nil, err
	}
	return s.buildDetail(row.Path, content)
}

// checkIdentityAgreement refuses frontmatter whose date or slug contradicts
// the filename identity. Content that does not parse passes through: broken
// frontmatter is a lint finding, not a write error, and the filename alone
// keeps the permalink stable.
func checkIdentityAgreement(id permalink.Identity, content []byte) error {
	doc, err := frontmatter.Parse(content)
	if err != nil {
		return nil
	}
	if !doc.Meta.Date.IsZero() && doc.Meta.Date.Format("2006-01-02") != id.DateString() {
		return fmt.Errorf("postservice: frontmatter date %s disagrees with filename date %s: %w",
			doc.Meta.Date.Format("2006-01-02"), id.DateString(), apperr.ErrIdentityChanged)
	}
	if doc.Meta.Slug != "" && doc.Meta.Slug != id.Slug {
		return fmt.Errorf("postservice: frontmatter slug %q disagrees with filename slug %q: %w",
			doc.Meta.Slug, id.Slug, apperr.ErrIdentityChanged)
	}
	return nil
}

// ListPosts returns paginated posts with an optional series filter.
func (s *Service) ListPosts(_ context.Context, limit, offset int, series, sort string, includeDrafts bool) ([]PostListItem, int, error) {
	rows, total, err := s.db.ListPosts(limit, offset, series, sort, includeDrafts)
	if err != nil {
		return nil, 0, err
	}
	items := make([]PostListItem, len(rows))
	for i, r := range rows {
		items[i] = itemFromRow(r)
	}
	return items, total, nil
}

// PublishedPosts returns every published post, oldest first.
func (s *Service) PublishedPosts(_ context.Context) ([]PostListItem, error) {
	rows, err := s.db.PublishedPosts()
	if err != nil {
		return nil, err
	}
	items := make([]PostListItem, len(rows))
	for i, r := range rows {
		items[i] = itemFromRow(r)
	}
	return items, nil
}

// Search delegates full-text search to the registry.
func (s *Service) Search(_ context.Context, query string, limit int) ([]registry.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns all nodes and links of the cross-reference graph.
func (s *Service) Graph(_ context.Context) ([]registry.GraphNode, []registry.GraphLink, error) {
	return s.db.Graph()
}

// Backlinks returns the paths of all posts linking to the given target.
// The target may be a permalink, a baseurl-placeholder link, or a post path.
func (s *Service) Backlinks(_ context.Context, target string) ([]string, error) {
	bl, err := s.db.Backlinks(canonicalTarget(target, s.baseURL))
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// Resolve classifies a link target and reports the published post it leads
// to, if any. Drafts are deliberately invisible here.
func (s *Service) Resolve(_ context.Context, target string) (*ResolveResult, error) {
	kind, sitePath := reflink.Classify(target, s.baseURL)
	res := &ResolveResult{Target: target, Kind: kind.String()}

	switch kind {
	case reflink.KindPlaceholder, reflink.KindSiteRelative, reflink.KindHardcodedBase:
	default:
		return res, nil
	}
	if !strings.HasPrefix(sitePath, permalink.Prefix) {
		return res, nil
	}
	id, err := permalink.Parse(sitePath)
	if err != nil {
		return res, nil
	}
	res.Permalink = id.Path()

	row, err := s.db.GetByIdentity(id.DateString(), id.Slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return res, nil
		}
		return nil, err
	}
	if row.Draft {
		return res, nil
	}
	res.Found = true
	res.Path = row.Path
	res.Title = row.Title
	return res, nil
}

// ListSeries derives the series groupings from the published set. A series
// exists exactly as long as a published post declares it.
func (s *Service) ListSeries(_ context.Context) ([]models.SeriesInfo, error) {
	rows, err := s.db.PublishedPosts()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*models.SeriesInfo)
	for _, r := range rows {
		pl := rowPermalink(r)
		if pl == "" {
			continue
		}
		for _, name := range r.Series {
			info, ok := byName[name]
			if !ok {
				info = &models.SeriesInfo{Name: name}
				byName[name] = info
			}
			info.Count++
			info.Posts = append(info.Posts, pl)
		}
	}
	out := make([]models.SeriesInfo, 0, len(byName))
	for _, info := range byName {
		out = append(out, *info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// SeriesPosts returns the published posts of one series, oldest first.
func (s *Service) SeriesPosts(_ context.Context, name string) ([]PostListItem, error) {
	rows, err := s.db.PublishedPosts()
	if err != nil {
		return nil, err
	}
	var items []PostListItem
	for _, r := range rows {
		for _, sn := range r.Series {
			if sn == name {
				items = append(items, itemFromRow(r))
				break
			}
		}
	}
	if len(items) == 0 {
		return nil, apperr.ErrNotFound
	}
	return items, nil
}

// LintReport loads a fresh snapshot of the content tree and checks it
// against the conventions and the published-identity ledger.
func (s *Service) LintReport(_ context.Context) (*lint.Report, error) {
	snap, err := registry.LoadSnapshot(s.store)
	if err != nil {
		return nil, err
	}
	history, err := s.db.History()
	if err != nil {
		return nil, err
	}
	return lint.Run(snap, history, lint.Options{BaseURL: s.baseURL, StrictUpdated: s.strictUpdated}), nil
}

// RecordPublished writes the current published set into the identity ledger
// and returns how many identities were recorded. Identities already in the
// ledger keep their original first-recorded time.
func (s *Service) RecordPublished(_ context.Context) (int, error) {
	snap, err := registry.LoadSnapshot(s.store)
	if err != nil {
		return 0, err
	}
	published := snap.PublishedKeys()
	rows := make([]registry.HistoryRow, 0, len(published))
	for _, pf := range published {
		rows = append(rows, registry.HistoryRow{
			Date:     pf.Identity.DateString(),
			Slug:     pf.Identity.Slug,
			Path:     pf.Path,
			Checksum: pf.Checksum,
		})
	}
	if err := s.db.RecordPublished(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// FeedPosts returns the newest published posts with a plain-text excerpt,
// ready for feed rendering.
func (s *Service) FeedPosts(_ context.Context, limit int) ([]FeedPost, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.PublishedPosts()
	if err != nil {
		return nil, err
	}
	// PublishedPosts is oldest first; feeds want the other end.
	var out []FeedPost
	for i := len(rows) - 1; i >= 0 && len(out) < limit; i-- {
		r := rows[i]
		pl := rowPermalink(r)
		if pl == "" {
			continue
		}
		fp := FeedPost{
			Permalink: pl,
			Title:     r.Title,
			Updated:   r.UpdatedAt,
			Series:    nonNilSlice(r.Series),
		}
		fp.Date, _ = time.ParseInLocation("2006-01-02", r.Date, time.UTC)
		if data, err := s.store.Read(r.Path); err == nil {
			if doc, err := frontmatter.Parse(data); err == nil {
				if !doc.Meta.Date.IsZero() {
					fp.Date = doc.Meta.Date
				}
				fp.Excerpt = excerpt(doc.Body)
			}
		}
		out = append(out, fp)
	}
	return out, nil
}

// buildDetail constructs a PostDetail from raw data without re-reading the
// file. Content that fails to parse still comes back whole so a caller can
// fetch and repair it; the gaps show up in the lint report instead.
func (s *Service) buildDetail(path string, data []byte) (*PostDetail, error) {
	d := &PostDetail{
		Path:       path,
		Content:    string(data),
		Checksum:   checksum.Sum(data),
		Series:     []string{},
		Categories: []string{},
		Backlinks:  []string{},
		UpdatedAt:  time.Now(),
	}
	if id, err := permalink.FromFilename(path); err == nil {
		d.Permalink = id.Path()
		d.Date = id.DateString()
		d.Slug = id.Slug
		bl, err := s.db.Backlinks(id.Path())
		if err != nil {
			return nil, err
		}
		d.Backlinks = nonNilSlice(bl)
	}
	if doc, err := frontmatter.Parse(data); err == nil {
		d.Title = doc.DisplayTitle()
		d.Series = nonNilSlice(doc.Meta.Series)
		d.Categories = nonNilSlice(doc.Meta.Categories)
		d.Draft = doc.Meta.Draft
		if !doc.Meta.Date.IsZero() {
			d.Date = doc.Meta.Date.Format("2006-01-02")
		}
	}
	return d, nil
}

// scaffoldMeta is the frontmatter layout for new posts. Field order here is
// the order in the file.
type scaffoldMeta struct {
	Title      string   `yaml:"title"`
	Date       string   `yaml:"date"`
	Categories []string `yaml:"categories,omitempty"`
	Series     []string `yaml:"series,omitempty"`
	Published  *bool    `yaml:"published,omitempty"`
}

func scaffold(id permalink.Identity, title string, req DraftRequest) ([]byte, error) {
	meta := scaffoldMeta{
		Title:      title,
		Date:       id.DateString(),
		Categories: req.Categories,
		Series:     req.Series,
	}
	if !req.Publish {
		f := false
		meta.Published = &f
	}
	block, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("postservice: marshal frontmatter: %w", err)
	}
	body := strings.TrimRight(req.Body, "\n")
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(block)
	b.WriteString("---\n")
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		b.WriteString("\n")
	}
	return []byte(b.String()), nil
}

// canonicalTarget normalizes any way of naming a post down to the form links
// are stored in: the canonical permalink for blog targets, the raw string
// otherwise.
func canonicalTarget(target, baseURL string) string {
	if id, err := permalink.FromFilename(target); err == nil {
		return id.Path()
	}
	kind, sitePath := reflink.Classify(target, baseURL)
	switch kind {
	case reflink.KindPlaceholder, reflink.KindSiteRelative, reflink.KindHardcodedBase:
		if id, err := permalink.Parse(sitePath); err == nil {
			return id.Path()
		}
		return sitePath
	}
	return target
}

// excerpt reduces a Markdown body to the first prose paragraph, flattened
// and capped for feed readers.
func excerpt(body string) string {
	const maxLen = 280
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		switch para[0] {
		case '#', '`', '>', '|', '!':
			continue
		}
		if strings.HasPrefix(para, "[") && strings.Contains(para, "]:") {
			continue
		}
		flat := strings.Join(strings.Fields(para), " ")
		runes := []rune(flat)
		if len(runes) <= maxLen {
			return flat
		}
		cut := string(runes[:maxLen])
		if i := strings.LastIndexByte(cut, ' '); i > 0 {
			cut = cut[:i]
		}
		return cut + "..."
	}
	return ""
}

func itemFromRow(r registry.PostRow) PostListItem {
	return PostListItem{
		Path:      r.Path,
		Permalink: rowPermalink(r),
		Title:     r.Title,
		Date:      r.Date,
		Slug:      r.Slug,
		Series:    nonNilSlice(r.Series),
		Draft:     r.Draft,
		Checksum:  r.Checksum,
		UpdatedAt: r.UpdatedAt,
	}
}

// rowPermalink rebuilds the permalink from the stored identity columns.
// Rows without a valid identity have none.
func rowPermalink(r registry.PostRow) string {
	if r.Date == "" || r.Slug == "" {
		return ""
	}
	t, err := time.ParseInLocation("2006-01-02", r.Date, time.UTC)
	if err != nil {
		return ""
	}
	return permalink.Identity{Date: t, Slug: r.Slug}.Path()
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
