package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/permalink"
)

// PostRow represents a row in the posts table. Date and Slug are empty for
// files whose names do not form a valid identity; such rows are still indexed
// for search but never listed or resolved.
type PostRow struct {
	Path      string
	Date      string // YYYY-MM-DD
	Slug      string
	Title     string
	Checksum  string
	Series    []string
	Draft     bool
	UpdatedAt time.Time
}

// LinkRow is one outgoing link from a post body.
type LinkRow struct {
	Target string // canonical permalink for internal links, raw URL otherwise
	Kind   string // "internal" or "external"
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string
	Title   string
	Snippet string
}

// HistoryRow is one entry in the published identity ledger.
type HistoryRow struct {
	Date          string
	Slug          string
	Path          string
	Checksum      string
	FirstRecorded time.Time
	LastSeen      time.Time
}

// HistoryIdentity returns the permalink identity a ledger entry froze.
func HistoryIdentity(h HistoryRow) permalink.Identity {
	d, _ := time.ParseInLocation("2006-01-02", h.Date, time.UTC)
	return permalink.Identity{Date: d, Slug: h.Slug}
}

// GraphNode is one post in the cross-reference graph.
type GraphNode struct {
	ID    string `json:"id"` // permalink
	Title string `json:"title"`
}

// GraphLink is one internal reference between two posts.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

const postColumns = `path, date, slug, title, checksum, series, draft, updated_at`

// UpsertPost inserts or replaces a post, its FTS entry, and its outgoing
// links within a transaction.
func (db *DB) UpsertPost(p PostRow, body string, links []LinkRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	seriesJSON, _ := json.Marshal(p.Series)

	// Upsert posts table (includes body for fallback search).
	_, err = tx.Exec(`
		INSERT INTO posts (path, date, slug, title, checksum, series, draft, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			date       = excluded.date,
			slug       = excluded.slug,
			title      = excluded.title,
			checksum   = excluded.checksum,
			series     = excluded.series,
			draft      = excluded.draft,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, p.Path, p.Date, p.Slug, p.Title, p.Checksum, string(seriesJSON), boolToInt(p.Draft), body, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("registry: upsert post: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, p.Path, p.Title, body, p.Series); err != nil {
		return err
	}

	// Replace links: delete old then bulk insert.
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, p.Path)
	if len(links) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO links (source, target, kind) VALUES (?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("registry: prepare link insert: %w", err)
		}
		defer stmt.Close()
		for _, l := range links {
			if _, err := stmt.Exec(p.Path, l.Target, l.Kind); err != nil {
				return fmt.Errorf("registry: insert link: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeletePost removes a post, its FTS entry, and outgoing links. The published
// ledger is deliberately left untouched: removing the file does not un-publish
// the identity.
func (db *DB) DeletePost(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	_, _ = tx.Exec(`DELETE FROM links WHERE source = ?`, path)
	_, _ = tx.Exec(`DELETE FROM posts WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a post, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM posts WHERE path = ?`, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// GetPost returns the indexed row for a path, or sql.ErrNoRows.
func (db *DB) GetPost(path string) (*PostRow, error) {
	row := db.conn.QueryRow(`SELECT `+postColumns+` FROM posts WHERE path = ?`, path)
	return scanPost(row)
}

// GetByIdentity returns the post for a (date, slug) pair. When duplicates
// exist on disk, published wins over draft, then lexically smallest path.
func (db *DB) GetByIdentity(date, slug string) (*PostRow, error) {
	row := db.conn.QueryRow(`
		SELECT `+postColumns+`
		FROM posts
		WHERE date = ? AND slug = ?
		ORDER BY draft ASC, path ASC
		LIMIT 1
	`, date, slug)
	return scanPost(row)
}

// ListPosts returns one page of posts with a valid identity, newest first by
// default, plus the total count for the same filter.
func (db *DB) ListPosts(limit, offset int, series, sort string, includeDrafts bool) ([]PostRow, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	order := "date DESC, slug ASC"
	switch sort {
	case "title":
		order = "title ASC, date DESC"
	case "path":
		order = "path ASC"
	}

	where := `WHERE date != ''`
	var args []any
	if !includeDrafts {
		where += ` AND draft = 0`
	}
	if series != "" {
		where += ` AND series LIKE ?`
		args = append(args, `%"`+series+`"%`)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM posts `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("registry: count posts: %w", err)
	}

	query := `SELECT ` + postColumns + ` FROM posts ` + where + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := db.conn.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("registry: list posts: %w", err)
	}
	defer rows.Close()

	out, err := collectPosts(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// PublishedPosts returns every published post with a valid identity, oldest
// first. Feeds, sitemaps, and series derivation all start here.
func (db *DB) PublishedPosts() ([]PostRow, error) {
	rows, err := db.conn.Query(`
		SELECT ` + postColumns + `
		FROM posts
		WHERE date != '' AND draft = 0
		ORDER BY date ASC, slug ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: published posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// AllPaths returns every indexed post path.
func (db *DB) AllPaths() (map[string]struct{}, error) {
	rows, err := db.conn.Query(`SELECT path FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("registry: all paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed post.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM posts`)
	if err != nil {
		return nil, fmt.Errorf("registry: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Backlinks returns all source paths that link to the given target permalink.
func (db *DB) Backlinks(target string) ([]string, error) {
	rows, err := db.conn.Query(`SELECT source FROM links WHERE target = ? ORDER BY source`, target)
	if err != nil {
		return nil, fmt.Errorf("registry: backlinks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Graph returns every identified post as a node and every internal reference
// between two known posts as a link.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT path, date, slug, title FROM posts WHERE date != ''`)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: graph nodes: %w", err)
	}
	defer rows.Close()

	permalinkOf := make(map[string]string)
	var nodes []GraphNode
	known := make(map[string]struct{})
	for rows.Next() {
		var path, date, slug, title string
		if err := rows.Scan(&path, &date, &slug, &title); err != nil {
			return nil, nil, err
		}
		pl := permalinkFromParts(date, slug)
		if pl == "" {
			continue
		}
		permalinkOf[path] = pl
		known[pl] = struct{}{}
		nodes = append(nodes, GraphNode{ID: pl, Title: title})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	linkRows, err := db.conn.Query(`SELECT source, target FROM links WHERE kind = 'internal'`)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: graph links: %w", err)
	}
	defer linkRows.Close()

	var links []GraphLink
	for linkRows.Next() {
		var source, target string
		if err := linkRows.Scan(&source, &target); err != nil {
			return nil, nil, err
		}
		src, ok := permalinkOf[source]
		if !ok {
			continue
		}
		if _, ok := known[target]; !ok {
			continue
		}
		links = append(links, GraphLink{Source: src, Target: target})
	}
	return nodes, links, linkRows.Err()
}

// RecordPublished upserts ledger entries for the given identities. The first
// recording timestamp is preserved across subsequent runs.
func (db *DB) RecordPublished(entries []HistoryRow) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`
		INSERT INTO published_history (date, slug, path, checksum, first_recorded, last_seen)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(date, slug) DO UPDATE SET
			path      = excluded.path,
			checksum  = excluded.checksum,
			last_seen = excluded.last_seen
	`)
	if err != nil {
		return fmt.Errorf("registry: prepare ledger insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.Date, e.Slug, e.Path, e.Checksum); err != nil {
			return fmt.Errorf("registry: record published %s/%s: %w", e.Date, e.Slug, err)
		}
	}
	return tx.Commit()
}

// History returns the full published identity ledger.
func (db *DB) History() ([]HistoryRow, error) {
	rows, err := db.conn.Query(`
		SELECT date, slug, path, checksum, first_recorded, last_seen
		FROM published_history
		ORDER BY date, slug
	`)
	if err != nil {
		return nil, fmt.Errorf("registry: history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		if err := rows.Scan(&h.Date, &h.Slug, &h.Path, &h.Checksum, &h.FirstRecorded, &h.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (*PostRow, error) {
	var p PostRow
	var seriesJSON string
	var draft int
	if err := r.Scan(&p.Path, &p.Date, &p.Slug, &p.Title, &p.Checksum, &seriesJSON, &draft, &p.UpdatedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(seriesJSON), &p.Series)
	p.Draft = draft != 0
	return &p, nil
}

func collectPosts(rows *sql.Rows) ([]PostRow, error) {
	var out []PostRow
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func permalinkFromParts(date, slug string) string {
	if len(date) != 10 || slug == "" {
		return ""
	}
	return "/blog/" + date[:4] + "/" + date[5:7] + "/" + date[8:10] + "/" + slug + "/"
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
