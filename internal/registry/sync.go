package registry

import (
	"log/slog"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/reflink"
	"github.com/starford/ansuz/internal/storage"
)

// Sync walks the content tree and brings the registry up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the registry
func Sync(db *DB, store storage.Provider, baseURL string, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		if !storage.IsPostSource(m.Path) {
			continue
		}
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := IndexFile(db, baseURL, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeletePost(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile parses data and upserts it into the registry. Files whose
// frontmatter block does not decode are still indexed raw so search can see
// them; the lint pass is where that problem gets reported.
func IndexFile(db *DB, baseURL, path string, data []byte, modTime time.Time) error {
	row := PostRow{Path: path, Checksum: checksum.Sum(data), UpdatedAt: modTime}
	if modTime.IsZero() {
		row.UpdatedAt = time.Now()
	}

	if id, err := permalink.FromFilename(path); err == nil {
		row.Date = id.DateString()
		row.Slug = id.Slug
	}

	doc, err := frontmatter.Parse(data)
	if err != nil {
		return db.UpsertPost(row, string(data), nil)
	}

	row.Title = doc.DisplayTitle()
	row.Series = doc.Groups()
	row.Draft = doc.Meta.Draft
	return db.UpsertPost(row, doc.Body, linkRows(doc.Body, baseURL))
}

// linkRows classifies every link target in body for the links table.
// Internal targets are stored in canonical permalink form so backlink
// queries can key on the permalink alone.
func linkRows(body, baseURL string) []LinkRow {
	var out []LinkRow
	for _, target := range reflink.Extract(body).Targets() {
		kind, sitePath := reflink.Classify(target, baseURL)
		switch kind {
		case reflink.KindPlaceholder, reflink.KindSiteRelative, reflink.KindHardcodedBase:
			if !strings.HasPrefix(sitePath, permalink.Prefix) {
				continue
			}
			if id, err := permalink.Parse(sitePath); err == nil {
				sitePath = id.Path()
			}
			out = append(out, LinkRow{Target: sitePath, Kind: "internal"})
		case reflink.KindExternal:
			out = append(out, LinkRow{Target: target, Kind: "external"})
		}
	}
	return out
}
