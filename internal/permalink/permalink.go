// Package permalink implements the date+slug identity scheme that maps blog
// source filenames to stable URL paths and back.
package permalink

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
)

// Prefix is the URL namespace all post permalinks live under.
const Prefix = "/blog/"

var (
	slugRe     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	filenameRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})-(.+)\.(md|markdown)$`)
)

// Identity is the immutable (date, slug) pair that determines a post's
// permalink. Date carries calendar-day resolution at UTC midnight.
type Identity struct {
	Date time.Time `json:"date"`
	Slug string    `json:"slug"`
}

// Path returns the canonical permalink: /blog/YYYY/MM/DD/slug/.
func (id Identity) Path() string {
	return fmt.Sprintf("/blog/%04d/%02d/%02d/%s/", id.Date.Year(), id.Date.Month(), id.Date.Day(), id.Slug)
}

func (id Identity) String() string { return id.Path() }

// Key returns a stable "YYYY-MM-DD/slug" form used as a map key.
func (id Identity) Key() string {
	return id.Date.Format("2006-01-02") + "/" + id.Slug
}

// DateString returns the date component as YYYY-MM-DD.
func (id Identity) DateString() string {
	return id.Date.Format("2006-01-02")
}

// IsZero reports whether id carries no identity at all.
func (id Identity) IsZero() bool {
	return id.Slug == "" && id.Date.IsZero()
}

// ValidSlug reports whether s is a lowercase, hyphen-separated, URL-safe slug.
// Leading, trailing, and doubled hyphens are rejected.
func ValidSlug(s string) bool {
	return slugRe.MatchString(s)
}

// FromFilename derives an Identity from a source file name such as
// "2020-12-30-the-more-things-change.md". Directory components are ignored.
func FromFilename(name string) (Identity, error) {
	base := path.Base(filepath.ToSlash(name))
	m := filenameRe.FindStringSubmatch(base)
	if m == nil {
		return Identity{}, fmt.Errorf("permalink: filename %q: %w", base, apperr.ErrMalformedFilename)
	}
	date, err := time.ParseInLocation("2006-01-02", m[1], time.UTC)
	if err != nil {
		return Identity{}, fmt.Errorf("permalink: filename %q: date %q is not a calendar day: %w", base, m[1], apperr.ErrMalformedFilename)
	}
	if !ValidSlug(m[2]) {
		return Identity{}, fmt.Errorf("permalink: filename %q: slug %q: %w", base, m[2], apperr.ErrMalformedSlug)
	}
	return Identity{Date: date, Slug: m[2]}, nil
}

// Parse decomposes a permalink path /blog/YYYY/MM/DD/slug/ into an Identity.
// A missing trailing slash is tolerated on input; Path always emits one.
func Parse(p string) (Identity, error) {
	s := strings.TrimSuffix(p, "/")
	if !strings.HasPrefix(s, Prefix) {
		return Identity{}, fmt.Errorf("permalink: %q is outside %s", p, Prefix)
	}
	parts := strings.Split(strings.TrimPrefix(s, Prefix), "/")
	if len(parts) != 4 {
		return Identity{}, fmt.Errorf("permalink: %q: want /blog/YYYY/MM/DD/slug/", p)
	}
	date, err := time.ParseInLocation("2006/01/02", strings.Join(parts[:3], "/"), time.UTC)
	if err != nil {
		return Identity{}, fmt.Errorf("permalink: %q: date segments are not a calendar day: %w", p, err)
	}
	if !ValidSlug(parts[3]) {
		return Identity{}, fmt.Errorf("permalink: %q: slug %q: %w", p, parts[3], apperr.ErrMalformedSlug)
	}
	return Identity{Date: date, Slug: parts[3]}, nil
}

// Filename returns the canonical source file name for the identity.
func (id Identity) Filename() string {
	return id.DateString() + "-" + id.Slug + ".md"
}

// Slugify converts a post title into a valid slug: lowercased, with every run
// of non-alphanumeric characters collapsed into a single hyphen.
func Slugify(title string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			hyphen = false
		default:
			if !hyphen && b.Len() > 0 {
				b.WriteByte('-')
				hyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
