// Package reflink extracts reference-style and inline Markdown links from
// post bodies and classifies link targets against the site's URL space.
package reflink

import (
	"regexp"
	"strings"
)

var (
	defRe     = regexp.MustCompile(`^ {0,3}\[([^\]]+)\]:\s*(.+?)\s*$`)
	useRe     = regexp.MustCompile(`\[([^\[\]]*)\]\[([^\[\]]*)\]`)
	inlineRe  = regexp.MustCompile(`\[([^\[\]]*)\]\(([^()\s]+)(?:\s+"[^"]*")?\)`)
	titleRe   = regexp.MustCompile(`\s+("[^"]*"|'[^']*')$`)
	baseurlRe = regexp.MustCompile(`^\{\{<\s*baseurl\s*>\}\}`)
	schemeRe  = regexp.MustCompile(`^[a-z][a-z0-9+.-]*:`)
)

// Use is one [label][ref] occurrence in a body.
type Use struct {
	Label string
	Ref   string // normalized; equals the label for collapsed [label][] form
	Line  int
}

// Def is one [ref]: target definition line.
type Def struct {
	Ref    string // normalized
	Target string
	Line   int
}

// Inline is one [label](target) occurrence.
type Inline struct {
	Label  string
	Target string
	Line   int
}

// Links holds everything extracted from a single body.
type Links struct {
	Uses   []Use
	Defs   []Def
	Inline []Inline
}

// Targets returns every link target in the body, definitions first.
func (l *Links) Targets() []string {
	out := make([]string, 0, len(l.Defs)+len(l.Inline))
	for _, d := range l.Defs {
		out = append(out, d.Target)
	}
	for _, in := range l.Inline {
		out = append(out, in.Target)
	}
	return out
}

// NormalizeRef lowercases a reference and collapses internal whitespace,
// matching Markdown's case-insensitive reference resolution.
func NormalizeRef(ref string) string {
	return strings.ToLower(strings.Join(strings.Fields(ref), " "))
}

// Extract scans body line by line, skipping fenced code blocks. Definition
// lines are not scanned for uses; footnote definitions ([^1]: ...) are not
// link definitions and are ignored.
func Extract(body string) *Links {
	links := &Links{}
	inCode := false
	for i, line := range strings.Split(body, "\n") {
		n := i + 1
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inCode = !inCode
			continue
		}
		if inCode {
			continue
		}

		if m := defRe.FindStringSubmatch(line); m != nil {
			ref := m[1]
			if !strings.HasPrefix(ref, "^") {
				target := titleRe.ReplaceAllString(m[2], "")
				if strings.HasPrefix(target, "<") && strings.HasSuffix(target, ">") {
					target = target[1 : len(target)-1]
				}
				links.Defs = append(links.Defs, Def{Ref: NormalizeRef(ref), Target: target, Line: n})
				continue
			}
		}

		for _, m := range useRe.FindAllStringSubmatch(line, -1) {
			label, ref := m[1], m[2]
			if ref == "" {
				ref = label
			}
			if ref == "" || strings.HasPrefix(ref, "^") {
				continue
			}
			links.Uses = append(links.Uses, Use{Label: label, Ref: NormalizeRef(ref), Line: n})
		}
		for _, m := range inlineRe.FindAllStringSubmatch(line, -1) {
			links.Inline = append(links.Inline, Inline{Label: m[1], Target: m[2], Line: n})
		}
	}
	return links
}

// Kind classifies where a link target points.
type Kind int

const (
	// KindPlaceholder is a {{< baseurl >}}-prefixed site link, the
	// canonical way posts reference each other.
	KindPlaceholder Kind = iota
	// KindSiteRelative is a root-relative path like /blog/2020/12/30/post/.
	KindSiteRelative
	// KindHardcodedBase is an absolute URL that spells out the site's own
	// base URL instead of the placeholder.
	KindHardcodedBase
	// KindExternal is an absolute URL to another site.
	KindExternal
	// KindOther is anything else: fragments, relative paths, mailto-less
	// oddities. Never checked.
	KindOther
)

// String returns a stable lowercase label for the kind.
func (k Kind) String() string {
	switch k {
	case KindPlaceholder:
		return "placeholder"
	case KindSiteRelative:
		return "site-relative"
	case KindHardcodedBase:
		return "hardcoded-base"
	case KindExternal:
		return "external"
	default:
		return "other"
	}
}

// Classify reports the kind of target and, for site-internal kinds, the
// root-relative path with any query or fragment stripped.
func Classify(target, baseURL string) (Kind, string) {
	if m := baseurlRe.FindString(target); m != "" {
		return KindPlaceholder, sitePath(target[len(m):])
	}
	if baseURL != "" {
		base := strings.TrimSuffix(baseURL, "/")
		if rest, ok := strings.CutPrefix(target, base); ok && (rest == "" || strings.HasPrefix(rest, "/")) {
			return KindHardcodedBase, sitePath(rest)
		}
	}
	if strings.HasPrefix(target, "/") {
		return KindSiteRelative, sitePath(target)
	}
	if schemeRe.MatchString(target) {
		return KindExternal, ""
	}
	return KindOther, ""
}

func sitePath(p string) string {
	if i := strings.IndexAny(p, "#?"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	return p
}
