// Package lint checks a content snapshot against the blog's identity,
// frontmatter, and cross-reference conventions. A run is a single pass: every
// violation in the tree is collected before anything is reported.
package lint

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/reflink"
	"github.com/starford/ansuz/internal/registry"
)

// Severity classifies a violation. Errors fail a check run; warnings do not.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule identifies one convention check.
type Rule string

const (
	RuleMalformedFilename      Rule = "malformed-filename"
	RuleMalformedSlug          Rule = "malformed-slug"
	RuleMissingFrontmatter     Rule = "missing-frontmatter"
	RuleInvalidFrontmatter     Rule = "invalid-frontmatter"
	RuleMissingTitle           Rule = "missing-title"
	RuleMissingDate            Rule = "missing-date"
	RuleInvalidDate            Rule = "invalid-date"
	RuleDateMismatch           Rule = "date-mismatch"
	RuleSlugMismatch           Rule = "slug-mismatch"
	RuleDuplicateIdentity      Rule = "duplicate-identity"
	RuleDanglingLink           Rule = "dangling-link"
	RuleMissingRefDefinition   Rule = "missing-ref-definition"
	RuleDuplicateRefDefinition Rule = "duplicate-ref-definition"
	RuleUnusedRefDefinition    Rule = "unused-ref-definition"
	RuleHardcodedBaseURL       Rule = "hardcoded-base-url"
	RuleIdentityRemoved        Rule = "identity-removed"
	RuleMissingUpdatedMarker   Rule = "missing-updated-marker"
)

// Options tune a lint run.
type Options struct {
	// BaseURL is the site's public base URL, used to spot hardcoded
	// self-links that should use the baseurl placeholder.
	BaseURL string
	// StrictUpdated promotes missing-updated-marker to an error.
	StrictUpdated bool
}

// updatedMarkerRe matches the conventional body marker for edits to a
// published post, e.g. "Updated: 2021-02-03" or "**Updated (2021-02-03):**".
var updatedMarkerRe = regexp.MustCompile(`(?im)^\s*\*{0,2}updated\*{0,2}\s*[:(]`)

// Run checks every post in the snapshot and the published ledger in one pass.
func Run(snap *registry.Snapshot, history []registry.HistoryRow, opts Options) *Report {
	r := &Report{Checked: len(snap.Posts), Violations: []Violation{}}

	checkFiles(r, snap)
	checkDuplicates(r, snap)
	checkReferences(r, snap, opts)
	checkLedger(r, snap, history, opts)

	r.sort()
	return r
}

func checkFiles(r *Report, snap *registry.Snapshot) {
	for _, pf := range snap.Posts {
		if pf.IdentityErr != nil {
			rule := RuleMalformedFilename
			if errors.Is(pf.IdentityErr, apperr.ErrMalformedSlug) {
				rule = RuleMalformedSlug
			}
			r.add(Violation{Rule: rule, Severity: SeverityError, Path: pf.Path,
				Message: trimPackagePrefix(pf.IdentityErr)})
		}

		if pf.ParseErr != nil {
			r.add(Violation{Rule: RuleInvalidFrontmatter, Severity: SeverityError, Path: pf.Path,
				Message: trimPackagePrefix(pf.ParseErr)})
			continue
		}

		doc := pf.Doc
		if doc.Format == frontmatter.FormatNone {
			r.add(Violation{Rule: RuleMissingFrontmatter, Severity: SeverityError, Path: pf.Path,
				Message: "no frontmatter block"})
			continue
		}

		if doc.Meta.Title == "" {
			r.add(Violation{Rule: RuleMissingTitle, Severity: SeverityError, Path: pf.Path,
				Message: "frontmatter has no title"})
		}

		switch {
		case !doc.Has("date"):
			r.add(Violation{Rule: RuleMissingDate, Severity: SeverityError, Path: pf.Path,
				Message: "frontmatter has no date"})
		case doc.Meta.Date.IsZero():
			r.add(Violation{Rule: RuleInvalidDate, Severity: SeverityError, Path: pf.Path,
				Message: fmt.Sprintf("date %v is not a recognized timestamp", doc.Fields["date"])})
		case pf.HasIdentity():
			if day := doc.Meta.Date.Format("2006-01-02"); day != pf.Identity.DateString() {
				r.add(Violation{Rule: RuleDateMismatch, Severity: SeverityError, Path: pf.Path,
					Message: fmt.Sprintf("frontmatter date %s contradicts filename date %s", day, pf.Identity.DateString())})
			}
		}

		if slug := doc.Meta.Slug; slug != "" {
			switch {
			case !permalink.ValidSlug(slug):
				r.add(Violation{Rule: RuleMalformedSlug, Severity: SeverityError, Path: pf.Path,
					Message: fmt.Sprintf("frontmatter slug %q is not a valid slug", slug)})
			case pf.HasIdentity() && slug != pf.Identity.Slug:
				r.add(Violation{Rule: RuleSlugMismatch, Severity: SeverityError, Path: pf.Path,
					Message: fmt.Sprintf("frontmatter slug %q contradicts filename slug %q", slug, pf.Identity.Slug)})
			}
		}
	}
}

func checkDuplicates(r *Report, snap *registry.Snapshot) {
	firstByKey := make(map[string]string)
	for _, pf := range snap.Posts {
		if !pf.HasIdentity() {
			continue
		}
		key := pf.Identity.Key()
		if first, dup := firstByKey[key]; dup {
			r.add(Violation{Rule: RuleDuplicateIdentity, Severity: SeverityError, Path: pf.Path,
				Message: fmt.Sprintf("identity %s already claimed by %s", pf.Identity.Path(), first)})
			continue
		}
		firstByKey[key] = pf.Path
	}
}

func checkReferences(r *Report, snap *registry.Snapshot, opts Options) {
	for _, pf := range snap.Posts {
		if pf.Links == nil {
			continue
		}
		links := pf.Links

		defsByRef := make(map[string][]reflink.Def)
		for _, d := range links.Defs {
			defsByRef[d.Ref] = append(defsByRef[d.Ref], d)
		}

		used := make(map[string]struct{})
		for _, u := range links.Uses {
			used[u.Ref] = struct{}{}
			defs := defsByRef[u.Ref]
			if len(defs) == 0 {
				r.add(Violation{Rule: RuleMissingRefDefinition, Severity: SeverityError, Path: pf.Path, Line: u.Line,
					Message: fmt.Sprintf("reference %q has no definition", u.Ref)})
			}
		}

		for ref, defs := range defsByRef {
			for _, d := range defs[1:] {
				r.add(Violation{Rule: RuleDuplicateRefDefinition, Severity: SeverityError, Path: pf.Path, Line: d.Line,
					Message: fmt.Sprintf("reference %q defined again (first at line %d)", ref, defs[0].Line)})
			}
			if _, ok := used[ref]; !ok {
				r.add(Violation{Rule: RuleUnusedRefDefinition, Severity: SeverityWarning, Path: pf.Path, Line: defs[0].Line,
					Message: fmt.Sprintf("reference %q is defined but never used", ref)})
			}
		}

		for _, d := range links.Defs {
			checkTarget(r, snap, opts, pf.Path, d.Line, d.Target)
		}
		for _, in := range links.Inline {
			checkTarget(r, snap, opts, pf.Path, in.Line, in.Target)
		}
	}
}

// checkTarget resolves one link target against the published set. Only
// /blog/ paths are checked: the registry owns that namespace and nothing
// else. External URLs are out of scope by design.
func checkTarget(r *Report, snap *registry.Snapshot, opts Options, path string, line int, target string) {
	kind, sitePath := reflink.Classify(target, opts.BaseURL)
	switch kind {
	case reflink.KindPlaceholder, reflink.KindSiteRelative:
	case reflink.KindHardcodedBase:
		r.add(Violation{Rule: RuleHardcodedBaseURL, Severity: SeverityWarning, Path: path, Line: line,
			Message: fmt.Sprintf("target %s hardcodes the base URL; use the baseurl placeholder", target)})
	default:
		return
	}
	if !strings.HasPrefix(sitePath, permalink.Prefix) {
		return
	}

	id, err := permalink.Parse(sitePath)
	if err != nil {
		r.add(Violation{Rule: RuleDanglingLink, Severity: SeverityError, Path: path, Line: line,
			Message: fmt.Sprintf("target %s is not a valid permalink", target)})
		return
	}
	if _, ok := snap.Resolve(id); ok {
		return
	}
	msg := fmt.Sprintf("target %s does not resolve to any published post", id.Path())
	if len(snap.ByIdentity(id)) > 0 {
		msg = fmt.Sprintf("target %s resolves only to a draft", id.Path())
	}
	r.add(Violation{Rule: RuleDanglingLink, Severity: SeverityError, Path: path, Line: line, Message: msg})
}

func checkLedger(r *Report, snap *registry.Snapshot, history []registry.HistoryRow, opts Options) {
	updatedSeverity := SeverityWarning
	if opts.StrictUpdated {
		updatedSeverity = SeverityError
	}

	for _, h := range history {
		id := registry.HistoryIdentity(h)
		pf, ok := snap.Resolve(id)
		if !ok {
			r.add(Violation{Rule: RuleIdentityRemoved, Severity: SeverityError, Path: h.Path,
				Message: fmt.Sprintf("published identity %s no longer resolves; its permalink is frozen forever", id.Path())})
			continue
		}
		if h.Checksum == "" || pf.Checksum == h.Checksum {
			continue
		}
		if hasUpdatedMarker(pf) {
			continue
		}
		r.add(Violation{Rule: RuleMissingUpdatedMarker, Severity: updatedSeverity, Path: pf.Path,
			Message: fmt.Sprintf("content changed since %s was recorded published, but carries no updated marker", id.Path())})
	}
}

func hasUpdatedMarker(pf *registry.PostFile) bool {
	if pf.Doc == nil {
		return false
	}
	if !pf.Doc.Meta.Updated.IsZero() {
		return true
	}
	return updatedMarkerRe.MatchString(pf.Doc.Body)
}

// trimPackagePrefix drops the leading "pkgname: " from wrapped error text so
// report lines read as prose.
func trimPackagePrefix(err error) string {
	s := err.Error()
	for _, prefix := range []string{"permalink: ", "frontmatter: "} {
		s = strings.TrimPrefix(s, prefix)
	}
	return s
}
