package registry

import (
	"fmt"
	"sort"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/reflink"
	"github.com/starford/ansuz/internal/storage"
)

// PostFile is one content file as loaded from disk. Per-file problems are
// carried as values so a single pass can report all of them instead of
// stopping at the first.
type PostFile struct {
	Path        string
	Checksum    string
	Identity    permalink.Identity
	IdentityErr error
	Doc         *frontmatter.Doc
	ParseErr    error
	Links       *reflink.Links
}

// HasIdentity reports whether the filename produced a usable (date, slug).
func (p *PostFile) HasIdentity() bool { return p.IdentityErr == nil }

// Draft reports whether the post is explicitly unpublished.
func (p *PostFile) Draft() bool { return p.Doc != nil && p.Doc.Meta.Draft }

// Snapshot is an immutable view of the whole content tree at one instant.
// Loading never mutates disk state; every decision downstream is made against
// this one consistent collection.
type Snapshot struct {
	Posts []*PostFile

	byKey     map[string][]*PostFile
	published map[string]*PostFile
}

// LoadSnapshot walks the content root and parses every post source file.
// Malformed names, bad frontmatter, and the like are recorded on the
// individual PostFile; only I/O failures abort the load.
func LoadSnapshot(store storage.Provider) (*Snapshot, error) {
	metas, err := store.List("")
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	snap := &Snapshot{
		byKey:     make(map[string][]*PostFile),
		published: make(map[string]*PostFile),
	}
	for _, m := range metas {
		if !storage.IsPostSource(m.Path) {
			continue
		}
		data, err := store.Read(m.Path)
		if err != nil {
			return nil, fmt.Errorf("snapshot: %w", err)
		}

		pf := &PostFile{Path: m.Path, Checksum: checksum.Sum(data)}
		pf.Identity, pf.IdentityErr = permalink.FromFilename(m.Path)

		doc, err := frontmatter.Parse(data)
		if err != nil {
			pf.ParseErr = err
		} else {
			pf.Doc = doc
			pf.Links = reflink.Extract(doc.Body)
		}

		snap.Posts = append(snap.Posts, pf)
		if pf.HasIdentity() {
			key := pf.Identity.Key()
			snap.byKey[key] = append(snap.byKey[key], pf)
			if !pf.Draft() {
				if _, taken := snap.published[key]; !taken {
					snap.published[key] = pf
				}
			}
		}
	}
	return snap, nil
}

// ByIdentity returns every file claiming the given identity, in path order.
func (s *Snapshot) ByIdentity(id permalink.Identity) []*PostFile {
	return s.byKey[id.Key()]
}

// Resolve returns the published post for an identity. Drafts never resolve:
// a reference to an unpublished post is as dangling as one to a missing post.
func (s *Snapshot) Resolve(id permalink.Identity) (*PostFile, bool) {
	pf, ok := s.published[id.Key()]
	return pf, ok
}

// PublishedKeys returns the identity keys of every published post.
func (s *Snapshot) PublishedKeys() map[string]*PostFile {
	return s.published
}
