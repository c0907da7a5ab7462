package postservice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/permalink"
	"github.com/starford/ansuz/internal/registry"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

const testBaseURL = "https://blog.example.com"

func newTestService(t *testing.T) (*Service, storage.Provider, *registry.DB) {
	t.Helper()
	_, store := testutil.TestContentDir(t)
	db := testutil.TestDB(t)
	return NewService(store, db, testBaseURL, false), store, db
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestCreatePost_Scaffold(t *testing.T) {
	svc, store, _ := newTestService(t)

	post, err := svc.CreatePost(context.Background(), DraftRequest{
		Title:      "Hello World",
		Date:       date(t, "2020-12-30"),
		Series:     []string{"intro"},
		Categories: []string{"meta"},
		Body:       "First post.",
	})
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if post.Path != "2020-12-30-hello-world.md" {
		t.Errorf("path = %q", post.Path)
	}
	if post.Permalink != "/blog/2020/12/30/hello-world/" {
		t.Errorf("permalink = %q", post.Permalink)
	}
	if !post.Draft {
		t.Error("scaffolded post should be a draft")
	}

	data, err := store.Read(post.Path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\n") {
		t.Errorf("file should open with a frontmatter fence:\n%s", data)
	}
	doc, err := frontmatter.Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Meta.Title != "Hello World" || doc.Meta.Date.Format("2006-01-02") != "2020-12-30" {
		t.Errorf("meta = %+v", doc.Meta)
	}
	if !doc.Meta.Draft {
		t.Error("frontmatter should carry published: false")
	}
	if strings.TrimSpace(doc.Body) != "First post." {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestCreatePost_PublishSkipsPublishedKey(t *testing.T) {
	svc, store, _ := newTestService(t)

	post, err := svc.CreatePost(context.Background(), DraftRequest{
		Title:   "Live",
		Date:    date(t, "2020-12-30"),
		Publish: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if post.Draft {
		t.Error("published post should not be a draft")
	}
	data, _ := store.Read(post.Path)
	if strings.Contains(string(data), "published:") {
		t.Errorf("published scaffold should omit the published key:\n%s", data)
	}
}

func TestCreatePost_SlugFromTitle(t *testing.T) {
	svc, _, _ := newTestService(t)

	post, err := svc.CreatePost(context.Background(), DraftRequest{
		Title: "Why Go? Notes & Caveats",
		Date:  date(t, "2020-12-30"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if post.Slug != "why-go-notes-caveats" {
		t.Errorf("slug = %q", post.Slug)
	}
}

func TestCreatePost_RejectsBadSlug(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreatePost(context.Background(), DraftRequest{
		Title: "X",
		Slug:  "Not A Slug",
	})
	if !errors.Is(err, apperr.ErrMalformedSlug) {
		t.Errorf("err = %v, want ErrMalformedSlug", err)
	}
}

func TestCreatePost_DuplicateIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreatePost(ctx, DraftRequest{Title: "Dup", Date: date(t, "2020-12-30")}); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreatePost(ctx, DraftRequest{Title: "Dup", Date: date(t, "2020-12-30")})
	if !errors.Is(err, apperr.ErrDuplicateIdentity) {
		t.Errorf("err = %v, want ErrDuplicateIdentity", err)
	}
}

func TestCreatePost_DuplicateFileNotYetIndexed(t *testing.T) {
	svc, store, _ := newTestService(t)

	// The file exists on disk but the registry has never seen it.
	if err := store.Write("2020-12-30-dup.md", []byte("---\ntitle: Dup\ndate: 2020-12-30\n---\n")); err != nil {
		t.Fatal(err)
	}
	_, err := svc.CreatePost(context.Background(), DraftRequest{Title: "Dup", Date: date(t, "2020-12-30")})
	if !errors.Is(err, apperr.ErrDuplicateIdentity) {
		t.Errorf("err = %v, want ErrDuplicateIdentity", err)
	}
}

func TestUpdatePost_ChecksumConflict(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, DraftRequest{Title: "Lock", Date: date(t, "2020-12-30"), Body: "v1"})
	if err != nil {
		t.Fatal(err)
	}
	id := identityOf(t, post)

	v2 := []byte(strings.Replace(post.Content, "v1", "v2", 1))
	if _, err := svc.UpdatePost(ctx, id, v2, post.Checksum); err != nil {
		t.Fatalf("update with fresh checksum: %v", err)
	}
	_, err = svc.UpdatePost(ctx, id, v2, post.Checksum)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale update err = %v, want ErrConflict", err)
	}
}

func TestUpdatePost_IdentityGuard(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, DraftRequest{Title: "Fixed", Date: date(t, "2020-12-30")})
	if err != nil {
		t.Fatal(err)
	}
	id := identityOf(t, post)

	_, err = svc.UpdatePost(ctx, id, []byte("---\ntitle: Fixed\ndate: 2021-01-01\n---\n"), "")
	if !errors.Is(err, apperr.ErrIdentityChanged) {
		t.Errorf("date change err = %v, want ErrIdentityChanged", err)
	}
	_, err = svc.UpdatePost(ctx, id, []byte("---\ntitle: Fixed\ndate: 2020-12-30\nslug: moved\n---\n"), "")
	if !errors.Is(err, apperr.ErrIdentityChanged) {
		t.Errorf("slug change err = %v, want ErrIdentityChanged", err)
	}
}

func TestUpdatePost_BrokenFrontmatterIsWritable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	post, err := svc.CreatePost(ctx, DraftRequest{Title: "Fragile", Date: date(t, "2020-12-30")})
	if err != nil {
		t.Fatal(err)
	}
	id := identityOf(t, post)

	// Unparseable frontmatter is a lint finding, not a write error.
	broken := []byte("---\ntitle: [unclosed\n---\nstill here\n")
	if _, err := svc.UpdatePost(ctx, id, broken, ""); err != nil {
		t.Errorf("broken frontmatter update err = %v, want nil", err)
	}
}

func TestRecordPublished_LedgerRoundTrip(t *testing.T) {
	svc, store, db := newTestService(t)
	ctx := context.Background()

	published := []byte("---\ntitle: Live\ndate: 2020-12-30\n---\nBody.\n")
	mustWrite(t, store, "2020-12-30-live.md", published)
	mustWrite(t, store, "2020-12-31-wip.md", []byte("---\ntitle: Wip\ndate: 2020-12-31\npublished: false\n---\n"))

	n, err := svc.RecordPublished(ctx)
	if err != nil {
		t.Fatalf("RecordPublished: %v", err)
	}
	if n != 1 {
		t.Errorf("recorded = %d, want 1 (drafts stay out of the ledger)", n)
	}

	history, err := db.History()
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	h := history[0]
	if h.Date != "2020-12-30" || h.Slug != "live" || h.Path != "2020-12-30-live.md" {
		t.Errorf("history = %+v", h)
	}
	if h.Checksum != checksum.Sum(published) {
		t.Errorf("checksum = %q", h.Checksum)
	}

	// Recording again must not duplicate the identity.
	if _, err := svc.RecordPublished(ctx); err != nil {
		t.Fatal(err)
	}
	history, _ = db.History()
	if len(history) != 1 {
		t.Errorf("history rows after re-record = %d, want 1", len(history))
	}
}

func TestFeedPosts_NewestFirstWithExcerpts(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, day := range []string{"2020-01-01", "2020-01-02", "2020-01-03"} {
		_, err := svc.CreatePost(ctx, DraftRequest{
			Title:   "Post " + day,
			Slug:    "post-" + strings.ReplaceAll(day, "-", ""),
			Date:    date(t, day),
			Body:    "# Heading\n\nProse written on " + day + ".",
			Publish: true,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	posts, err := svc.FeedPosts(ctx, 2)
	if err != nil {
		t.Fatalf("FeedPosts: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("len = %d, want 2", len(posts))
	}
	if posts[0].Permalink != "/blog/2020/01/03/post-20200103/" {
		t.Errorf("first = %q, want the newest post", posts[0].Permalink)
	}
	if posts[0].Excerpt != "Prose written on 2020-01-03." {
		t.Errorf("excerpt = %q", posts[0].Excerpt)
	}
	if !posts[0].Date.Equal(date(t, "2020-01-03")) {
		t.Errorf("date = %v", posts[0].Date)
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"plain", "Just some prose.", "Just some prose."},
		{"skips heading", "# Title\n\nReal text.", "Real text."},
		{"skips code fence", "```go\ncode\n```\n\nAfter code.", "After code."},
		{"skips blockquote", "> quoted\n\nProse.", "Prose."},
		{"skips image", "![alt](/assets/x.png)\n\nCaption text.", "Caption text."},
		{"skips ref defs", "[a]: {{< baseurl >}}/blog/2020/01/01/a/\n\nText.", "Text."},
		{"flattens newlines", "Line one\nline two.", "Line one line two."},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := excerpt(tt.body); got != tt.want {
				t.Errorf("excerpt(%q) = %q, want %q", tt.body, got, tt.want)
			}
		})
	}
}

func TestExcerpt_TruncatesAtWordBoundary(t *testing.T) {
	long := strings.Repeat("wordy ", 100)
	got := excerpt(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("long excerpt should be elided: %q", got)
	}
	if len([]rune(got)) > 283 {
		t.Errorf("excerpt too long: %d runes", len([]rune(got)))
	}
	if strings.Contains(got, "  ") {
		t.Errorf("excerpt not flattened: %q", got)
	}
}

func TestCanonicalTarget(t *testing.T) {
	tests := []struct {
		target string
		want   string
	}{
		{"2020-12-30-hello.md", "/blog/2020/12/30/hello/"},
		{"{{< baseurl >}}/blog/2020/12/30/hello/", "/blog/2020/12/30/hello/"},
		{"/blog/2020/12/30/hello/", "/blog/2020/12/30/hello/"},
		{testBaseURL + "/blog/2020/12/30/hello/", "/blog/2020/12/30/hello/"},
		{"/blog/2020/12/30/hello", "/blog/2020/12/30/hello/"},
		{"https://elsewhere.example.org/page", "https://elsewhere.example.org/page"},
	}
	for _, tt := range tests {
		if got := canonicalTarget(tt.target, testBaseURL); got != tt.want {
			t.Errorf("canonicalTarget(%q) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func identityOf(t *testing.T, post *PostDetail) permalink.Identity {
	t.Helper()
	return permalink.Identity{Date: date(t, post.Date), Slug: post.Slug}
}

func mustWrite(t *testing.T, store storage.Provider, path string, data []byte) {
	t.Helper()
	if err := store.Write(path, data); err != nil {
		t.Fatal(err)
	}
}
