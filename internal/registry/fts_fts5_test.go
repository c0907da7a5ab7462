//go:build sqlite_fts5

package registry

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM posts_fts`).Scan(&count); err != nil {
		t.Fatalf("posts_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := PostRow{
		Path:      "2024-03-04-fts.md",
		Date:      "2024-03-04",
		Slug:      "fts",
		Title:     "FTS Post",
		Checksum:  "f1",
		Series:    []string{"search"},
		UpdatedAt: time.Now(),
	}
	if err := db.UpsertPost(row, "Ansuz provides powerful full-text search capabilities.", nil); err != nil {
		t.Fatalf("UpsertPost: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "2024-03-04-fts.md" {
		t.Errorf("path = %q", results[0].Path)
	}
	// FTS5 snippet should contain bold markers.
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertPost(post("2024-03-04-gone.md", "2024-03-04", "gone", "Gone", false), "vanishing content", nil)
	_ = db.DeletePost("2024-03-04-gone.md")

	results, _ := db.Search("vanishing", 10)
	for _, r := range results {
		if r.Path == "2024-03-04-gone.md" {
			t.Error("deleted post still in FTS index")
		}
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	row := post("2024-03-04-evo.md", "2024-03-04", "evo", "Old", false)
	_ = db.UpsertPost(row, "original text", nil)
	row.Title = "New"
	row.Checksum = "2"
	_ = db.UpsertPost(row, "replacement text", nil)

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Title != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
