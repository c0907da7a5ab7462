// Package storage defines the content-tree file-system abstraction.
package storage

import (
	"path/filepath"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Provider is the interface for content file operations.
type Provider interface {
	// List returns metadata for every Markdown file under dir (relative to
	// the content root).
	List(dir string) ([]models.PostMetadata, error)
	// Read returns the raw bytes of the file at path (relative to the root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to the root).
	Write(path string, content []byte) error
	// Delete removes the file at path (relative to the root).
	Delete(path string) error
	// Move renames oldPath to newPath (both relative to the root).
	Move(oldPath, newPath string) error
}

// IsMarkdown reports whether name carries one of the two source extensions
// the blog has accumulated.
func IsMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

// IsPostSource reports whether name is a candidate post file: Markdown, not
// hidden, and not a section index stub like _index.md.
func IsPostSource(name string) bool {
	base := filepath.Base(name)
	if !IsMarkdown(base) {
		return false
	}
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "_") {
		return false
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem != "index"
}
