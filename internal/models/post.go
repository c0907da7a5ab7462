// Package models defines the domain types for Ansuz.
package models

import "time"

// PostMetadata is a lightweight representation returned by list operations.
type PostMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CrossReference is a directed link from a post body to a target.
type CrossReference struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind"` // "internal" or "external"
}

// SeriesInfo summarizes one derived series grouping.
type SeriesInfo struct {
	Name  string   `json:"name"`
	Count int      `json:"count"`
	Posts []string `json:"posts"` // permalinks, oldest first
}
