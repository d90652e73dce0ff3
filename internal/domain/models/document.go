package models

import (
	"time"
)

// Document is one editable grant narrative. Version is a monotonic counter
// incremented by the database on every successful write; writers must present
// the version they last saw (compare-and-swap) or the write is rejected.
//
// JSON uses the camelCase field names the editor client speaks; see the wire
// format note in DESIGN.md.
type Document struct {
	ID        string    `json:"id" db:"id"`
	ProjectID string    `json:"projectId" db:"project_id"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"` // Serialized editor content
	Version   int       `json:"version" db:"version"`
	WordCount int       `json:"wordCount" db:"word_count"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Project groups documents for one grant application.
type Project struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
