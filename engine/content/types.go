// Package content defines the content domain model and the write pipeline
// that keeps the primary store and the vector index eventually consistent.
// It acts as the validation gate at pipeline entry points.
package content

import "time"

// Record is a stored content item. The primary store is authoritative for
// its existence and fields; the vector index holds a derived embedding.
type Record struct {
	ID          int64          `json:"id"`
	Type        string         `json:"type"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Content     string         `json:"content,omitempty"`
	URL         string         `json:"url,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	MetaTags    map[string]any `json:"metaTags,omitempty"`
	Labels      []string       `json:"labels"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// CreateRequest is caller input for Create. At least one of Content, URL or
// ImageURL must be present.
type CreateRequest struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content,omitempty"`
	URL         string `json:"url,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Patch carries a partial update. Nil pointers mean "leave unchanged";
// non-nil pointers overwrite, including with the empty value.
type Patch struct {
	Type        *string         `json:"type,omitempty"`
	Title       *string         `json:"title,omitempty"`
	Description *string         `json:"description,omitempty"`
	Content     *string         `json:"content,omitempty"`
	URL         *string         `json:"url,omitempty"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	Metadata    *map[string]any `json:"metadata,omitempty"`
	Labels      *[]string       `json:"labels,omitempty"`
}

// TouchesText reports whether the patch changes any field that feeds the
// combined embedding text. Such a patch must trigger re-embedding.
func (p Patch) TouchesText() bool {
	return p.Title != nil || p.Description != nil || p.Content != nil || p.Labels != nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Type   string
	Labels []string
	Limit  int
	Offset int
}

// EmbedFields is the self-contained snapshot of everything needed to rebuild
// the combined embedding text for a record. Jobs carry a snapshot, not a
// live reference, so a later mutation of the record cannot change a job
// already in flight.
type EmbedFields struct {
	Title       string         `json:"title,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	MetaTags    map[string]any `json:"metaTags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Content     string         `json:"content,omitempty"`
	Type        string         `json:"type,omitempty"`
}

// Snapshot extracts the embedding-relevant fields from a record.
func Snapshot(r Record) EmbedFields {
	return EmbedFields{
		Title:       r.Title,
		Summary:     r.Summary,
		Description: r.Description,
		Labels:      r.Labels,
		MetaTags:    r.MetaTags,
		Metadata:    r.Metadata,
		Content:     r.Content,
		Type:        r.Type,
	}
}
