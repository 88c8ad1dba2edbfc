package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Depth selects the research mode: a single-pass quick report or a
// multi-section deep report.
type Depth string

const (
	DepthQuick Depth = "quick"
	DepthDeep  Depth = "deep"
)

// Valid reports whether d is a known depth value.
func (d Depth) Valid() bool {
	return d == DepthQuick || d == DepthDeep
}

// SearchHit is one raw result from the web search provider, before
// formatting into a citable Source.
type SearchHit struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	ImageURL string `json:"image_url,omitempty"`
}

// Source is a formatted, citable reference. IDs are 1-based strings
// assigned in hit order and stable for the lifetime of a research run.
type Source struct {
	ID      string `json:"id"       bson:"id"`
	Title   string `json:"title"    bson:"title"`
	URL     string `json:"url"      bson:"url"`
	Snippet string `json:"snippet"  bson:"snippet"`
	Favicon string `json:"favicon"  bson:"favicon"`
}

// ResearchMetadata summarizes how a generated report used its sources.
type ResearchMetadata struct {
	SourceCount        int    `json:"source_count"         bson:"source_count"`
	TotalCitations     int    `json:"total_citations"      bson:"total_citations"`
	DistinctSources    int    `json:"distinct_sources"     bson:"distinct_sources"`
	SourceUsagePercent int    `json:"source_usage_percent" bson:"source_usage_percent"`
	WordCount          int    `json:"word_count"           bson:"word_count"`
	Model              string `json:"model"                bson:"model"`
	Depth              Depth  `json:"depth"                bson:"depth"`
}

// ResearchResult is the final payload of one pipeline invocation.
type ResearchResult struct {
	Content  string           `json:"content"`  // sanitized HTML
	Markdown string           `json:"markdown"` // raw report text, kept for revisions
	Sources  []Source         `json:"sources"`
	Metadata ResearchMetadata `json:"metadata"`
}

// Revision is one natural-language edit applied to a stored report. It
// carries the metrics recomputed for the revised text so the document's
// metadata can be promoted alongside the content.
type Revision struct {
	Instruction string           `json:"instruction" bson:"instruction"`
	Content     string           `json:"content"     bson:"content"`
	Markdown    string           `json:"markdown"    bson:"markdown"`
	Metadata    ResearchMetadata `json:"metadata"    bson:"metadata"`
	CreatedAt   time.Time        `json:"created_at"  bson:"created_at"`
}

// Document is a single research report stored in MongoDB, including its
// revision history.
type Document struct {
	ID            primitive.ObjectID `json:"id"              bson:"_id,omitempty"`
	UserID        string             `json:"user_id"         bson:"user_id"`
	Query         string             `json:"query"           bson:"query"`
	Content       string             `json:"content"         bson:"content"`
	Markdown      string             `json:"markdown"        bson:"markdown"`
	Sources       []Source           `json:"sources"         bson:"sources"`
	Metadata      ResearchMetadata   `json:"metadata"        bson:"metadata"`
	Revisions     []Revision         `json:"revisions"       bson:"revisions"`
	HTMLObjectKey string             `json:"html_object_key" bson:"html_object_key"`
	CreatedAt     time.Time          `json:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"      bson:"updated_at"`
}

// CreateRequest is the JSON body for POST /api/research.
type CreateRequest struct {
	Query string `json:"query"`
	Depth Depth  `json:"depth"`
}

// ReviseRequest is the JSON body for POST /api/research/{id}/revise.
type ReviseRequest struct {
	Instruction string `json:"instruction"`
}
