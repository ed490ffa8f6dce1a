package semantic

// VectorRecord is a single embedding to upsert, keyed by the owning content
// record's ID. The payload is a denormalized copy of the fields that built
// the vector, stored for filtering and inspection.
type VectorRecord struct {
	ID           int64
	Vector       []float32
	Title        string
	Type         string
	Labels       []string
	CombinedText string
}

// Query narrows a similarity search. Hits scoring below ScoreThreshold are
// excluded by the index itself, not post-filtered.
type Query struct {
	Limit          int
	ScoreThreshold float32
	Type           string   // exact match when non-empty
	Labels         []string // any-match (set intersection) when non-empty
}

// Hit is one similarity-search result: the content ID and its cosine
// similarity to the query vector, ranked descending.
type Hit struct {
	ID    int64   `json:"id"`
	Score float32 `json:"score"`
}
