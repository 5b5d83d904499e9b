package db

// TagFilters restricts a search to documents whose TAG fields match.
// Values under the same key are OR-ed, distinct keys are AND-ed.
type TagFilters map[string][]string

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filters      TagFilters
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
