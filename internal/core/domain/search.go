package domain

// SearchParams are the query parameters forwarded to the remote index.
type SearchParams struct {
	// Page is zero-based, as the remote API counts pages.
	Page        int
	HitsPerPage int
	Filters     string
}

// SearchResponse is the raw response of a remote search.
type SearchResponse struct {
	Hits        []map[string]any
	NbHits      int
	Page        int
	NbPages     int
	HitsPerPage int
}

// SearchRequest is a query against one logical index.
type SearchRequest struct {
	// Index is the logical index name; empty selects the first configured index.
	Index  string
	Query  string
	Params SearchParams
}

// SearchPage is a page of local records mapped from remote hits.
type SearchPage struct {
	Records []Record

	// CurrentPage is one-based.
	CurrentPage int
	TotalItems  int
	PageStart   int
	PageLength  int

	// Dropped counts hits without a viewable backing record.
	Dropped int
}
