package webcontent

// SearchLink is one search-engine result as shown in the references footer.
type SearchLink struct {
	SiteName string `json:"site_name"`
	IconURL  string `json:"icon_url"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
}

// Extraction is the outcome of fetching one URL. A failed extraction has an
// empty Content; Err only explains why and is meant for logs.
type Extraction struct {
	URL     string
	Content string
	Err     error
}

// OK reports whether the extraction produced usable text.
func (e Extraction) OK() bool {
	return e.Content != ""
}

// ExtractedContent is readable text taken from one search result. Length is
// the number of characters in Content.
type ExtractedContent struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Length  int    `json:"length"`
}

// SearchOutcome is everything one search produced. When Err is set the
// backend could not be used and Links and Contents are empty. Partial marks
// an extraction phase cut short by its timeout.
type SearchOutcome struct {
	Links    []SearchLink
	Contents []ExtractedContent
	Err      error
	Partial  bool
	// Failures aggregates per-URL extraction errors.
	Failures error
}

// Degraded reports whether the search backend failed entirely.
func (o SearchOutcome) Degraded() bool {
	return o.Err != nil
}
