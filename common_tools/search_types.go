package common_tools

// SearchResponse is the subset of the Brave web search response the
// web_search tool reads.
type SearchResponse struct {
	Query SearchQuery   `json:"query"`
	News  NewsResults   `json:"news"`
	Web   WebResultList `json:"web"`
}

type SearchQuery struct {
	Original string `json:"original"`
	Country  string `json:"country"`
}

type NewsResults struct {
	Results []NewsArticle `json:"results"`
}

type NewsArticle struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PageAge     string `json:"page_age,omitempty"` // ISO 8601
	Age         string `json:"age,omitempty"`      // e.g. "9 hours ago"
}

type WebResultList struct {
	Results []WebResult `json:"results"`
}

type WebResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Age         string `json:"age,omitempty"`
}
