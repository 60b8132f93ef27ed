package dto

// SearchResponse mirrors the Brave Search API response: heterogeneous result
// categories plus a backend-supplied interleave order in Mixed.
type SearchResponse struct {
	Web   *ResultCategory `json:"web,omitempty"`
	News  *ResultCategory `json:"news,omitempty"`
	FAQ   *FAQCategory    `json:"faq,omitempty"`
	Mixed *MixedRanking   `json:"mixed,omitempty"`
}

type ResultCategory struct {
	Results []SearchResult `json:"results"`
}

type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type FAQCategory struct {
	Results []FAQResult `json:"results"`
}

type FAQResult struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Title    string `json:"title"`
	URL      string `json:"url"`
}

// MixedRanking orders results across categories by relevance.
type MixedRanking struct {
	Main []RankEntry `json:"main"`
}

type RankEntry struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	All   bool   `json:"all"`
}
