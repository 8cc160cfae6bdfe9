package models

// Result is one organic hit. Published is the provider's free-form date
// ("3 days ago", "Mar 4, 2025") and may be empty.
type Result struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Snippet   string `json:"snippet"`
	Published string `json:"published,omitempty"`
}
