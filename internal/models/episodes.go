package models

// EpisodeSummary is the read-only projection of an episode used to annotate insights.
type EpisodeSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Slug     string `json:"slug"`
}
