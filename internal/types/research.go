package types

import "time"

// Article is one web result gathered for a research query.
type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at,omitempty"`
}

// ResearchResult is the answer to one research query.
type ResearchResult struct {
	Query     string    `json:"query"`
	Provider  string    `json:"provider"`
	Answer    string    `json:"answer"`
	Articles  []Article `json:"articles"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ResearchReq is the input of the web_search tool.
type ResearchReq struct {
	Query string `json:"query" validate:"required" jsonschema:"description=What to search the web for"`
}
