package v1

import "time"

// SearchResult is one ranked photo. ID is the photo's path relative to the
// library root.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// SyncReport summarizes a sync run.
type SyncReport struct {
	Photos   int           `json:"photos"`
	Embedded int           `json:"embedded"`
	Failed   int           `json:"failed"`
	Evicted  int           `json:"evicted"`
	Indexed  int           `json:"indexed"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Status describes the library a client is bound to.
type Status struct {
	Scope    string     `json:"scope"`
	Root     string     `json:"root"`
	Backend  string     `json:"backend"`
	Model    string     `json:"model,omitempty"`
	Cached   int        `json:"cached"`
	Indexed  int        `json:"indexed"`
	LastSync *time.Time `json:"last_sync,omitempty"`
}
