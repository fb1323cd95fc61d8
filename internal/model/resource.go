package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a server identifier. The portal backends mix numeric and string
// ids, so both JSON forms decode into the same string value.
type ID string

// UnmarshalJSON accepts a JSON string, a JSON number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the id as a plain string.
func (id ID) String() string { return string(id) }

// Article is a news or current-affairs item.
type Article struct {
	ID          ID       `json:"id"`
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Section     string   `json:"section"`
	Language    string   `json:"language"`
	Status      string   `json:"status"`
	Author      string   `json:"author"`
	Categories  []string `json:"categories,omitempty"`
	PublishedAt string   `json:"published_at"`
}

// Job is a job posting.
type Job struct {
	ID           ID     `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Organization string `json:"organization"`
	Location     string `json:"location"`
	JobType      string `json:"job_type"`
	Language     string `json:"language"`
	LastDate     string `json:"last_date"`
	IsActive     bool   `json:"is_active"`
	Description  string `json:"description,omitempty"`
}

// Job types accepted by the job_type filter.
const (
	JobTypeGovt    = "GOVT"
	JobTypePrivate = "PRIVATE"
)

// FilterCount is a single facet value with its number of postings.
type FilterCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// JobFilterOptions holds the facets offered by the jobs filter sidebar.
type JobFilterOptions struct {
	JobTypes      []FilterCount `json:"job_type_counts"`
	Locations     []FilterCount `json:"top_locations"`
	Organizations []FilterCount `json:"top_organizations"`
}
