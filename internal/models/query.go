package models

import (
	"fmt"
	"regexp"
)

const (
	// DefaultK is the number of chunks returned when a query does not ask for a count.
	DefaultK = 3
	// MaxK caps the number of chunks a single query may return.
	MaxK = 100
)

var projectIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// ValidateProjectID rejects identifiers that cannot be used as a directory suffix.
func ValidateProjectID(id string) error {
	if !projectIDPattern.MatchString(id) {
		return fmt.Errorf("invalid project id %q", id)
	}
	return nil
}

// Query is a similarity query scoped to a single project. A zero MinScore keeps every
// hit; cosine scores below zero are still relevant to top-k.
type Query struct {
	Text      string  `json:"text"`
	ProjectID string  `json:"project_id"`
	K         int     `json:"k,omitempty"`
	MinScore  float64 `json:"min_score,omitempty"`
}

// Validate checks the query and normalizes K into [1, MaxK].
func (q *Query) Validate() error {
	if err := ValidateProjectID(q.ProjectID); err != nil {
		return err
	}
	if q.K <= 0 {
		q.K = DefaultK
	}
	if q.K > MaxK {
		q.K = MaxK
	}
	return nil
}
