package harness

import "github.com/roach88/insight/internal/ir"

// Outcome records what one query of a scenario produced.
type Outcome struct {
	Name    string
	QueryID string

	// Rows is nil when the query failed.
	Rows []ir.Row

	// ErrorCode is the engine error code, "INTERNAL" for errors outside
	// the query error taxonomy, or empty on success.
	ErrorCode string

	// ErrorMessage is the full error text, for failure reports.
	ErrorMessage string
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every query met its expectation.
	Pass bool `json:"pass"`

	// Outcomes holds one entry per query, in scenario order.
	Outcomes []Outcome `json:"outcomes"`

	// Errors contains expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Outcomes: []Outcome{},
		Errors:   []string{},
	}
}

// AddError adds an expectation failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Outcome returns the outcome of the named query.
func (r *Result) Outcome(name string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Name == name {
			return o, true
		}
	}
	return Outcome{}, false
}
