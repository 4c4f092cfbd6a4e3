package harness

import (
	"github.com/roach88/irts/internal/identity"
	"github.com/roach88/irts/internal/mapper"
	"github.com/roach88/irts/internal/reconcile"
)

// TraceEvent records what one step did.
type TraceEvent struct {
	Step   int    `json:"step"`
	Name   string `json:"name,omitempty"`
	Source string `json:"source"`
	ID     string `json:"id"`

	// Mapping counts what the mapper did with raw fields.
	Mapping *mapper.MapStats `json:"mapping,omitempty"`

	// Plan holds one rendered line per write, for reconcile steps.
	Plan []string `json:"plan,omitempty"`

	Result *reconcile.Result `json:"result,omitempty"`
	Match  *identity.Match   `json:"match,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
