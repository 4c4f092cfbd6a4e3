package harvest

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/irts/internal/identity"
)

// Outcome is what happened to one item.
type Outcome string

const (
	OutcomeNew       Outcome = "new"
	OutcomeModified  Outcome = "modified"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult is the per-item entry of a report.
type ItemResult struct {
	ID      string         `json:"id"`
	Outcome Outcome        `json:"outcome"`
	Match   identity.Match `json:"match"`
	QueueID string         `json:"queue_id,omitempty"`
	Detail  string         `json:"detail,omitempty"`
}

// Duplicate reports whether the item matched a record other than its own.
func (r ItemResult) Duplicate() bool {
	return r.Match.Existing() && r.Match.Reason != identity.ReasonRecord
}

// Report summarizes one source run.
type Report struct {
	RunID    string    `json:"run_id"`
	Source   string    `json:"source"`
	Type     Type      `json:"type"`
	DryRun   bool      `json:"dry_run,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	All        int `json:"all"`
	New        int `json:"new"`
	Modified   int `json:"modified"`
	Unchanged  int `json:"unchanged"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
	Queued     int `json:"queued"`

	Items []ItemResult `json:"items,omitempty"`
}

// Add folds one item result into the counts. Skipped items do not count
// toward All.
func (r *Report) Add(res ItemResult) {
	r.Items = append(r.Items, res)
	switch res.Outcome {
	case OutcomeNew:
		r.New++
	case OutcomeModified:
		r.Modified++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
		return
	}
	r.All++
	if res.Duplicate() {
		r.Duplicates++
	}
	if res.QueueID != "" {
		r.Queued++
	}
}

// Changed is the number of processed items that were not unchanged.
func (r *Report) Changed() int {
	return r.All - r.Unchanged
}

// Summary renders the counts as text.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s harvest summary:\n", r.Source)
	fmt.Fprintf(&b, "  Total: %d\n", r.All)
	fmt.Fprintf(&b, "  New: %d\n", r.New)
	fmt.Fprintf(&b, "  Modified: %d\n", r.Modified)
	fmt.Fprintf(&b, "  Unchanged: %d\n", r.Unchanged)
	fmt.Fprintf(&b, "  Skipped: %d\n", r.Skipped)
	fmt.Fprintf(&b, "  Failed: %d\n", r.Failed)
	fmt.Fprintf(&b, "  Duplicates: %d\n", r.Duplicates)
	fmt.Fprintf(&b, "  Queued: %d", r.Queued)
	return b.String()
}

// Text renders the full report stored in the message log: a header, one
// line per item, then the summary.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s harvest %s (type %s", r.Source, r.RunID, r.Type)
	if r.DryRun {
		b.WriteString(", dry run")
	}
	b.WriteString("):\n")
	for _, it := range r.Items {
		fmt.Fprintf(&b, "  %s: %s", it.ID, it.Outcome)
		switch {
		case it.QueueID != "":
			fmt.Fprintf(&b, ", queued as %s", it.QueueID)
		case it.Duplicate():
			fmt.Fprintf(&b, ", matches %s by %s", it.Match.Ref, it.Match.Reason)
		}
		if it.Detail != "" {
			fmt.Fprintf(&b, " (%s)", it.Detail)
		}
		b.WriteByte('\n')
	}
	b.WriteString(r.Summary())
	return b.String()
}
