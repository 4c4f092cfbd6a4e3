package harvest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/irts/internal/identity"
	"github.com/roach88/irts/internal/ir"
)

func TestReport_Add(t *testing.T) {
	rep := &Report{Source: "arxiv"}
	rep.Add(ItemResult{ID: "1", Outcome: OutcomeNew, Match: identity.Match{Kind: identity.KindNew}, QueueID: "arxiv_1"})
	rep.Add(ItemResult{ID: "2", Outcome: OutcomeNew, Match: identity.Match{
		Kind: identity.KindExisting, Ref: ir.RecordRef{Source: "repository", IDInSource: "9"}, Reason: identity.ReasonDOI,
	}})
	rep.Add(ItemResult{ID: "3", Outcome: OutcomeUnchanged, Match: identity.Match{Kind: identity.KindExisting, Reason: identity.ReasonRecord}})
	rep.Add(ItemResult{ID: "4", Outcome: OutcomeSkipped, Detail: "not from current year"})
	rep.Add(ItemResult{ID: "5", Outcome: OutcomeFailed, Detail: "timeout"})

	assert.Equal(t, 4, rep.All)
	assert.Equal(t, 2, rep.New)
	assert.Equal(t, 1, rep.Unchanged)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 1, rep.Duplicates)
	assert.Equal(t, 1, rep.Queued)
	assert.Equal(t, 3, rep.Changed())
}

func TestReport_Text(t *testing.T) {
	rep := &Report{RunID: "run-1", Source: "arxiv", Type: TypeNew}
	rep.Add(ItemResult{ID: "1", Outcome: OutcomeNew, Match: identity.Match{Kind: identity.KindNew}, QueueID: "arxiv_1"})
	rep.Add(ItemResult{ID: "2", Outcome: OutcomeModified, Match: identity.Match{
		Kind: identity.KindExisting, Ref: ir.RecordRef{Source: "repository", IDInSource: "9"}, Reason: identity.ReasonDOI,
	}})
	rep.Add(ItemResult{ID: "3", Outcome: OutcomeSkipped, Detail: "not from current year"})

	want := `arxiv harvest run-1 (type new):
  1: new, queued as arxiv_1
  2: modified, matches repository:9 by doi
  3: skipped (not from current year)
arxiv harvest summary:
  Total: 2
  New: 1
  Modified: 1
  Unchanged: 0
  Skipped: 1
  Failed: 0
  Duplicates: 1
  Queued: 1`
	assert.Equal(t, want, rep.Text())
}

func TestQueueTree_DOISource(t *testing.T) {
	var record ir.Tree
	record.Add(ir.FieldTitle, "Deep Nets")
	record.Add(ir.FieldType, "Article")

	c := identity.Candidate{Source: "crossref", IDInSource: "10.1/x", IDField: ir.FieldDOI, DOI: "10.1/x"}
	tree := QueueTree(c, record, "")

	assert.Equal(t, "10.1/x", tree.First(ir.FieldDOI))
	assert.Nil(t, tree.Find(ir.FieldDOI, 1), "doi must not be written twice")
	assert.Nil(t, tree.Find(FieldBasis, 0))
	assert.Equal(t, 6, tree.Size())
}
