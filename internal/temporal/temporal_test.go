package temporal_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/temporal"
)

func buurten() *sdata.Table {
	return &sdata.Table{
		ID:         "buurten",
		Identifier: []string{"identificatie"},
		Temporal: &sdata.Temporal{
			SequenceField: "volgnummer",
			Dimensions: map[string]sdata.Dimension{
				"geldigOp": {Start: "begin_geldigheid", End: "eind_geldigheid"},
			},
		},
	}
}

func TestResolveSlicePinnedSequence(t *testing.T) {
	q, _ := url.ParseQuery("volgnummer=2")
	slice, err := temporal.ResolveSlice(buurten(), temporal.Request{Query: q})
	require.Nil(t, err)
	assert.Equal(t, "2", slice.PinnedValue)
}

func TestResolveSliceDimension(t *testing.T) {
	q, _ := url.ParseQuery("geldigOp=2021-01-01")
	slice, err := temporal.ResolveSlice(buurten(), temporal.Request{Query: q})
	require.Nil(t, err)
	assert.Equal(t, "geldigOp", slice.Dimension)
	assert.Equal(t, "2021-01-01", slice.DimensionVal)
}

func TestResolveSliceDefaultsToLatest(t *testing.T) {
	q, _ := url.ParseQuery("")
	slice, err := temporal.ResolveSlice(buurten(), temporal.Request{Query: q})
	require.Nil(t, err)
	assert.True(t, slice.Latest)
}

func TestResolveSliceNonTemporalTableReturnsNil(t *testing.T) {
	t1 := &sdata.Table{ID: "containers"}
	q, _ := url.ParseQuery("")
	slice, err := temporal.ResolveSlice(t1, temporal.Request{Query: q})
	require.Nil(t, err)
	assert.Nil(t, slice)
}

func TestApplyToPlanInjectsBaseTableSlice(t *testing.T) {
	tbl := buurten()
	plan := &qplan.QueryPlan{Table: tbl}
	q, _ := url.ParseQuery("volgnummer=2")

	err := temporal.ApplyToPlan(plan, nil, temporal.Request{Query: q})
	require.Nil(t, err)
	require.Len(t, plan.WhereTerms, 1)
	assert.Equal(t, "volgnummer", plan.WhereTerms[0].Column)
}
