package store_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

func samplePlan() *qplan.QueryPlan {
	return &qplan.QueryPlan{
		Table:          &sdata.Table{ID: "containers"},
		SelectedFields: []string{"id", "serienummer"},
		WhereTerms: []qplan.Predicate{
			{Column: "serienummer", Op: qplan.OpEq, Args: []any{"it's a trap"}},
		},
		Pagination: qplan.Pagination{Page: 1, Size: 20},
	}
}

func TestRenderSelectParameterizesValues(t *testing.T) {
	d := store.PostgresDialect{}
	sqlText, args, err := d.RenderSelect(samplePlan())
	require.NoError(t, err)

	assert.NotContains(t, sqlText, "it's a trap", "raw user value must never be interpolated into SQL text")
	require.Len(t, args, 1)
	assert.Equal(t, "it's a trap", args[0])
	assert.Contains(t, sqlText, "$1")
}

func TestRenderSelectMySQLUsesQuestionMarkPlaceholders(t *testing.T) {
	d := store.MySQLDialect{}
	sqlText, _, err := d.RenderSelect(samplePlan())
	require.NoError(t, err)
	assert.True(t, strings.Contains(sqlText, "?"))
}

func TestRenderSelectFetchesOneExtraRowForNextDetection(t *testing.T) {
	plan := samplePlan()
	plan.Pagination.Size = 20
	d := store.PostgresDialect{}
	sqlText, _, err := d.RenderSelect(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, "LIMIT 21")
}

func TestRenderSelectDistinctForFanOutJoins(t *testing.T) {
	plan := samplePlan()
	plan.Distinct = true
	d := store.PostgresDialect{}
	sqlText, _, err := d.RenderSelect(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, "SELECT DISTINCT")
}

func TestRenderCountIgnoresOrderAndPaging(t *testing.T) {
	plan := samplePlan()
	plan.OrderBy = []qplan.OrderTerm{{Column: "id"}}
	d := store.PostgresDialect{}
	sqlText, _, err := d.RenderCount(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, "COUNT(*)")
	assert.NotContains(t, sqlText, "ORDER BY")
	assert.NotContains(t, sqlText, "LIMIT")
}

func TestRenderForwardJoinOnClauseSides(t *testing.T) {
	plan := samplePlan()
	plan.Joins = []*qplan.JoinSpec{{
		Kind: qplan.JoinForwardFK, Alias: "j_1",
		Table:    &sdata.Table{ID: "clusters"},
		LocalCol: "cluster_id", TargetCol: "id",
	}}
	d := store.PostgresDialect{}
	sqlText, _, err := d.RenderSelect(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, `LEFT JOIN "clusters" AS "j_1" ON "j_1"."id" = "containers"."cluster_id"`)
}

func TestRenderNotPredicateIsNullSafeAndParenthesized(t *testing.T) {
	plan := samplePlan()
	plan.WhereTerms = []qplan.Predicate{
		{Column: "soort", Op: qplan.OpNeq, Args: []any{"FISCAAL"}, CaseInsensitive: true},
		{Column: "id", Op: qplan.OpEq, Args: []any{int64(1)}},
	}
	d := store.PostgresDialect{}
	sqlText, args, err := d.RenderSelect(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, `("containers"."soort" IS NULL OR UPPER("containers"."soort") != UPPER($1))`)
	assert.Contains(t, sqlText, " AND ")
	require.Len(t, args, 2)
}

func TestRenderLatestTemporalSliceAsCorrelatedMax(t *testing.T) {
	plan := samplePlan()
	plan.Table = &sdata.Table{ID: "buurten"}
	plan.WhereTerms = []qplan.Predicate{{
		Column: "volgnummer", Op: qplan.OpEq,
		Combinator:         "latest-self-join",
		SelfJoinTableID:    "buurten",
		SelfJoinIdentifier: []string{"identificatie"},
	}}
	d := store.PostgresDialect{}
	sqlText, _, err := d.RenderSelect(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, `"buurten"."volgnummer" = (SELECT MAX(`)
	assert.Contains(t, sqlText, `"l_buurten"."identificatie" = "buurten"."identificatie"`)
}

func TestRenderDimensionSliceKeepsNullOpenEnd(t *testing.T) {
	plan := samplePlan()
	plan.WhereTerms = []qplan.Predicate{
		{Column: "begin_geldigheid", Op: qplan.OpLte, Args: []any{"2021-01-01"}},
		{Column: "eind_geldigheid", Op: qplan.OpGt, Args: []any{"2021-01-01"}, Combinator: "OR-NULL"},
	}
	d := store.PostgresDialect{}
	sqlText, args, err := d.RenderSelect(plan)
	require.NoError(t, err)
	assert.Contains(t, sqlText, `("containers"."eind_geldigheid" > $2 OR "containers"."eind_geldigheid" IS NULL)`)
	require.Len(t, args, 2)
}
