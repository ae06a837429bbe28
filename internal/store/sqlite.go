package store

import (
	"strings"

	"github.com/amsterdam/dso-gateway/internal/qplan"
)

// SQLiteDialect backs modernc.org/sqlite, used only by the planner/
// temporal/renderer test suites so they exercise real SQL without a
// live Postgres.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Placeholder(int) string { return "?" }

func (SQLiteDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d SQLiteDialect) RenderSelect(plan *qplan.QueryPlan) (string, []any, error) {
	return renderBaseSelect(d, plan, false)
}

func (d SQLiteDialect) RenderCount(plan *qplan.QueryPlan) (string, []any, error) {
	return renderBaseSelect(d, plan, true)
}
