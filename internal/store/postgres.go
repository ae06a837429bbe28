package store

import (
	"fmt"
	"strings"

	"github.com/amsterdam/dso-gateway/internal/qplan"
)

// PostgresDialect targets github.com/jackc/pgx/v5 via database/sql
// (stdlib adapter), the gateway's primary backend.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Placeholder(i int) string { return fmt.Sprintf("$%d", i) }

func (PostgresDialect) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d PostgresDialect) RenderSelect(plan *qplan.QueryPlan) (string, []any, error) {
	return renderBaseSelect(d, plan, false)
}

func (d PostgresDialect) RenderCount(plan *qplan.QueryPlan) (string, []any, error) {
	return renderBaseSelect(d, plan, true)
}
