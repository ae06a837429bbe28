package store

import (
	"strings"

	"github.com/amsterdam/dso-gateway/internal/qplan"
)

// MySQLDialect targets github.com/go-sql-driver/mysql for datasets
// hosted on a MySQL-family backend.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Placeholder(int) string { return "?" }

func (MySQLDialect) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (d MySQLDialect) RenderSelect(plan *qplan.QueryPlan) (string, []any, error) {
	return renderBaseSelect(d, plan, false)
}

func (d MySQLDialect) RenderCount(plan *qplan.QueryPlan) (string, []any, error) {
	return renderBaseSelect(d, plan, true)
}
