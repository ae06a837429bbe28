// Package qplan lowers a parsed filter/sort/expand/field-selection set
// into a backend-neutral QueryPlan: selected columns, join chain, WHERE
// terms, ORDER BY, a distinct flag and the relation prefetch set.
package qplan

import (
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// JoinKind distinguishes how a JoinSpec relates to the base table.
type JoinKind int

const (
	JoinForwardFK JoinKind = iota // local column -> target PK, no distinct needed
	JoinReverseFK                 // target column -> local PK, may fan out rows
	JoinManyToMany                // through-table join, always fans out
)

// JoinSpec is one join hop emitted while walking a resolved field path.
type JoinSpec struct {
	Kind       JoinKind
	Alias      string
	Table      *sdata.Table
	LocalCol   string // column on the parent side of the join
	TargetCol  string // column on the Table side of the join
	LookupPath string // dotted path this join satisfies, used as the prefetch cache key

	// Through-table metadata, set only for JoinManyToMany.
	ThroughTable     string
	ThroughLocalCol  string
	ThroughTargetCol string
}

// PredOp is a predicate comparison operator lowered from a filter lookup.
type PredOp string

const (
	OpEq       PredOp = "="
	OpNeq      PredOp = "!="
	OpGt       PredOp = ">"
	OpGte      PredOp = ">="
	OpLt       PredOp = "<"
	OpLte      PredOp = "<="
	OpIn       PredOp = "IN"
	OpLike     PredOp = "LIKE"
	OpIsNull   PredOp = "IS NULL"
	OpNotNull  PredOp = "IS NOT NULL"
	OpIsEmpty  PredOp = "IS EMPTY"
	OpNotEmpty PredOp = "IS NOT EMPTY"
	OpContains PredOp = "CONTAINS" // geo point-in-geometry or array superset
)

// Predicate is one WHERE-clause term. Args never carry raw user text
// inline; everything is a bind parameter.
type Predicate struct {
	Alias           string // table alias this predicate applies to ("" = base table)
	Column          string
	Op              PredOp
	Args            []any
	CaseInsensitive bool
	Combinator      string // "" (AND), "OR-NULL", or "latest-self-join"

	// SRID marks a geo point-in-geometry predicate whose two Args are
	// the x/y of a point already reprojected to the column's SRID.
	SRID int

	// SelfJoinTableID/SelfJoinIdentifier are filled in by the temporal
	// resolver for a "latest-self-join" predicate: the table to
	// correlate against and the identifier columns to join on, rendered
	// by the SQL layer as a correlated MAX(sequence) subquery.
	SelfJoinTableID    string
	SelfJoinIdentifier []string
}

// OrderTerm is one ORDER BY entry.
type OrderTerm struct {
	Alias  string
	Column string
	Desc   bool
}

// ExpandSpec names one relation to prefetch for _embedded population.
type ExpandSpec struct {
	Path  []string
	Parts []sdata.FieldPathPart
}

// Pagination carries the resolved page/size and whether a count query
// should run alongside the main cursor.
type Pagination struct {
	Page           int
	Size           int
	CountRequested bool
	Disabled       bool // renderer opted out (CSV, GeoJSON without an explicit size)
}

// TemporalSliceSpec is filled in by the temporal resolver and consumed
// by the SQL layer when rendering the final statement.
type TemporalSliceSpec struct {
	SequenceField string
	PinnedValue   string // explicit sequence pin, empty if not pinned
	Dimension     string // dimension name if a dimension parameter was given
	DimensionVal  string
	Latest        bool // true when neither a pin nor a dimension was given
}

// QueryPlan is the fully-lowered, backend-neutral description of one
// request's SQL query.
type QueryPlan struct {
	Table          *sdata.Table
	Dataset        *sdata.Dataset
	SelectedFields []string // field IDs on the base table
	Joins          []*JoinSpec
	WhereTerms     []Predicate
	OrderBy        []OrderTerm
	Distinct       bool
	Prefetch       []ExpandSpec
	TemporalSlice  *TemporalSliceSpec
	Pagination     Pagination
}
