// Package sdata is the in-memory schema registry: the immutable catalog
// of datasets, tables, fields, relations and temporal descriptors that
// every other package resolves against.
package sdata

import "fmt"

// FieldType enumerates the Amsterdam Schema scalar/structural types.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeDateTime FieldType = "date-time"
	TypeTime     FieldType = "time"
	TypeURI      FieldType = "uri"
	TypeArray    FieldType = "array"
	TypeObject   FieldType = "object"
	TypeGeoPoint FieldType = "geo:Point"
	TypeGeoPoly  FieldType = "geo:Polygon"
	TypeGeoMulti FieldType = "geo:MultiPolygon"
)

// IsGeo reports whether the type is one of the geo:* family.
func (t FieldType) IsGeo() bool {
	switch t {
	case TypeGeoPoint, TypeGeoPoly, TypeGeoMulti:
		return true
	}
	return false
}

// RelationFormat is how an AdditionalRelation should be rendered.
type RelationFormat string

const (
	RelFormatEmbedded RelationFormat = "embedded"
	RelFormatSummary  RelationFormat = "summary"
)

// TableRef names a table within a dataset, or in another dataset.
type TableRef struct {
	Dataset string `yaml:"dataset" json:"dataset"`
	Table   string `yaml:"table" json:"table"`
}

func (r TableRef) String() string {
	if r.Dataset == "" {
		return r.Table
	}
	return r.Dataset + "." + r.Table
}

// Scope is an OAuth/authz scope string, e.g. "FP/MDW" or "DATASET/SCOPE".
type Scope string

// ScopeSet is an unordered set of scopes.
type ScopeSet map[Scope]struct{}

// NewScopeSet builds a ScopeSet from a variadic list.
func NewScopeSet(ss ...Scope) ScopeSet {
	out := make(ScopeSet, len(ss))
	for _, s := range ss {
		out[s] = struct{}{}
	}
	return out
}

// Subset reports whether every scope in s is present in superset.
func (s ScopeSet) Subset(superset ScopeSet) bool {
	for sc := range s {
		if _, ok := superset[sc]; !ok {
			return false
		}
	}
	return true
}

// Union returns a new ScopeSet containing the scopes of both sets.
func (s ScopeSet) Union(other ScopeSet) ScopeSet {
	out := make(ScopeSet, len(s)+len(other))
	for sc := range s {
		out[sc] = struct{}{}
	}
	for sc := range other {
		out[sc] = struct{}{}
	}
	return out
}

func (s ScopeSet) Slice() []Scope {
	out := make([]Scope, 0, len(s))
	for sc := range s {
		out = append(out, sc)
	}
	return out
}

// Dimension is one bitemporal axis, e.g. geldigOp: {begin_geldigheid, eind_geldigheid}.
type Dimension struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Temporal describes a table's bitemporal/historical nature.
type Temporal struct {
	SequenceField string               `yaml:"sequenceField" json:"sequenceField"`
	Dimensions    map[string]Dimension `yaml:"dimensions" json:"dimensions"`
}

// Field is a single column/attribute of a table.
type Field struct {
	ID               string
	Name             string
	Type             FieldType
	Format           string
	Auth             ScopeSet
	Relation         *TableRef
	NMRelation       *TableRef
	Subfields        []*Field
	Items            *Field
	RelatedFieldIDs  []string
	IsIdentifierPart bool
	IsNestedTable    bool
	IsLooseRelation  bool

	// ColumnName is the physical column backing the field (for a forward
	// relation, its FK column), used for projection, predicates, joins
	// and sorting. Empty means the column is named after ID; a forward
	// FK join then falls back to ID+"Id".
	ColumnName string

	// MinZoom/MaxZoom bound the MVT zoom window this field is visible
	// in; zero values mean "no restriction". HighZoomOnly fields are
	// additionally withheld below the table's MVT.HighZoomThreshold.
	MinZoom      int
	MaxZoom      int
	HighZoomOnly bool
}

// VisibleAtZoom reports whether f should be included in an MVT tile
// rendered at the given zoom level.
func (f *Field) VisibleAtZoom(zoom int, highZoomThreshold int) bool {
	if f.MinZoom != 0 && zoom < f.MinZoom {
		return false
	}
	if f.MaxZoom != 0 && zoom > f.MaxZoom {
		return false
	}
	if f.HighZoomOnly && highZoomThreshold != 0 && zoom < highZoomThreshold {
		return false
	}
	return true
}

func (f *Field) IsRelation() bool {
	return f.Relation != nil || f.NMRelation != nil
}

// AdditionalRelation declares a reverse relation not physically present
// as a column on this table.
type AdditionalRelation struct {
	ID           string
	Relation     TableRef
	Format       RelationFormat
	RelatedTable TableRef
}

// Table is one dataset table.
type Table struct {
	ID                  string
	Dataset             string
	Auth                ScopeSet
	Identifier          []string
	Temporal            *Temporal
	Fields              []*Field
	AdditionalRelations []*AdditionalRelation
	// Remote, when set, means this table's data is fetched from an
	// upstream HTTP endpoint rather than the local SQL store.
	Remote *RemoteDescriptor

	// MVT, when set, enables this table as a tile source.
	MVT *MVTDescriptor

	fieldByID map[string]*Field
	relByID   map[string]*AdditionalRelation
}

// MVTDescriptor configures per-table vector-tile rendering.
type MVTDescriptor struct {
	GeometryField     string
	IdentifierField   string // defaults to the table's single-part identifier
	HighZoomThreshold int
	MinZoom           int
	MaxZoom           int
}

func (t *Table) IsTemporal() bool { return t.Temporal != nil }

func (t *Table) Field(id string) (*Field, bool) {
	f, ok := t.fieldByID[id]
	return f, ok
}

func (t *Table) AdditionalRelation(id string) (*AdditionalRelation, bool) {
	r, ok := t.relByID[id]
	return r, ok
}

func (t *Table) index() {
	t.fieldByID = make(map[string]*Field, len(t.Fields))
	for _, f := range t.Fields {
		t.fieldByID[f.ID] = f
	}
	t.relByID = make(map[string]*AdditionalRelation, len(t.AdditionalRelations))
	for _, r := range t.AdditionalRelations {
		t.relByID[r.ID] = r
	}
}

// RemoteDescriptor names the upstream endpoint and its auth-forwarding mode
// for a dataset delegated to the Remote Proxy.
type RemoteDescriptor struct {
	BaseURL        string
	ForwardAuth    bool
	HALCentral     bool
	UpstreamIDHdr  string
}

// DatasetStatus mirrors the Amsterdam Schema's publication lifecycle.
type DatasetStatus string

const (
	StatusBeschikbaar    DatasetStatus = "beschikbaar"
	StatusNietBeschikbaar DatasetStatus = "niet_beschikbaar"
	StatusNietActief     DatasetStatus = "niet_actief"
)

// Dataset is a top level schema document.
type Dataset struct {
	ID      string
	Title   string
	Version string
	Auth    ScopeSet
	Status  DatasetStatus
	Tables  []*Table

	tableByID map[string]*Table
}

// TableBySnakeName resolves a table by its URL-facing snake_case name
//, since Table.ID is the
// Amsterdam Schema's own camelCase identifier.
func (d *Dataset) TableBySnakeName(snake string) (*Table, bool) {
	for _, t := range d.Tables {
		if SnakeName(t.ID) == snake {
			return t, true
		}
	}
	return nil, false
}

func (d *Dataset) Table(id string) (*Table, bool) {
	t, ok := d.tableByID[id]
	return t, ok
}

func (d *Dataset) index() {
	d.tableByID = make(map[string]*Table, len(d.Tables))
	for _, t := range d.Tables {
		t.index()
		d.tableByID[t.ID] = t
	}
}

// ErrFieldNotFound and ErrNotARelation are returned by ResolveFieldPath.
type ErrFieldNotFound struct {
	Table string
	Path  []string
}

func (e *ErrFieldNotFound) Error() string {
	return fmt.Sprintf("field not found: %s on table %s", joinPath(e.Path), e.Table)
}

type ErrNotARelation struct {
	Table string
	Field string
}

func (e *ErrNotARelation) Error() string {
	return fmt.Sprintf("field %q on table %s is not a relation", e.Field, e.Table)
}

func joinPath(p []string) string {
	out := ""
	for i, s := range p {
		if i > 0 {
			out += "."
		}
		out += s
	}
	return out
}
