package sdata

// FieldPathPart is one hop in a resolved dotted field path.
type FieldPathPart struct {
	// Field is set when this hop is a plain field (possibly the terminal
	// scalar of the path).
	Field *Field
	// Relation is set when this hop traverses a forward or reverse
	// relation to another table.
	Relation *Field
	// AdditionalRelation is set when this hop traverses a declared
	// reverse relation that has no physical column.
	AdditionalRelation *AdditionalRelation
	// Table is the table this hop lands on (the target of Relation, or
	// the owning table for a plain Field).
	Table *Table
	// IsMany is true when traversing this hop can yield more than one
	// row (reverse FK or M2M).
	IsMany bool
}

// legacyIDSuffix is the Amsterdam Schema convention where a forward FK
// field's column is suffixed "Id", e.g. "clusterId" for a relation field
// "cluster".
const legacyIDSuffix = "Id"

// ResolveFieldPath walks a dotted path (already split on '.') against
// table, returning one FieldPathPart per segment. The terminal segment
// may be a scalar field; any non-terminal segment must be a relation.
func (r *Registry) ResolveFieldPath(table *Table, path []string) ([]FieldPathPart, error) {
	if len(path) == 0 {
		return nil, &ErrFieldNotFound{Table: table.ID, Path: path}
	}

	parts := make([]FieldPathPart, 0, len(path))
	cur := table

	for i, seg := range path {
		isLast := i == len(path)-1

		if f, ok := cur.Field(seg); ok {
			if !isLast {
				if !f.IsRelation() {
					return nil, &ErrNotARelation{Table: cur.ID, Field: seg}
				}
				target, many, err := r.relationTarget(f)
				if err != nil {
					return nil, err
				}
				parts = append(parts, FieldPathPart{Relation: f, Table: target, IsMany: many})
				cur = target
				continue
			}
			parts = append(parts, FieldPathPart{Field: f, Table: cur})
			continue
		}

		// Legacy "Id" suffix: users may ask for "clusterId" meaning the
		// foreign key column backing relation field "cluster".
		if isLast && len(seg) > len(legacyIDSuffix) && seg[len(seg)-len(legacyIDSuffix):] == legacyIDSuffix {
			base := seg[:len(seg)-len(legacyIDSuffix)]
			if f, ok := cur.Field(base); ok && f.IsRelation() {
				parts = append(parts, FieldPathPart{Field: f, Table: cur})
				continue
			}
		}

		// Additional (reverse) relations declared without a column.
		if ar, ok := cur.AdditionalRelation(seg); ok {
			target, ok := r.getTableByRef(ar.RelatedTable)
			if !ok {
				return nil, &ErrFieldNotFound{Table: cur.ID, Path: path}
			}
			if !isLast {
				parts = append(parts, FieldPathPart{AdditionalRelation: ar, Table: target, IsMany: true})
				cur = target
				continue
			}
			parts = append(parts, FieldPathPart{AdditionalRelation: ar, Table: target, IsMany: true})
			continue
		}

		return nil, &ErrFieldNotFound{Table: cur.ID, Path: path}
	}

	return parts, nil
}

// relationTarget resolves the table a relation/nmRelation field points at,
// and whether traversing it can yield multiple rows.
func (r *Registry) relationTarget(f *Field) (*Table, bool, error) {
	switch {
	case f.NMRelation != nil:
		t, ok := r.getTableByRef(*f.NMRelation)
		if !ok {
			return nil, false, &ErrFieldNotFound{Table: f.NMRelation.String(), Path: []string{f.ID}}
		}
		return t, true, nil
	case f.Relation != nil:
		t, ok := r.getTableByRef(*f.Relation)
		if !ok {
			return nil, false, &ErrFieldNotFound{Table: f.Relation.String(), Path: []string{f.ID}}
		}
		// A forward FK is "many" only when it is itself declared against
		// a reverse/collection cardinality (rare); the Amsterdam Schema
		// marks this via IsNestedTable on the field.
		return t, f.IsNestedTable, nil
	default:
		return nil, false, &ErrNotARelation{Table: "", Field: f.ID}
	}
}
