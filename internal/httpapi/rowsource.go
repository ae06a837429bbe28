package httpapi

import (
	"context"
	"fmt"

	"github.com/amsterdam/dso-gateway/internal/qplan"
	"github.com/amsterdam/dso-gateway/internal/render"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/store"
)

// chunkSize bounds how many base rows are buffered before a prefetch
// batch runs, trading memory for fewer round trips.
const chunkSize = 100

// storeRowSource implements render.RowSource over a *store.Cursor,
// reading ahead in chunkSize batches and, for each batch, resolving
// every requested expansion (plan.Prefetch) with one batched query per
// hop rather than one query per row.
type storeRowSource struct {
	ctx      context.Context
	cur      *store.Cursor
	db       *store.DB
	reg      *sdata.Registry
	prefetch []qplan.ExpandSpec
	cache    *render.PrefetchCache

	buf []*store.Row
	pos int
	eof bool
}

func newRowSource(ctx context.Context, cur *store.Cursor, db *store.DB, reg *sdata.Registry, prefetch []qplan.ExpandSpec, cache *render.PrefetchCache) render.RowSource {
	return &storeRowSource{ctx: ctx, cur: cur, db: db, reg: reg, prefetch: prefetch, cache: cache}
}

func (s *storeRowSource) Next(ctx context.Context) (*store.Row, error) {
	if s.pos < len(s.buf) {
		row := s.buf[s.pos]
		s.pos++
		return row, nil
	}
	if s.eof {
		return nil, nil
	}
	if err := s.fill(); err != nil {
		return nil, err
	}
	if len(s.buf) == 0 {
		s.eof = true
		return nil, nil
	}
	row := s.buf[0]
	s.pos = 1
	return row, nil
}

func (s *storeRowSource) fill() error {
	s.buf = s.buf[:0]
	s.pos = 0
	for len(s.buf) < chunkSize {
		row, err := s.cur.Next()
		if err != nil {
			return err
		}
		if row == nil {
			s.eof = true
			break
		}
		s.buf = append(s.buf, row)
	}
	for _, spec := range s.prefetch {
		if err := s.applyExpand(spec); err != nil {
			return err
		}
	}
	return nil
}

// applyExpand resolves one dotted expand path across the current batch,
// hop by hop: the frontier starts as the batch's base rows, and after
// each hop becomes the set of rows just fetched, so a multi-segment
// path (e.g. "ligplaats.buurt") attaches at the correct nesting level.
func (s *storeRowSource) applyExpand(spec qplan.ExpandSpec) error {
	frontier := s.buf
	for _, part := range spec.Parts {
		next, err := s.applyHop(frontier, part)
		if err != nil {
			return err
		}
		frontier = next
		if len(frontier) == 0 {
			return nil
		}
	}
	return nil
}

// applyHop resolves one relation hop for every row in frontier, attaches
// the fetched children onto each frontier row keyed by the hop's field
// ID, and returns the flattened set of fetched rows as the next
// frontier. M2M (through-table) hops are not prefetched: they attach
// no rows and end the path, so an M2M relation renders as an empty link
// array with nothing embedded.
func (s *storeRowSource) applyHop(frontier []*store.Row, part sdata.FieldPathPart) ([]*store.Row, error) {
	switch {
	case part.AdditionalRelation != nil:
		return s.applyReverseHop(frontier, part.AdditionalRelation.ID, part.Table, part.AdditionalRelation.Relation.Table+"Id")

	case part.Relation != nil && part.Relation.NMRelation != nil:
		return nil, nil

	case part.Relation != nil && part.IsMany:
		return s.applyReverseHop(frontier, part.Relation.ID, part.Table, part.Relation.ColumnName)

	case part.Relation != nil:
		return s.applyForwardHop(frontier, part.Relation.ID, part.Table, part.Relation.ColumnName)

	default:
		return nil, nil
	}
}

// applyForwardHop batches a many-to-one lookup: each frontier row's FK
// column value is looked up against target's identifier column.
func (s *storeRowSource) applyForwardHop(frontier []*store.Row, fieldID string, target *sdata.Table, fkColumn string) ([]*store.Row, error) {
	if fkColumn == "" || len(target.Identifier) == 0 {
		return nil, nil
	}
	idCol := target.Identifier[0]

	seen := make(map[any]bool, len(frontier))
	fetched := make(map[any]*store.Row, len(frontier))
	var values []any
	for _, row := range frontier {
		v, ok := row.Get(fkColumn)
		if !ok || v == nil || seen[v] {
			continue
		}
		seen[v] = true
		if cached, ok := s.cache.Get(fieldID, toCacheKey(v)); ok {
			fetched[v] = cached
			continue
		}
		values = append(values, v)
	}

	if len(values) > 0 {
		cur, err := s.db.QueryByColumnIn(s.ctx, target.ID, idCol, values)
		if err != nil {
			return nil, err
		}
		for {
			r, err := cur.Next()
			if err != nil {
				cur.Close()
				return nil, err
			}
			if r == nil {
				break
			}
			key, _ := r.Get(idCol)
			fetched[key] = r
			s.cache.Set(fieldID, toCacheKey(key), r)
		}
		cur.Close()
	}

	var next []*store.Row
	for _, row := range frontier {
		v, ok := row.Get(fkColumn)
		if !ok || v == nil {
			continue
		}
		if child, ok := fetched[v]; ok {
			row.Attach(fieldID, []*store.Row{child})
			next = append(next, child)
		}
	}
	return next, nil
}

// applyReverseHop batches a one-to-many lookup: target's own FK column
// is looked up against the frontier rows' identifier values, and
// results are grouped back onto their parent.
func (s *storeRowSource) applyReverseHop(frontier []*store.Row, fieldID string, target *sdata.Table, fkColumn string) ([]*store.Row, error) {
	if fkColumn == "" {
		return nil, nil
	}

	parentByID := make(map[any]*store.Row, len(frontier))
	values := make([]any, 0, len(frontier))
	for _, row := range frontier {
		v, ok := row.Get("id")
		if !ok {
			continue
		}
		if _, seen := parentByID[v]; !seen {
			values = append(values, v)
		}
		parentByID[v] = row
	}
	if len(values) == 0 {
		return nil, nil
	}

	cur, err := s.db.QueryByColumnIn(s.ctx, target.ID, fkColumn, values)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	grouped := make(map[any][]*store.Row)
	var next []*store.Row
	for {
		r, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if r == nil {
			break
		}
		parentKey, _ := r.Get(fkColumn)
		grouped[parentKey] = append(grouped[parentKey], r)
		next = append(next, r)
	}

	for key, parent := range parentByID {
		parent.Attach(fieldID, grouped[key])
	}
	return next, nil
}

func toCacheKey(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}
