package qplan

import (
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// ResolveSort validates ?_sort entries. Sort on a forward FK uses the
// local column; sort across a relation traversal is denied. Each entry
// is validated through the same path resolver as filters and is subject
// to read-permission checks: sorting on an unreadable field returns 403
// to prevent inference attacks.
func ResolveSort(reg *sdata.Registry, table *sdata.Table, access FieldAccessChecker, raw []string) ([]OrderTerm, *apierror.Error) {
	var out []OrderTerm
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		desc := false
		if strings.HasPrefix(token, "-") {
			desc = true
			token = token[1:]
		}
		segs := strings.Split(token, ".")
		if len(segs) > 1 {
			return nil, apierror.Newf(apierror.KindInvalidSort,
				"sorting across a relation is not allowed: %q", token).
				WithInvalidParam("query", token, "sort may not traverse a relation")
		}

		parts, err := reg.ResolveFieldPath(table, segs)
		if err != nil {
			return nil, mapFieldPathErr(err)
		}
		if aerr := access.CheckFieldPath(parts); aerr != nil {
			// unreadable sort field -> 403, not 400, to avoid
			// leaking field existence via a distinguishable error code.
			return nil, apierror.New(apierror.KindAccessDenied, "cannot sort on a field you may not read").
				WithInvalidParam("query", token, "forbidden")
		}

		last := parts[len(parts)-1]
		if last.Field == nil {
			return nil, apierror.Newf(apierror.KindInvalidSort, "cannot sort on relation %q", token)
		}
		col := last.Field.ColumnName
		if col == "" {
			col = last.Field.ID
		}
		out = append(out, OrderTerm{Column: col, Desc: desc})
	}
	return out, nil
}
