package qplan

import (
	"strings"

	"github.com/amsterdam/dso-gateway/internal/apierror"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// ResolveProjection handles `?_fields=a,b` (positive) and
// `?_fields=-a,-b` (negative). A mixed list is rejected: a request
// cannot both select and drop. _links/self/schema are never pruned
// here; the serializer always emits them.
func ResolveProjection(table *sdata.Table, raw []string) (map[string]bool, *apierror.Error) {
	allIDs := make(map[string]bool, len(table.Fields))
	for _, f := range table.Fields {
		allIDs[f.ID] = true
	}
	if len(raw) == 0 {
		return allIDs, nil
	}

	var positive, negative []string
	for _, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if strings.HasPrefix(name, "-") {
			negative = append(negative, name[1:])
		} else {
			positive = append(positive, name)
		}
	}
	if len(positive) > 0 && len(negative) > 0 {
		return nil, apierror.New(apierror.KindInvalidFilterSyntax,
			"_fields cannot mix positive and negative selectors")
	}

	out := make(map[string]bool, len(allIDs))
	switch {
	case len(positive) > 0:
		for _, name := range positive {
			if !allIDs[name] {
				return nil, apierror.Newf(apierror.KindFieldNotFound, "unknown field %q", name).
					WithInvalidParam("query", name, "unknown field")
			}
			out[name] = true
		}
	case len(negative) > 0:
		for id := range allIDs {
			out[id] = true
		}
		for _, name := range negative {
			if !allIDs[name] {
				return nil, apierror.Newf(apierror.KindFieldNotFound, "unknown field %q", name).
					WithInvalidParam("query", name, "unknown field")
			}
			delete(out, name)
		}
	default:
		return allIDs, nil
	}
	return out, nil
}
