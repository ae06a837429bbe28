package scopes

import "github.com/amsterdam/dso-gateway/internal/sdata"

// HasDatasetAccess reports whether us grants access to the dataset's own
// auth scopes (ancestor auth dominates nothing here — dataset is the
// root — but a profile can also waive it).
func HasDatasetAccess(us *UserScopes, ds *sdata.Dataset) bool {
	if ds.Auth.Subset(us.Granted) {
		return true
	}
	for _, p := range us.ActiveProfiles {
		if _, ok := p.Table(ds.ID, ""); ok {
			return true
		}
		if len(p.Datasets[ds.ID]) > 0 {
			return true
		}
	}
	return false
}

// HasTableAccess reports whether us grants access to table, honoring the
// union of the table's own and its dataset's auth (ancestor auth
// dominates: a public dataset does not waive a scoped table), OR an
// active profile with at least one satisfied mandatoryFilterSet for it.
func HasTableAccess(us *UserScopes, ds *sdata.Dataset, t *sdata.Table) Permission {
	required := ds.Auth.Union(t.Auth)
	if required.Subset(us.Granted) {
		return Permission{Kind: PermRead}
	}
	for _, p := range us.ActiveProfiles {
		pt, ok := p.Table(ds.ID, t.ID)
		if !ok {
			continue
		}
		if mandatoryFilterSetSatisfied(pt, us.QueryParamsPresent) {
			return Permission{Kind: PermRead}
		}
	}
	return Permission{Kind: PermNone}
}

// HasFieldAccess reports the Permission us holds for field f on table t,
// honoring the union of dataset+table+field auth, or a profile transform.
func HasFieldAccess(us *UserScopes, ds *sdata.Dataset, t *sdata.Table, f *sdata.Field) Permission {
	required := ds.Auth.Union(t.Auth).Union(f.Auth)
	if required.Subset(us.Granted) {
		return Permission{Kind: PermRead}
	}

	best := Permission{Kind: PermNone}
	for _, p := range us.ActiveProfiles {
		pt, ok := p.Table(ds.ID, t.ID)
		if !ok {
			continue
		}
		if !mandatoryFilterSetSatisfied(pt, us.QueryParamsPresent) {
			continue
		}
		if perm, ok := pt.Fields[f.ID]; ok {
			best = merge(best, perm)
		}
	}
	return best
}

// mandatoryFilterSetSatisfied reports whether at least one of pt's
// mandatory filter sets is fully covered by the present query keys.
// An empty MandatoryFilterSets list (a profile with no gating
// requirement for this table) is always satisfied.
func mandatoryFilterSetSatisfied(pt *ProfileTable, present map[string]struct{}) bool {
	if pt == nil {
		return false
	}
	if len(pt.MandatoryFilterSets) == 0 {
		return true
	}
	for _, set := range pt.MandatoryFilterSets {
		if allPresent(set, present) {
			return true
		}
	}
	return false
}

func allPresent(set []string, present map[string]struct{}) bool {
	if len(set) == 0 {
		return false
	}
	for _, path := range set {
		if _, ok := present[path]; !ok {
			return false
		}
	}
	return true
}
