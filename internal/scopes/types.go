// Package scopes implements the scope-based authorization primitives:
// UserScopes (what a request is allowed to see) and the pure evaluator
// functions that answer hasAccess/transform questions against a schema
// node.
package scopes

import (
	"strings"

	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// PermissionKind discriminates the Permission sum type.
type PermissionKind int

const (
	PermNone PermissionKind = iota
	PermRead
	PermLetters
)

// Permission is a read grant, possibly transformed (letters:N truncation).
type Permission struct {
	Kind    PermissionKind
	Letters int // valid when Kind == PermLetters
}

func (p Permission) Granted() bool { return p.Kind != PermNone }

// Apply performs the permission's read transform on a string value.
// Non-string values and PermRead pass through unchanged.
func (p Permission) Apply(v string) string {
	if p.Kind == PermLetters && p.Letters >= 0 && p.Letters < len(v) {
		return v[:p.Letters]
	}
	return v
}

// merge combines two permissions for the same field granted by different
// active profiles, taking the most permissive (PermRead beats
// PermLetters beats PermNone; between two PermLetters the larger wins).
func merge(a, b Permission) Permission {
	rank := func(p Permission) int {
		switch p.Kind {
		case PermRead:
			return 1000
		case PermLetters:
			return p.Letters
		default:
			return -1
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}

// ProfileTable is the per-table policy a Profile carries for one dataset
// table: the set of mandatory-filter-sets that must be satisfied for the
// profile to activate, and the field-level permissions it grants once
// active.
type ProfileTable struct {
	MandatoryFilterSets [][]string // list of sets of dotted field paths
	Fields              map[string]Permission
}

// Profile is a policy object granting conditional access.
type Profile struct {
	ID       string
	Scopes   sdata.ScopeSet
	Datasets map[string]map[string]*ProfileTable // datasetID -> tableID -> ProfileTable
}

func (p *Profile) Table(datasetID, tableID string) (*ProfileTable, bool) {
	tbls, ok := p.Datasets[datasetID]
	if !ok {
		return nil, false
	}
	pt, ok := tbls[tableID]
	return pt, ok
}

// UserScopes is the immutable, per-request authorization context, built
// once per request by the HTTP dispatch layer from the verified scope
// set the scope middleware attaches.
type UserScopes struct {
	Granted          sdata.ScopeSet
	ActiveProfiles   []*Profile
	QueryParamsPresent map[string]struct{}
}

// New builds a UserScopes, pre-computing which profiles activate for the
// given granted scopes and present query parameter keys.
func New(granted sdata.ScopeSet, allProfiles []*Profile, presentParams []string) *UserScopes {
	present := make(map[string]struct{}, len(presentParams))
	for _, p := range presentParams {
		present[stripLookup(p)] = struct{}{}
	}

	us := &UserScopes{Granted: granted, QueryParamsPresent: present}
	for _, pr := range allProfiles {
		if !pr.Scopes.Subset(granted) {
			continue
		}
		us.ActiveProfiles = append(us.ActiveProfiles, pr)
	}
	return us
}

// stripLookup removes a trailing "[lookup]" suffix from a query key,
// e.g. "regimes.eindtijd[gte]" -> "regimes.eindtijd", so a mandatory
// filter set is satisfied with or without an operator suffix.
func stripLookup(key string) string {
	if i := strings.IndexByte(key, '['); i >= 0 {
		return key[:i]
	}
	return key
}
