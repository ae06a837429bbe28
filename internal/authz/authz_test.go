package authz_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/authz"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

func parkeervakken() (*sdata.Dataset, *sdata.Table) {
	t := &sdata.Table{
		ID:   "parkeervakken",
		Auth: sdata.NewScopeSet("DATASET/SCOPE"),
		Fields: []*sdata.Field{
			{ID: "id", Type: sdata.TypeString, IsIdentifierPart: true},
		},
	}
	ds := &sdata.Dataset{ID: "parkeervakken", Tables: []*sdata.Table{t}}
	return ds, t
}

func TestAuthorizeDeniesWithoutScopeOrProfile(t *testing.T) {
	ds, tbl := parkeervakken()
	us := scopes.New(sdata.NewScopeSet(), nil, nil)

	g := authz.NewGate(nil)
	_, err := g.Authorize(us, ds, tbl, "GET", "/v1/parkeervakken/parkeervakken/")
	require.NotNil(t, err)
}

func TestAuthorizeAllowsWithProfileWhenMandatoryFilterPresent(t *testing.T) {
	ds, tbl := parkeervakken()
	profile := &scopes.Profile{
		ID:     "regimes-profile",
		Scopes: sdata.NewScopeSet("PROFIEL/SCOPE"),
		Datasets: map[string]map[string]*scopes.ProfileTable{
			"parkeervakken": {
				"parkeervakken": {MandatoryFilterSets: [][]string{{"regimes.eindtijd"}}},
			},
		},
	}

	// Without the filter present: denied.
	us := scopes.New(sdata.NewScopeSet("PROFIEL/SCOPE"), []*scopes.Profile{profile}, nil)
	g := authz.NewGate(nil)
	_, err := g.Authorize(us, ds, tbl, "GET", "/")
	require.NotNil(t, err)

	// With the filter present: allowed.
	us2 := scopes.New(sdata.NewScopeSet("PROFIEL/SCOPE"), []*scopes.Profile{profile}, []string{"regimes.eindtijd"})
	decision, err2 := g.Authorize(us2, ds, tbl, "GET", "/")
	require.Nil(t, err2)
	assert.True(t, decision.Allowed)
}

func TestCheckerExemptsMandatoryFilterField(t *testing.T) {
	ds, tbl := parkeervakken()
	profile := &scopes.Profile{
		ID:     "p1",
		Scopes: sdata.NewScopeSet("PROFIEL/SCOPE"),
		Datasets: map[string]map[string]*scopes.ProfileTable{
			"parkeervakken": {
				"parkeervakken": {MandatoryFilterSets: [][]string{{"regimes.eindtijd"}}},
			},
		},
	}
	us := scopes.New(sdata.NewScopeSet("PROFIEL/SCOPE"), []*scopes.Profile{profile}, []string{"regimes.eindtijd"})

	g := authz.NewGate(nil)
	decision, err := g.Authorize(us, ds, tbl, "GET", "/")
	require.Nil(t, err)

	parts := []sdata.FieldPathPart{
		{Relation: &sdata.Field{ID: "regimes"}},
		{Field: &sdata.Field{ID: "eindtijd"}},
	}
	assert.Nil(t, decision.Checker.CheckFieldPath(parts))
}
