package scopes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
)

func gebieden() (*sdata.Dataset, *sdata.Table, *sdata.Field) {
	f := &sdata.Field{ID: "bsn", Type: sdata.TypeString, Auth: sdata.NewScopeSet("FP/MDW")}
	t := &sdata.Table{ID: "buurten", Fields: []*sdata.Field{f}}
	ds := &sdata.Dataset{ID: "gebieden", Tables: []*sdata.Table{t}}
	return ds, t, f
}

func TestFieldAuthDominatesPublicDataset(t *testing.T) {
	ds, tbl, f := gebieden()

	us := scopes.New(sdata.NewScopeSet(), nil, nil)
	assert.True(t, scopes.HasTableAccess(us, ds, tbl).Granted(), "public table stays readable")
	assert.False(t, scopes.HasFieldAccess(us, ds, tbl, f).Granted(), "scoped field needs its own scope")

	us2 := scopes.New(sdata.NewScopeSet("FP/MDW"), nil, nil)
	assert.True(t, scopes.HasFieldAccess(us2, ds, tbl, f).Granted())
}

func TestTableAuthUnionsDatasetAuth(t *testing.T) {
	ds, tbl, _ := gebieden()
	ds.Auth = sdata.NewScopeSet("DATASET/SCOPE")
	tbl.Auth = sdata.NewScopeSet("TABLE/SCOPE")

	us := scopes.New(sdata.NewScopeSet("TABLE/SCOPE"), nil, nil)
	assert.False(t, scopes.HasTableAccess(us, ds, tbl).Granted(), "dataset scope is still required")

	us2 := scopes.New(sdata.NewScopeSet("TABLE/SCOPE", "DATASET/SCOPE"), nil, nil)
	assert.True(t, scopes.HasTableAccess(us2, ds, tbl).Granted())
}

func TestProfileActivatesOnlyWithAllItsScopes(t *testing.T) {
	p := &scopes.Profile{
		ID:     "medewerker",
		Scopes: sdata.NewScopeSet("FP/MDW", "EXTRA/SCOPE"),
	}
	us := scopes.New(sdata.NewScopeSet("FP/MDW"), []*scopes.Profile{p}, nil)
	assert.Empty(t, us.ActiveProfiles)

	us2 := scopes.New(sdata.NewScopeSet("FP/MDW", "EXTRA/SCOPE"), []*scopes.Profile{p}, nil)
	require.Len(t, us2.ActiveProfiles, 1)
}

func TestMandatoryFilterSetMatchesWithAndWithoutLookupSuffix(t *testing.T) {
	p := &scopes.Profile{
		ID:     "parkeerwacht",
		Scopes: sdata.NewScopeSet("PROFIEL/SCOPE"),
		Datasets: map[string]map[string]*scopes.ProfileTable{
			"parkeervakken": {
				"parkeervakken": {MandatoryFilterSets: [][]string{{"regimes.eindtijd"}}},
			},
		},
	}
	ds := &sdata.Dataset{ID: "parkeervakken", Auth: sdata.NewScopeSet("DATASET/SCOPE")}
	tbl := &sdata.Table{ID: "parkeervakken"}

	for _, key := range []string{"regimes.eindtijd", "regimes.eindtijd[gte]"} {
		us := scopes.New(sdata.NewScopeSet("PROFIEL/SCOPE"), []*scopes.Profile{p}, []string{key})
		assert.True(t, scopes.HasTableAccess(us, ds, tbl).Granted(), key)
	}

	us := scopes.New(sdata.NewScopeSet("PROFIEL/SCOPE"), []*scopes.Profile{p}, nil)
	assert.False(t, scopes.HasTableAccess(us, ds, tbl).Granted())
}

func TestLettersPermissionTruncatesAndMergesMostPermissive(t *testing.T) {
	letters := scopes.Permission{Kind: scopes.PermLetters, Letters: 3}
	assert.Equal(t, "ABC", letters.Apply("ABCDEF"))
	assert.Equal(t, "AB", letters.Apply("AB"))

	read := scopes.Permission{Kind: scopes.PermRead}
	assert.Equal(t, "ABCDEF", read.Apply("ABCDEF"))

	p1 := &scopes.Profile{
		ID: "p1", Scopes: sdata.NewScopeSet("A"),
		Datasets: map[string]map[string]*scopes.ProfileTable{
			"d": {"t": {Fields: map[string]scopes.Permission{"naam": {Kind: scopes.PermLetters, Letters: 1}}}},
		},
	}
	p2 := &scopes.Profile{
		ID: "p2", Scopes: sdata.NewScopeSet("A"),
		Datasets: map[string]map[string]*scopes.ProfileTable{
			"d": {"t": {Fields: map[string]scopes.Permission{"naam": {Kind: scopes.PermLetters, Letters: 4}}}},
		},
	}

	ds := &sdata.Dataset{ID: "d", Auth: sdata.NewScopeSet("SECRET")}
	tbl := &sdata.Table{ID: "t"}
	f := &sdata.Field{ID: "naam", Type: sdata.TypeString}

	us := scopes.New(sdata.NewScopeSet("A"), []*scopes.Profile{p1, p2}, nil)
	perm := scopes.HasFieldAccess(us, ds, tbl, f)
	require.Equal(t, scopes.PermLetters, perm.Kind)
	assert.Equal(t, 4, perm.Letters, "most permissive profile wins")
}
