package serialize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amsterdam/dso-gateway/internal/authz"
	"github.com/amsterdam/dso-gateway/internal/scopes"
	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/amsterdam/dso-gateway/internal/serialize"
	"github.com/amsterdam/dso-gateway/internal/store"
)

func containersFixture(t *testing.T) (*sdata.Registry, *sdata.Dataset, *sdata.Table) {
	cluster := &sdata.Table{
		ID: "clusters", Identifier: []string{"id"},
		Fields: []*sdata.Field{{ID: "id", IsIdentifierPart: true, Type: sdata.TypeString}},
	}
	containers := &sdata.Table{
		ID: "containers", Identifier: []string{"id"},
		Fields: []*sdata.Field{
			{ID: "id", IsIdentifierPart: true, Type: sdata.TypeInteger},
			{ID: "serienummer", Type: sdata.TypeString},
			{ID: "cluster", Type: sdata.TypeString, Relation: &sdata.TableRef{Table: "clusters"}},
		},
	}
	ds := &sdata.Dataset{ID: "afvalwegingen", Status: sdata.StatusBeschikbaar, Tables: []*sdata.Table{cluster, containers}}
	reg, err := sdata.NewRegistry(loaderFunc(func() ([]*sdata.Dataset, error) { return []*sdata.Dataset{ds}, nil }))
	require.NoError(t, err)
	tbl, _ := reg.GetTable("afvalwegingen", "containers")
	return reg, ds, tbl
}

type loaderFunc func() ([]*sdata.Dataset, error)

func (f loaderFunc) Load() ([]*sdata.Dataset, error) { return f() }

func TestBuildRowSelfLinkAndBody(t *testing.T) {
	reg, ds, tbl := containersFixture(t)
	us := scopes.New(sdata.NewScopeSet(), nil, nil)
	b := &serialize.Builder{Registry: reg, Gate: authz.NewGate(nil), US: us, BaseURL: "https://api.example.test/v1"}

	row := store.NewRow()
	row.Values["id"] = 1
	row.Values["serienummer"] = "ABC123"
	clusterRow := store.NewRow()
	clusterRow.Values["id"] = "c1"
	row.Attach("cluster", []*store.Row{clusterRow})

	out, err := b.BuildRow(ds, tbl, row, serialize.Request{Mode: serialize.ExpandNone}, 0)
	require.Nil(t, err)

	links := out["_links"].(map[string]any)
	self := links["self"].(map[string]any)
	assert.Contains(t, self["href"], "/containers/1/")

	clusterLink := links["cluster"].(map[string]any)
	assert.Contains(t, clusterLink["href"], "/clusters/c1/")
	assert.Equal(t, "ABC123", out["serienummer"])
}

func TestBuildRowExpandAllEmbeds(t *testing.T) {
	reg, ds, tbl := containersFixture(t)
	us := scopes.New(sdata.NewScopeSet(), nil, nil)
	b := &serialize.Builder{Registry: reg, Gate: authz.NewGate(nil), US: us, BaseURL: "https://api.example.test/v1"}

	row := store.NewRow()
	row.Values["id"] = 1
	clusterRow := store.NewRow()
	clusterRow.Values["id"] = "c1"
	row.Attach("cluster", []*store.Row{clusterRow})

	out, err := b.BuildRow(ds, tbl, row, serialize.Request{Mode: serialize.ExpandAll}, 0)
	require.Nil(t, err)
	embedded := out["_embedded"].(map[string]any)
	assert.Contains(t, embedded, "cluster")
}

// scopedClusterFixture is containersFixture with the clusters table
// itself behind a scope the caller does not hold.
func scopedClusterFixture(t *testing.T) (*sdata.Registry, *sdata.Dataset, *sdata.Table, *store.Row) {
	t.Helper()
	reg, ds, tbl := containersFixture(t)
	clusters, ok := reg.GetTable("afvalwegingen", "clusters")
	require.True(t, ok)
	clusters.Auth = sdata.NewScopeSet("CLUSTER/SCOPE")

	row := store.NewRow()
	row.Values["id"] = 1
	clusterRow := store.NewRow()
	clusterRow.Values["id"] = "c1"
	row.Attach("cluster", []*store.Row{clusterRow})
	return reg, ds, tbl, row
}

func TestBuildRowAutoExpandOmitsInaccessibleTarget(t *testing.T) {
	reg, ds, tbl, row := scopedClusterFixture(t)
	us := scopes.New(sdata.NewScopeSet(), nil, nil)
	b := &serialize.Builder{Registry: reg, Gate: authz.NewGate(nil), US: us, BaseURL: "https://api.example.test/v1"}

	out, err := b.BuildRow(ds, tbl, row, serialize.Request{Mode: serialize.ExpandAll}, 0)
	require.Nil(t, err)
	_, hasEmbedded := out["_embedded"]
	assert.False(t, hasEmbedded, "auto-expansion must silently omit an inaccessible target table")
}

func TestBuildRowExplicitExpandOfInaccessibleTargetIs403(t *testing.T) {
	reg, ds, tbl, row := scopedClusterFixture(t)
	us := scopes.New(sdata.NewScopeSet(), nil, nil)
	b := &serialize.Builder{Registry: reg, Gate: authz.NewGate(nil), US: us, BaseURL: "https://api.example.test/v1"}

	_, err := b.BuildRow(ds, tbl, row, serialize.Request{
		Mode:       serialize.ExpandScope,
		ScopePaths: map[string]bool{"cluster": true},
	}, 0)
	require.NotNil(t, err)
	assert.Equal(t, 403, err.Kind.Status())
}

func TestBuildRowExpandAllowedWithTargetScope(t *testing.T) {
	reg, ds, tbl, row := scopedClusterFixture(t)
	us := scopes.New(sdata.NewScopeSet("CLUSTER/SCOPE"), nil, nil)
	b := &serialize.Builder{Registry: reg, Gate: authz.NewGate(nil), US: us, BaseURL: "https://api.example.test/v1"}

	out, err := b.BuildRow(ds, tbl, row, serialize.Request{
		Mode:       serialize.ExpandScope,
		ScopePaths: map[string]bool{"cluster": true},
	}, 0)
	require.Nil(t, err)
	embedded := out["_embedded"].(map[string]any)
	assert.Contains(t, embedded, "cluster")
}
