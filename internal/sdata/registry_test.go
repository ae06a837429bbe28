package sdata_test

import (
	"testing"

	"github.com/amsterdam/dso-gateway/internal/sdata"
	"github.com/stretchr/testify/require"
)

type fixtureLoader struct {
	datasets []*sdata.Dataset
}

func (f fixtureLoader) Load() ([]*sdata.Dataset, error) { return f.datasets, nil }

func clusterField() *sdata.Field {
	return &sdata.Field{ID: "cluster", Name: "cluster", Type: sdata.TypeString,
		Relation: &sdata.TableRef{Dataset: "afvalwegingen", Table: "clusters"}}
}

func newFixture() *sdata.Dataset {
	clusters := &sdata.Table{
		ID:      "clusters",
		Dataset: "afvalwegingen",
		Fields: []*sdata.Field{
			{ID: "id", Name: "id", Type: sdata.TypeString, IsIdentifierPart: true},
		},
	}
	containers := &sdata.Table{
		ID:         "containers",
		Dataset:    "afvalwegingen",
		Identifier: []string{"id"},
		Fields: []*sdata.Field{
			{ID: "id", Name: "id", Type: sdata.TypeString, IsIdentifierPart: true},
			clusterField(),
			{ID: "serienummer", Name: "serienummer", Type: sdata.TypeString},
		},
	}
	return &sdata.Dataset{
		ID:     "afvalwegingen",
		Status: sdata.StatusBeschikbaar,
		Tables: []*sdata.Table{clusters, containers},
	}
}

func TestRegistryLoadAndResolve(t *testing.T) {
	reg, err := sdata.NewRegistry(fixtureLoader{datasets: []*sdata.Dataset{newFixture()}})
	require.NoError(t, err)

	ds, ok := reg.GetDataset("afvalwegingen")
	require.True(t, ok)
	require.Equal(t, "afvalwegingen", ds.ID)

	tbl, ok := reg.GetTable("afvalwegingen", "containers")
	require.True(t, ok)

	parts, err := reg.ResolveFieldPath(tbl, []string{"cluster", "id"})
	require.NoError(t, err)
	require.Len(t, parts, 2)
	require.Equal(t, "clusters", parts[0].Table.ID)
	require.NotNil(t, parts[1].Field)

	_, err = reg.ResolveFieldPath(tbl, []string{"nope"})
	require.Error(t, err)
	var fnf *sdata.ErrFieldNotFound
	require.ErrorAs(t, err, &fnf)
}

func TestRegistryLegacyIDSuffix(t *testing.T) {
	reg, err := sdata.NewRegistry(fixtureLoader{datasets: []*sdata.Dataset{newFixture()}})
	require.NoError(t, err)
	tbl, _ := reg.GetTable("afvalwegingen", "containers")

	parts, err := reg.ResolveFieldPath(tbl, []string{"clusterId"})
	require.NoError(t, err)
	require.Len(t, parts, 1)
	require.Equal(t, "cluster", parts[0].Field.ID)
}

func TestRegistrySkipsUnavailableDataset(t *testing.T) {
	ds := newFixture()
	ds.Status = sdata.StatusNietBeschikbaar
	reg, err := sdata.NewRegistry(fixtureLoader{datasets: []*sdata.Dataset{ds}})
	require.NoError(t, err)
	_, ok := reg.GetDataset("afvalwegingen")
	require.False(t, ok)
}

func TestRegistryReloadKeepsPreviousSnapshotOnError(t *testing.T) {
	loader := &failingLoader{datasets: []*sdata.Dataset{newFixture()}}
	reg, err := sdata.NewRegistry(loader)
	require.NoError(t, err)

	loader.fail = true
	err = reg.Reload()
	require.Error(t, err)

	_, ok := reg.GetDataset("afvalwegingen")
	require.True(t, ok, "previous snapshot must remain active after a failed reload")
}

type failingLoader struct {
	datasets []*sdata.Dataset
	fail     bool
}

func (f *failingLoader) Load() ([]*sdata.Dataset, error) {
	if f.fail {
		return nil, errReload
	}
	return f.datasets, nil
}

var errReload = sdataErr("reload failed")

type sdataErr string

func (e sdataErr) Error() string { return string(e) }

func TestNameTransforms(t *testing.T) {
	require.Equal(t, "datum_creatie", sdata.SnakeName("datumCreatie"))
	require.Equal(t, "datumCreatie", sdata.CamelName("datum_creatie"))
}
