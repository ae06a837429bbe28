package sdata

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// FSLoader reads one Amsterdam Schema dataset document per *.json file
// in a directory, through an afero.Fs so tests can load fixtures from
// an in-memory filesystem instead of disk.
type FSLoader struct {
	Fs   afero.Fs
	Path string
}

// NewFSLoader builds a Loader rooted at path on the real filesystem.
func NewFSLoader(path string) *FSLoader {
	return &FSLoader{Fs: afero.NewOsFs(), Path: path}
}

// datasetDoc mirrors the on-disk JSON shape of a dataset document;
// field names are the Amsterdam Schema's own camelCase.
type datasetDoc struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Version string        `json:"version"`
	Auth    []string      `json:"auth"`
	Status  string        `json:"status"`
	Tables  []tableDoc    `json:"tables"`
}

type tableDoc struct {
	ID                  string                `json:"id"`
	Auth                []string              `json:"auth"`
	Identifier          []string              `json:"identifier"`
	Temporal            *temporalDoc          `json:"temporal"`
	Fields              []fieldDoc            `json:"fields"`
	AdditionalRelations []additionalRelDoc    `json:"additionalRelations"`
	Remote              *remoteDoc            `json:"remote"`
	MVT                 *mvtDoc               `json:"mvt"`
}

type temporalDoc struct {
	SequenceField string               `json:"sequenceField"`
	Dimensions    map[string]Dimension `json:"dimensions"`
}

type fieldDoc struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             string     `json:"type"`
	Format           string     `json:"format"`
	Auth             []string   `json:"auth"`
	Relation         *TableRef  `json:"relation"`
	NMRelation       *TableRef  `json:"nmRelation"`
	Subfields        []fieldDoc `json:"subfields"`
	Items            *fieldDoc  `json:"items"`
	RelatedFieldIDs  []string   `json:"relatedFieldIds"`
	IsIdentifierPart bool       `json:"isIdentifierPart"`
	IsNestedTable    bool       `json:"isNestedTable"`
	IsLooseRelation  bool       `json:"isLooseRelation"`
	ColumnName       string     `json:"columnName"`
	MinZoom          int        `json:"minZoom"`
	MaxZoom          int        `json:"maxZoom"`
	HighZoomOnly     bool       `json:"highZoomOnly"`
}

type additionalRelDoc struct {
	ID           string         `json:"id"`
	Relation     TableRef       `json:"relation"`
	Format       RelationFormat `json:"format"`
	RelatedTable TableRef       `json:"relatedTable"`
}

type remoteDoc struct {
	BaseURL       string `json:"baseUrl"`
	ForwardAuth   bool   `json:"forwardAuth"`
	HALCentral    bool   `json:"halCentral"`
	UpstreamIDHdr string `json:"upstreamIdHeader"`
}

type mvtDoc struct {
	GeometryField     string `json:"geometryField"`
	IdentifierField   string `json:"identifierField"`
	HighZoomThreshold int    `json:"highZoomThreshold"`
	MinZoom           int    `json:"minZoom"`
	MaxZoom           int    `json:"maxZoom"`
}

// Load implements Loader by reading every *.json file directly under
// Path (non-recursive, one dataset per file).
func (l *FSLoader) Load() ([]*Dataset, error) {
	entries, err := afero.ReadDir(l.Fs, l.Path)
	if err != nil {
		return nil, fmt.Errorf("sdata: read schema dir %s: %w", l.Path, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	datasets := make([]*Dataset, 0, len(names))
	for _, name := range names {
		raw, err := afero.ReadFile(l.Fs, filepath.Join(l.Path, name))
		if err != nil {
			return nil, fmt.Errorf("sdata: read %s: %w", name, err)
		}
		var doc datasetDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("sdata: parse %s: %w", name, err)
		}
		datasets = append(datasets, convertDataset(doc))
	}
	return datasets, nil
}

func convertDataset(doc datasetDoc) *Dataset {
	tables := make([]*Table, 0, len(doc.Tables))
	for _, td := range doc.Tables {
		tables = append(tables, convertTable(doc.ID, td))
	}
	return &Dataset{
		ID:      doc.ID,
		Title:   doc.Title,
		Version: doc.Version,
		Auth:    scopeSetOf(doc.Auth),
		Status:  DatasetStatus(doc.Status),
		Tables:  tables,
	}
}

func convertTable(datasetID string, td tableDoc) *Table {
	var temporal *Temporal
	if td.Temporal != nil {
		temporal = &Temporal{
			SequenceField: td.Temporal.SequenceField,
			Dimensions:    td.Temporal.Dimensions,
		}
	}

	fields := make([]*Field, 0, len(td.Fields))
	for _, fd := range td.Fields {
		fields = append(fields, convertField(fd))
	}

	rels := make([]*AdditionalRelation, 0, len(td.AdditionalRelations))
	for _, rd := range td.AdditionalRelations {
		rels = append(rels, &AdditionalRelation{
			ID:           rd.ID,
			Relation:     rd.Relation,
			Format:       rd.Format,
			RelatedTable: rd.RelatedTable,
		})
	}

	var remote *RemoteDescriptor
	if td.Remote != nil {
		remote = &RemoteDescriptor{
			BaseURL:       td.Remote.BaseURL,
			ForwardAuth:   td.Remote.ForwardAuth,
			HALCentral:    td.Remote.HALCentral,
			UpstreamIDHdr: td.Remote.UpstreamIDHdr,
		}
	}

	var mvt *MVTDescriptor
	if td.MVT != nil {
		mvt = &MVTDescriptor{
			GeometryField:     td.MVT.GeometryField,
			IdentifierField:   td.MVT.IdentifierField,
			HighZoomThreshold: td.MVT.HighZoomThreshold,
			MinZoom:           td.MVT.MinZoom,
			MaxZoom:           td.MVT.MaxZoom,
		}
	}

	return &Table{
		ID:                  td.ID,
		Dataset:             datasetID,
		Auth:                scopeSetOf(td.Auth),
		Identifier:          td.Identifier,
		Temporal:            temporal,
		Fields:              fields,
		AdditionalRelations: rels,
		Remote:              remote,
		MVT:                 mvt,
	}
}

func convertField(fd fieldDoc) *Field {
	var sub []*Field
	for _, s := range fd.Subfields {
		sub = append(sub, convertField(s))
	}
	var items *Field
	if fd.Items != nil {
		items = convertField(*fd.Items)
	}
	return &Field{
		ID:               fd.ID,
		Name:             fd.Name,
		Type:             FieldType(fd.Type),
		Format:           fd.Format,
		Auth:             scopeSetOf(fd.Auth),
		Relation:         fd.Relation,
		NMRelation:       fd.NMRelation,
		Subfields:        sub,
		Items:            items,
		RelatedFieldIDs:  fd.RelatedFieldIDs,
		IsIdentifierPart: fd.IsIdentifierPart,
		IsNestedTable:    fd.IsNestedTable,
		IsLooseRelation:  fd.IsLooseRelation,
		ColumnName:       fd.ColumnName,
		MinZoom:          fd.MinZoom,
		MaxZoom:          fd.MaxZoom,
		HighZoomOnly:     fd.HighZoomOnly,
	}
}

func scopeSetOf(ss []string) ScopeSet {
	out := make(ScopeSet, len(ss))
	for _, s := range ss {
		out[Scope(s)] = struct{}{}
	}
	return out
}
