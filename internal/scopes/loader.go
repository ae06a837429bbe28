package scopes

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/amsterdam/dso-gateway/internal/sdata"
)

// FSLoader reads one profile document per *.json file in a directory,
// mirroring internal/sdata.FSLoader's afero.Fs indirection.
type FSLoader struct {
	Fs   afero.Fs
	Path string
}

// NewFSLoader builds a ProfileLoader rooted at path on the real filesystem.
func NewFSLoader(path string) *FSLoader {
	return &FSLoader{Fs: afero.NewOsFs(), Path: path}
}

type profileDoc struct {
	ID       string                              `json:"id"`
	Scopes   []string                            `json:"scopes"`
	Datasets map[string]map[string]profileTableDoc `json:"datasets"`
}

type profileTableDoc struct {
	MandatoryFilterSets [][]string                `json:"mandatoryFilterSets"`
	Fields              map[string]permissionDoc  `json:"fields"`
}

// permissionDoc decodes a field permission from a short
// string: "read", "none", or "letters:N".
type permissionDoc string

func (p permissionDoc) toPermission() (Permission, error) {
	s := string(p)
	switch {
	case s == "" || s == "none":
		return Permission{Kind: PermNone}, nil
	case s == "read":
		return Permission{Kind: PermRead}, nil
	case strings.HasPrefix(s, "letters:"):
		var n int
		if _, err := fmt.Sscanf(s, "letters:%d", &n); err != nil {
			return Permission{}, fmt.Errorf("invalid letters permission %q: %w", s, err)
		}
		return Permission{Kind: PermLetters, Letters: n}, nil
	default:
		return Permission{}, fmt.Errorf("unknown permission %q", s)
	}
}

// Load implements ProfileLoader by reading every *.json file directly
// under Path (non-recursive, one profile per file). A missing directory
// means a deployment without profiles, not an error.
func (l *FSLoader) Load() ([]*Profile, error) {
	entries, err := afero.ReadDir(l.Fs, l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scopes: read profile dir %s: %w", l.Path, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	profiles := make([]*Profile, 0, len(names))
	for _, name := range names {
		raw, err := afero.ReadFile(l.Fs, filepath.Join(l.Path, name))
		if err != nil {
			return nil, fmt.Errorf("scopes: read %s: %w", name, err)
		}
		var doc profileDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("scopes: parse %s: %w", name, err)
		}
		pr, err := convertProfile(doc)
		if err != nil {
			return nil, fmt.Errorf("scopes: %s: %w", name, err)
		}
		profiles = append(profiles, pr)
	}
	return profiles, nil
}

func convertProfile(doc profileDoc) (*Profile, error) {
	scopeSet := make(sdata.ScopeSet, len(doc.Scopes))
	for _, s := range doc.Scopes {
		scopeSet[sdata.Scope(s)] = struct{}{}
	}

	datasets := make(map[string]map[string]*ProfileTable, len(doc.Datasets))
	for dsID, tables := range doc.Datasets {
		tbls := make(map[string]*ProfileTable, len(tables))
		for tID, td := range tables {
			fields := make(map[string]Permission, len(td.Fields))
			for fID, pd := range td.Fields {
				perm, err := pd.toPermission()
				if err != nil {
					return nil, fmt.Errorf("dataset %s table %s field %s: %w", dsID, tID, fID, err)
				}
				fields[fID] = perm
			}
			tbls[tID] = &ProfileTable{MandatoryFilterSets: td.MandatoryFilterSets, Fields: fields}
		}
		datasets[dsID] = tbls
	}

	return &Profile{ID: doc.ID, Scopes: scopeSet, Datasets: datasets}, nil
}
