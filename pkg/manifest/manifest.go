package manifest

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ImmutableArch/pacman-ostree/pkg/types"
)

// Manifest is the declarative input named by §6: an unordered mapping of
// packages, services, post-install scripts, pacman repos, and other
// manifests to merge in.
type Manifest struct {
	Include  []string `yaml:"include,omitempty"`
	Ref      string   `yaml:"ref"`
	Packages []string `yaml:"packages"`
	Services []string `yaml:"services,omitempty"`
	Scripts  []string `yaml:"scripts,omitempty"`
	Repos    []string `yaml:"repos,omitempty"`
}

// Merge folds other into m: Ref is replaced when other.Ref is
// non-empty; every list field is concatenated.
func (m *Manifest) Merge(other *Manifest) {
	if other.Ref != "" {
		m.Ref = other.Ref
	}
	m.Packages = append(m.Packages, other.Packages...)
	m.Services = append(m.Services, other.Services...)
	m.Scripts = append(m.Scripts, other.Scripts...)
	m.Repos = append(m.Repos, other.Repos...)
	m.Include = append(m.Include, other.Include...)
}

// Load parses path and recursively resolves its include list, merging
// each included manifest in list order. Include paths are resolved
// relative to the directory of the file that names them, so a manifest
// can be included from anywhere regardless of the caller's working
// directory. A manifest that (transitively) includes itself is a
// configuration error.
func Load(path string) (*Manifest, error) {
	return load(path, map[string]bool{})
}

func load(path string, visiting map[string]bool) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, types.Wrap(types.ErrConfiguration, err, "resolve manifest path %s", path)
	}
	if visiting[abs] {
		return nil, types.Newf(types.ErrConfiguration, "manifest include cycle at %s", abs)
	}
	visiting[abs] = true
	defer delete(visiting, abs)

	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, types.Wrap(types.ErrConfiguration, err, "read manifest %s", abs)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, types.Wrap(types.ErrConfiguration, err, "parse manifest %s", abs)
	}
	includes := m.Include
	m.Include = nil
	dir := filepath.Dir(abs)

	for _, inc := range includes {
		incPath := inc
		if !filepath.IsAbs(incPath) {
			incPath = filepath.Join(dir, incPath)
		}
		included, err := load(incPath, visiting)
		if err != nil {
			return nil, err
		}
		m.Merge(included)
	}

	return &m, nil
}
