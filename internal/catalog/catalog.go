// Package catalog loads and validates the static source catalog.
package catalog

import (
	"net/url"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

type catalogFile struct {
	Sources []model.Source `yaml:"sources"`
}

// Load reads the source catalog from the given YAML file. The returned
// slice preserves file order and is treated as immutable by the pipeline.
func Load(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) ([]model.Source, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}
	if len(f.Sources) == 0 {
		return nil, eris.New("catalog: no sources defined")
	}

	seen := make(map[string]bool, len(f.Sources))
	for i, s := range f.Sources {
		if err := validate(s); err != nil {
			return nil, eris.Wrapf(err, "catalog: source %d (%q)", i, s.Name)
		}
		if seen[s.Name] {
			return nil, eris.Errorf("catalog: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return f.Sources, nil
}

func validate(s model.Source) error {
	if s.Name == "" {
		return eris.New("name is required")
	}
	if s.URL == "" {
		return eris.New("url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return eris.Errorf("invalid url %q", s.URL)
	}
	if s.Extract.Container == "" {
		return eris.New("extract.container is required")
	}
	if s.Extract.NameSelector == "" {
		return eris.New("extract.name_selector is required")
	}
	return nil
}
