package config

import (
	"fmt"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"finboard/internal/normalize"
)

// Profiles is the shape of an import profiles file:
//
//	{"sources": [{"name": "monzo", "kind": "csv", "fields": {...}, "date_order": "DMY"}]}
type Profiles struct {
	Sources []normalize.Source `koanf:"sources"`
}

// LoadProfiles reads import profiles from a JSON file.
func LoadProfiles(path string) (Profiles, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
		return Profiles{}, fmt.Errorf("load import profiles %s: %w", path, err)
	}
	var p Profiles
	if err := k.UnmarshalWithConf("", &p, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Profiles{}, fmt.Errorf("decode import profiles %s: %w", path, err)
	}
	return p, nil
}

// Register adds every profile to r. A profile without a kind is a CSV source.
func (p Profiles) Register(r *normalize.Registry) error {
	for i, s := range p.Sources {
		if s.Kind == "" {
			s.Kind = normalize.KindCSV
		}
		if err := r.Register(s); err != nil {
			return fmt.Errorf("import profile %d: %w", i+1, err)
		}
	}
	return nil
}

// SourceRegistry returns the built-in sources plus those in ImportProfilesFile.
func (c *Config) SourceRegistry() (*normalize.Registry, error) {
	r := normalize.NewRegistry()
	if c.ImportProfilesFile == "" {
		return r, nil
	}
	p, err := LoadProfiles(c.ImportProfilesFile)
	if err != nil {
		return nil, err
	}
	if err := p.Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
