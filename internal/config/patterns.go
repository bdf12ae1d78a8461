package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// PatternsFile is the on-disk shape of a --patterns-file override.
type PatternsFile struct {
	Canonical string       `yaml:"canonical"`
	Patterns  []KeyPattern `yaml:"patterns"`
	Exclude   []string     `yaml:"exclude"`
}

// LoadPatternsFile reads a YAML key-pattern list and applies it over keys.
// Sections absent from the file leave the existing values untouched, so a file
// listing only newly discovered legacy formats is enough.
func LoadPatternsFile(path string, keys *KeysConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "config: read patterns file %s", path)
	}

	var pf PatternsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return eris.Wrapf(err, "config: parse patterns file %s", path)
	}

	if pf.Canonical != "" {
		keys.Canonical = pf.Canonical
	}
	if len(pf.Patterns) > 0 {
		keys.Patterns = pf.Patterns
	}
	if len(pf.Exclude) > 0 {
		keys.Exclude = pf.Exclude
	}
	return nil
}
