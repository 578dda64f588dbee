package fuzzy

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed dictionary.yaml
var defaultDictionary []byte

// Dictionary holds the token rewriting rules of the matcher.
type Dictionary struct {
	StopWords     []string            `yaml:"stop_words"`
	Abbreviations map[string][]string `yaml:"abbreviations"`
}

// DefaultDictionary returns a fresh copy of the embedded dictionary.
func DefaultDictionary() *Dictionary {
	d, err := ParseDictionary(defaultDictionary)
	if err != nil {
		panic("fuzzy: embedded dictionary: " + err.Error())
	}
	return d
}

// ParseDictionary decodes a YAML dictionary.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var d Dictionary
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("fuzzy: parse dictionary: %w", err)
	}
	return &d, nil
}

// LoadDictionary reads an override file and layers it on the embedded
// dictionary: listed abbreviations replace or add entries, a non-empty
// stop_words list replaces the default one. An empty key list removes an
// abbreviation.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fuzzy: read dictionary: %w", err)
	}
	over, err := ParseDictionary(data)
	if err != nil {
		return nil, err
	}
	base := DefaultDictionary()
	if len(over.StopWords) > 0 {
		base.StopWords = over.StopWords
	}
	for k, v := range over.Abbreviations {
		if len(v) == 0 {
			delete(base.Abbreviations, k)
			continue
		}
		base.Abbreviations[k] = v
	}
	return base, nil
}
