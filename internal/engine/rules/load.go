package rules

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/dumpsift/internal/model"
)

//go:embed default_rules.yaml
var defaultRules []byte

type ruleFile struct {
	Rules []model.Rule `yaml:"rules"`
}

// Load decodes a YAML rule file: a mapping with a "rules" list.
func Load(r io.Reader) ([]model.Rule, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding rules: %w", err)
	}
	return f.Rules, nil
}

// LoadFile reads rules from path.
func LoadFile(path string) ([]model.Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules: %w", err)
	}
	defer f.Close()
	rules, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rules, nil
}

// Defaults returns the built-in rule pack.
func Defaults() []model.Rule {
	rules, err := Load(bytes.NewReader(defaultRules))
	if err != nil {
		panic(fmt.Sprintf("built-in rules: %v", err))
	}
	return rules
}
