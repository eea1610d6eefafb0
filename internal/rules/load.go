package rules

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk format for custom rules:
//
//	rules:
//	  - id: newsletter-optin
//	    name: Newsletter opt-in
//	    category: pre_checked
//	    severity: 2
//	    confidence: 0.7
//	    structural:
//	      - selector: 'input[type="checkbox"]'
//	        require_checked: true
//	        label_pattern: newsletter
//	    text: ['send me offers']
type File struct {
	Rules []Rule `yaml:"rules"`
}

// LoadFile reads custom rules from a YAML file. The rules are not validated
// here; pass them to WithCustom.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Parse decodes custom rules from YAML bytes.
func Parse(data []byte) ([]Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrMalformedRule, err)
	}
	if len(f.Rules) == 0 {
		return nil, errors.New("rules file contains no rules")
	}
	return f.Rules, nil
}
