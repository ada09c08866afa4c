package urlnorm

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// rulesFile is the on-disk shape of the rule table.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads additional normalization rules from a YAML file:
//
//	rules:
//	  - host: img.example-cdn.com
//	    preserve_query: true
//	  - host: .example.org
//	    keep_params: [id, size]
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	for i, r := range f.Rules {
		if r.Host == "" {
			return nil, fmt.Errorf("rule %d has no host", i)
		}
	}
	return f.Rules, nil
}
