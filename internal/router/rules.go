package router

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/maestro/pkg/models"
)

// RuleSpec is the declarative form of a rule as it appears in configuration.
// Every condition that is set must hold for the rule to match.
type RuleSpec struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Backend string `yaml:"backend" mapstructure:"backend"`
	// Types matches Task.Type, case-insensitively.
	Types []string `yaml:"types" mapstructure:"types"`
	// Keywords match when any of them appears in the input, case-insensitively.
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
	// LongerThan matches inputs with more than this many bytes.
	LongerThan int `yaml:"longer_than" mapstructure:"longer_than"`
	// ShorterThan matches inputs with fewer than this many bytes.
	ShorterThan int `yaml:"shorter_than" mapstructure:"shorter_than"`
	// Metadata matches when every key is present in Task.Metadata with the
	// same string form.
	Metadata map[string]string `yaml:"metadata" mapstructure:"metadata"`
}

// rulesFile is the top-level shape of a rules YAML file.
type rulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// Compile validates the rule settings and builds a Rule.
func (s RuleSpec) Compile() (Rule, error) {
	if s.Backend == "" {
		return Rule{}, fmt.Errorf("rule %q: backend is required", s.Name)
	}
	if s.LongerThan < 0 || s.ShorterThan < 0 {
		return Rule{}, fmt.Errorf("rule %q: length bounds must not be negative", s.Name)
	}
	if s.LongerThan > 0 && s.ShorterThan > 0 && s.LongerThan >= s.ShorterThan-1 {
		return Rule{}, fmt.Errorf("rule %q: longer_than %d and shorter_than %d match nothing",
			s.Name, s.LongerThan, s.ShorterThan)
	}

	types := lowerAll(s.Types)
	keywords := lowerAll(s.Keywords)
	metadata := s.Metadata
	longer, shorter := s.LongerThan, s.ShorterThan

	match := func(task models.Task) bool {
		n := len(task.Input)
		if longer > 0 && n <= longer {
			return false
		}
		if shorter > 0 && n >= shorter {
			return false
		}
		if len(types) > 0 && !contains(types, strings.ToLower(task.Type)) {
			return false
		}
		if len(keywords) > 0 && !containsKeyword(strings.ToLower(task.Input), keywords) {
			return false
		}
		for k, want := range metadata {
			got, ok := task.Metadata[k]
			if !ok || fmt.Sprint(got) != want {
				return false
			}
		}
		return true
	}

	name := s.Name
	if name == "" {
		name = "route-to-" + s.Backend
	}
	return Rule{Name: name, Match: match, BackendID: s.Backend}, nil
}

// CompileAll compiles specs in order.
func CompileAll(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := spec.Compile()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ParseRules reads rule specs from YAML.
func ParseRules(data []byte) ([]RuleSpec, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return f.Rules, nil
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func containsKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
