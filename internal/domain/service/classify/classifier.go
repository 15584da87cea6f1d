package classify

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/operation"
)

//go:embed risk_table.yaml
var riskTableYAML []byte

// rule is one entry of the classification table
type rule struct {
	Capability string `yaml:"capability"`
	Action     string `yaml:"action"`
	Tier       int    `yaml:"tier"`
	// MultiFileTier, when set, replaces Tier for operations affecting
	// more than one file
	MultiFileTier *int `yaml:"multi_file_tier"`
}

// table is the parsed risk table
type table struct {
	DefaultTier int    `yaml:"default_tier"`
	Rules       []rule `yaml:"rules"`
}

type key struct {
	capability string
	action     string
}

// Classifier maps (capability, action, affected-file count) to a risk tier.
// Pure and table-driven; unknown pairs default conservatively.
type Classifier struct {
	rules       map[key]rule
	defaultTier operation.RiskTier
}

// NewClassifier parses and validates the embedded risk table
func NewClassifier() (*Classifier, error) {
	return newClassifierFrom(riskTableYAML)
}

func newClassifierFrom(data []byte) (*Classifier, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse risk table: %w", err)
	}

	if !operation.RiskTier(t.DefaultTier).IsValid() {
		return nil, fmt.Errorf("invalid default tier %d", t.DefaultTier)
	}
	// The default must never be laxer than multi-unit
	if operation.RiskTier(t.DefaultTier) < operation.TierMultiUnit {
		return nil, fmt.Errorf("default tier %d is below the conservative minimum %d",
			t.DefaultTier, operation.TierMultiUnit)
	}

	rules := make(map[key]rule, len(t.Rules))
	for _, r := range t.Rules {
		if r.Capability == "" || r.Action == "" {
			return nil, fmt.Errorf("risk table rule with empty capability or action")
		}
		if !operation.RiskTier(r.Tier).IsValid() {
			return nil, fmt.Errorf("invalid tier %d for %s/%s", r.Tier, r.Capability, r.Action)
		}
		if r.MultiFileTier != nil && !operation.RiskTier(*r.MultiFileTier).IsValid() {
			return nil, fmt.Errorf("invalid multi_file_tier %d for %s/%s",
				*r.MultiFileTier, r.Capability, r.Action)
		}
		k := key{capability: r.Capability, action: r.Action}
		if _, exists := rules[k]; exists {
			return nil, fmt.Errorf("duplicate risk table rule for %s/%s", r.Capability, r.Action)
		}
		rules[k] = r
	}

	return &Classifier{
		rules:       rules,
		defaultTier: operation.RiskTier(t.DefaultTier),
	}, nil
}

// Classify returns the risk tier for an operation.
// Unknown (capability, action) pairs default to the conservative tier.
func (c *Classifier) Classify(capability, action string, affectedFiles int) operation.RiskTier {
	r, ok := c.rules[key{capability: capability, action: action}]
	if !ok {
		return c.defaultTier
	}
	if affectedFiles > 1 && r.MultiFileTier != nil {
		return operation.RiskTier(*r.MultiFileTier)
	}
	return operation.RiskTier(r.Tier)
}

// Known reports whether a (capability, action) pair has an explicit rule.
// The executor registry uses this at startup to refuse unmapped handlers.
func (c *Classifier) Known(capability, action string) bool {
	_, ok := c.rules[key{capability: capability, action: action}]
	return ok
}
