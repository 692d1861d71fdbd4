package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/Conductor/internal/domain/budget"
)

// Budgets is the `budgets:` section: a `global` block plus one map of
// task_type -> limits per agent. Agent entries hold complete limits, so an
// explicit zero is a real limit.
type Budgets struct {
	Global budget.Global
	Agents map[string]map[string]budget.Limits
}

// UnmarshalYAML separates the reserved `global` key from agent entries.
// Fields not set in YAML keep their current (default) values, and each
// agent entry is decoded over budget.DefaultLimits.
func (b *Budgets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("budgets: expected mapping, got %v", node.Tag)
	}
	if b.Agents == nil {
		b.Agents = make(map[string]map[string]budget.Limits)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]

		if key == "global" {
			if err := val.Decode(&b.Global); err != nil {
				return fmt.Errorf("budgets.global: %w", err)
			}
			continue
		}

		var nodes map[string]yaml.Node
		if err := val.Decode(&nodes); err != nil {
			return fmt.Errorf("budgets.%s: %w", key, err)
		}
		perType := make(map[string]budget.Limits, len(nodes))
		for tt, n := range nodes {
			l := budget.DefaultLimits()
			if err := n.Decode(&l); err != nil {
				return fmt.Errorf("budgets.%s.%s: %w", key, tt, err)
			}
			perType[tt] = l
		}
		b.Agents[key] = perType
	}
	return nil
}

// For returns the limits for agent and taskType, or budget.DefaultLimits
// when none are configured.
func (b *Budgets) For(agent, taskType string) budget.Limits {
	if l, ok := b.Agents[agent][taskType]; ok {
		return l
	}
	return budget.DefaultLimits()
}

func (b *Budgets) validate() error {
	for agent, perType := range b.Agents {
		for tt, l := range perType {
			if err := l.Validate(); err != nil {
				return fmt.Errorf("budgets.%s.%s: %w", agent, tt, err)
			}
		}
	}
	if b.Global.MaxDailyLLMCalls < 0 || b.Global.MaxDailyProactiveAlerts < 0 {
		return fmt.Errorf("budgets.global: daily limits must be >= 0")
	}
	if b.Global.DefaultMaxSeconds < 1 {
		return fmt.Errorf("budgets.global.default_max_seconds must be >= 1")
	}
	return nil
}
