package policy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tier is the protection level of a repository path.
type Tier string

const (
	TierBase     Tier = "base"
	TierInternal Tier = "internal"
	TierExternal Tier = "external"
	TierApp      Tier = "app"
)

// ResourceKind distinguishes what a classified path contains.
type ResourceKind string

const (
	KindPolicy ResourceKind = "policy"
	KindApp    ResourceKind = "app"
)

// Role names a reviewer group recognized by the gate.
type Role string

const (
	RoleDev      Role = "dev"
	RoleSecurity Role = "security"
)

// TierRule maps a path prefix to a tier. Rules keep declaration order;
// the classifier prefers the longest matching prefix and breaks ties by
// declaration order (first wins).
type TierRule struct {
	ID             string       `yaml:"id"`
	PathPrefix     string       `yaml:"path_prefix"`
	TenantScoped   bool         `yaml:"tenant_scoped"`
	Tier           Tier         `yaml:"tier"`
	Kind           ResourceKind `yaml:"kind"`
	OwningRole     Role         `yaml:"owning_role"`
	AutoApprovable bool         `yaml:"auto_approvable"`
}

// ApprovalConfig declares the recognized roles and which role signs off
// each tier that needs a recorded approval.
type ApprovalConfig struct {
	Roles               []Role        `yaml:"roles"`
	DefaultReviewerRole Role          `yaml:"default_reviewer_role"`
	TierReviewers       map[Tier]Role `yaml:"tier_reviewers"`
	// BlockingWarningCodes lists finding codes that, while only warnings,
	// still disqualify a changeset from auto-approval.
	BlockingWarningCodes []string `yaml:"blocking_warning_codes"`
}

// RuleSet is the process-wide gate configuration, loaded once per run and
// never mutated afterwards.
type RuleSet struct {
	Version  string         `yaml:"version"`
	Tenants  []string       `yaml:"tenants"`
	Rules    []TierRule     `yaml:"rules"`
	Approval ApprovalConfig `yaml:"approval"`
}

var validTiers = map[Tier]bool{
	TierBase:     true,
	TierInternal: true,
	TierExternal: true,
	TierApp:      true,
}

var validKinds = map[ResourceKind]bool{
	KindPolicy: true,
	KindApp:    true,
}

// LoadRuleSet reads YAML from the given path. A missing or empty path is an
// error: the gate refuses to run without explicit configuration.
func LoadRuleSet(path string) (*RuleSet, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rule set path is empty")
	}
	// #nosec G304 -- rule set path is operator-provided.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}
	rs, err := ParseRuleSet(data)
	if err != nil {
		return nil, fmt.Errorf("parse rule set %s: %w", path, err)
	}
	return rs, nil
}

// ParseRuleSet parses and normalizes a rule set from YAML bytes. The payload
// is checked against the embedded JSON schema before unmarshalling so that a
// malformed configuration is rejected up front instead of half-applied.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("rule set is empty")
	}
	if err := validateRuleSetSchema(data); err != nil {
		return nil, err
	}
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	if err := rs.normalize(); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (rs *RuleSet) normalize() error {
	if len(rs.Rules) == 0 {
		return fmt.Errorf("rule set declares no tier rules")
	}
	if len(rs.Tenants) == 0 {
		return fmt.Errorf("rule set declares no tenants")
	}
	seen := map[string]bool{}
	for i := range rs.Rules {
		r := &rs.Rules[i]
		r.PathPrefix = strings.TrimPrefix(strings.TrimSpace(r.PathPrefix), "/")
		if r.PathPrefix == "" && !r.TenantScoped {
			return fmt.Errorf("rule %q has an empty path prefix", r.ID)
		}
		if r.ID == "" {
			r.ID = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if !validTiers[r.Tier] {
			return fmt.Errorf("rule %q has unknown tier %q", r.ID, r.Tier)
		}
		if r.Kind == "" {
			r.Kind = KindPolicy
		}
		if !validKinds[r.Kind] {
			return fmt.Errorf("rule %q has unknown kind %q", r.ID, r.Kind)
		}
		// The base tier is a hard security boundary: no configuration may
		// mark it auto-approvable or hand it to another owning role.
		if r.Tier == TierBase {
			r.AutoApprovable = false
			r.OwningRole = RoleSecurity
		}
		if r.OwningRole == "" {
			r.OwningRole = RoleDev
		}
	}
	return rs.Approval.normalize()
}

func (a *ApprovalConfig) normalize() error {
	if len(a.Roles) == 0 {
		a.Roles = []Role{RoleDev, RoleSecurity}
	}
	known := map[Role]bool{}
	for _, r := range a.Roles {
		known[r] = true
	}
	if a.DefaultReviewerRole == "" {
		a.DefaultReviewerRole = RoleSecurity
	}
	if !known[a.DefaultReviewerRole] {
		return fmt.Errorf("default reviewer role %q is not a recognized role", a.DefaultReviewerRole)
	}
	if a.TierReviewers == nil {
		a.TierReviewers = map[Tier]Role{}
	}
	if _, ok := a.TierReviewers[TierExternal]; !ok {
		a.TierReviewers[TierExternal] = RoleSecurity
	}
	for tier, role := range a.TierReviewers {
		if !validTiers[tier] {
			return fmt.Errorf("tier reviewer entry names unknown tier %q", tier)
		}
		if !known[role] {
			return fmt.Errorf("tier %q reviewer role %q is not a recognized role", tier, role)
		}
	}
	return nil
}

// Recognized reports whether the role is declared in the configuration.
func (a ApprovalConfig) Recognized(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ReviewerFor returns the role that must approve changes in the given tier,
// falling back to the default reviewer role.
func (a ApprovalConfig) ReviewerFor(tier Tier) Role {
	if role, ok := a.TierReviewers[tier]; ok {
		return role
	}
	return a.DefaultReviewerRole
}
