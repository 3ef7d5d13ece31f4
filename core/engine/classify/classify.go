// Package classify maps changed repository paths onto tier rules.
package classify

import (
	"fmt"
	"strings"

	"github.com/mergegate/mergegate/core/policy"
)

// ErrorCode tags the ways a path can fail classification.
type ErrorCode string

const (
	CodeUnknownTenant    ErrorCode = "UnknownTenant"
	CodeUnclassifiedPath ErrorCode = "UnclassifiedPath"
)

// Error is a failed classification. Callers must treat it as maximally
// restrictive (base-equivalent), never as ignorable.
type Error struct {
	Code ErrorCode
	Path string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

// Classification is the derived (tenant, tier, kind) record for one path.
type Classification struct {
	Path           string
	Tenant         string
	Tier           policy.Tier
	Kind           policy.ResourceKind
	OwningRole     policy.Role
	AutoApprovable bool
	RuleID         string
}

// Classify resolves a path against the ordered tier rules. The longest
// matching prefix wins; ties fall to the first-declared rule. Tenant-scoped
// rules match against the remainder after the leading tenant segment, which
// must name a registered tenant. Pure function of its inputs.
func Classify(path string, reg *policy.TenantRegistry, rules []policy.TierRule) (Classification, error) {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return Classification{}, &Error{Code: CodeUnclassifiedPath, Path: path}
	}

	tenant, rest, hasTenant := splitTenant(path)

	best := -1
	bestLen := -1
	bestScoped := false
	for i, rule := range rules {
		matchLen, ok := ruleMatch(rule, path, rest, hasTenant)
		if !ok {
			continue
		}
		if matchLen > bestLen {
			best, bestLen, bestScoped = i, matchLen, rule.TenantScoped
		}
	}
	if best < 0 {
		return Classification{}, &Error{Code: CodeUnclassifiedPath, Path: path}
	}

	rule := rules[best]
	c := Classification{
		Path:           path,
		Tier:           rule.Tier,
		Kind:           rule.Kind,
		OwningRole:     rule.OwningRole,
		AutoApprovable: rule.AutoApprovable,
		RuleID:         rule.ID,
	}
	if bestScoped {
		if !reg.Known(tenant) {
			return Classification{}, &Error{Code: CodeUnknownTenant, Path: path}
		}
		c.Tenant = tenant
	}
	// Mirror of the rule-set hardening: a base classification can never be
	// auto-approvable, whatever the matched rule said.
	if c.Tier == policy.TierBase {
		c.AutoApprovable = false
		c.OwningRole = policy.RoleSecurity
	}
	return c, nil
}

// splitTenant separates the leading tenant segment from the rest of the path.
func splitTenant(path string) (tenant, rest string, ok bool) {
	idx := strings.IndexByte(path, '/')
	if idx <= 0 {
		return "", "", false
	}
	return path[:idx], path[idx+1:], true
}

// ruleMatch reports whether the rule applies and the effective matched
// prefix length used for specificity comparison. For tenant-scoped rules the
// tenant segment counts toward the matched length so that scoped and
// unscoped rules compete on equal footing.
func ruleMatch(rule policy.TierRule, full, rest string, hasTenant bool) (int, bool) {
	if rule.TenantScoped {
		if !hasTenant {
			return 0, false
		}
		if !prefixMatch(rest, rule.PathPrefix) {
			return 0, false
		}
		return len(full) - len(rest) + len(rule.PathPrefix), true
	}
	if !prefixMatch(full, rule.PathPrefix) {
		return 0, false
	}
	return len(rule.PathPrefix), true
}

// prefixMatch matches on whole path segments: prefix "apps" matches
// "apps/web.yaml" but not "apps-legacy/web.yaml".
func prefixMatch(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.HasPrefix(path, prefix)
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
