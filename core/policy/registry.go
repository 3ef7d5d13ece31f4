package policy

import "strings"

// TenantRegistry is the immutable set of tenants known to the gate.
type TenantRegistry struct {
	tenants map[string]bool
}

// NewTenantRegistry builds a registry from tenant identifiers, ignoring
// blanks and duplicates.
func NewTenantRegistry(tenants []string) *TenantRegistry {
	reg := &TenantRegistry{tenants: make(map[string]bool, len(tenants))}
	for _, t := range tenants {
		t = strings.TrimSpace(t)
		if t != "" {
			reg.tenants[t] = true
		}
	}
	return reg
}

// Known reports whether the tenant identifier is registered.
func (r *TenantRegistry) Known(tenant string) bool {
	if r == nil {
		return false
	}
	return r.tenants[tenant]
}

// Len returns the number of registered tenants.
func (r *TenantRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.tenants)
}

// Registry returns the tenant registry declared by the rule set.
func (rs *RuleSet) Registry() *TenantRegistry {
	if rs == nil {
		return NewTenantRegistry(nil)
	}
	return NewTenantRegistry(rs.Tenants)
}
