package classify

import (
	"errors"
	"testing"

	"github.com/mergegate/mergegate/core/policy"
)

func testRules() []policy.TierRule {
	return []policy.TierRule{
		{ID: "base", PathPrefix: "policies/00-base/", TenantScoped: true, Tier: policy.TierBase, Kind: policy.KindPolicy, OwningRole: policy.RoleSecurity},
		{ID: "internal", PathPrefix: "policies/10-internal/", TenantScoped: true, Tier: policy.TierInternal, Kind: policy.KindPolicy, OwningRole: policy.RoleDev, AutoApprovable: true},
		{ID: "external", PathPrefix: "policies/20-external/", TenantScoped: true, Tier: policy.TierExternal, Kind: policy.KindPolicy, OwningRole: policy.RoleSecurity},
		{ID: "apps", PathPrefix: "apps/", TenantScoped: true, Tier: policy.TierApp, Kind: policy.KindApp, OwningRole: policy.RoleDev, AutoApprovable: true},
		{ID: "cluster", PathPrefix: "clusters/", Tier: policy.TierBase, Kind: policy.KindPolicy, OwningRole: policy.RoleSecurity},
	}
}

func testRegistry() *policy.TenantRegistry {
	return policy.NewTenantRegistry([]string{"tenant-a", "tenant-b"})
}

func TestClassifyTenantScoped(t *testing.T) {
	c, err := Classify("tenant-a/policies/10-internal/api-to-cache.yaml", testRegistry(), testRules())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.Tenant != "tenant-a" || c.Tier != policy.TierInternal || !c.AutoApprovable {
		t.Fatalf("unexpected classification: %#v", c)
	}
	if c.RuleID != "internal" {
		t.Fatalf("expected internal rule, got %s", c.RuleID)
	}
}

func TestClassifyLongestPrefixWins(t *testing.T) {
	rules := append(testRules(), policy.TierRule{
		ID: "frontend", PathPrefix: "apps/frontend/", TenantScoped: true,
		Tier: policy.TierApp, Kind: policy.KindApp, OwningRole: policy.RoleDev,
	})
	c, err := Classify("tenant-a/apps/frontend/deploy.yaml", testRegistry(), rules)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.RuleID != "frontend" {
		t.Fatalf("expected longest prefix rule, got %s", c.RuleID)
	}
}

func TestClassifyTieBrokenByDeclarationOrder(t *testing.T) {
	rules := []policy.TierRule{
		{ID: "first", PathPrefix: "apps/", TenantScoped: true, Tier: policy.TierApp, Kind: policy.KindApp, OwningRole: policy.RoleDev, AutoApprovable: true},
		{ID: "second", PathPrefix: "apps/", TenantScoped: true, Tier: policy.TierInternal, Kind: policy.KindPolicy, OwningRole: policy.RoleDev},
	}
	c, err := Classify("tenant-a/apps/web.yaml", testRegistry(), rules)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.RuleID != "first" {
		t.Fatalf("expected first-declared rule to win the tie, got %s", c.RuleID)
	}
}

func TestClassifyUnknownTenant(t *testing.T) {
	_, err := Classify("ghost/apps/web.yaml", testRegistry(), testRules())
	var cerr *Error
	if !errors.As(err, &cerr) || cerr.Code != CodeUnknownTenant {
		t.Fatalf("expected UnknownTenant, got %v", err)
	}
}

func TestClassifyUnclassifiedPath(t *testing.T) {
	for _, path := range []string{"README.md", "tenant-a/docs/notes.md", ""} {
		_, err := Classify(path, testRegistry(), testRules())
		var cerr *Error
		if !errors.As(err, &cerr) || cerr.Code != CodeUnclassifiedPath {
			t.Fatalf("path %q: expected UnclassifiedPath, got %v", path, err)
		}
	}
}

func TestClassifyUnscopedRule(t *testing.T) {
	c, err := Classify("clusters/prod/bootstrap.yaml", testRegistry(), testRules())
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.Tenant != "" || c.Tier != policy.TierBase {
		t.Fatalf("unexpected classification: %#v", c)
	}
}

func TestClassifyBaseNeverAutoApprovable(t *testing.T) {
	rules := []policy.TierRule{
		// Deliberately misconfigured rule; classification must harden it.
		{ID: "bad-base", PathPrefix: "policies/00-base/", TenantScoped: true, Tier: policy.TierBase, Kind: policy.KindPolicy, OwningRole: policy.RoleDev, AutoApprovable: true},
	}
	c, err := Classify("tenant-a/policies/00-base/deny-all.yaml", testRegistry(), rules)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if c.AutoApprovable || c.OwningRole != policy.RoleSecurity {
		t.Fatalf("base tier must not be auto-approvable: %#v", c)
	}
}

func TestClassifySegmentBoundary(t *testing.T) {
	rules := []policy.TierRule{
		{ID: "apps", PathPrefix: "apps", TenantScoped: true, Tier: policy.TierApp, Kind: policy.KindApp, OwningRole: policy.RoleDev, AutoApprovable: true},
	}
	if _, err := Classify("tenant-a/apps-legacy/web.yaml", testRegistry(), rules); err == nil {
		t.Fatalf("prefix must not match across segment boundaries")
	}
	if _, err := Classify("tenant-a/apps/web.yaml", testRegistry(), rules); err != nil {
		t.Fatalf("classify: %v", err)
	}
}
