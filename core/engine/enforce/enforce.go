// Package enforce decides whether an actor may touch a classified path.
package enforce

import (
	"fmt"

	"github.com/mergegate/mergegate/core/engine/classify"
	"github.com/mergegate/mergegate/core/policy"
)

// DenyCode identifies why an edit was refused.
type DenyCode string

const (
	CodeProtectedTierModification DenyCode = "ProtectedTierModification"
	CodeInsufficientRole          DenyCode = "InsufficientRole"
)

// Actor is the already-authenticated identity proposing the change. The
// engine treats it as ground truth; identity resolution is external.
type Actor struct {
	ID    string        `json:"id"`
	Roles []policy.Role `json:"roles"`
}

// HasRole reports whether the actor carries the role.
func (a Actor) HasRole(role policy.Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verdict is the outcome of authorizing one classified edit. A deny always
// carries a code; it is never a bare boolean.
type Verdict struct {
	Permitted        bool
	DenyCode         DenyCode
	DenyDetail       string
	RequiresApproval policy.Role
}

// Authorize applies the tier protection rules to one classification.
// The override flag is the security break-glass path for base-tier edits;
// the normal request flow never sets it. Verdicts are evaluated fresh on
// every run; a previous run's verdict is never reused, because the
// changed-file set can differ between reruns of the same changeset.
func Authorize(c classify.Classification, actor Actor, cfg policy.ApprovalConfig, override bool) Verdict {
	switch c.Tier {
	case policy.TierBase:
		if override && actor.HasRole(policy.RoleSecurity) {
			return Verdict{Permitted: true}
		}
		return Verdict{
			Permitted:  false,
			DenyCode:   CodeProtectedTierModification,
			DenyDetail: fmt.Sprintf("base-tier path %s may not be modified through the normal flow", c.Path),
		}
	case policy.TierExternal:
		// The proposal itself is permitted; the merge additionally needs a
		// recorded approval from the tier's reviewer role.
		return Verdict{Permitted: true, RequiresApproval: cfg.ReviewerFor(policy.TierExternal)}
	case policy.TierInternal, policy.TierApp:
		if actor.HasRole(policy.RoleDev) || actor.HasRole(policy.RoleSecurity) {
			return Verdict{Permitted: true}
		}
		return Verdict{
			Permitted:  false,
			DenyCode:   CodeInsufficientRole,
			DenyDetail: fmt.Sprintf("actor %q holds none of the roles permitted to edit %s", actor.ID, c.Path),
		}
	default:
		// Unknown tier means the classification itself is suspect; refuse.
		return Verdict{
			Permitted:  false,
			DenyCode:   CodeProtectedTierModification,
			DenyDetail: fmt.Sprintf("path %s has unrecognized tier %q", c.Path, c.Tier),
		}
	}
}
