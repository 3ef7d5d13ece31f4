package decide

import (
	"fmt"

	"github.com/mergegate/mergegate/core/engine/manifest"
	"github.com/mergegate/mergegate/core/policy"
)

// Aggregate folds per-file results into one decision. Pure and
// deterministic: identical inputs yield an identical decision. The rules run
// in fixed precedence order and the first matching rule sets the outcome,
// but every fired rule still contributes its reasons so the audit record
// shows all simultaneous grounds.
func Aggregate(results []FileResult, approvals []Approval, cfg policy.ApprovalConfig, changesetHash string) Decision {
	d := Decision{
		ChangesetHash: changesetHash,
		Reasons:       []Reason{},
	}

	denies := denyReasons(results)
	errorFindings, warnings := findingReasons(results)
	missing, approvalNotes := approvalGaps(results, approvals, changesetHash)
	d.Warnings = warnings

	// 1. Any authorization deny or unclassifiable path blocks outright.
	// 2. Any error-severity finding blocks.
	// 3. A required approval with no matching fresh record demands review.
	// 4. Everything auto-approvable (or approved) with no blocking warning
	//    merges automatically.
	// 5. Anything else falls back to the default reviewer.
	switch {
	case len(denies) > 0:
		d.Outcome = OutcomeBlock
		d.Reasons = append(d.Reasons, denies...)
		d.Reasons = append(d.Reasons, errorFindings...)
	case len(errorFindings) > 0:
		d.Outcome = OutcomeBlock
		d.Reasons = append(d.Reasons, errorFindings...)
	case len(missing) > 0:
		d.Outcome = OutcomeRequireApproval
		d.RequiredRole = missing[0].role
		for _, m := range missing {
			d.Reasons = append(d.Reasons, m.reason)
		}
	case autoApprovable(results, approvals, changesetHash) && !hasBlockingWarning(warnings, cfg):
		d.Outcome = OutcomeAutoApprove
		d.Reasons = append(d.Reasons, approvalNotes...)
		d.Reasons = append(d.Reasons, Reason{
			Code:    ReasonAutoApproved,
			Message: "all changed paths are auto-approvable and carry no blocking findings",
		})
	default:
		d.Outcome = OutcomeRequireApproval
		d.RequiredRole = cfg.DefaultReviewerRole
		d.Reasons = append(d.Reasons, Reason{
			Code:    ReasonReviewFallback,
			Message: fmt.Sprintf("changeset is not auto-approvable; review by role %q required", cfg.DefaultReviewerRole),
		})
	}
	return d
}

func denyReasons(results []FileResult) []Reason {
	var out []Reason
	for _, r := range results {
		if r.ClassErr != nil {
			out = append(out, Reason{
				Path:    r.File.Path,
				Code:    string(r.ClassErr.Code),
				Message: fmt.Sprintf("unrecognized path: %s", r.ClassErr.Error()),
			})
			continue
		}
		if !r.Verdict.Permitted {
			out = append(out, Reason{
				Path:    r.File.Path,
				Code:    string(r.Verdict.DenyCode),
				Message: r.Verdict.DenyDetail,
			})
		}
	}
	return out
}

func findingReasons(results []FileResult) (errors, warnings []Reason) {
	for _, r := range results {
		for _, f := range r.Findings {
			reason := Reason{Path: f.Path, Code: string(f.Code), Message: f.Message}
			if f.Severity == manifest.SeverityError {
				errors = append(errors, reason)
			} else {
				warnings = append(warnings, reason)
			}
		}
	}
	return errors, warnings
}

type missingApproval struct {
	role   policy.Role
	reason Reason
}

// approvalGaps returns the approvals still outstanding, plus notes for the
// ones already satisfied. An approval counts only when its recorded role
// matches and its changeset hash equals the current one: pushed commits
// invalidate prior approvals.
func approvalGaps(results []FileResult, approvals []Approval, changesetHash string) ([]missingApproval, []Reason) {
	var missing []missingApproval
	var notes []Reason
	for _, r := range results {
		role := r.Verdict.RequiresApproval
		if r.ClassErr != nil || !r.Verdict.Permitted || role == "" {
			continue
		}
		if ap, ok := matchApproval(approvals, role, changesetHash); ok {
			notes = append(notes, Reason{
				Path:    r.File.Path,
				Code:    ReasonApprovalSatisfied,
				Message: fmt.Sprintf("approval by %q (role %s) covers the current changeset", ap.ActorID, ap.Role),
			})
			continue
		}
		code := ReasonApprovalRequired
		msg := fmt.Sprintf("requires a recorded approval from role %q", role)
		if hasStaleApproval(approvals, role, changesetHash) {
			code = ReasonApprovalStale
			msg = fmt.Sprintf("approval from role %q was recorded for an earlier revision; re-approval required", role)
		}
		missing = append(missing, missingApproval{
			role:   role,
			reason: Reason{Path: r.File.Path, Code: code, Message: msg},
		})
	}
	return missing, notes
}

func matchApproval(approvals []Approval, role policy.Role, changesetHash string) (Approval, bool) {
	for _, ap := range approvals {
		if ap.Role == role && ap.ChangesetHash == changesetHash {
			return ap, true
		}
	}
	return Approval{}, false
}

func hasStaleApproval(approvals []Approval, role policy.Role, changesetHash string) bool {
	for _, ap := range approvals {
		if ap.Role == role && ap.ChangesetHash != changesetHash {
			return true
		}
	}
	return false
}

// autoApprovable holds when every file either carries an auto-approvable
// classification or has its required approval satisfied for the current
// changeset hash.
func autoApprovable(results []FileResult, approvals []Approval, changesetHash string) bool {
	for _, r := range results {
		if r.ClassErr != nil || !r.Verdict.Permitted {
			return false
		}
		if r.Classification.AutoApprovable {
			continue
		}
		if role := r.Verdict.RequiresApproval; role != "" {
			if _, ok := matchApproval(approvals, role, changesetHash); ok {
				continue
			}
		}
		return false
	}
	return len(results) > 0
}

func hasBlockingWarning(warnings []Reason, cfg policy.ApprovalConfig) bool {
	if len(cfg.BlockingWarningCodes) == 0 {
		return false
	}
	blocked := map[string]bool{}
	for _, code := range cfg.BlockingWarningCodes {
		blocked[code] = true
	}
	for _, w := range warnings {
		if blocked[w.Code] {
			return true
		}
	}
	return false
}
