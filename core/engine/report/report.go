// Package report renders decisions into the artifacts the PR surface needs.
package report

import (
	"fmt"
	"strings"

	"github.com/mergegate/mergegate/core/engine/decide"
	"github.com/mergegate/mergegate/core/policy"
)

// Labels applied to the pull request per outcome.
const (
	LabelAutoApproved = "auto-approved"
	LabelNeedsReview  = "needs-security-review"
	LabelBlocked      = "blocked:base-policy"
)

// StatusCheckName is the required status check the gate reports under.
const StatusCheckName = "mergegate/policy-gate"

// StatusCheck is one required-check result for the source-control host.
type StatusCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// AuditPayload is the machine-readable record persisted outside the engine.
type AuditPayload struct {
	RunID         string          `json:"run_id"`
	ChangesetID   string          `json:"changeset_id"`
	ChangesetHash string          `json:"changeset_hash"`
	Outcome       decide.Outcome  `json:"outcome"`
	RequiredRole  policy.Role     `json:"required_role,omitempty"`
	Reasons       []decide.Reason `json:"reasons"`
	Warnings      []decide.Reason `json:"warnings,omitempty"`
	EvaluatedAt   int64           `json:"evaluated_at"`
}

// Report is everything the calling collaborator emits to the PR surface.
// Building it performs no I/O; emission is the caller's concern.
type Report struct {
	Labels       []string      `json:"labels"`
	StatusChecks []StatusCheck `json:"status_checks"`
	CommentBody  string        `json:"comment_body"`
	Payload      AuditPayload  `json:"payload"`
}

// Render transforms a decision into its report. Pure.
func Render(d decide.Decision) Report {
	return Report{
		Labels:       labelsFor(d),
		StatusChecks: []StatusCheck{{Name: StatusCheckName, Passed: d.Outcome == decide.OutcomeAutoApprove}},
		CommentBody:  commentBody(d),
		Payload: AuditPayload{
			RunID:         d.RunID,
			ChangesetID:   d.ChangesetID,
			ChangesetHash: d.ChangesetHash,
			Outcome:       d.Outcome,
			RequiredRole:  d.RequiredRole,
			Reasons:       d.Reasons,
			Warnings:      d.Warnings,
			EvaluatedAt:   d.EvaluatedAt,
		},
	}
}

func labelsFor(d decide.Decision) []string {
	switch d.Outcome {
	case decide.OutcomeAutoApprove:
		return []string{LabelAutoApproved}
	case decide.OutcomeRequireApproval:
		return []string{LabelNeedsReview}
	default:
		return []string{LabelBlocked}
	}
}

func commentBody(d decide.Decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Policy gate: %s\n\n", headline(d))
	if len(d.Reasons) > 0 {
		b.WriteString("| Path | Code | Detail |\n|---|---|---|\n")
		for _, r := range d.Reasons {
			fmt.Fprintf(&b, "| %s | `%s` | %s |\n", pathCell(r.Path), r.Code, r.Message)
		}
	}
	if len(d.Warnings) > 0 {
		b.WriteString("\n<details><summary>Warnings</summary>\n\n")
		for _, w := range d.Warnings {
			fmt.Fprintf(&b, "- `%s` %s: %s\n", w.Code, w.Path, w.Message)
		}
		b.WriteString("\n</details>\n")
	}
	fmt.Fprintf(&b, "\n<sub>run `%s` · changeset `%s`</sub>\n", d.RunID, d.ChangesetID)
	return b.String()
}

func headline(d decide.Decision) string {
	switch d.Outcome {
	case decide.OutcomeAutoApprove:
		return "auto-approved"
	case decide.OutcomeRequireApproval:
		return fmt.Sprintf("approval required from role `%s`", d.RequiredRole)
	default:
		return "blocked"
	}
}

func pathCell(path string) string {
	if path == "" {
		return "-"
	}
	return "`" + path + "`"
}
