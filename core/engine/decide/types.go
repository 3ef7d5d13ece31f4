// Package decide runs per-file evaluation and folds the results into one
// merge decision using a most-restrictive-wins reduction.
package decide

import (
	"github.com/mergegate/mergegate/core/engine/classify"
	"github.com/mergegate/mergegate/core/engine/enforce"
	"github.com/mergegate/mergegate/core/engine/manifest"
	"github.com/mergegate/mergegate/core/policy"
)

// ChangeKind mirrors the change type reported by the source-control host.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeRenamed  ChangeKind = "renamed"
)

// ChangedFile is one entry of a changeset snapshot. Content is only needed
// for documents that undergo structural validation.
type ChangedFile struct {
	Path    string     `json:"path"`
	Kind    ChangeKind `json:"kind"`
	Content []byte     `json:"content,omitempty"`
}

// Approval is a recorded sign-off tied to a changeset. The changeset hash
// captured at approval time pins the approval to the exact content it was
// granted for; new commits change the hash and void the approval.
type Approval struct {
	Role          policy.Role `json:"role"`
	ActorID       string      `json:"actor_id"`
	RecordedAt    int64       `json:"recorded_at"`
	ChangesetHash string      `json:"changeset_hash"`
}

// Outcome is the terminal merge decision for a changeset.
type Outcome string

const (
	OutcomeAutoApprove     Outcome = "auto_approve"
	OutcomeRequireApproval Outcome = "require_approval"
	OutcomeBlock           Outcome = "block"
)

// Reason is one human-readable line of the decision rationale.
type Reason struct {
	Path    string `json:"path,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Decision is the immutable terminal artifact of a run.
type Decision struct {
	RunID         string      `json:"run_id,omitempty"`
	ChangesetID   string      `json:"changeset_id"`
	ChangesetHash string      `json:"changeset_hash"`
	Outcome       Outcome     `json:"outcome"`
	RequiredRole  policy.Role `json:"required_role,omitempty"`
	Reasons       []Reason    `json:"reasons"`
	Warnings      []Reason    `json:"warnings,omitempty"`
	EvaluatedAt   int64       `json:"evaluated_at,omitempty"`
}

// FileResult is the joined per-file outcome of classification, validation,
// and enforcement. Exactly one of Classification or ClassErr is meaningful.
type FileResult struct {
	File           ChangedFile
	Classification classify.Classification
	ClassErr       *classify.Error
	Findings       []manifest.Finding
	Verdict        enforce.Verdict
}

// Input is one changeset snapshot with everything a run consumes. All
// fields are supplied up front; the engine performs no I/O of its own.
type Input struct {
	ChangesetID string        `json:"changeset_id"`
	Actor       enforce.Actor `json:"actor"`
	Files       []ChangedFile `json:"files"`
	Approvals   []Approval    `json:"approvals"`
}

// Reason codes for conditions the engine itself raises.
const (
	ReasonEngineFault       = "EngineFault"
	ReasonApprovalRequired  = "ApprovalRequired"
	ReasonApprovalSatisfied = "ApprovalSatisfied"
	ReasonApprovalStale     = "ApprovalStale"
	ReasonReviewFallback    = "ReviewRequired"
	ReasonAutoApproved      = "AutoApproved"
)
