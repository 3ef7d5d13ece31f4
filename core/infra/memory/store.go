// Package memory persists approvals and decision records between runs.
package memory

import (
	"context"

	"github.com/mergegate/mergegate/core/engine/decide"
)

// Store is the persistence boundary of the gate. The engine itself never
// touches it; the gateway loads approvals before a run and saves the
// decision afterwards.
type Store interface {
	PutApproval(ctx context.Context, changesetID string, ap decide.Approval) error
	ListApprovals(ctx context.Context, changesetID string) ([]decide.Approval, error)
	PutDecision(ctx context.Context, changesetID string, payload []byte) error
	GetDecision(ctx context.Context, changesetID string) ([]byte, error)
	Close() error
}

// ErrNotFound is returned when no decision exists for a changeset.
type ErrNotFound struct{ ChangesetID string }

func (e *ErrNotFound) Error() string {
	return "no decision recorded for changeset " + e.ChangesetID
}
