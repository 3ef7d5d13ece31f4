package memory

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mergegate/mergegate/core/engine/decide"
	"github.com/mergegate/mergegate/core/policy"
)

func newTestStore(t *testing.T) *RedisStore {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	store, err := NewRedisStore("redis://" + srv.Addr())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestApprovalRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ap := decide.Approval{
		Role:          policy.RoleSecurity,
		ActorID:       "sec-1",
		RecordedAt:    1700000000,
		ChangesetHash: "abc123",
	}
	if err := store.PutApproval(ctx, "cs-1", ap); err != nil {
		t.Fatalf("put approval: %v", err)
	}
	if err := store.PutApproval(ctx, "cs-1", decide.Approval{Role: policy.RoleDev, ActorID: "dev-1", ChangesetHash: "abc123"}); err != nil {
		t.Fatalf("put second approval: %v", err)
	}

	got, err := store.ListApprovals(ctx, "cs-1")
	if err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 approvals, got %d", len(got))
	}
	if got[0] != ap {
		t.Fatalf("unexpected first approval: %#v", got[0])
	}
}

func TestListApprovalsEmpty(t *testing.T) {
	store := newTestStore(t)
	got, err := store.ListApprovals(context.Background(), "cs-none")
	if err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no approvals, got %#v", got)
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"outcome":"block"}`)
	if err := store.PutDecision(ctx, "cs-2", payload); err != nil {
		t.Fatalf("put decision: %v", err)
	}
	got, err := store.GetDecision(ctx, "cs-2")
	if err != nil {
		t.Fatalf("get decision: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("unexpected decision payload: %s", got)
	}
}

func TestGetDecisionNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetDecision(context.Background(), "cs-missing")
	var nf *ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordTTLApplied(t *testing.T) {
	store := newTestStore(t)

	ctx := context.Background()
	if err := store.PutDecision(ctx, "cs-3", []byte("{}")); err != nil {
		t.Fatalf("put decision: %v", err)
	}
	ttl, err := store.client.TTL(ctx, DecisionKey("cs-3")).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > defaultRecordTTL {
		t.Fatalf("decision TTL not set correctly, got %v", ttl)
	}
}
