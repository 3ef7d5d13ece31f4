package bus

import (
	"testing"

	"github.com/mergegate/mergegate/core/engine/report"
)

func TestDecisionSubject(t *testing.T) {
	cases := []struct {
		outcome string
		want    string
	}{
		{"auto_approve", "gate.decision.auto_approve"},
		{"require_approval", "gate.decision.require_approval"},
		{"block", "gate.decision.block"},
		{"  block  ", "gate.decision.block"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := DecisionSubject(c.outcome); got != c.want {
			t.Errorf("DecisionSubject(%q) = %q, want %q", c.outcome, got, c.want)
		}
	}
}

func TestNilBusOperations(t *testing.T) {
	var b *NatsBus
	if err := b.PublishDecision(&report.AuditPayload{Outcome: "block"}); err != errNilBus {
		t.Errorf("PublishDecision on nil bus: got %v, want %v", err, errNilBus)
	}
	if err := b.SubscribeDecisions("gate.decision.*", "", func(*report.AuditPayload) error { return nil }); err != errNilBus {
		t.Errorf("SubscribeDecisions on nil bus: got %v, want %v", err, errNilBus)
	}
	if b.IsConnected() {
		t.Error("nil bus should not report connected")
	}
	b.Close()
}

func TestPublishDecisionValidation(t *testing.T) {
	b := &NatsBus{}
	if err := b.PublishDecision(nil); err != errNilBus {
		t.Errorf("empty bus should fail closed: got %v", err)
	}
}
