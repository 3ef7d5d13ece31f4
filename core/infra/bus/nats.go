// Package bus publishes decision events to NATS for downstream
// collaborators (CI status writers, notification bridges, audit sinks).
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mergegate/mergegate/core/engine/report"
)

const (
	// SubjectPrefix roots every gate subject; the outcome is the leaf so
	// consumers can subscribe to just blocks or just approvals.
	SubjectPrefix = "gate.decision"
)

var (
	errNilBus       = errors.New("nats bus not initialized")
	errNilPayload   = errors.New("nil decision payload")
	errEmptySubject = errors.New("empty subject")
)

// NatsBus is a thin wrapper over a NATS connection that speaks JSON audit
// payloads.
type NatsBus struct {
	nc *nats.Conn
}

// NewNatsBus dials NATS at the provided URL.
func NewNatsBus(url string) (*NatsBus, error) {
	opts := []nats.Option{
		nats.Name("mergegate-bus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("[BUS] disconnected from NATS: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] reconnected to NATS at %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("[BUS] connection closed")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (b *NatsBus) Close() {
	if b != nil && b.nc != nil {
		b.nc.Close()
	}
}

// DecisionSubject constructs the subject for a decision outcome, e.g.
// gate.decision.block.
func DecisionSubject(outcome string) string {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return ""
	}
	return fmt.Sprintf("%s.%s", SubjectPrefix, outcome)
}

// PublishDecision sends a JSON-encoded audit payload on the outcome subject.
func (b *NatsBus) PublishDecision(payload *report.AuditPayload) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if payload == nil {
		return errNilPayload
	}
	subject := DecisionSubject(string(payload.Outcome))
	if subject == "" {
		return errEmptySubject
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.nc.Publish(subject, data)
}

// SubscribeDecisions attaches a subscription that decodes audit payloads
// and invokes the handler. The subject may use wildcards, e.g.
// gate.decision.*.
func (b *NatsBus) SubscribeDecisions(subject, queue string, handler func(*report.AuditPayload) error) error {
	if b == nil || b.nc == nil {
		return errNilBus
	}
	if subject == "" {
		return errEmptySubject
	}
	if handler == nil {
		return errors.New("nil handler")
	}
	cb := func(msg *nats.Msg) {
		var payload report.AuditPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			log.Printf("nats bus: failed to unmarshal payload: %v", err)
			return
		}
		if err := handler(&payload); err != nil {
			log.Printf("nats bus: handler error: %v", err)
		}
	}
	if queue == "" {
		_, err := b.nc.Subscribe(subject, cb)
		return err
	}
	_, err := b.nc.QueueSubscribe(subject, queue, cb)
	return err
}

// IsConnected reports whether the underlying connection is live.
func (b *NatsBus) IsConnected() bool {
	return b != nil && b.nc != nil && b.nc.IsConnected()
}

func (b *NatsBus) Status() string {
	if b == nil || b.nc == nil {
		return "UNKNOWN"
	}
	return b.nc.Status().String()
}

func (b *NatsBus) ConnectedURL() string {
	if b == nil || b.nc == nil {
		return ""
	}
	return b.nc.ConnectedUrl()
}
