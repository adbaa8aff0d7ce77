// Package events fans committed audit events out to downstream compliance consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"procurement/models"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is followed by the event type, e.g. procurement.audit.bid_opened.
const SubjectPrefix = "procurement.audit."

// Publisher is called only after the transaction that produced the events committed.
type Publisher interface {
	Publish(ctx context.Context, ev models.AuditEvent) error
	Close()
}

// Subject returns the NATS subject for an event.
func Subject(ev models.AuditEvent) string {
	return SubjectPrefix + string(ev.EventType)
}

type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url, nats.Name("procurement-audit"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSPublisher{conn: conn}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, ev models.AuditEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	if err := p.conn.Publish(Subject(ev), data); err != nil {
		return fmt.Errorf("publish audit event %s: %w", ev.ID, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}

// Nop discards events; used when no NATS URL is configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.AuditEvent) error { return nil }
func (Nop) Close()                                           {}
