// Package audit keeps the append-only, hash-stamped procurement event log.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"procurement/models"

	"github.com/google/uuid"
)

// Appender persists a finished event. Implementations must never update or delete rows.
type Appender interface {
	InsertAuditEvent(ctx context.Context, ev *models.AuditEvent) error
}

// Entry is what a caller wants recorded. ActorRole comes from the authenticated context.
type Entry struct {
	ProcurementID string
	BidID         *string
	EventType     models.AuditEventType
	Description   string
	ActorID       string
	ActorRole     string
	Payload       models.Payload
	At            time.Time
}

type Ledger struct {
	now func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

// Record stamps e with a timestamp and content hash and appends it through a.
// Call it with the same transaction that performed the state change.
func (l *Ledger) Record(ctx context.Context, a Appender, e Entry) (*models.AuditEvent, error) {
	at := e.At
	if at.IsZero() {
		at = l.now()
	}
	payload := e.Payload
	if payload == nil {
		payload = models.Payload{}
	}
	ev := &models.AuditEvent{
		ID:            uuid.NewString(),
		ProcurementID: e.ProcurementID,
		BidID:         e.BidID,
		EventType:     e.EventType,
		Description:   e.Description,
		ActorID:       e.ActorID,
		ActorRole:     e.ActorRole,
		Payload:       payload,
		CreatedAt:     Timestamp(at),
	}
	hash, err := ComputeHash(ev)
	if err != nil {
		return nil, fmt.Errorf("hash audit event: %w", err)
	}
	ev.Hash = hash
	if err := a.InsertAuditEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// Timestamp normalizes t to the precision the store keeps, so a hash computed
// before insert matches one recomputed after a read.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

type hashInput struct {
	ProcurementID string                `json:"procurement_id"`
	BidID         *string               `json:"bid_id"`
	EventType     models.AuditEventType `json:"event_type"`
	ActorID       string                `json:"actor_id"`
	Payload       models.Payload        `json:"payload"`
	Timestamp     string                `json:"timestamp"`
}

// ComputeHash returns the hex SHA-256 of the event's canonical form.
// Description and actor role are not covered.
func ComputeHash(ev *models.AuditEvent) (string, error) {
	b, err := json.Marshal(hashInput{
		ProcurementID: ev.ProcurementID,
		BidID:         ev.BidID,
		EventType:     ev.EventType,
		ActorID:       ev.ActorID,
		Payload:       ev.Payload,
		Timestamp:     Timestamp(ev.CreatedAt).Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Mismatch describes a stored event whose hash no longer matches its content.
type Mismatch struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	StoredHash string `json:"stored_hash"`
	Computed   string `json:"computed_hash"`
}

// Report is the outcome of verifying a trail.
type Report struct {
	ProcurementID string     `json:"procurement_id"`
	Checked       int        `json:"checked"`
	Intact        bool       `json:"intact"`
	Mismatches    []Mismatch `json:"mismatches"`
}

// Verify recomputes every hash in events.
func Verify(procurementID string, events []models.AuditEvent) Report {
	r := Report{ProcurementID: procurementID, Checked: len(events), Mismatches: []Mismatch{}}
	for i := range events {
		ev := &events[i]
		computed, err := ComputeHash(ev)
		if err != nil || computed != ev.Hash {
			r.Mismatches = append(r.Mismatches, Mismatch{
				EventID:    ev.ID,
				EventType:  string(ev.EventType),
				StoredHash: ev.Hash,
				Computed:   computed,
			})
		}
	}
	r.Intact = len(r.Mismatches) == 0
	return r
}
