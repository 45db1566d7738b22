package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/storefront-orderflow/internal/domain"
)

// Envelope is the wire format of every message on the events topic.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func NewEnvelope(event domain.Event, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event.EventType(), err)
	}
	return Envelope{
		EventID:    uuid.New().String(),
		EventType:  event.EventType(),
		OccurredAt: now.UTC(),
		Payload:    payload,
	}, nil
}

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventType == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event_type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}
