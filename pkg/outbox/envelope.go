package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/pkg/enums"
)

const envelopeVersion = 1

// ErrEmptyData is returned by DecodeEnvelope when the data member is absent or null.
var ErrEmptyData = errors.New("envelope carries no data")

// Actor identifies who caused the event. System jobs leave it nil.
type Actor struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// AggregateRef points at the row the event describes.
type AggregateRef struct {
	Type enums.OutboxAggregateType `json:"type"`
	ID   uuid.UUID                 `json:"id"`
}

// Envelope is stored in outbox_events.payload and forwarded to consumers
// byte for byte.
type Envelope struct {
	Version    int                   `json:"version"`
	ID         uuid.UUID             `json:"eventId"`
	Type       enums.OutboxEventType `json:"type"`
	Aggregate  AggregateRef          `json:"aggregate"`
	Producer   string                `json:"producer,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
	Actor      *Actor                `json:"actor,omitempty"`
	Data       json.RawMessage       `json:"data"`
}

// DecodeEnvelope parses a stored payload. The envelope is returned alongside
// ErrEmptyData so callers can still log its identifiers.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return env, ErrEmptyData
	}
	return env, nil
}
