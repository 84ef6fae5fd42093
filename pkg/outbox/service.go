package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
)

var errTxRequired = errors.New("outbox: transaction required")

// DomainEvent is what engine services hand to Emit. AggregateType may be left
// blank; it is derived from EventType.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *Actor
	Data          any
	OccurredAt    time.Time
}

// Emitter is the write side engine services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

type Option func(*Service)

// WithProducer stamps every envelope with the emitting process name.
func WithProducer(name string) Option {
	return func(s *Service) { s.producer = name }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(next func() uuid.UUID) Option {
	return func(s *Service) { s.newID = next }
}

type Service struct {
	repo     *Repository
	logg     *logger.Logger
	producer string
	now      func() time.Time
	newID    func() uuid.UUID
}

var _ Emitter = (*Service)(nil)

func NewService(repo *Repository, logg *logger.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, logg: logg, now: time.Now, newID: uuid.New}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Emit stores the event in the caller's transaction so it commits or rolls
// back together with the state change it describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errTxRequired
	}
	env, err := s.envelope(event)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            env.ID,
		EventType:     env.Type,
		AggregateType: env.Aggregate.Type,
		AggregateID:   env.Aggregate.ID,
		Payload:       raw,
	}); err != nil {
		return fmt.Errorf("queue %s: %w", env.Type, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":     env.ID.String(),
			"event_type":   env.Type,
			"aggregate_id": env.Aggregate.ID.String(),
		}), "outbox.queued")
	}
	return nil
}

func (s *Service) envelope(event DomainEvent) (Envelope, error) {
	owner := event.EventType.Aggregate()
	if owner == "" {
		return Envelope{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	}
	if event.AggregateType != "" && event.AggregateType != owner {
		return Envelope{}, fmt.Errorf("%s belongs to %s, not %s", event.EventType, owner, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return Envelope{}, fmt.Errorf("%s: aggregate id required", event.EventType)
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	at := event.OccurredAt
	if at.IsZero() {
		at = s.now()
	}
	return Envelope{
		Version:    envelopeVersion,
		ID:         s.newID(),
		Type:       event.EventType,
		Aggregate:  AggregateRef{Type: owner, ID: event.AggregateID},
		Producer:   s.producer,
		OccurredAt: at.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}, nil
}
