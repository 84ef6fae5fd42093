package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
)

const maxLastErrorLen = 1024

// Repository owns outbox_events. Every write takes the caller's tx so the
// publisher can claim, send and settle rows atomically.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// ClaimBatch returns up to limit unsent rows, oldest first, skipping rows that
// already used maxAttempts. On Postgres the rows stay locked FOR UPDATE SKIP
// LOCKED until tx ends, so concurrent publishers never pick the same row.
func (r *Repository) ClaimBatch(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	if err := q.Order("created_at, id").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error {
	return r.settle(tx, id, map[string]any{
		"published_at": at.UTC(),
		"last_error":   nil,
	})
}

// RecordFailure leaves the row pending and bumps its attempt count.
func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.settle(tx, id, map[string]any{
		"last_error":    lastError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Retire closes a row that was parked in the DLQ. published_at is set so the
// row is never claimed again; last_error keeps the reason.
func (r *Repository) Retire(tx *gorm.DB, id uuid.UUID, cause error, at time.Time) error {
	return r.settle(tx, id, map[string]any{
		"published_at":  at.UTC(),
		"last_error":    lastError(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

func (r *Repository) settle(tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(updates).Error
}

// Backlog counts rows still waiting to be sent.
func (r *Repository) Backlog(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).Where("published_at IS NULL").Count(&n).Error
	return n, err
}

func lastError(err error) *string {
	if err == nil {
		return nil
	}
	msg := clipMessage(err.Error(), maxLastErrorLen)
	return &msg
}
