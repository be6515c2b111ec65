package outbox

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/evcharge-backend/pkg/db/models"
	"github.com/angelmondragon/evcharge-backend/pkg/enums"
)

const maxDeadLetterMessage = 1024

// DLQRepository stores outbox events the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx records a dead letter inside the publisher's claim transaction.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.FailedAt
	}
	if entry.ErrorMessage != nil {
		clipped := clipMessage(*entry.ErrorMessage, maxDeadLetterMessage)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// DeadLetterCounts groups dead letters by event type and reason.
type DeadLetterCounts map[enums.OutboxEventType]map[enums.OutboxDLQErrorReason]int64

// Total sums every bucket.
func (c DeadLetterCounts) Total() int64 {
	var total int64
	for _, reasons := range c {
		for _, n := range reasons {
			total += n
		}
	}
	return total
}

// CountSince tallies dead letters that failed at or after since; a zero since counts all.
func (r *DLQRepository) CountSince(ctx context.Context, since time.Time) (DeadLetterCounts, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []struct {
		EventType   enums.OutboxEventType
		ErrorReason enums.OutboxDLQErrorReason
		Total       int64
	}
	q := r.db.WithContext(ctx).
		Model(&models.OutboxDLQ{}).
		Select("event_type, error_reason, COUNT(*) AS total").
		Group("event_type, error_reason")
	if !since.IsZero() {
		q = q.Where("failed_at >= ?", since.UTC())
	}
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := DeadLetterCounts{}
	for _, row := range rows {
		if counts[row.EventType] == nil {
			counts[row.EventType] = map[enums.OutboxDLQErrorReason]int64{}
		}
		counts[row.EventType][row.ErrorReason] = row.Total
	}
	return counts, nil
}

// DeleteFailedBefore drops dead letters that failed before cutoff.
func (r *DLQRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("failed_at < ?", cutoff.UTC()).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

// clipMessage cuts to at most limit bytes without splitting a rune.
func clipMessage(msg string, limit int) string {
	if len(msg) <= limit {
		return msg
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
