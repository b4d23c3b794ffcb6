package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/arithgrey/service-whatsapp/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// MessageType represents the database ENUM type for message type.
type MessageType string

// Message type constants.
const (
	TypeText        MessageType = "text"
	TypeTemplate    MessageType = "template"
	TypeMedia       MessageType = "media"
	TypeInteractive MessageType = "interactive"
)

// MessageStatus represents the database ENUM type for delivery status.
type MessageStatus string

// Message lifecycle states. pending moves to sent, failed or cancelled on
// the synchronous dispatch path; sent moves to delivered and delivered to
// read via provider webhook callbacks.
const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// ErrInvalidTransition is returned when a status update is rejected because
// the record is not in the expected source state.
var ErrInvalidTransition = errors.New("message: invalid status transition")

// JSONMap stores arbitrary metadata as a JSON column.
type JSONMap map[string]string

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("message: cannot scan %T into JSONMap", value)
	}
}

// Message is the GORM model for the whatsapp_messages table.
type Message struct {
	ID                int64         `gorm:"primaryKey;column:id"`
	PhoneNumber       string        `gorm:"column:phone_number;size:20;not null;index"`
	MessageType       MessageType   `gorm:"column:message_type;type:enum('text','template','media','interactive');not null;default:'text'"`
	Content           string        `gorm:"column:content;type:text"`
	TemplateID        *int64        `gorm:"column:template_id;index"`
	Status            MessageStatus `gorm:"column:status;type:enum('pending','sent','delivered','read','failed','cancelled');not null;default:'pending';index"`
	ProviderMessageID string        `gorm:"column:provider_message_id;size:128;index"`
	ErrorMessage      string        `gorm:"column:error_message;type:text"`
	OrderID           string        `gorm:"column:order_id;size:64;index"`
	Metadata          JSONMap       `gorm:"column:metadata;type:json"`
	ScheduledAt       *time.Time    `gorm:"column:scheduled_at;index"`
	CreatedAt         time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time     `gorm:"column:updated_at;autoUpdateTime"`
	SentAt            *time.Time    `gorm:"column:sent_at"`
	DeliveredAt       *time.Time    `gorm:"column:delivered_at"`
	ReadAt            *time.Time    `gorm:"column:read_at"`
}

// TableName sets the table name for GORM.
func (Message) TableName() string {
	return "whatsapp_messages"
}

// MessageStats aggregates message counts for the stats endpoint.
type MessageStats struct {
	Total       int64            `json:"total"`
	ByStatus    map[string]int64 `json:"by_status"`
	ByType      map[string]int64 `json:"by_type"`
	SuccessRate float64          `json:"success_rate"`
}

// MessageRepo implements biz.MessageRepo.
// Following Kratos v2 DDD architecture, the interface is defined in the biz
// layer; status transitions are enforced with guarded UPDATEs so concurrent
// dispatchers and webhook callbacks cannot double-apply them.
type MessageRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewMessageRepo creates a new message repository.
func NewMessageRepo(db *gorm.DB, logger log.Logger) *MessageRepo {
	return &MessageRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// Create persists a new message record.
func (r *MessageRepo) Create(ctx context.Context, msg *Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return pkgerrors.ClassifyDBError(fmt.Errorf("failed to create message: %w", err))
	}
	return nil
}

// GetByID retrieves a message by primary key.
func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*Message, error) {
	var msg Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(fmt.Errorf("failed to get message %d: %w", id, err))
	}
	return &msg, nil
}

// MarkSent transitions pending → sent and records the provider message id.
func (r *MessageRepo) MarkSent(ctx context.Context, id int64, providerMessageID string) error {
	now := time.Now()
	return r.transition(ctx,
		r.db.WithContext(ctx).
			Model(&Message{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]interface{}{
				"status":              StatusSent,
				"provider_message_id": providerMessageID,
				"sent_at":             now,
				"updated_at":          now,
			}),
		id)
}

// MarkFailed transitions pending → failed with the provider error detail.
func (r *MessageRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	return r.transition(ctx,
		r.db.WithContext(ctx).
			Model(&Message{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Updates(map[string]interface{}{
				"status":        StatusFailed,
				"error_message": errorMessage,
				"updated_at":    time.Now(),
			}),
		id)
}

// MarkCancelled transitions pending → cancelled. Cancellation of a message
// in any other state is an invalid transition.
func (r *MessageRepo) MarkCancelled(ctx context.Context, id int64) error {
	return r.transition(ctx,
		r.db.WithContext(ctx).
			Model(&Message{}).
			Where("id = ? AND status = ?", id, StatusPending).
			Update("status", StatusCancelled),
		id)
}

// MarkDeliveredByProviderID transitions sent → delivered, keyed by the
// provider-assigned message id from a webhook callback.
func (r *MessageRepo) MarkDeliveredByProviderID(ctx context.Context, providerMessageID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Message{}).
		Where("provider_message_id = ? AND status = ?", providerMessageID, StatusSent).
		Updates(map[string]interface{}{
			"status":       StatusDelivered,
			"delivered_at": at,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return pkgerrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: delivered callback for %s", ErrInvalidTransition, providerMessageID)
	}
	return nil
}

// MarkReadByProviderID transitions delivered → read. Provider callbacks can
// arrive out of order, so a read callback is also accepted straight from
// sent.
func (r *MessageRepo) MarkReadByProviderID(ctx context.Context, providerMessageID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&Message{}).
		Where("provider_message_id = ? AND status IN ?", providerMessageID, []MessageStatus{StatusSent, StatusDelivered}).
		Updates(map[string]interface{}{
			"status":     StatusRead,
			"read_at":    at,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return pkgerrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: read callback for %s", ErrInvalidTransition, providerMessageID)
	}
	return nil
}

// MarkFailedByProviderID records an asynchronous provider failure for an
// already-sent message.
func (r *MessageRepo) MarkFailedByProviderID(ctx context.Context, providerMessageID, errorMessage string) error {
	result := r.db.WithContext(ctx).
		Model(&Message{}).
		Where("provider_message_id = ? AND status = ?", providerMessageID, StatusSent).
		Updates(map[string]interface{}{
			"status":        StatusFailed,
			"error_message": errorMessage,
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return pkgerrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: failed callback for %s", ErrInvalidTransition, providerMessageID)
	}
	return nil
}

// ListDueScheduled returns pending messages whose scheduled_at has passed,
// oldest first, for the cron dispatcher.
func (r *MessageRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*Message, error) {
	var msgs []*Message
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", StatusPending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, pkgerrors.ClassifyDBError(fmt.Errorf("failed to list due scheduled messages: %w", err))
	}
	return msgs, nil
}

// Stats aggregates counts by status and type plus the success rate
// (sent+delivered+read over all terminal-or-sent messages).
func (r *MessageRepo) Stats(ctx context.Context) (*MessageStats, error) {
	stats := &MessageStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	type row struct {
		Key   string
		Count int64
	}

	var byStatus []row
	if err := r.db.WithContext(ctx).
		Model(&Message{}).
		Select("status AS `key`, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(fmt.Errorf("failed to aggregate by status: %w", err))
	}
	for _, r := range byStatus {
		stats.ByStatus[r.Key] = r.Count
		stats.Total += r.Count
	}

	var byType []row
	if err := r.db.WithContext(ctx).
		Model(&Message{}).
		Select("message_type AS `key`, COUNT(*) AS count").
		Group("message_type").
		Scan(&byType).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(fmt.Errorf("failed to aggregate by type: %w", err))
	}
	for _, r := range byType {
		stats.ByType[r.Key] = r.Count
	}

	succeeded := stats.ByStatus[string(StatusSent)] +
		stats.ByStatus[string(StatusDelivered)] +
		stats.ByStatus[string(StatusRead)]
	attempted := succeeded + stats.ByStatus[string(StatusFailed)]
	if attempted > 0 {
		stats.SuccessRate = float64(succeeded) / float64(attempted)
	}

	return stats, nil
}

// transition finalizes a guarded status UPDATE: zero affected rows means
// either a missing record or a state conflict.
func (r *MessageRepo) transition(ctx context.Context, result *gorm.DB, id int64) error {
	if result.Error != nil {
		return pkgerrors.ClassifyDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Count(&count).Error; err == nil && count == 0 {
			return pkgerrors.ClassifyDBError(gorm.ErrRecordNotFound)
		}
		return fmt.Errorf("%w: message %d", ErrInvalidTransition, id)
	}
	return nil
}
