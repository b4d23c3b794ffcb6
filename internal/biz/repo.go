package biz

import (
	"context"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/data"
	"github.com/arithgrey/service-whatsapp/internal/model"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"
)

// MessageRepo defines the message store interface.
// Following Kratos v2 DDD architecture, interfaces are defined in the biz
// layer; the implementation lives in data.MessageRepo.
type MessageRepo interface {
	Create(ctx context.Context, msg *data.Message) error
	GetByID(ctx context.Context, id int64) (*data.Message, error)
	MarkSent(ctx context.Context, id int64, providerMessageID string) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	MarkCancelled(ctx context.Context, id int64) error
	MarkDeliveredByProviderID(ctx context.Context, providerMessageID string, at time.Time) error
	MarkReadByProviderID(ctx context.Context, providerMessageID string, at time.Time) error
	MarkFailedByProviderID(ctx context.Context, providerMessageID, errorMessage string) error
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*data.Message, error)
	Stats(ctx context.Context) (*data.MessageStats, error)
}

// TemplateRepo defines the template store interface. Lookups only yield
// active templates; inactive ones are NotFound for dispatch purposes.
type TemplateRepo interface {
	GetActiveByName(ctx context.Context, name string) (*data.Template, error)
	GetActiveByCategory(ctx context.Context, category string) (*data.Template, error)
	SeedDefaultTemplates(ctx context.Context) (int, error)
}

// ProviderClient is the outbound messaging provider. The dispatch path
// treats it as an opaque unit of work returning a provider message id or an
// error.
type ProviderClient interface {
	SendMessage(ctx context.Context, payload *whatsapp.MessagePayload) (string, error)
	Configured() bool
}

// AlertService receives circuit breaker transition notifications.
type AlertService interface {
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error
}
