package data

import (
	"context"
	"fmt"

	pkgerrors "github.com/arithgrey/service-whatsapp/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// defaultTemplates are the order-lifecycle templates seeded on first
// deployment. Content follows the Spanish-language templates the business
// already has approved with the provider.
var defaultTemplates = []Template{
	{
		Name:     "order_confirmation",
		Category: CategoryOrderConfirmation,
		Language: "es",
		Content: "¡Hola {{customer_name}}! Tu pedido #{{order_id}} ha sido confirmado exitosamente. " +
			"Total: {{order_total}}. Fecha: {{order_date}}. Dirección de entrega: {{delivery_address}}. " +
			"Tiempo estimado de entrega: {{estimated_delivery}}.",
		Variables: StringList{"customer_name", "order_id", "order_total", "order_date", "delivery_address", "estimated_delivery"},
		IsActive:  true,
	},
	{
		Name:     "order_status_update",
		Category: CategoryOrderStatusUpdate,
		Language: "es",
		Content: "¡Hola! Tu pedido #{{order_id}} ha sido actualizado. Nuevo estado: {{status}}. " +
			"Actualizado: {{update_time}}. {{additional_info}}",
		Variables: StringList{"order_id", "status", "update_time", "additional_info"},
		IsActive:  true,
	},
	{
		Name:      "order_delivered",
		Category:  CategoryOrderDelivered,
		Language:  "es",
		Content:   "¡Excelente noticia! Tu pedido #{{order_id}} ha sido entregado exitosamente. Fecha de entrega: {{delivery_date}}.",
		Variables: StringList{"order_id", "delivery_date"},
		IsActive:  true,
	},
	{
		Name:      "order_cancelled",
		Category:  CategoryOrderCancelled,
		Language:  "es",
		Content:   "Hola, tu pedido #{{order_id}} ha sido cancelado. Cancelado: {{cancellation_time}}. Motivo: {{cancellation_reason}}.",
		Variables: StringList{"order_id", "cancellation_time", "cancellation_reason"},
		IsActive:  true,
	},
	{
		Name:      "payment_confirmed",
		Category:  CategoryPaymentConfirmed,
		Language:  "es",
		Content:   "¡Pago confirmado! Hemos recibido el pago de tu pedido #{{order_id}} por {{total_amount}}. Comenzaremos a prepararlo de inmediato.",
		Variables: StringList{"order_id", "total_amount"},
		IsActive:  true,
	},
	{
		Name:      "shipping_update",
		Category:  CategoryShippingUpdate,
		Language:  "es",
		Content:   "Tu pedido #{{order_id}} está en camino. Estado del envío: {{status}}. {{additional_info}}",
		Variables: StringList{"order_id", "status", "additional_info"},
		IsActive:  true,
	},
}

// SeedDefaultTemplates inserts the default templates that don't exist yet.
// Existing templates are left untouched so operator edits survive restarts.
// Returns the number of templates created.
func (r *TemplateRepo) SeedDefaultTemplates(ctx context.Context) (int, error) {
	created := 0
	for i := range defaultTemplates {
		tpl := defaultTemplates[i]

		var count int64
		if err := r.db.WithContext(ctx).Model(&Template{}).Where("name = ?", tpl.Name).Count(&count).Error; err != nil {
			return created, pkgerrors.ClassifyDBError(fmt.Errorf("failed to check template %s: %w", tpl.Name, err))
		}
		if count > 0 {
			continue
		}

		if err := r.db.WithContext(ctx).Create(&tpl).Error; err != nil {
			// A concurrent seeder may have won the insert.
			dbErr := pkgerrors.ClassifyDBError(err)
			if dbErr.Type == pkgerrors.ErrorTypeDuplicateKey {
				continue
			}
			return created, fmt.Errorf("failed to seed template %s: %w", tpl.Name, dbErr)
		}

		r.invalidate(ctx, &tpl)
		r.logger.Infow("seeded default template", "name", tpl.Name, "category", tpl.Category)
		created++
	}

	return created, nil
}

// EnsureSchema creates the message and template tables when they don't
// exist. Production schema is managed externally; this keeps local
// environments bootstrappable.
func EnsureSchema(db *gorm.DB) error {
	return db.AutoMigrate(&Template{}, &Message{})
}

// Migrator bootstraps a fresh environment: it applies the schema and seeds
// the default templates. Invoked from the CLI, not on normal startup.
type Migrator struct {
	db        *gorm.DB
	templates *TemplateRepo
	logger    *log.Helper
}

// NewMigrator creates the bootstrap migrator.
func NewMigrator(db *gorm.DB, templates *TemplateRepo, logger log.Logger) *Migrator {
	return &Migrator{
		db:        db,
		templates: templates,
		logger:    log.NewHelper(logger),
	}
}

// Run applies the schema and seeds missing default templates. Returns the
// number of templates created.
func (m *Migrator) Run(ctx context.Context) (int, error) {
	if err := EnsureSchema(m.db); err != nil {
		return 0, fmt.Errorf("failed to apply schema: %w", err)
	}

	created, err := m.templates.SeedDefaultTemplates(ctx)
	if err != nil {
		return created, err
	}

	m.logger.Infow("template seeding completed", "created", created)
	return created, nil
}
