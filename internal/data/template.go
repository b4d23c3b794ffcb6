package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/arithgrey/service-whatsapp/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

// Template categories matching the order-lifecycle notifications.
const (
	CategoryOrderConfirmation = "order_confirmation"
	CategoryOrderStatusUpdate = "order_status_update"
	CategoryOrderDelivered    = "order_delivered"
	CategoryOrderCancelled    = "order_cancelled"
	CategoryPaymentConfirmed  = "payment_confirmed"
	CategoryShippingUpdate    = "shipping_update"
)

// templateVarPattern matches {{variable}} placeholders in template content.
var templateVarPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// StringList stores the declared variable names as a JSON column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("template: cannot scan %T into StringList", value)
	}
}

// Template is the GORM model for the whatsapp_templates table.
type Template struct {
	ID        int64      `gorm:"primaryKey;column:id" json:"id"`
	Name      string     `gorm:"column:name;size:100;not null;uniqueIndex" json:"name"`
	Category  string     `gorm:"column:category;size:50;index" json:"category"`
	Language  string     `gorm:"column:language;size:8;not null;default:'es'" json:"language"`
	Content   string     `gorm:"column:content;type:text" json:"content"`
	Variables StringList `gorm:"column:variables;type:json" json:"variables"`
	IsActive  bool       `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName sets the table name for GORM.
func (Template) TableName() string {
	return "whatsapp_templates"
}

// MissingVariables returns the declared variables absent from vars, sorted
// for stable error messages.
func (t *Template) MissingVariables(vars map[string]string) []string {
	var missing []string
	for _, name := range t.Variables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

// OrderedParams returns the variable values in declared order, as the
// provider expects positional template parameters.
func (t *Template) OrderedParams(vars map[string]string) []string {
	params := make([]string, 0, len(t.Variables))
	for _, name := range t.Variables {
		params = append(params, vars[name])
	}
	return params
}

// Render substitutes {{variable}} placeholders in the content. Used for the
// stored copy of the message body; the provider receives the positional
// parameters instead.
func (t *Template) Render(vars map[string]string) string {
	content := t.Content
	for name, value := range vars {
		content = strings.ReplaceAll(content, "{{"+name+"}}", value)
	}
	return content
}

// ParseVariables extracts the placeholder names from template content in
// order of first appearance.
func ParseVariables(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range templateVarPattern.FindAllStringSubmatch(content, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}

// TemplateRepo implements biz.TemplateRepo with a two-tier read-through
// cache: an in-process LRU in front of Redis in front of MySQL. Only active
// templates are cached; inactive templates are NotFound for dispatch.
type TemplateRepo struct {
	db     *gorm.DB
	cache  CacheClient
	local  *lru.Cache[string, *Template]
	logger *log.Helper
}

// localTemplateCacheSize bounds the in-process tier.
const localTemplateCacheSize = 256

// NewTemplateRepo creates a new template repository.
func NewTemplateRepo(data *Data, db *gorm.DB, logger log.Logger) (*TemplateRepo, error) {
	local, err := lru.New[string, *Template](localTemplateCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create template LRU: %w", err)
	}
	return &TemplateRepo{
		db:     db,
		cache:  data.GetCache(),
		local:  local,
		logger: log.NewHelper(logger),
	}, nil
}

// GetActiveByName resolves an active template by unique name.
func (r *TemplateRepo) GetActiveByName(ctx context.Context, name string) (*Template, error) {
	key := fmt.Sprintf("%s:%s", CacheKeyTemplateName, name)
	return r.lookup(ctx, key, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name = ? AND is_active = ?", name, true)
	})
}

// GetActiveByCategory resolves the active template for an order
// notification category.
func (r *TemplateRepo) GetActiveByCategory(ctx context.Context, category string) (*Template, error) {
	key := fmt.Sprintf("%s:%s", CacheKeyTemplateCategory, category)
	return r.lookup(ctx, key, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("category = ? AND is_active = ?", category, true)
	})
}

func (r *TemplateRepo) lookup(ctx context.Context, key string, scope func(*gorm.DB) *gorm.DB) (*Template, error) {
	if tpl, ok := r.local.Get(key); ok {
		return tpl, nil
	}

	var cached Template
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		r.local.Add(key, &cached)
		return &cached, nil
	} else if !errors.Is(err, ErrCacheNotFound) {
		r.logger.Warnw("template cache read failed (falling back to database)", "key", key, "error", err)
	}

	var tpl Template
	if err := scope(r.db.WithContext(ctx).Model(&Template{})).First(&tpl).Error; err != nil {
		return nil, pkgerrors.ClassifyDBError(fmt.Errorf("failed to resolve template %s: %w", key, err))
	}

	r.local.Add(key, &tpl)
	if err := r.cache.Set(ctx, key, &tpl, TTLTemplate); err != nil {
		r.logger.Warnw("template cache write failed", "key", key, "error", err)
	}
	return &tpl, nil
}

// invalidate drops both cache tiers for a template.
func (r *TemplateRepo) invalidate(ctx context.Context, tpl *Template) {
	nameKey := fmt.Sprintf("%s:%s", CacheKeyTemplateName, tpl.Name)
	categoryKey := fmt.Sprintf("%s:%s", CacheKeyTemplateCategory, tpl.Category)
	r.local.Remove(nameKey)
	r.local.Remove(categoryKey)
	for _, key := range []string{nameKey, categoryKey} {
		if err := r.cache.Delete(ctx, key); err != nil {
			r.logger.Warnw("template cache invalidation failed", "key", key, "error", err)
		}
	}
}
