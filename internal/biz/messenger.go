package biz

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/data"
	"github.com/arithgrey/service-whatsapp/pkg/breaker"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"

	"github.com/go-kratos/kratos/v2/log"
)

// phonePattern validates recipient addresses (E.164 style, 9-15 digits).
var phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)

// MaxBulkSize bounds how many notifications one bulk request may carry.
const MaxBulkSize = 100

// ValidNotificationTypes are the order-lifecycle categories a notification
// request may name.
var ValidNotificationTypes = []string{
	data.CategoryOrderConfirmation,
	data.CategoryOrderStatusUpdate,
	data.CategoryOrderDelivered,
	data.CategoryOrderCancelled,
	data.CategoryPaymentConfirmed,
	data.CategoryShippingUpdate,
}

// SendResult reports the outcome of one dispatch.
type SendResult struct {
	MessageID         int64              `json:"message_id"`
	ProviderMessageID string             `json:"provider_message_id,omitempty"`
	Status            data.MessageStatus `json:"status"`
}

// OrderData carries the order fields used to fill notification templates.
type OrderData struct {
	ID              string `json:"id"`
	OrderNumber     string `json:"order_number"`
	CreatedAt       string `json:"created_at"`
	TotalAmount     string `json:"total_amount"`
	Status          string `json:"status"`
	CustomerName    string `json:"customer_name"`
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
	PaymentStatus   string `json:"payment_status"`
}

// OrderNotificationRequest is one item of a bulk dispatch.
type OrderNotificationRequest struct {
	PhoneNumber      string    `json:"phone_number"`
	NotificationType string    `json:"notification_type"`
	CustomerName     string    `json:"customer_name"`
	Order            OrderData `json:"order_data"`
}

// BulkResult is the per-item outcome of SendBulk.
type BulkResult struct {
	Index     int    `json:"index"`
	OK        bool   `json:"ok"`
	MessageID int64  `json:"message_id,omitempty"`
	Detail    string `json:"detail"`
}

// MessengerUseCase is the dispatch orchestrator: it builds provider
// payloads, runs the actual network call through the circuit breaker, and
// maps the outcome onto the persisted message record.
type MessengerUseCase struct {
	messages        MessageRepo
	templates       TemplateRepo
	provider        ProviderClient
	breaker         *breaker.Breaker
	defaultLanguage string
	logger          *log.Helper
}

// NewMessengerUseCase creates the dispatch orchestrator.
func NewMessengerUseCase(
	c *conf.WhatsApp,
	messages MessageRepo,
	templates TemplateRepo,
	provider ProviderClient,
	brk *breaker.Breaker,
	logger log.Logger,
) *MessengerUseCase {
	lang := "es"
	if c != nil && c.DefaultLanguage != "" {
		lang = c.DefaultLanguage
	}
	return &MessengerUseCase{
		messages:        messages,
		templates:       templates,
		provider:        provider,
		breaker:         brk,
		defaultLanguage: lang,
		logger:          log.NewHelper(logger),
	}
}

// SendText sends a free-text message to a recipient.
func (uc *MessengerUseCase) SendText(ctx context.Context, phoneNumber, content, orderID string) (*SendResult, error) {
	if err := validatePhone(phoneNumber); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, newValidationError("message content is required")
	}

	msg := &data.Message{
		PhoneNumber: phoneNumber,
		MessageType: data.TypeText,
		Content:     content,
		OrderID:     orderID,
		Status:      data.StatusPending,
	}
	if err := uc.messages.Create(ctx, msg); err != nil {
		return nil, newPersistenceError("", err)
	}

	return uc.dispatch(ctx, msg, whatsapp.NewTextPayload(phoneNumber, content))
}

// ScheduleText creates a pending free-text message to be dispatched by the
// scheduled dispatcher once scheduledAt has passed.
func (uc *MessengerUseCase) ScheduleText(ctx context.Context, phoneNumber, content, orderID string, scheduledAt time.Time) (*SendResult, error) {
	if err := validatePhone(phoneNumber); err != nil {
		return nil, err
	}
	if content == "" {
		return nil, newValidationError("message content is required")
	}
	if !scheduledAt.After(time.Now()) {
		return nil, newValidationError("scheduled_at must be in the future")
	}

	msg := &data.Message{
		PhoneNumber: phoneNumber,
		MessageType: data.TypeText,
		Content:     content,
		OrderID:     orderID,
		Status:      data.StatusPending,
		ScheduledAt: &scheduledAt,
	}
	if err := uc.messages.Create(ctx, msg); err != nil {
		return nil, newPersistenceError("", err)
	}

	uc.logger.Infow("message scheduled",
		"message_id", msg.ID,
		"phone_number", phoneNumber,
		"scheduled_at", scheduledAt)

	return &SendResult{MessageID: msg.ID, Status: data.StatusPending}, nil
}

// SendTemplate resolves an active template by name, validates that every
// declared variable is supplied, and dispatches the templated payload.
// Validation failures happen before the guard is engaged and never count
// against circuit health.
func (uc *MessengerUseCase) SendTemplate(ctx context.Context, phoneNumber, templateName string, variables map[string]string, orderID string) (*SendResult, error) {
	if err := validatePhone(phoneNumber); err != nil {
		return nil, err
	}

	tpl, err := uc.templates.GetActiveByName(ctx, templateName)
	if err != nil {
		return nil, uc.templateLookupError(templateName, err)
	}

	if missing := tpl.MissingVariables(variables); len(missing) > 0 {
		vErr := &MissingVariablesError{TemplateName: templateName, Missing: missing}
		uc.logger.Warnw("template dispatch rejected", "template", templateName, "error", vErr.Error())
		return nil, newMissingVariablesError(vErr)
	}

	msg := &data.Message{
		PhoneNumber: phoneNumber,
		MessageType: data.TypeTemplate,
		Content:     tpl.Render(variables),
		TemplateID:  &tpl.ID,
		OrderID:     orderID,
		Metadata:    data.JSONMap(variables),
		Status:      data.StatusPending,
	}
	if err := uc.messages.Create(ctx, msg); err != nil {
		return nil, newPersistenceError("", err)
	}

	payload := whatsapp.NewTemplatePayload(phoneNumber, tpl.Name, uc.language(tpl), tpl.OrderedParams(variables))
	return uc.dispatch(ctx, msg, payload)
}

// SendOrderNotification resolves the active template for an order-lifecycle
// category, derives the template variables from the order data and sends it.
func (uc *MessengerUseCase) SendOrderNotification(ctx context.Context, req *OrderNotificationRequest) (*SendResult, error) {
	if err := validatePhone(req.PhoneNumber); err != nil {
		return nil, err
	}
	if !isValidNotificationType(req.NotificationType) {
		return nil, newValidationError("invalid notification type: %s", req.NotificationType)
	}

	tpl, err := uc.templates.GetActiveByCategory(ctx, req.NotificationType)
	if err != nil {
		return nil, uc.templateLookupError(req.NotificationType, err)
	}

	variables := prepareOrderVariables(&req.Order, req.CustomerName, tpl)
	return uc.SendTemplate(ctx, req.PhoneNumber, tpl.Name, variables, req.Order.ID)
}

// SendBulk dispatches up to MaxBulkSize order notifications independently.
// One item's failure does not abort the others and already-sent items are
// never rolled back; each item's circuit accounting still flows through the
// shared breaker, so a mid-batch trip fails the remaining items fast.
func (uc *MessengerUseCase) SendBulk(ctx context.Context, requests []*OrderNotificationRequest) []BulkResult {
	results := make([]BulkResult, 0, len(requests))

	for i, req := range requests {
		res, err := uc.SendOrderNotification(ctx, req)
		if err != nil {
			uc.logger.Warnw("bulk item failed",
				"index", i,
				"phone_number", req.PhoneNumber,
				"error", err)
			results = append(results, BulkResult{Index: i, OK: false, Detail: err.Error()})
			continue
		}
		results = append(results, BulkResult{Index: i, OK: true, MessageID: res.MessageID, Detail: string(res.Status)})
	}

	return results
}

// DispatchPending sends an already-persisted pending message. Used by the
// scheduled dispatcher; the stored rendered content goes out as free text.
func (uc *MessengerUseCase) DispatchPending(ctx context.Context, msg *data.Message) (*SendResult, error) {
	return uc.dispatch(ctx, msg, whatsapp.NewTextPayload(msg.PhoneNumber, msg.Content))
}

// Get returns one message record by id.
func (uc *MessengerUseCase) Get(ctx context.Context, messageID int64) (*data.Message, error) {
	msg, err := uc.messages.GetByID(ctx, messageID)
	if err != nil {
		if pkgIsNotFound(err) {
			return nil, newMessageNotFoundError(messageID)
		}
		return nil, newPersistenceError("", err)
	}
	return msg, nil
}

// Cancel transitions a pending message to cancelled. Messages in any other
// state cannot be cancelled.
func (uc *MessengerUseCase) Cancel(ctx context.Context, messageID int64) error {
	err := uc.messages.MarkCancelled(ctx, messageID)
	if err == nil {
		uc.logger.Infow("message cancelled", "message_id", messageID)
		return nil
	}
	if errors.Is(err, data.ErrInvalidTransition) {
		return newInvalidStateError("message %d is not pending and cannot be cancelled", messageID)
	}
	if pkgIsNotFound(err) {
		return newMessageNotFoundError(messageID)
	}
	return newPersistenceError("", err)
}

// Stats returns aggregate message counts for the stats endpoint.
func (uc *MessengerUseCase) Stats(ctx context.Context) (*data.MessageStats, error) {
	stats, err := uc.messages.Stats(ctx)
	if err != nil {
		return nil, newPersistenceError("", err)
	}
	return stats, nil
}

// BreakerStatus exposes the circuit state for operational monitoring.
func (uc *MessengerUseCase) BreakerStatus() breaker.Snapshot {
	return uc.breaker.Snapshot()
}

// ProviderConfigured reports whether dispatch credentials are present.
func (uc *MessengerUseCase) ProviderConfigured() bool {
	return uc.provider.Configured()
}

// dispatch runs the provider call through the circuit breaker and maps the
// outcome onto the message record. The breaker's lock is never held during
// the network call; only the permission check and the outcome recording are
// serialized.
func (uc *MessengerUseCase) dispatch(ctx context.Context, msg *data.Message, payload *whatsapp.MessagePayload) (*SendResult, error) {
	providerMessageID, err := breaker.Do(ctx, uc.breaker,
		func(ctx context.Context) (string, error) {
			return uc.provider.SendMessage(ctx, payload)
		},
		func(_ context.Context, err error) (string, error) {
			return "", err
		})

	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			uc.markFailed(ctx, msg.ID, "circuit open: dispatch rejected without provider attempt")
			return nil, newCircuitOpenError()
		}
		uc.markFailed(ctx, msg.ID, err.Error())
		uc.logger.Errorw("provider dispatch failed",
			"message_id", msg.ID,
			"phone_number", msg.PhoneNumber,
			"error", err)
		return nil, newProviderError(err)
	}

	if err := uc.messages.MarkSent(ctx, msg.ID, providerMessageID); err != nil {
		// The provider accepted the message but our record still says
		// pending. Surface distinctly and log for reconciliation.
		uc.logger.Errorw("message accepted by provider but record update failed, reconciliation required",
			"message_id", msg.ID,
			"provider_message_id", providerMessageID,
			"error", err)
		return nil, newPersistenceError(providerMessageID, err)
	}

	uc.logger.Infow("message sent",
		"message_id", msg.ID,
		"provider_message_id", providerMessageID,
		"message_type", string(msg.MessageType))

	return &SendResult{
		MessageID:         msg.ID,
		ProviderMessageID: providerMessageID,
		Status:            data.StatusSent,
	}, nil
}

func (uc *MessengerUseCase) markFailed(ctx context.Context, id int64, detail string) {
	if err := uc.messages.MarkFailed(ctx, id, detail); err != nil {
		uc.logger.Warnw("failed to mark message as failed", "message_id", id, "error", err)
	}
}

func (uc *MessengerUseCase) templateLookupError(key string, err error) error {
	if pkgIsNotFound(err) {
		return newTemplateNotFoundError(key)
	}
	return newPersistenceError("", err)
}

func (uc *MessengerUseCase) language(tpl *data.Template) string {
	if tpl.Language != "" {
		return tpl.Language
	}
	return uc.defaultLanguage
}

func validatePhone(phoneNumber string) error {
	if !phonePattern.MatchString(phoneNumber) {
		return newValidationError("invalid phone number: %s", phoneNumber)
	}
	return nil
}

func isValidNotificationType(t string) bool {
	for _, valid := range ValidNotificationTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// prepareOrderVariables derives template variables from order data,
// restricted to the variables the template declares so unrelated templates
// are not rejected for unsupplied extras.
func prepareOrderVariables(order *OrderData, customerName string, tpl *data.Template) map[string]string {
	if customerName == "" {
		customerName = order.CustomerName
	}
	if customerName == "" {
		customerName = "Cliente"
	}

	all := map[string]string{
		"order_id":           firstNonEmpty(order.ID, "N/A"),
		"order_number":       order.OrderNumber,
		"order_date":         order.CreatedAt,
		"order_total":        order.TotalAmount,
		"total_amount":       order.TotalAmount,
		"order_status":       order.Status,
		"status":             firstNonEmpty(order.Status, "Pendiente"),
		"customer_name":      customerName,
		"delivery_address":   order.ShippingAddress,
		"shipping_address":   order.ShippingAddress,
		"payment_method":     order.PaymentMethod,
		"payment_status":     order.PaymentStatus,
		"update_time":        time.Now().Format("02/01/2006 15:04"),
		"delivery_date":      time.Now().Format("02/01/2006"),
		"cancellation_time":  time.Now().Format("02/01/2006 15:04"),
		"estimated_delivery": "2-3 días hábiles",
	}

	variables := make(map[string]string, len(tpl.Variables))
	for _, name := range tpl.Variables {
		if v, ok := all[name]; ok {
			variables[name] = v
		} else {
			variables[name] = ""
		}
	}
	return variables
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
