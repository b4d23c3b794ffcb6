package service

import (
	"strconv"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/biz"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SendTextRequest is the body of POST /send.
type SendTextRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	OrderID     string `json:"order_id,omitempty"`
}

func (r *SendTextRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PhoneNumber, validation.Required),
		validation.Field(&r.Message, validation.Required, validation.Length(1, 4096)),
	)
}

// SendTemplateRequest is the body of POST /send-template.
type SendTemplateRequest struct {
	PhoneNumber  string            `json:"phone_number"`
	TemplateName string            `json:"template_name"`
	Variables    map[string]string `json:"variables"`
	OrderID      string            `json:"order_id,omitempty"`
}

func (r *SendTemplateRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PhoneNumber, validation.Required),
		validation.Field(&r.TemplateName, validation.Required),
	)
}

// SendOrderNotificationRequest is the body of POST /send-order-notification.
type SendOrderNotificationRequest struct {
	PhoneNumber      string        `json:"phone_number"`
	NotificationType string        `json:"notification_type"`
	CustomerName     string        `json:"customer_name,omitempty"`
	Order            biz.OrderData `json:"order_data"`
}

func (r *SendOrderNotificationRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PhoneNumber, validation.Required),
		validation.Field(&r.NotificationType, validation.Required,
			validation.In(toInterfaces(biz.ValidNotificationTypes)...)),
	)
}

// SendBulkRequest is the body of POST /send-bulk.
type SendBulkRequest struct {
	Messages []*SendOrderNotificationRequest `json:"messages"`
}

func (r *SendBulkRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Messages, validation.Required, validation.Length(1, biz.MaxBulkSize)),
	)
}

// ScheduleTextRequest is the body of POST /schedule.
type ScheduleTextRequest struct {
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
	OrderID     string `json:"order_id,omitempty"`
	ScheduledAt string `json:"scheduled_at"`
}

func (r *ScheduleTextRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.PhoneNumber, validation.Required),
		validation.Field(&r.Message, validation.Required, validation.Length(1, 4096)),
		validation.Field(&r.ScheduledAt, validation.Required, validation.Date(time.RFC3339)),
	)
}

// BulkResponse summarizes a bulk dispatch.
type BulkResponse struct {
	Total   int              `json:"total"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Results []biz.BulkResult `json:"results"`
}

// MessageService exposes the dispatch HTTP endpoints.
type MessageService struct {
	uc     *biz.MessengerUseCase
	logger *log.Helper
}

// NewMessageService creates a new MessageService instance.
func NewMessageService(uc *biz.MessengerUseCase, logger log.Logger) *MessageService {
	return &MessageService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// SendText handles POST /send.
func (s *MessageService) SendText(ctx khttp.Context) error {
	var req SendTextRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	s.logger.Infow("SendText called", "phone_number", req.PhoneNumber)
	res, err := s.uc.SendText(ctx, req.PhoneNumber, req.Message, req.OrderID)
	if err != nil {
		return err
	}
	return ctx.Result(200, res)
}

// SendTemplate handles POST /send-template.
func (s *MessageService) SendTemplate(ctx khttp.Context) error {
	var req SendTemplateRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	s.logger.Infow("SendTemplate called",
		"phone_number", req.PhoneNumber,
		"template_name", req.TemplateName)
	res, err := s.uc.SendTemplate(ctx, req.PhoneNumber, req.TemplateName, req.Variables, req.OrderID)
	if err != nil {
		return err
	}
	return ctx.Result(200, res)
}

// SendOrderNotification handles POST /send-order-notification.
func (s *MessageService) SendOrderNotification(ctx khttp.Context) error {
	var req SendOrderNotificationRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	s.logger.Infow("SendOrderNotification called",
		"phone_number", req.PhoneNumber,
		"notification_type", req.NotificationType)
	res, err := s.uc.SendOrderNotification(ctx, &biz.OrderNotificationRequest{
		PhoneNumber:      req.PhoneNumber,
		NotificationType: req.NotificationType,
		CustomerName:     req.CustomerName,
		Order:            req.Order,
	})
	if err != nil {
		return err
	}
	return ctx.Result(200, res)
}

// SendBulk handles POST /send-bulk.
func (s *MessageService) SendBulk(ctx khttp.Context) error {
	var req SendBulkRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	requests := make([]*biz.OrderNotificationRequest, 0, len(req.Messages))
	for _, m := range req.Messages {
		requests = append(requests, &biz.OrderNotificationRequest{
			PhoneNumber:      m.PhoneNumber,
			NotificationType: m.NotificationType,
			CustomerName:     m.CustomerName,
			Order:            m.Order,
		})
	}

	s.logger.Infow("SendBulk called", "count", len(requests))
	results := s.uc.SendBulk(ctx, requests)

	resp := &BulkResponse{Total: len(results), Results: results}
	for _, r := range results {
		if r.OK {
			resp.Sent++
		} else {
			resp.Failed++
		}
	}
	return ctx.Result(200, resp)
}

// ScheduleText handles POST /schedule.
func (s *MessageService) ScheduleText(ctx khttp.Context) error {
	var req ScheduleTextRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		return kerrors.New(400, biz.ReasonValidation, "scheduled_at must be RFC3339")
	}

	s.logger.Infow("ScheduleText called",
		"phone_number", req.PhoneNumber,
		"scheduled_at", req.ScheduledAt)
	res, err := s.uc.ScheduleText(ctx, req.PhoneNumber, req.Message, req.OrderID, scheduledAt)
	if err != nil {
		return err
	}
	return ctx.Result(200, res)
}

// GetMessage handles GET /messages/{id}.
func (s *MessageService) GetMessage(ctx khttp.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	msg, err := s.uc.Get(ctx, id)
	if err != nil {
		return err
	}
	return ctx.Result(200, msg)
}

// CancelMessage handles POST /messages/{id}/cancel.
func (s *MessageService) CancelMessage(ctx khttp.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := s.uc.Cancel(ctx, id); err != nil {
		return err
	}
	return ctx.Result(200, map[string]interface{}{"message_id": id, "status": "cancelled"})
}

func pathID(ctx khttp.Context) (int64, error) {
	raw := ctx.Vars().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, kerrors.New(400, biz.ReasonValidation, "invalid message id")
	}
	return id, nil
}

// bindAndValidate decodes the request body and runs its validation rules,
// mapping rule violations onto a 400 with the field details.
func bindAndValidate(ctx khttp.Context, req interface{ Validate() error }) error {
	if err := ctx.Bind(req); err != nil {
		return kerrors.New(400, biz.ReasonValidation, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return kerrors.New(400, biz.ReasonValidation, err.Error())
	}
	return nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
