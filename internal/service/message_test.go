package service

import (
	"testing"

	"github.com/arithgrey/service-whatsapp/internal/biz"
	"github.com/arithgrey/service-whatsapp/internal/data"

	"github.com/stretchr/testify/assert"
)

func TestSendTextRequest_Validate(t *testing.T) {
	assert.NoError(t, (&SendTextRequest{
		PhoneNumber: "+5215512345678",
		Message:     "hola",
	}).Validate())

	assert.Error(t, (&SendTextRequest{Message: "hola"}).Validate())
	assert.Error(t, (&SendTextRequest{PhoneNumber: "+5215512345678"}).Validate())
}

func TestSendTemplateRequest_Validate(t *testing.T) {
	assert.NoError(t, (&SendTemplateRequest{
		PhoneNumber:  "+5215512345678",
		TemplateName: "order_confirmation",
	}).Validate())

	assert.Error(t, (&SendTemplateRequest{PhoneNumber: "+5215512345678"}).Validate())
}

func TestSendOrderNotificationRequest_Validate(t *testing.T) {
	assert.NoError(t, (&SendOrderNotificationRequest{
		PhoneNumber:      "+5215512345678",
		NotificationType: data.CategoryOrderConfirmation,
	}).Validate())

	err := (&SendOrderNotificationRequest{
		PhoneNumber:      "+5215512345678",
		NotificationType: "password_reset",
	}).Validate()
	assert.Error(t, err)
}

func TestSendBulkRequest_Validate(t *testing.T) {
	item := &SendOrderNotificationRequest{
		PhoneNumber:      "+5215512345678",
		NotificationType: data.CategoryOrderConfirmation,
	}

	assert.NoError(t, (&SendBulkRequest{
		Messages: []*SendOrderNotificationRequest{item},
	}).Validate())

	assert.Error(t, (&SendBulkRequest{}).Validate())

	tooMany := make([]*SendOrderNotificationRequest, biz.MaxBulkSize+1)
	for i := range tooMany {
		tooMany[i] = item
	}
	assert.Error(t, (&SendBulkRequest{Messages: tooMany}).Validate())
}

func TestScheduleTextRequest_Validate(t *testing.T) {
	assert.NoError(t, (&ScheduleTextRequest{
		PhoneNumber: "+5215512345678",
		Message:     "recordatorio",
		ScheduledAt: "2026-09-01T10:00:00Z",
	}).Validate())

	assert.Error(t, (&ScheduleTextRequest{
		PhoneNumber: "+5215512345678",
		Message:     "recordatorio",
		ScheduledAt: "mañana",
	}).Validate())
}
