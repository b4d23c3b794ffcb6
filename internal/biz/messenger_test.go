package biz

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/data"
	"github.com/arithgrey/service-whatsapp/pkg/breaker"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockMessageRepo is a mock implementation of MessageRepo for testing.
type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *data.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id int64) (*data.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkSent(ctx context.Context, id int64, providerMessageID string) error {
	args := m.Called(ctx, id, providerMessageID)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	args := m.Called(ctx, id, errorMessage)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkCancelled(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkDeliveredByProviderID(ctx context.Context, providerMessageID string, at time.Time) error {
	args := m.Called(ctx, providerMessageID, at)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkReadByProviderID(ctx context.Context, providerMessageID string, at time.Time) error {
	args := m.Called(ctx, providerMessageID, at)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkFailedByProviderID(ctx context.Context, providerMessageID, errorMessage string) error {
	args := m.Called(ctx, providerMessageID, errorMessage)
	return args.Error(0)
}

func (m *MockMessageRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*data.Message, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Message), args.Error(1)
}

func (m *MockMessageRepo) Stats(ctx context.Context) (*data.MessageStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.MessageStats), args.Error(1)
}

// MockTemplateRepo is a mock implementation of TemplateRepo for testing.
type MockTemplateRepo struct {
	mock.Mock
}

func (m *MockTemplateRepo) GetActiveByName(ctx context.Context, name string) (*data.Template, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Template), args.Error(1)
}

func (m *MockTemplateRepo) GetActiveByCategory(ctx context.Context, category string) (*data.Template, error) {
	args := m.Called(ctx, category)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Template), args.Error(1)
}

func (m *MockTemplateRepo) SeedDefaultTemplates(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockProvider is a mock provider client capturing sent payloads.
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) SendMessage(ctx context.Context, payload *whatsapp.MessagePayload) (string, error) {
	args := m.Called(ctx, payload)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Configured() bool {
	return true
}

func newTestMessenger(messages *MockMessageRepo, templates *MockTemplateRepo, provider *MockProvider, threshold int32) *MessengerUseCase {
	logger := log.NewStdLogger(os.Stdout)
	brk := breaker.New(breaker.Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
	}, logger)
	return NewMessengerUseCase(&conf.WhatsApp{DefaultLanguage: "es"}, messages, templates, provider, brk, logger)
}

// expectCreate stubs record creation and assigns the given id.
func expectCreate(messages *MockMessageRepo, id int64) {
	messages.On("Create", mock.Anything, mock.AnythingOfType("*data.Message")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*data.Message).ID = id
		}).
		Return(nil)
}

// Test the happy path: record created pending, provider call succeeds,
// record marked sent with the provider message id.
func TestSendText_Success(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	expectCreate(messages, 11)
	provider.On("SendMessage", mock.Anything, mock.Anything).Return("wamid.OK", nil)
	messages.On("MarkSent", mock.Anything, int64(11), "wamid.OK").Return(nil)

	res, err := uc.SendText(context.Background(), "+5215512345678", "hola", "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.MessageID)
	assert.Equal(t, "wamid.OK", res.ProviderMessageID)
	assert.Equal(t, data.StatusSent, res.Status)
	messages.AssertExpectations(t)
	provider.AssertExpectations(t)
}

// Test that a provider failure marks the record failed, returns
// PROVIDER_ERROR and counts against the circuit.
func TestSendText_ProviderFailure(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	expectCreate(messages, 12)
	provider.On("SendMessage", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))
	messages.On("MarkFailed", mock.Anything, int64(12), mock.AnythingOfType("string")).Return(nil)

	_, err := uc.SendText(context.Background(), "+5215512345678", "hola", "")
	require.Error(t, err)
	assert.Equal(t, ReasonProviderError, kerrors.Reason(err))
	assert.Equal(t, int32(1), uc.BreakerStatus().Failures)
	messages.AssertExpectations(t)
}

// Test that an invalid recipient is rejected before any record is created
// or any circuit interaction happens.
func TestSendText_InvalidPhone(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	_, err := uc.SendText(context.Background(), "not-a-phone", "hola", "")
	require.Error(t, err)
	assert.Equal(t, ReasonValidation, kerrors.Reason(err))
	assert.Equal(t, int32(0), uc.BreakerStatus().Failures)
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

// Test that a template requiring {customer_name, order_id} called with only
// customer_name fails with MISSING_VARIABLES naming order_id, with zero
// effect on circuit state.
func TestSendTemplate_MissingVariables(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	templates.On("GetActiveByName", mock.Anything, "order_confirmation").Return(&data.Template{
		ID:        1,
		Name:      "order_confirmation",
		Language:  "es",
		Content:   "Hola {{customer_name}}, pedido {{order_id}}",
		Variables: data.StringList{"customer_name", "order_id"},
		IsActive:  true,
	}, nil)

	_, err := uc.SendTemplate(context.Background(), "+5215512345678", "order_confirmation",
		map[string]string{"customer_name": "Ana"}, "")
	require.Error(t, err)
	assert.Equal(t, ReasonMissingVariables, kerrors.Reason(err))
	assert.Contains(t, err.Error(), "order_id")
	assert.Equal(t, breaker.StateClosed, uc.BreakerStatus().State)
	assert.Equal(t, int32(0), uc.BreakerStatus().Failures)
	messages.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

// Test that an unknown or inactive template maps to TEMPLATE_NOT_FOUND.
func TestSendTemplate_NotFound(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	templates.On("GetActiveByName", mock.Anything, "nope").Return(nil, gorm.ErrRecordNotFound)

	_, err := uc.SendTemplate(context.Background(), "+5215512345678", "nope", nil, "")
	require.Error(t, err)
	assert.Equal(t, ReasonTemplateNotFound, kerrors.Reason(err))
}

// Test that the provider payload carries positional parameters in the
// template's declared variable order and the template's language.
func TestSendTemplate_PayloadShape(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	templates.On("GetActiveByName", mock.Anything, "order_delivered").Return(&data.Template{
		ID:        2,
		Name:      "order_delivered",
		Language:  "en",
		Content:   "Order {{order_id}} delivered on {{delivery_date}}",
		Variables: data.StringList{"order_id", "delivery_date"},
		IsActive:  true,
	}, nil)
	expectCreate(messages, 20)

	var sent *whatsapp.MessagePayload
	provider.On("SendMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(1).(*whatsapp.MessagePayload)
		}).
		Return("wamid.TPL", nil)
	messages.On("MarkSent", mock.Anything, int64(20), "wamid.TPL").Return(nil)

	_, err := uc.SendTemplate(context.Background(), "+5215512345678", "order_delivered",
		map[string]string{"delivery_date": "01/02/2026", "order_id": "ORD-9"}, "ORD-9")
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, whatsapp.TypeTemplate, sent.Type)
	assert.Equal(t, "en", sent.Template.Language.Code)
	params := sent.Template.Components[0].Parameters
	require.Len(t, params, 2)
	assert.Equal(t, "ORD-9", params[0].Text)
	assert.Equal(t, "01/02/2026", params[1].Text)
}

// Test that the configured default language fills in for templates that do
// not declare one.
func TestSendTemplate_ConfiguredDefaultLanguage(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	logger := log.NewStdLogger(os.Stdout)
	brk := breaker.New(breaker.Config{FailureThreshold: 5, RecoveryTimeout: time.Minute}, logger)
	uc := NewMessengerUseCase(&conf.WhatsApp{DefaultLanguage: "en_US"}, messages, templates, provider, brk, logger)

	templates.On("GetActiveByName", mock.Anything, "order_created").Return(&data.Template{
		ID:        3,
		Name:      "order_created",
		Content:   "Order {{order_id}} received",
		Variables: data.StringList{"order_id"},
		IsActive:  true,
	}, nil)
	expectCreate(messages, 21)

	var sent *whatsapp.MessagePayload
	provider.On("SendMessage", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			sent = args.Get(1).(*whatsapp.MessagePayload)
		}).
		Return("wamid.LANG", nil)
	messages.On("MarkSent", mock.Anything, int64(21), "wamid.LANG").Return(nil)

	_, err := uc.SendTemplate(context.Background(), "+5215512345678", "order_created",
		map[string]string{"order_id": "ORD-10"}, "ORD-10")
	require.NoError(t, err)

	require.NotNil(t, sent)
	assert.Equal(t, "en_US", sent.Template.Language.Code)
}

// Test the bulk isolation scenario: with threshold=1, item #2's provider
// failure trips the circuit, so item #3 is rejected without a provider
// attempt. The result array still has one entry per item.
func TestSendBulk_CircuitTripsMidBatch(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 1)

	tpl := &data.Template{
		ID:        3,
		Name:      "order_confirmation",
		Category:  data.CategoryOrderConfirmation,
		Language:  "es",
		Content:   "Pedido {{order_id}}",
		Variables: data.StringList{"order_id"},
		IsActive:  true,
	}
	templates.On("GetActiveByCategory", mock.Anything, data.CategoryOrderConfirmation).Return(tpl, nil)
	templates.On("GetActiveByName", mock.Anything, "order_confirmation").Return(tpl, nil)
	expectCreate(messages, 30)
	messages.On("MarkSent", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	messages.On("MarkFailed", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	provider.On("SendMessage", mock.Anything, mock.Anything).Return("wamid.1", nil).Once()
	provider.On("SendMessage", mock.Anything, mock.Anything).Return("", errors.New("timeout")).Once()

	req := func(order string) *OrderNotificationRequest {
		return &OrderNotificationRequest{
			PhoneNumber:      "+5215512345678",
			NotificationType: data.CategoryOrderConfirmation,
			Order:            OrderData{ID: order},
		}
	}

	results := uc.SendBulk(context.Background(), []*OrderNotificationRequest{
		req("ORD-1"), req("ORD-2"), req("ORD-3"),
	})

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Detail, ReasonProviderError)
	assert.False(t, results[2].OK)
	assert.Contains(t, results[2].Detail, ReasonCircuitOpen)

	// Two provider invocations only: the third was denied by the breaker.
	provider.AssertNumberOfCalls(t, "SendMessage", 2)
	assert.Equal(t, breaker.StateOpen, uc.BreakerStatus().State)
}

// Test that a provider success followed by a record-update failure is
// surfaced as a distinct persistence error carrying the provider id.
func TestSendText_ReconciliationOnPersistenceFailure(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	expectCreate(messages, 40)
	provider.On("SendMessage", mock.Anything, mock.Anything).Return("wamid.RACE", nil)
	messages.On("MarkSent", mock.Anything, int64(40), "wamid.RACE").Return(errors.New("bad connection"))

	_, err := uc.SendText(context.Background(), "+5215512345678", "hola", "")
	require.Error(t, err)
	assert.Equal(t, ReasonPersistence, kerrors.Reason(err))
	assert.Contains(t, err.Error(), "wamid.RACE")
	// The provider accepted the message, so the circuit stays healthy.
	assert.Equal(t, int32(0), uc.BreakerStatus().Failures)
}

// Test cancellation rules: only pending messages can be cancelled.
func TestCancel(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	messages.On("MarkCancelled", mock.Anything, int64(1)).Return(nil)
	assert.NoError(t, uc.Cancel(context.Background(), 1))

	messages.On("MarkCancelled", mock.Anything, int64(2)).
		Return(data.ErrInvalidTransition)
	err := uc.Cancel(context.Background(), 2)
	require.Error(t, err)
	assert.Equal(t, ReasonInvalidState, kerrors.Reason(err))

	messages.On("MarkCancelled", mock.Anything, int64(3)).Return(gorm.ErrRecordNotFound)
	err = uc.Cancel(context.Background(), 3)
	require.Error(t, err)
	assert.Equal(t, ReasonMessageNotFound, kerrors.Reason(err))
}

// Test scheduling validation and the pending result.
func TestScheduleText(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	_, err := uc.ScheduleText(context.Background(), "+5215512345678", "hola", "",
		time.Now().Add(-time.Minute))
	require.Error(t, err)
	assert.Equal(t, ReasonValidation, kerrors.Reason(err))

	expectCreate(messages, 50)
	res, err := uc.ScheduleText(context.Background(), "+5215512345678", "hola", "ORD-5",
		time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, data.StatusPending, res.Status)
	provider.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

// Test that an unknown notification type is rejected before any lookup.
func TestSendOrderNotification_InvalidType(t *testing.T) {
	messages := new(MockMessageRepo)
	templates := new(MockTemplateRepo)
	provider := new(MockProvider)
	uc := newTestMessenger(messages, templates, provider, 5)

	_, err := uc.SendOrderNotification(context.Background(), &OrderNotificationRequest{
		PhoneNumber:      "+5215512345678",
		NotificationType: "password_reset",
	})
	require.Error(t, err)
	assert.Equal(t, ReasonValidation, kerrors.Reason(err))
	templates.AssertNotCalled(t, "GetActiveByCategory", mock.Anything, mock.Anything)
}
