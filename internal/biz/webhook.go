package biz

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/data"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// WebhookUseCase handles provider status callbacks: the subscription
// verification handshake and asynchronous delivery-state updates.
type WebhookUseCase struct {
	messages    MessageRepo
	verifyToken string
	logger      *log.Helper
}

// NewWebhookUseCase creates the webhook use case.
func NewWebhookUseCase(messages MessageRepo, c *conf.WhatsApp, logger log.Logger) *WebhookUseCase {
	verifyToken := ""
	if c != nil {
		verifyToken = c.VerifyToken
	}
	return &WebhookUseCase{
		messages:    messages,
		verifyToken: verifyToken,
		logger:      log.NewHelper(logger),
	}
}

// Verify handles the provider's subscription handshake: on a matching
// subscribe request the challenge must be echoed back verbatim.
func (uc *WebhookUseCase) Verify(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || uc.verifyToken == "" || token != uc.verifyToken {
		uc.logger.Warnw("webhook verification rejected", "mode", mode)
		return "", kerrors.New(403, "WEBHOOK_VERIFICATION_FAILED", "invalid verification request")
	}
	uc.logger.Info("webhook verified successfully")
	return challenge, nil
}

// ProcessStatusCallback applies the delivery-state transitions reported in
// a webhook payload. Unknown message ids and out-of-order callbacks are
// logged and skipped; one malformed status never aborts the rest. Returns
// the number of applied transitions.
func (uc *WebhookUseCase) ProcessStatusCallback(ctx context.Context, payload *whatsapp.WebhookPayload) int {
	processed := 0

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, status := range change.Value.Statuses {
				if uc.applyStatus(ctx, &status) {
					processed++
				}
			}
		}
	}

	return processed
}

func (uc *WebhookUseCase) applyStatus(ctx context.Context, status *whatsapp.StatusUpdate) bool {
	at := parseCallbackTime(status.Timestamp)

	var err error
	switch status.Status {
	case whatsapp.StatusDelivered:
		err = uc.messages.MarkDeliveredByProviderID(ctx, status.ID, at)
	case whatsapp.StatusRead:
		err = uc.messages.MarkReadByProviderID(ctx, status.ID, at)
	case whatsapp.StatusFailed:
		err = uc.messages.MarkFailedByProviderID(ctx, status.ID, "provider reported delivery failure")
	case whatsapp.StatusSent:
		// The synchronous dispatch path already recorded sent.
		return false
	default:
		uc.logger.Warnw("unknown callback status", "status", status.Status, "provider_message_id", status.ID)
		return false
	}

	if err != nil {
		if errors.Is(err, data.ErrInvalidTransition) {
			uc.logger.Debugw("callback ignored (already applied or out of order)",
				"status", status.Status,
				"provider_message_id", status.ID)
		} else {
			uc.logger.Errorw("failed to apply status callback",
				"status", status.Status,
				"provider_message_id", status.ID,
				"error", err)
		}
		return false
	}

	uc.logger.Infow("status callback applied",
		"status", status.Status,
		"provider_message_id", status.ID)
	return true
}

// parseCallbackTime converts the provider's unix-seconds timestamp string,
// falling back to now for absent or malformed values.
func parseCallbackTime(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(seconds, 0)
}
