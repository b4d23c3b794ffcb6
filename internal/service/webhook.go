package service

import (
	"github.com/arithgrey/service-whatsapp/internal/biz"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// WebhookService exposes the provider callback endpoints.
type WebhookService struct {
	uc     *biz.WebhookUseCase
	logger *log.Helper
}

// NewWebhookService creates a new WebhookService instance.
func NewWebhookService(uc *biz.WebhookUseCase, logger log.Logger) *WebhookService {
	return &WebhookService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// Verify handles GET /webhook, the provider's subscription handshake.
// The challenge must come back as a bare string body, not JSON.
func (s *WebhookService) Verify(ctx khttp.Context) error {
	query := ctx.Query()
	challenge, err := s.uc.Verify(
		query.Get("hub.mode"),
		query.Get("hub.verify_token"),
		query.Get("hub.challenge"),
	)
	if err != nil {
		return err
	}

	w := ctx.Response()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(200)
	_, werr := w.Write([]byte(challenge))
	return werr
}

// Callback handles POST /webhook with asynchronous status updates. The
// provider retries on non-200 responses, so processing problems are logged
// and acknowledged rather than surfaced.
func (s *WebhookService) Callback(ctx khttp.Context) error {
	var payload whatsapp.WebhookPayload
	if err := ctx.Bind(&payload); err != nil {
		s.logger.Warnw("malformed webhook payload", "error", err)
		return ctx.Result(200, map[string]string{"status": "ignored"})
	}

	processed := s.uc.ProcessStatusCallback(ctx, &payload)
	return ctx.Result(200, map[string]interface{}{
		"status":    "ok",
		"processed": processed,
	})
}
