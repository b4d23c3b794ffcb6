package server

import (
	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/server/middleware"
	"github.com/arithgrey/service-whatsapp/internal/service"
	"github.com/arithgrey/service-whatsapp/pkg/breaker"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(
	c *conf.Server,
	brk *breaker.Breaker,
	messageService *service.MessageService,
	webhookService *service.WebhookService,
	statusService *service.StatusService,
	logger log.Logger,
) *http.Server {
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Logging(logger),
			middleware.BreakerGuard(brk, logger),
		),
	}
	if c.Http.Network != "" {
		opts = append(opts, http.Network(c.Http.Network))
	}
	if c.Http.Addr != "" {
		opts = append(opts, http.Address(c.Http.Addr))
	}
	if c.Http.Timeout != nil {
		opts = append(opts, http.Timeout(c.Http.Timeout.AsDuration()))
	}
	srv := http.NewServer(opts...)

	r := srv.Route("/api/whatsapp")
	r.POST("/send", messageService.SendText)
	r.POST("/send-template", messageService.SendTemplate)
	r.POST("/send-order-notification", messageService.SendOrderNotification)
	r.POST("/send-bulk", messageService.SendBulk)
	r.POST("/schedule", messageService.ScheduleText)
	r.GET("/messages/{id}", messageService.GetMessage)
	r.POST("/messages/{id}/cancel", messageService.CancelMessage)

	r.GET("/webhook", webhookService.Verify)
	r.POST("/webhook", webhookService.Callback)

	r.GET("/status", statusService.ServiceStatus)
	r.GET("/circuit-status", statusService.CircuitStatus)
	r.GET("/stats", statusService.Stats)

	return srv
}
