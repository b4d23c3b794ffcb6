package service

import (
	"github.com/arithgrey/service-whatsapp/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	khttp "github.com/go-kratos/kratos/v2/transport/http"
)

// StatusService exposes the operational monitoring endpoints.
type StatusService struct {
	uc     *biz.MessengerUseCase
	logger *log.Helper
}

// NewStatusService creates a new StatusService instance.
func NewStatusService(uc *biz.MessengerUseCase, logger log.Logger) *StatusService {
	return &StatusService{
		uc:     uc,
		logger: log.NewHelper(logger),
	}
}

// CircuitStatus handles GET /circuit-status.
func (s *StatusService) CircuitStatus(ctx khttp.Context) error {
	return ctx.Result(200, s.uc.BreakerStatus())
}

// ServiceStatus handles GET /status.
func (s *StatusService) ServiceStatus(ctx khttp.Context) error {
	snap := s.uc.BreakerStatus()
	return ctx.Result(200, map[string]interface{}{
		"service":             "service-whatsapp",
		"provider_configured": s.uc.ProviderConfigured(),
		"circuit":             snap,
	})
}

// Stats handles GET /stats.
func (s *StatusService) Stats(ctx khttp.Context) error {
	stats, err := s.uc.Stats(ctx)
	if err != nil {
		return err
	}
	return ctx.Result(200, stats)
}
