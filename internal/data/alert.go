package data

import (
	"context"

	"github.com/arithgrey/service-whatsapp/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LogAlertService reports circuit breaker transitions to the log sink.
// An HTTP webhook implementation can replace it once an alerting endpoint
// exists; the biz layer only sees the interface.
type LogAlertService struct {
	logger *log.Helper
}

// NewLogAlertService creates a log-backed alert service.
func NewLogAlertService(logger log.Logger) *LogAlertService {
	return &LogAlertService{
		logger: log.NewHelper(logger),
	}
}

// NotifyCircuitOpened logs a circuit trip.
func (s *LogAlertService) NotifyCircuitOpened(_ context.Context, event *model.CircuitOpenedEvent) error {
	s.logger.Errorw("WhatsApp dispatch circuit opened",
		"failure_count", event.FailureCount,
		"opened_at", event.OpenedAt)
	return nil
}

// NotifyCircuitRecovered logs a circuit recovery.
func (s *LogAlertService) NotifyCircuitRecovered(_ context.Context, event *model.CircuitRecoveredEvent) error {
	s.logger.Infow("WhatsApp dispatch circuit recovered",
		"down_for", event.DownFor.String(),
		"recovered_at", event.RecoveredAt)
	return nil
}
