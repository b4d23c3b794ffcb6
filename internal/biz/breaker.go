package biz

import (
	"context"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/conf"
	"github.com/arithgrey/service-whatsapp/internal/model"
	"github.com/arithgrey/service-whatsapp/pkg/breaker"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"

	"github.com/go-kratos/kratos/v2/log"
)

// NewDispatchBreaker builds the shared circuit breaker guarding every
// provider call, with transitions fanned out to the alert service.
//
// The failure predicate is the default: every error counts. The original
// deployment excluded all exceptions from failure counting, which disabled
// the breaker entirely; that configuration is intentionally not supported.
func NewDispatchBreaker(c *conf.Breaker, alerts AlertService, logger log.Logger) *breaker.Breaker {
	cfg := breaker.Config{}
	if c != nil {
		cfg.FailureThreshold = c.FailureThreshold
		cfg.RecoveryTimeout = c.RecoveryTimeout.AsDuration()
	}

	helper := log.NewHelper(logger)
	hook := func(from, to breaker.State, snap breaker.Snapshot) {
		ctx := context.Background()
		switch {
		case to == breaker.StateOpen:
			if err := alerts.NotifyCircuitOpened(ctx, &model.CircuitOpenedEvent{
				FailureCount: snap.Failures,
				OpenedAt:     snap.OpenedAt,
			}); err != nil {
				helper.Warnw("failed to notify circuit opened", "error", err)
			}
		case from == breaker.StateHalfOpen && to == breaker.StateClosed:
			if err := alerts.NotifyCircuitRecovered(ctx, &model.CircuitRecoveredEvent{
				DownFor:     time.Since(snap.OpenedAt),
				RecoveredAt: time.Now(),
			}); err != nil {
				helper.Warnw("failed to notify circuit recovered", "error", err)
			}
		}
	}

	return breaker.New(cfg, logger, breaker.WithStateChangeHook(hook))
}

// NewProviderClient builds the WhatsApp Cloud API client from configuration.
func NewProviderClient(c *conf.WhatsApp, logger log.Logger) *whatsapp.Client {
	cfg := whatsapp.Config{}
	if c != nil {
		cfg.APIURL = c.ApiUrl
		cfg.PhoneNumberID = c.PhoneNumberId
		cfg.AccessToken = c.AccessToken
		cfg.Timeout = c.Timeout.AsDuration()
	}
	return whatsapp.NewClient(cfg, logger)
}
