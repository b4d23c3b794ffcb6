package server

import (
	"context"
	"time"

	"github.com/arithgrey/service-whatsapp/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"
)

// scheduledDispatchSpec runs the scheduled dispatcher at the top of every
// minute (seconds minutes hours dom month dow).
const scheduledDispatchSpec = "0 * * * * *"

// tickTimeout bounds one dispatch batch so a stuck provider cannot pile up
// overlapping runs.
const tickTimeout = 50 * time.Second

// CronServer drives the scheduled message dispatcher. It implements the
// kratos transport.Server interface so the cron lifecycle is tied to the
// application's.
type CronServer struct {
	cron       *cron.Cron
	dispatcher *biz.ScheduledDispatcher
	logger     *log.Helper
}

// NewCronServer creates the cron transport.
func NewCronServer(dispatcher *biz.ScheduledDispatcher, logger log.Logger) *CronServer {
	return &CronServer{
		cron:       cron.New(cron.WithSeconds()),
		dispatcher: dispatcher,
		logger:     log.NewHelper(logger),
	}
}

// Start registers the dispatch job and starts the scheduler.
func (s *CronServer) Start(_ context.Context) error {
	_, err := s.cron.AddFunc(scheduledDispatchSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
		defer cancel()

		if _, err := s.dispatcher.RunOnce(ctx); err != nil {
			s.logger.Errorw("scheduled dispatch run failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("scheduled dispatch cron started, runs every minute")
	return nil
}

// Stop halts the scheduler and waits for a running job to finish.
func (s *CronServer) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("scheduled dispatch cron stopped")
	return nil
}
