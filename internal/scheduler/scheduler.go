package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/quotepay/internal/clock"
	"github.com/smallbiznis/quotepay/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/quotepay/internal/payment/domain"
	quotedomain "github.com/smallbiznis/quotepay/internal/quote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobExpireQuotes   = "expire_quotes"
	JobWebhookBacklog = "webhook_backlog"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	QuoteSvc   quotedomain.Service
	WebhookSvc paymentdomain.WebhookService `optional:"true"`
	GenID      *snowflake.Node
	Clock      clock.Clock
	Metrics    *metrics.Metrics `optional:"true"`
	Config     Config           `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	quoteSvc   quotedomain.Service
	webhookSvc paymentdomain.WebhookService
	metrics    *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.QuoteSvc == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		quoteSvc:   p.QuoteSvc,
		webhookSvc: p.WebhookSvc,
		metrics:    p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)

	err := fn(ctx)
	if err != nil {
		run.IncError()
	}
	s.metrics.ObserveJob(name, err, time.Since(start))
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpireQuotes, s.ExpireQuotesJob},
		{JobWebhookBacklog, s.WebhookBacklogJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// empty means every job runs
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ExpireQuotesJob moves overdue open quotes to EXPIRED.
func (s *Scheduler) ExpireQuotesJob(ctx context.Context) error {
	affected, err := s.quoteSvc.SweepExpired(ctx)
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(affected)
	return nil
}

// WebhookBacklogJob reports ledger entries that stayed unprocessed longer
// than BacklogAge. It never replays them.
func (s *Scheduler) WebhookBacklogJob(ctx context.Context) error {
	if s.webhookSvc == nil {
		return nil
	}
	events, err := s.webhookSvc.ListUnprocessed(ctx, s.cfg.BacklogLimit)
	if err != nil {
		return err
	}

	cutoff := s.clock.Now().Add(-s.cfg.BacklogAge)
	var stale int64
	var oldest time.Time
	for _, ev := range events {
		if ev.CreatedAt.After(cutoff) {
			continue
		}
		if stale == 0 || ev.CreatedAt.Before(oldest) {
			oldest = ev.CreatedAt
		}
		stale++
	}
	jobRunFromContext(ctx).AddProcessed(stale)

	if stale > 0 {
		s.logger(ctx).Warn("unprocessed webhook events waiting for replay",
			zap.Int64("count", stale),
			zap.Time("oldest_created_at", oldest),
		)
	}
	return nil
}
