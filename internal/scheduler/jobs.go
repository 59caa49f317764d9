package scheduler

import (
	"context"

	obsmetrics "github.com/smallbiznis/settlr/internal/observability/metrics"
	"go.uber.org/zap"
)

// ExpireSubscriptionsJob flips lapsed active subscriptions to expired so
// stored status catches up with what readers already observe.
func (s *Scheduler) ExpireSubscriptionsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobExpireSubscriptions, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	expired, err := s.ledger.ExpireDue(ctx, s.clock.Now(), s.cfg.BatchSize)
	run.AddProcessed(expired)
	obsmetrics.Scheduler().AddBatchProcessed(JobExpireSubscriptions, "subscriptions", expired)
	if err != nil {
		s.logSchedulerError(ctx, run, "expire subscriptions failed", JobExpireSubscriptions, err)
		return err
	}
	return nil
}

// StalePendingJob reports payments whose callback never arrived. It only
// observes; a pending payment is settled when (and if) its callback lands.
func (s *Scheduler) StalePendingJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobStalePending, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	cutoff := s.clock.Now().Add(-s.cfg.StaleAfter)
	count, err := s.payments.CountStalePending(ctx, cutoff)
	if err != nil {
		s.logSchedulerError(ctx, run, "count stale payments failed", JobStalePending, err)
		return err
	}
	obsmetrics.Scheduler().SetStalePending(int(count))
	if count == 0 {
		return nil
	}

	stale, err := s.payments.ListStalePending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		s.logSchedulerError(ctx, run, "list stale payments failed", JobStalePending, err)
		return err
	}
	log := s.logger(ctx)
	for _, payment := range stale {
		log.Warn("payment callback overdue",
			zap.String("reference", payment.Reference),
			zap.String("owner_id", payment.OwnerID.String()),
			zap.Int64("amount", payment.Amount),
			zap.Time("created_at", payment.CreatedAt),
		)
	}
	run.AddProcessed(len(stale))
	obsmetrics.Scheduler().AddBatchProcessed(JobStalePending, "payments", len(stale))
	return nil
}

// PublishEventsJob drains the settlement outbox.
func (s *Scheduler) PublishEventsJob(ctx context.Context) error {
	ctx, run, owner := s.ensureJobRun(ctx, JobPublishEvents, s.cfg.BatchSize)
	if owner {
		s.logJobStart(ctx, run)
		defer s.logJobFinish(ctx, run)
	}

	published, err := s.relay.PublishPending(ctx, s.cfg.BatchSize)
	run.AddProcessed(published)
	obsmetrics.Scheduler().AddBatchProcessed(JobPublishEvents, "settlement_events", published)
	if err != nil {
		s.logSchedulerError(ctx, run, "publish settlement events failed", JobPublishEvents, err)
		return err
	}
	return nil
}
