// Package scheduler runs the monthly fee and interest cycle on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/teller-bank/teller_bank/internal/account"
	"github.com/teller-bank/teller_bank/internal/banking"
)

// DefaultSchedule runs at 02:00 on the first day of every month.
const DefaultSchedule = "0 2 1 * *"

// claims outlive the longest month so a late rerun cannot double charge
const claimTTL = 40 * 24 * time.Hour

// CycleRunner is the part of the banking engine the job needs.
type CycleRunner interface {
	Accounts(ctx context.Context) ([]account.Account, error)
	ApplyMonthlyCycle(ctx context.Context, number string) (banking.CycleResult, error)
}

// Summary reports what one run did.
type Summary struct {
	Period  string
	Applied int
	Skipped int
	Failed  int
}

// Scheduler manages the monthly cycle cron job.
type Scheduler struct {
	cron     *cron.Cron
	runner   CycleRunner
	claims   Claimer
	schedule string
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a scheduler. A nil cache falls back to a process-local claim set.
func New(runner CycleRunner, cache *redis.Client, schedule string, logger *slog.Logger) *Scheduler {
	var claims Claimer = newLocalClaimer()
	if cache != nil {
		claims = NewRedisClaimer(cache)
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.Recover(cronLogger))),
		runner:   runner,
		claims:   claims,
		schedule: schedule,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start registers the job and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.runJob); err != nil {
		return fmt.Errorf("schedule monthly cycle %q: %w", s.schedule, err)
	}
	s.logger.Info("scheduled monthly cycle job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once a running job finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runJob() {
	summary, err := s.RunCycle(context.Background())
	if err != nil {
		s.logger.Error("monthly cycle run failed", "period", summary.Period, "error", err)
		return
	}
	s.logger.Info("monthly cycle run finished", "period", summary.Period,
		"applied", summary.Applied, "skipped", summary.Skipped, "failed", summary.Failed)
}

// RunCycle applies the monthly cycle to every account not yet processed in
// the current calendar month.
func (s *Scheduler) RunCycle(ctx context.Context) (Summary, error) {
	summary := Summary{Period: s.now().Format("2006-01")}
	accts, err := s.runner.Accounts(ctx)
	if err != nil {
		return summary, fmt.Errorf("list accounts: %w", err)
	}

	for _, acct := range accts {
		key := summary.Period + ":" + acct.Number
		ok, err := s.claims.Claim(ctx, key, claimTTL)
		if err != nil {
			s.logger.Warn("monthly cycle claim failed", "account", acct.Number, "error", err)
			summary.Failed++
			continue
		}
		if !ok {
			summary.Skipped++
			continue
		}

		res, err := s.runner.ApplyMonthlyCycle(ctx, acct.Number)
		if err != nil {
			s.logger.Error("monthly cycle failed", "account", acct.Number, "error", err)
			if relErr := s.claims.Release(context.WithoutCancel(ctx), key); relErr != nil {
				s.logger.Warn("monthly cycle claim release failed", "account", acct.Number, "error", relErr)
			}
			summary.Failed++
			continue
		}
		if res.AuditErr != nil {
			s.logger.Warn("monthly cycle applied without audit record", "account", acct.Number, "error", res.AuditErr)
		}
		summary.Applied++
	}
	return summary, nil
}
