package application

import (
	"context"
	"log"
	"time"
)

// Scheduler runs the missed-settlement check once a day.
type Scheduler struct {
	service *Service
	dailyAt string
	logger  *log.Logger
}

// NewScheduler constructs a Scheduler. dailyAt is "HH:MM" in UTC.
func NewScheduler(service *Service, dailyAt string, logger *log.Logger) *Scheduler {
	return &Scheduler{
		service: service,
		dailyAt: dailyAt,
		logger:  logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.service == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if !s.shouldRun(now.UTC()) {
				continue
			}
			s.runOnce(ctx, now.UTC())
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	return now.Hour() == hour && now.Minute() == minute
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	missed, err := s.service.CheckMissedSettlements(ctx, now)
	if err != nil && s.logger != nil {
		s.logger.Printf("settlement missed check error: err=%v", err)
	}
	if len(missed) > 0 && s.logger != nil {
		s.logger.Printf("settlement missed check: locked=%d", len(missed))
	}
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
