// Package scheduler runs the periodic background refresh that keeps the
// vacancy store warm between per-user notifier cycles.
package scheduler

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/ilinovom/hh-vacancy-bot/internal/model"
)

type updater interface {
	Update(ctx context.Context) ([]*model.Vacancy, error)
}

// Scheduler wraps robfig/cron around the vacancy sync.
type Scheduler struct {
	cron      *cron.Cron
	vacancies updater
	spec      string // e.g. "@every 6h"
}

// New creates a Scheduler that refreshes every intervalHours hours.
func New(vacancies updater, intervalHours int) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		vacancies: vacancies,
		spec:      fmt.Sprintf("@every %dh", intervalHours),
	}
}

// Start registers the job and starts the cron loop, plus one immediate
// refresh so a fresh deployment does not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.refresh(ctx)
	}); err != nil {
		return fmt.Errorf("cron add func: %w", err)
	}
	s.cron.Start()
	log.Printf("[scheduler] started, spec %s", s.spec)

	go s.refresh(ctx)
	return nil
}

// Stop shuts the cron loop down.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] stopped")
}

func (s *Scheduler) refresh(ctx context.Context) {
	added, err := s.vacancies.Update(ctx)
	if err != nil {
		log.Printf("[scheduler] refresh: %v", err)
		return
	}
	log.Printf("[scheduler] refresh complete, %d new vacancies", len(added))
}
