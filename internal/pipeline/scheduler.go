package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers the daily batch run on a cron expression.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(runner *Runner, schedule string, log *slog.Logger) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		sum, err := runner.Run(context.Background())
		if err != nil {
			if errors.Is(err, ErrRunInProgress) {
				log.Warn("scheduled pipeline run skipped, previous run still active")
				return
			}
			log.Error("scheduled pipeline run failed", "err", err)
			return
		}
		log.Info("scheduled pipeline run done", "succeeded", sum.Succeeded, "failed", sum.Failed)
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{cron: c}, nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for an in-flight run before returning.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
