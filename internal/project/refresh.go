package project

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// nextDelay returns the duration from now until the schedule next fires.
func nextDelay(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RunRefreshLoop re-analyzes ready projects each time sched fires until ctx
// is cancelled.
func (s *Service) RunRefreshLoop(ctx context.Context, sched cron.Schedule) {
	for {
		timer := time.NewTimer(nextDelay(sched, time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		n, err := s.RefreshAnalyses(ctx)
		if err != nil {
			log.Printf("project: refresh sweep: %v", err)
			continue
		}
		log.Printf("project: refresh sweep re-analyzed %d projects", n)
	}
}
