package jobs

import (
	"context"
	"log"
	"time"

	"agent-wallet.backend/internal/observability"
)

// Sweeper is the slice of the delay queue the sweep job drives.
type Sweeper interface {
	Sweep(ctx context.Context) (released, expired int, err error)
}

// QueueSweepJob releases due DELAY holds and expires overdue APPROVAL
// holds on a fixed cadence.
type QueueSweepJob struct {
	sweeper  Sweeper
	metrics  *observability.Metrics
	interval time.Duration
}

func NewQueueSweepJob(sweeper Sweeper, metrics *observability.Metrics, interval time.Duration) *QueueSweepJob {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &QueueSweepJob{
		sweeper:  sweeper,
		metrics:  metrics,
		interval: interval,
	}
}

// Task adapts the job for the scheduler.
func (j *QueueSweepJob) Task() Task {
	return Task{
		Name:     "queue sweep",
		Interval: j.interval,
		Run:      j.sweep,
	}
}

func (j *QueueSweepJob) sweep(ctx context.Context) error {
	released, expired, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if released > 0 || expired > 0 {
		log.Printf("✅ Queue sweep released %d and expired %d transactions", released, expired)
	}
	if j.metrics != nil {
		j.metrics.SweepReleased.Add(float64(released))
		j.metrics.SweepExpired.Add(float64(expired))
	}
	return nil
}
