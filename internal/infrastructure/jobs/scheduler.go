package jobs

import (
	"context"
	"log"
	"sync"
	"time"
)

// Task is one named periodic unit of work.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs registered tasks on their intervals. A tick is skipped
// when the previous run of the same task is still going, so a slow sweep
// never stacks up behind itself.
type Scheduler struct {
	tasks []*scheduledTask
	stop  chan struct{}
	wg    sync.WaitGroup

	shutdownGrace time.Duration
}

type scheduledTask struct {
	Task
	running sync.Mutex
}

// NewScheduler creates a scheduler. shutdownGrace bounds how long Stop
// waits for in-flight runs.
func NewScheduler(shutdownGrace time.Duration) *Scheduler {
	return &Scheduler{
		stop:          make(chan struct{}),
		shutdownGrace: shutdownGrace,
	}
}

// Register adds a task. Must be called before Start.
func (s *Scheduler) Register(task Task) {
	s.tasks = append(s.tasks, &scheduledTask{Task: task})
}

// Start launches one goroutine per task and returns.
func (s *Scheduler) Start(ctx context.Context) {
	for _, task := range s.tasks {
		log.Printf("🕐 Starting %s job (every %s)...", task.Name, task.Interval)
		s.wg.Add(1)
		go s.runLoop(ctx, task)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, task *scheduledTask) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("⏹️ %s job stopped (context cancelled)", task.Name)
			return
		case <-s.stop:
			log.Printf("⏹️ %s job stopped", task.Name)
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, task *scheduledTask) {
	if !task.running.TryLock() {
		log.Printf("⚠️ Skipping %s tick: previous run still in progress", task.Name)
		return
	}
	defer task.running.Unlock()

	if err := task.Run(ctx); err != nil {
		log.Printf("❌ Error in %s job: %v", task.Name, err)
	}
}

// Stop signals every task loop and waits up to the shutdown grace for
// in-flight runs to finish.
func (s *Scheduler) Stop() {
	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.shutdownGrace):
		log.Println("⚠️ Scheduler shutdown grace elapsed; abandoning in-flight runs")
	}
}
