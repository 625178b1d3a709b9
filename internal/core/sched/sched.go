package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind names a scheduled cycle.
type Kind string

const (
	KindFull        Kind = "full"
	KindIncremental Kind = "incremental"
	KindCleanup     Kind = "cleanup"
)

// Job is one cycle body. The scheduler never runs the same kind twice
// concurrently; a tick that lands while the job is running is skipped,
// not queued.
type Job func(ctx context.Context) error

// JobStatus is the reportable state of one registered job.
type JobStatus struct {
	Interval    time.Duration `json:"-"`
	IntervalSec int64         `json:"interval_seconds"`
	Running     bool          `json:"running"`
	LastSuccess time.Time     `json:"last_success"`
	LastError   string        `json:"last_error,omitempty"`
	Runs        int64         `json:"runs"`
}

type job struct {
	kind     Kind
	interval time.Duration
	fn       Job
	kick     chan struct{}

	mu          sync.Mutex
	running     bool
	lastSuccess time.Time
	lastError   string
	runs        int64
}

// Scheduler drives the periodic cycles. Register everything before Start;
// Stop waits for in-flight jobs to return.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[Kind]*job
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *slog.Logger
}

func New(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{jobs: map[Kind]*job{}, log: log}
}

func (s *Scheduler) Register(kind Kind, interval time.Duration, fn Job) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if fn == nil {
		return fmt.Errorf("job is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	if _, ok := s.jobs[kind]; ok {
		return fmt.Errorf("job %q already registered", kind)
	}
	s.jobs[kind] = &job{kind: kind, interval: interval, fn: fn, kick: make(chan struct{}, 1)}
	return nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already started")
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Trigger requests an immediate run. Returns false when the job is
// already running or a trigger is pending.
func (s *Scheduler) Trigger(kind Kind) bool {
	s.mu.Lock()
	j, ok := s.jobs[kind]
	s.mu.Unlock()
	if !ok {
		return false
	}
	j.mu.Lock()
	running := j.running
	j.mu.Unlock()
	if running {
		return false
	}
	select {
	case j.kick <- struct{}{}:
		return true
	default:
		return false
	}
}

// Status reports all registered jobs.
func (s *Scheduler) Status() map[Kind]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Kind]JobStatus, len(s.jobs))
	for kind, j := range s.jobs {
		j.mu.Lock()
		out[kind] = JobStatus{
			Interval:    j.interval,
			IntervalSec: int64(j.interval / time.Second),
			Running:     j.running,
			LastSuccess: j.lastSuccess,
			LastError:   j.lastError,
			Runs:        j.runs,
		}
		j.mu.Unlock()
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, j)
		case <-j.kick:
			s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		s.log.Debug("cycle still running, tick skipped", "kind", j.kind)
		return
	}
	j.running = true
	j.runs++
	j.mu.Unlock()

	err := j.fn(ctx)

	j.mu.Lock()
	j.running = false
	if err != nil {
		j.lastError = err.Error()
		if ctx.Err() == nil {
			s.log.Error("cycle failed", "kind", j.kind, "error", err)
		}
	} else {
		j.lastError = ""
		j.lastSuccess = time.Now()
	}
	j.mu.Unlock()
}
