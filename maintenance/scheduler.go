package maintenance

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registration is one recurring timer: the step kind it enqueues, the
// delay before the first firing and the period after that.
type Registration struct {
	Kind   Kind
	Due    time.Duration
	Period time.Duration
}

// DefaultSchedule returns the standard cadences. Fetching commits and trees
// is far cheaper through a cache server, so it runs much more often when
// one is configured.
func DefaultSchedule(usingCacheServer bool) []Registration {
	fetchPeriod := 24 * time.Hour
	if usingCacheServer {
		fetchPeriod = 15 * time.Minute
	}

	return []Registration{
		{Kind: KindFetchCommitsAndTrees, Due: fetchPeriod, Period: fetchPeriod},
		{Kind: KindLooseObjects, Due: 5 * time.Minute, Period: 6 * time.Hour},
		{Kind: KindPackfile, Due: 30 * time.Minute, Period: 12 * time.Hour},
		{Kind: KindCommitGraph, Due: 15 * time.Minute, Period: time.Hour},
	}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	schedule  func(usingCacheServer bool) []Registration
	queueOpts []QueueOption
}

// WithSchedule replaces DefaultSchedule.
func WithSchedule(fn func(usingCacheServer bool) []Registration) SchedulerOption {
	return func(o *schedulerOptions) {
		o.schedule = fn
	}
}

// WithQueueOptions passes options to the scheduler's queue.
func WithQueueOptions(opts ...QueueOption) SchedulerOption {
	return func(o *schedulerOptions) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// Scheduler owns the maintenance queue and one recurring timer per step
// kind. In unattended mode no timers are registered and only one-time steps
// run.
type Scheduler struct {
	mctx   *Context
	queue  *Queue
	regs   []Registration
	stops  []func()
	logger *slog.Logger

	closeOnce sync.Once
}

// NewScheduler starts the queue and, unless mctx.Unattended is set, the
// recurring timers. Whether a cache server is in use is read once here.
func NewScheduler(ctx context.Context, mctx *Context, opts ...SchedulerOption) *Scheduler {
	o := &schedulerOptions{schedule: DefaultSchedule}
	for _, opt := range opts {
		opt(o)
	}

	logger := mctx.logger()
	queueOpts := append([]QueueOption{WithQueueLogger(logger)}, o.queueOpts...)
	s := &Scheduler{
		mctx:   mctx,
		queue:  NewQueue(ctx, queueOpts...),
		logger: logger,
	}

	if mctx.Unattended {
		logger.Info("unattended mode, recurring maintenance disabled")
		return s
	}

	s.regs = o.schedule(mctx.Objects.IsUsingCacheServer())
	for _, reg := range s.regs {
		s.stops = append(s.stops, s.startTimer(reg))
		logger.Debug("registered maintenance timer",
			"step", string(reg.Kind),
			"due", reg.Due,
			"period", reg.Period)
	}
	return s
}

// Registrations returns a copy of the registered timers.
func (s *Scheduler) Registrations() []Registration {
	out := make([]Registration, len(s.regs))
	copy(out, s.regs)
	return out
}

// Queue returns the scheduler's queue.
func (s *Scheduler) Queue() *Queue {
	return s.queue
}

// Status returns a snapshot of the queue.
func (s *Scheduler) Status() QueueStatus {
	return s.queue.Status()
}

// NewOneTimeStep creates a forced step of the given kind against the
// scheduler's context.
func (s *Scheduler) NewOneTimeStep(kind Kind) (Step, error) {
	return NewStep(kind, s.mctx, true)
}

// EnqueueOneTimeStep queues step for immediate execution behind whatever is
// already pending. It returns false for a nil step and after Close.
func (s *Scheduler) EnqueueOneTimeStep(step Step) bool {
	if step == nil {
		s.logger.Warn("ignoring nil one-time step")
		return false
	}
	ok := s.queue.TryEnqueue(step)
	if !ok {
		s.logger.Debug("queue stopped, dropping one-time step", "step", string(step.Kind()))
	}
	return ok
}

// Close stops the queue and then every timer. A timer that fires in between
// finds the queue already rejecting work.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.queue.Stop()
		for _, stop := range s.stops {
			stop()
		}
	})
}

// startTimer enqueues a fresh step of reg.Kind after reg.Due and then every
// reg.Period until the returned stop function is called. Stop is safe to
// call multiple times and blocks until the goroutine has exited.
func (s *Scheduler) startTimer(reg Registration) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		timer := time.NewTimer(reg.Due)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.enqueueScheduled(reg.Kind)
		}

		if reg.Period <= 0 {
			return
		}
		ticker := time.NewTicker(reg.Period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.enqueueScheduled(reg.Kind)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

func (s *Scheduler) enqueueScheduled(kind Kind) {
	step, err := NewStep(kind, s.mctx, false)
	if err != nil {
		s.logger.Error("failed to create scheduled step", "step", string(kind), "error", err)
		return
	}
	if !s.queue.TryEnqueue(step) {
		s.logger.Debug("queue stopped, dropping scheduled step", "step", string(kind))
	}
}
