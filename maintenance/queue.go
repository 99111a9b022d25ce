package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/2thetop/scalar/errors"
)

// DefaultStopTimeout bounds how long Stop waits for the in-flight step.
const DefaultStopTimeout = 30 * time.Second

// QueueStatus is a snapshot of the queue.
type QueueStatus struct {
	Pending   int
	Running   Kind
	Completed int
	Stopped   bool
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStopTimeout sets the grace period Stop waits for the in-flight step.
func WithStopTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		q.stopTimeout = d
	}
}

// WithQueueLogger sets the logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithResultHandler registers fn to receive every StepResult on the worker
// goroutine, after the step returns.
func WithResultHandler(fn func(StepResult)) QueueOption {
	return func(q *Queue) {
		q.onResult = fn
	}
}

// Queue runs steps one at a time in enqueue order on a single worker
// goroutine. TryEnqueue never blocks on step execution.
type Queue struct {
	ctx         context.Context
	logger      *slog.Logger
	stopTimeout time.Duration
	onResult    func(StepResult)

	mu        sync.Mutex
	pending   []Step
	running   Kind
	completed int
	stopped   bool

	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewQueue starts a queue whose steps run under ctx. Canceling ctx aborts
// the in-flight step; Stop does not.
func NewQueue(ctx context.Context, opts ...QueueOption) *Queue {
	q := &Queue{
		ctx:         ctx,
		logger:      slog.New(slog.DiscardHandler),
		stopTimeout: DefaultStopTimeout,
		wake:        make(chan struct{}, 1),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	go q.worker()
	return q
}

// TryEnqueue appends step to the queue. It returns false once the queue is
// stopped. A step whose dedup key matches a pending step is dropped and
// reported as accepted.
func (q *Queue) TryEnqueue(step Step) bool {
	if step == nil {
		return false
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	if key := step.DedupKey(); key != "" {
		for _, p := range q.pending {
			if p.DedupKey() == key {
				q.mu.Unlock()
				q.logger.Debug("coalesced duplicate step", "step", string(step.Kind()))
				return true
			}
		}
	}
	q.pending = append(q.pending, step)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStatus{
		Pending:   len(q.pending),
		Running:   q.running,
		Completed: q.completed,
		Stopped:   q.stopped,
	}
}

// Stop rejects further steps, discards pending ones and waits up to the
// stop timeout for the in-flight step to return. It is safe to call more
// than once.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		discarded := q.pending
		q.pending = nil
		q.mu.Unlock()

		for _, s := range discarded {
			q.logger.Info("discarding pending step", "step", string(s.Kind()))
		}
		close(q.quit)

		timer := time.NewTimer(q.stopTimeout)
		defer timer.Stop()
		select {
		case <-q.done:
		case <-timer.C:
			q.logger.Warn("in-flight step still running after stop timeout",
				"timeout", q.stopTimeout)
		}
	})
}

// Done is closed once the worker goroutine has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

func (q *Queue) worker() {
	defer close(q.done)

	for {
		step, ok := q.next()
		if !ok {
			return
		}
		q.execute(step)
	}
}

// next blocks until a step is available or the queue is stopped.
func (q *Queue) next() (Step, bool) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return nil, false
		}
		if len(q.pending) > 0 {
			step := q.pending[0]
			q.pending[0] = nil
			q.pending = q.pending[1:]
			q.running = step.Kind()
			q.mu.Unlock()
			return step, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-q.quit:
		}
	}
}

func (q *Queue) execute(step Step) {
	start := time.Now()
	result := StepResult{Kind: step.Kind()}

	func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error("maintenance step panicked",
					"step", string(step.Kind()),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()))
				result = StepResult{
					Kind:     step.Kind(),
					Err:      errors.Newf(errors.CodeInternal, "step panicked: %v", r),
					Duration: time.Since(start),
				}
			}
		}()
		result = step.Execute(q.ctx)
	}()

	q.mu.Lock()
	q.running = ""
	q.completed++
	q.mu.Unlock()

	if q.onResult != nil {
		q.onResult(result)
	}
}
