package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Submit when the backlog is at capacity.
	ErrQueueFull = errors.New("worker: queue full")
	// ErrStopped is returned by Submit once Stop has begun.
	ErrStopped = errors.New("worker: pool stopped")
)

// Task is one unit of background work, such as an autosave snapshot.
type Task func(ctx context.Context) error

const (
	backlogPerWorker = 4
	taskTimeout      = 30 * time.Second
)

// Pool runs tasks on a fixed number of goroutines. Submit never blocks.
// Stop lets the backlog drain, so queued autosaves survive a graceful
// shutdown.
type Pool struct {
	tasks   chan Task
	workers int
	log     *zerolog.Logger
	wg      sync.WaitGroup

	mu      sync.RWMutex // guards stopped against sends on a closed channel
	stopped bool
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "autosave_pool").Logger()
	return &Pool{tasks: make(chan Task, workers*backlogPerWorker), workers: workers, log: &l}
}

// Start launches the workers. Tasks get ctx's values but not its
// cancellation; each task is bounded by its own timeout instead.
func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.tasks {
				p.run(base, id, task)
			}
		}(i)
	}
}

func (p *Pool) run(base context.Context, id int, task Task) {
	ctx, cancel := context.WithTimeout(base, taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		p.log.Warn().Int("worker", id).Err(err).Msg("task failed")
	}
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("worker: nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks and waits for the backlog to finish or ctx to end,
// whichever comes first. Safe to call more than once.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Warn().Int("backlog", len(p.tasks)).Msg("stopped before the backlog drained")
		return ctx.Err()
	}
}
