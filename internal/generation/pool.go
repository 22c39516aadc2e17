package generation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"menu3d/internal/domain"
	"menu3d/internal/infra"
)

var (
	// ErrPoolStopped is returned once Stop has been called.
	ErrPoolStopped = errors.New("worker pool stopped")

	errReservationUsed = errors.New("reservation already used")
)

// Task is one unit of work. ctx is cancelled when the pool stops.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed number of workers behind a bounded queue.
// Capacity is claimed with Reserve before any work is prepared so callers can
// reject early instead of blocking.
type Pool struct {
	workers int
	slots   chan struct{}
	tasks   chan Task
	logger  infra.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewPool(workers, queueSize int, logger infra.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	capacity := workers + queueSize
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		workers: workers,
		slots:   make(chan struct{}, capacity),
		tasks:   make(chan Task, capacity),
		logger:  infra.Component(logger, "pool"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info().Int("workers", p.workers).Int("capacity", cap(p.slots)).Msg("pool started")
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
		<-p.slots
	}
}

func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Int("worker", id).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("task panicked")
		}
	}()
	task(p.ctx)
}

// Reserve claims one slot without blocking. It fails with domain.ErrQueueFull
// when every worker is busy and the queue is full.
func (p *Pool) Reserve() (*Reservation, error) {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return nil, ErrPoolStopped
	}
	select {
	case p.slots <- struct{}{}:
		return &Reservation{pool: p}, nil
	default:
		return nil, domain.ErrQueueFull
	}
}

// InFlight reports reserved slots, running and queued.
func (p *Pool) InFlight() int {
	return len(p.slots)
}

// Capacity is the number of workers plus queue size.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}

// Stop refuses new work, cancels the context handed to tasks and waits for
// queued and running tasks to return or ctx to end.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.tasks)
	p.mu.Unlock()

	p.cancel()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info().Msg("pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool stop: %w", ctx.Err())
	}
}

// Reservation is a claimed pool slot. Exactly one of Submit or Release
// should be called; extra calls are no-ops.
type Reservation struct {
	pool *Pool
	once sync.Once
}

// Submit enqueues task on the reserved slot. It never blocks.
func (r *Reservation) Submit(task Task) error {
	err := errReservationUsed
	r.once.Do(func() {
		p := r.pool
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.stopped {
			<-p.slots
			err = ErrPoolStopped
			return
		}
		p.tasks <- task
		err = nil
	})
	return err
}

// Release returns an unused slot.
func (r *Reservation) Release() {
	r.once.Do(func() {
		<-r.pool.slots
	})
}
