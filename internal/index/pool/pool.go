package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"filedex/internal/index/meta"
)

// ErrStoreBusy means no pool slot became free within the acquire timeout.
// Callers should retry with backoff rather than queue indefinitely.
var ErrStoreBusy = errors.New("store busy")

// Pool is the sole gatekeeper of the metadata store. At most one writer is
// outstanding at a time; readers run concurrently with each other and,
// thanks to the store's WAL journal, with the writer. Waiters are served
// FIFO; waiting is bounded by the acquire timeout.
type Pool struct {
	store   *meta.Store
	readers *semaphore.Weighted
	writer  *semaphore.Weighted

	size           int
	acquireTimeout time.Duration

	activeReaders atomic.Int64
	writerBusy    atomic.Bool
}

type Options struct {
	ReaderSlots    int
	AcquireTimeout time.Duration
}

func New(store *meta.Store, opts Options) (*Pool, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	slots := opts.ReaderSlots
	if slots <= 0 {
		slots = 8
	}
	timeout := opts.AcquireTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pool{
		store:          store,
		readers:        semaphore.NewWeighted(int64(slots)),
		writer:         semaphore.NewWeighted(1),
		size:           slots,
		acquireTimeout: timeout,
	}, nil
}

// WithReader runs fn with a scoped read handle. The handle is released on
// return, including on panic or error.
func (p *Pool) WithReader(ctx context.Context, fn func(s *meta.Store) error) error {
	if p == nil {
		return fmt.Errorf("pool is nil")
	}
	if err := p.acquire(ctx, p.readers); err != nil {
		return err
	}
	p.activeReaders.Add(1)
	defer func() {
		p.activeReaders.Add(-1)
		p.readers.Release(1)
	}()
	return fn(p.store)
}

// WithWriter runs fn with the single write handle, serializing all writers.
func (p *Pool) WithWriter(ctx context.Context, fn func(s *meta.Store) error) error {
	if p == nil {
		return fmt.Errorf("pool is nil")
	}
	if err := p.acquire(ctx, p.writer); err != nil {
		return err
	}
	p.writerBusy.Store(true)
	defer func() {
		p.writerBusy.Store(false)
		p.writer.Release(1)
	}()
	return fn(p.store)
}

func (p *Pool) acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if ctx == nil {
		ctx = context.Background()
	}
	acquireCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()

	if err := sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrStoreBusy
	}
	return nil
}

// Gauge is a point-in-time saturation snapshot for health reporting.
type Gauge struct {
	ActiveReaders int  `json:"active_readers"`
	IdleReaders   int  `json:"idle_readers"`
	TotalReaders  int  `json:"total_readers"`
	WriterBusy    bool `json:"writer_busy"`
}

func (p *Pool) Gauge() Gauge {
	if p == nil {
		return Gauge{}
	}
	active := int(p.activeReaders.Load())
	return Gauge{
		ActiveReaders: active,
		IdleReaders:   p.size - active,
		TotalReaders:  p.size,
		WriterBusy:    p.writerBusy.Load(),
	}
}
