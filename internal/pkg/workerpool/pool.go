// Package workerpool provides a bounded goroutine pool for off-hot-path work:
// vault uploads, AIR record writes, chain appends. Submission never blocks the
// proxy response path.
package workerpool

import (
	"errors"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool wraps an ants pool with logging and graceful shutdown.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New creates a pool with the given worker count.
func New(size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 16
	}

	p, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, err
	}

	return &Pool{pool: p, logger: logger}, nil
}

// Submit schedules fn on the pool. Panics inside fn are recovered and logged
// so a bad background job cannot take down the gateway.
func (p *Pool) Submit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background job panic", zap.Any("panic", r))
			}
		}()
		fn()
	})
	if err != nil {
		p.wg.Done()
		return err
	}
	return nil
}

// Running returns the number of currently executing workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Close drains in-flight jobs and releases the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.pool.Release()
}
