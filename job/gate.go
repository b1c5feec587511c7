package job

import (
	"context"
	"sync"
)

// gates serializes jobs per device key. Jobs on different keys never
// wait on each other.
type gates struct {
	mu    sync.Mutex
	slots map[string]*gate
}

type gate struct {
	ch   chan struct{}
	refs int
}

func newGates() *gates {
	return &gates{slots: make(map[string]*gate)}
}

// acquire blocks until the gate for key is free or ctx is done. The
// returned release func is safe to call more than once.
func (g *gates) acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	gt, ok := g.slots[key]
	if !ok {
		gt = &gate{ch: make(chan struct{}, 1)}
		g.slots[key] = gt
	}
	gt.refs++
	g.mu.Unlock()

	select {
	case gt.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-gt.ch
				g.unref(key, gt)
			})
		}, nil
	case <-ctx.Done():
		g.unref(key, gt)
		return nil, ctx.Err()
	}
}

func (g *gates) unref(key string, gt *gate) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gt.refs--
	if gt.refs == 0 {
		delete(g.slots, key)
	}
}

// size returns the number of keys currently held or waited on
func (g *gates) size() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.slots)
}
