package roster

import (
	"fmt"
	"sync"
)

type dispatchResult struct {
	value interface{}
	err   error
}

// dispatcher serializes all roster mutation onto a single goroutine.
//
// Snapshot polls, push events, and view calls arrive from different
// goroutines; funneling them through one queue keeps the Reconciler
// single-writer without per-field locking.
type dispatcher struct {
	once sync.Once
	q    chan func()
}

func newDispatcher(queueSize int) *dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &dispatcher{
		q: make(chan func(), queueSize),
	}
	d.once.Do(func() {
		go func() {
			for fn := range d.q {
				if fn != nil {
					fn()
				}
			}
		}()
	})
	return d
}

func (d *dispatcher) do(fn func()) error {
	if d == nil {
		return fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil
	}
	d.q <- fn
	return nil
}

func (d *dispatcher) call(fn func() (interface{}, error)) (interface{}, error) {
	if d == nil {
		return nil, fmt.Errorf("dispatcher not initialized")
	}
	if fn == nil {
		return nil, nil
	}
	done := make(chan dispatchResult, 1)
	d.q <- func() {
		value, err := fn()
		done <- dispatchResult{value: value, err: err}
	}
	res := <-done
	return res.value, res.err
}
