// Copyright (c) 2026 The Zaparoo Project.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of go-wia.
//
// go-wia is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-wia is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-wia.  If not, see <https://www.gnu.org/licenses/>.

// Package pipeline provides a bounded work queue over a fixed worker pool
// that yields results in submission order, however the workers finish.
// Each worker owns private state created once at startup, so the work
// function can reuse expensive scratch buffers without locking.
package pipeline

import "sync"

type job[I any] struct {
	seq   uint64
	value I
}

type result[O any] struct {
	seq   uint64
	value O
	err   error
}

// Pool is an order-preserving worker pool. One goroutine submits, one
// consumes; the pool itself may be handed between goroutines but each end
// is single-threaded.
type Pool[I, O any] struct {
	in      chan job[I]
	results chan result[O]
	done    chan struct{}
	seq     uint64

	closeOnce sync.Once
	abortOnce sync.Once
}

// New starts workers goroutines running work. Each worker calls newState
// once and passes the value to every invocation of work. depth is the
// capacity of the input queue and of the result channels; results that
// finish ahead of an earlier job wait in the reorder stage, which has no
// fixed bound.
func New[I, O, S any](workers, depth int, newState func() S, work func(S, I) (O, error)) *Pool[I, O] {
	p := &Pool[I, O]{
		in:      make(chan job[I], depth),
		results: make(chan result[O], depth),
		done:    make(chan struct{}),
	}

	unordered := make(chan result[O], depth)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state := newState()
			for j := range p.in {
				value, err := work(state, j.value)
				select {
				case unordered <- result[O]{seq: j.seq, value: value, err: err}:
				case <-p.done:
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(unordered)
	}()

	// Reorder completions back into submission order.
	go func() {
		defer close(p.results)
		pending := make(map[uint64]result[O])
		var next uint64
		for r := range unordered {
			pending[r.seq] = r
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				select {
				case p.results <- r:
				case <-p.done:
					return
				}
			}
		}
	}()

	return p
}

// Submit enqueues one job, blocking while the queue is full. It reports
// false once the pool has been aborted.
func (p *Pool[I, O]) Submit(value I) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	j := job[I]{seq: p.seq, value: value}
	select {
	case p.in <- j:
		p.seq++
		return true
	case <-p.done:
		return false
	}
}

// CloseInput marks the input complete. Next returns false once every
// submitted job has been delivered.
func (p *Pool[I, O]) CloseInput() {
	p.closeOnce.Do(func() { close(p.in) })
}

// Next returns the next result in submission order. ok is false when the
// pool is drained; err carries the job's own failure.
func (p *Pool[I, O]) Next() (value O, ok bool, err error) {
	r, ok := <-p.results
	if !ok {
		var zero O
		return zero, false, nil
	}
	return r.value, true, r.err
}

// Abort stops the pool without draining it. Blocked Submit and worker sends
// return immediately; queued jobs are dropped.
func (p *Pool[I, O]) Abort() {
	p.abortOnce.Do(func() { close(p.done) })
}
