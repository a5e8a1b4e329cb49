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

package pipeline

import (
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPreservesSubmissionOrder(t *testing.T) {
	t.Parallel()

	// Workers finish out of order; results must not.
	p := New(8, 4, func() *rand.Rand {
		return rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec
	}, func(rng *rand.Rand, v int) (int, error) {
		time.Sleep(time.Duration(rng.Intn(3)) * time.Millisecond)
		return v * 2, nil
	})

	const jobs = 200
	go func() {
		defer p.CloseInput()
		for i := range jobs {
			if !p.Submit(i) {
				return
			}
		}
	}()

	for i := range jobs {
		v, ok, err := p.Next()
		require.True(t, ok)
		require.NoError(t, err)
		require.Equal(t, i*2, v)
	}

	_, ok, _ := p.Next()
	require.False(t, ok)
}

func TestPerWorkerState(t *testing.T) {
	t.Parallel()

	var created atomic.Int32
	p := New(4, 4, func() *int {
		created.Add(1)
		return new(int)
	}, func(state *int, v int) (int, error) {
		*state++
		return *state, nil
	})

	go func() {
		defer p.CloseInput()
		for range 100 {
			p.Submit(0)
		}
	}()

	total := 0
	for {
		_, ok, err := p.Next()
		if !ok {
			break
		}
		require.NoError(t, err)
		total++
	}

	require.Equal(t, 100, total)
	require.Equal(t, int32(4), created.Load())
}

func TestJobErrorDelivered(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := New(2, 2, func() struct{} { return struct{}{} }, func(_ struct{}, v int) (int, error) {
		if v == 3 {
			return 0, boom
		}
		return v, nil
	})

	go func() {
		defer p.CloseInput()
		for i := range 6 {
			if !p.Submit(i) {
				return
			}
		}
	}()

	var got error
	for {
		_, ok, err := p.Next()
		if !ok {
			break
		}
		if err != nil {
			got = err
			p.Abort()
			for {
				if _, ok, _ := p.Next(); !ok {
					break
				}
			}
			break
		}
	}

	require.ErrorIs(t, got, boom)
}

func TestAbortUnblocksSubmit(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	p := New(1, 1, func() struct{} { return struct{}{} }, func(_ struct{}, v int) (int, error) {
		<-block
		return v, nil
	})

	submitted := make(chan bool)
	go func() {
		ok := true
		for i := 0; ok && i < 100; i++ {
			ok = p.Submit(i)
		}
		submitted <- ok
	}()

	// The submitter fills the queue and blocks; abort must release it.
	time.Sleep(10 * time.Millisecond)
	p.Abort()
	close(block)

	require.False(t, <-submitted)
	p.CloseInput()
	for {
		if _, ok, _ := p.Next(); !ok {
			break
		}
	}
}
