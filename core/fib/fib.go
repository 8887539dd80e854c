// Package fib computes exact Fibonacci numbers on top of bignum.
package fib

import (
	"errors"
	"fmt"

	"github.com/searchktools/fib-server/core/bignum"
)

// ErrTooLarge is returned when n exceeds the engine's MaxN.
var ErrTooLarge = errors.New("fib: index exceeds configured maximum")

// Engine computes f(n) with f(0)=0, f(1)=1.
type Engine struct {
	alloc bignum.Allocator
	maxN  uint64
}

// NewEngine returns an engine that draws digit buffers from alloc (nil
// selects bignum.DefaultAllocator). maxN > 0 bounds the accepted index.
func NewEngine(alloc bignum.Allocator, maxN uint64) *Engine {
	if alloc == nil {
		alloc = bignum.DefaultAllocator
	}
	return &Engine{alloc: alloc, maxN: maxN}
}

// window holds three consecutive sequence values, oldest first.
type window [3]*bignum.Decimal

func (w *window) release() {
	for i := range w {
		w[i].Release()
		w[i] = nil
	}
}

// Compute returns f(n) as a decimal string owned by the caller.
//
// Storage stays at three slots regardless of n: every step replaces the
// newest slot with the sum of the other two and then drops the oldest.
func (e *Engine) Compute(n uint64) (string, error) {
	if e.maxN > 0 && n > e.maxN {
		return "", fmt.Errorf("%w: %d > %d", ErrTooLarge, n, e.maxN)
	}

	var w window
	defer w.release()

	for i, seed := range [...]string{"0", "1", "1"} {
		d, err := bignum.ParseWith(e.alloc, seed)
		if err != nil {
			return "", fmt.Errorf("seed fib window: %w", err)
		}
		w[i] = d
	}

	if n <= 1 {
		return w[n].String(), nil
	}

	for i := uint64(2); i <= n; i++ {
		sum, err := bignum.Add(w[0], w[1])
		if err != nil {
			return "", fmt.Errorf("fib(%d) at step %d: %w", n, i, err)
		}
		w[2].Release()
		w[2] = sum

		if i < n {
			w[0].Release()
			w[0], w[1], w[2] = w[1], w[2], nil
		}
	}

	return w[2].String(), nil
}

// Handler adapts the engine to a route handler signature.
func (e *Engine) Handler() func(n uint64) (string, error) {
	return e.Compute
}
