// Package bignum implements arbitrary-precision non-negative decimal integers
// stored as ASCII digit buffers.
//
// A Decimal owns its buffer. Buffers come from an Allocator and must be given
// back with Release once the value is no longer needed; after Release the
// Decimal reads as zero length.
package bignum

import (
	"errors"
	"fmt"

	"github.com/searchktools/fib-server/core/pools"
)

var (
	// ErrAllocFailed is returned when a digit buffer cannot be obtained.
	ErrAllocFailed = errors.New("bignum: digit buffer allocation failed")
	// ErrInvalidDigits is returned by Parse for malformed literals.
	ErrInvalidDigits = errors.New("bignum: invalid decimal literal")
)

// Allocator hands out digit buffers of an exact length.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(buf []byte)
}

// PoolAllocator allocates digit buffers from a tiered byte pool.
// MaxDigits > 0 caps the length of any single buffer.
type PoolAllocator struct {
	pool      *pools.BytePool
	MaxDigits int
}

// NewPoolAllocator returns an allocator backed by pool. A nil pool selects
// the process-wide byte pool.
func NewPoolAllocator(pool *pools.BytePool, maxDigits int) *PoolAllocator {
	if pool == nil {
		pool = pools.DefaultBytePool()
	}
	return &PoolAllocator{pool: pool, MaxDigits: maxDigits}
}

// Alloc implements Allocator.
func (pa *PoolAllocator) Alloc(n int) ([]byte, error) {
	if n < 0 || (pa.MaxDigits > 0 && n > pa.MaxDigits) {
		return nil, fmt.Errorf("%w: %d digits requested, limit %d", ErrAllocFailed, n, pa.MaxDigits)
	}
	return pa.pool.Get(n), nil
}

// Free implements Allocator.
func (pa *PoolAllocator) Free(buf []byte) {
	pa.pool.Put(buf)
}

// DefaultAllocator is used by Parse and by Decimals created without an
// explicit allocator.
var DefaultAllocator Allocator = NewPoolAllocator(nil, 0)

// Decimal is an owned, mutable, non-negative decimal integer.
// Digits are kept most-significant first with no leading zero unless the
// value is exactly "0".
type Decimal struct {
	digits []byte
	alloc  Allocator
}

// Parse builds a Decimal from a literal using DefaultAllocator.
func Parse(s string) (*Decimal, error) {
	return ParseWith(DefaultAllocator, s)
}

// MustParse is like Parse but panics on error. For constants and tests.
func MustParse(s string) *Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseWith builds a Decimal from a literal with the given allocator.
func ParseWith(alloc Allocator, s string) (*Decimal, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	if alloc == nil {
		alloc = DefaultAllocator
	}

	buf, err := alloc.Alloc(len(s))
	if err != nil {
		return nil, err
	}
	copy(buf, s)

	return &Decimal{digits: buf, alloc: alloc}, nil
}

func validate(s string) error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidDigits)
	}
	if len(s) > 1 && s[0] == '0' {
		return fmt.Errorf("%w: leading zero in %q", ErrInvalidDigits, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return fmt.Errorf("%w: byte %q at offset %d", ErrInvalidDigits, s[i], i)
		}
	}
	return nil
}

// Clone returns an independent copy of d from the same allocator.
func (d *Decimal) Clone() (*Decimal, error) {
	alloc := d.allocator()
	buf, err := alloc.Alloc(len(d.digits))
	if err != nil {
		return nil, err
	}
	copy(buf, d.digits)
	return &Decimal{digits: buf, alloc: alloc}, nil
}

// Len returns the number of digits.
func (d *Decimal) Len() int {
	if d == nil {
		return 0
	}
	return len(d.digits)
}

// String returns the digits as a freshly allocated string.
func (d *Decimal) String() string {
	if d == nil {
		return ""
	}
	return string(d.digits)
}

// Release gives the digit buffer back to its allocator. Releasing a nil or
// already released Decimal does nothing.
func (d *Decimal) Release() {
	if d == nil || d.digits == nil {
		return
	}
	d.allocator().Free(d.digits)
	d.digits = nil
}

func (d *Decimal) allocator() Allocator {
	if d.alloc == nil {
		return DefaultAllocator
	}
	return d.alloc
}

func swap[T any](a, b *T) {
	*a, *b = *b, *a
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		swap(&s[i], &s[j])
	}
}
