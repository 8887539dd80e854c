package bignum

import (
	"errors"
	"math/big"
	"math/rand"
	"strconv"
	"sync"
	"testing"
)

// trackingAllocator counts live buffers and can be told to fail after a
// number of successful allocations.
type trackingAllocator struct {
	mu        sync.Mutex
	live      int
	allocs    int
	failAfter int // <0 never fails
}

func newTrackingAllocator(failAfter int) *trackingAllocator {
	return &trackingAllocator{failAfter: failAfter}
}

func (ta *trackingAllocator) Alloc(n int) ([]byte, error) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	if ta.failAfter >= 0 && ta.allocs >= ta.failAfter {
		return nil, ErrAllocFailed
	}
	ta.allocs++
	ta.live++
	return make([]byte, n), nil
}

func (ta *trackingAllocator) Free(buf []byte) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.live--
}

func (ta *trackingAllocator) Live() int {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return ta.live
}

func TestParse_RoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "9", "10", "1234567890", "99999999999999999999999999999"} {
		d, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if d.String() != s {
			t.Errorf("Parse(%q).String() = %q", s, d.String())
		}
		if d.Len() != len(s) {
			t.Errorf("Parse(%q).Len() = %d", s, d.Len())
		}
		d.Release()
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "00", "01", "-1", "1a", " 1", "1.0"} {
		if _, err := Parse(s); !errors.Is(err, ErrInvalidDigits) {
			t.Errorf("Parse(%q): expected ErrInvalidDigits, got %v", s, err)
		}
	}
}

func TestParseWith_AllocFailure(t *testing.T) {
	ta := newTrackingAllocator(0)
	if _, err := ParseWith(ta, "123"); !errors.Is(err, ErrAllocFailed) {
		t.Errorf("Expected ErrAllocFailed, got %v", err)
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		a, b, want string
	}{
		{"0", "0", "0"},
		{"0", "7", "7"},
		{"7", "0", "7"},
		{"1", "9", "10"},
		{"99", "1", "100"},
		{"1", "999", "1000"},
		{"123", "877", "1000"},
		{"12345", "678", "13023"},
		{"354224848179261915075", "573147844013817084101", "927372692193078999176"},
	}

	for _, tt := range tests {
		a := MustParse(tt.a)
		b := MustParse(tt.b)

		got, err := Add(a, b)
		if err != nil {
			t.Fatalf("Add(%s, %s): %v", tt.a, tt.b, err)
		}
		if got.String() != tt.want {
			t.Errorf("Add(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
		if a.String() != tt.a || b.String() != tt.b {
			t.Errorf("Add mutated its operands: a=%s b=%s", a, b)
		}

		a.Release()
		b.Release()
		got.Release()
	}
}

func TestAdd_SameOperand(t *testing.T) {
	a := MustParse("123456789")
	defer a.Release()

	got, err := Add(a, a)
	if err != nil {
		t.Fatal(err)
	}
	defer got.Release()

	if got.String() != "246913578" {
		t.Errorf("Add(a, a) = %s", got)
	}
	if a.String() != "123456789" {
		t.Errorf("operand changed to %s", a)
	}
}

func TestAdd_ZeroLengthOperand(t *testing.T) {
	a := MustParse("42")
	empty := &Decimal{}

	got, err := Add(a, empty)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "42" {
		t.Errorf("Add(42, <empty>) = %s", got)
	}

	both, err := Add(&Decimal{}, &Decimal{})
	if err != nil {
		t.Fatal(err)
	}
	if both.String() != "0" {
		t.Errorf("Add(<empty>, <empty>) = %s", both)
	}
}

func TestAdd_CommutativeAndMatchesBigInt(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		x := randomDigits(rng, 1+rng.Intn(60))
		y := randomDigits(rng, 1+rng.Intn(60))

		a, b := MustParse(x), MustParse(y)
		ab, err := Add(a, b)
		if err != nil {
			t.Fatal(err)
		}
		ba, err := Add(b, a)
		if err != nil {
			t.Fatal(err)
		}

		if ab.String() != ba.String() {
			t.Fatalf("Add not commutative for %s, %s: %s vs %s", x, y, ab, ba)
		}

		bx, _ := new(big.Int).SetString(x, 10)
		by, _ := new(big.Int).SetString(y, 10)
		if want := new(big.Int).Add(bx, by).String(); ab.String() != want {
			t.Fatalf("Add(%s, %s) = %s, want %s", x, y, ab, want)
		}
		if s := ab.String(); len(s) > 1 && s[0] == '0' {
			t.Fatalf("result has leading zero: %s", s)
		}

		for _, d := range []*Decimal{a, b, ab, ba} {
			d.Release()
		}
	}
}

func TestAdd_AllocFailureRestoresOperands(t *testing.T) {
	ta := newTrackingAllocator(2)
	a, err := ParseWith(ta, "12345")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseWith(ta, "678")
	if err != nil {
		t.Fatal(err)
	}

	sum, err := Add(a, b)
	if !errors.Is(err, ErrAllocFailed) {
		t.Fatalf("Expected ErrAllocFailed, got %v", err)
	}
	if sum != nil {
		t.Error("Expected no partial result on failure")
	}
	if a.String() != "12345" || b.String() != "678" {
		t.Errorf("operands not restored: a=%s b=%s", a, b)
	}

	a.Release()
	b.Release()
	if ta.Live() != 0 {
		t.Errorf("Expected all buffers released, %d live", ta.Live())
	}
}

func TestPoolAllocator_MaxDigits(t *testing.T) {
	pa := NewPoolAllocator(nil, 3)

	a, err := ParseWith(pa, "999")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Release()

	// 999+1 needs a 4-byte output buffer.
	one, _ := ParseWith(pa, "1")
	defer one.Release()
	if _, err := Add(a, one); !errors.Is(err, ErrAllocFailed) {
		t.Errorf("Expected ErrAllocFailed past MaxDigits, got %v", err)
	}
}

func TestClone_Independent(t *testing.T) {
	a := MustParse("31415926")
	c, err := a.Clone()
	if err != nil {
		t.Fatal(err)
	}

	a.Release()
	if c.String() != "31415926" {
		t.Errorf("clone changed after releasing source: %s", c)
	}
	c.Release()
}

func TestRelease_Idempotent(t *testing.T) {
	ta := newTrackingAllocator(-1)
	d, err := ParseWith(ta, "5")
	if err != nil {
		t.Fatal(err)
	}

	d.Release()
	d.Release()

	if ta.Live() != 0 {
		t.Errorf("Expected 0 live buffers, got %d", ta.Live())
	}
	if d.Len() != 0 {
		t.Errorf("Released decimal should be empty, len=%d", d.Len())
	}

	var nilDecimal *Decimal
	nilDecimal.Release()
}

func TestReverse(t *testing.T) {
	for n := 0; n < 6; n++ {
		s := make([]int, n)
		for i := range s {
			s[i] = i
		}
		reverse(s)
		for i := range s {
			if s[i] != n-1-i {
				t.Fatalf("reverse of len %d: %v", n, s)
			}
		}
	}
}

func randomDigits(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	b[0] = byte('1' + rng.Intn(9))
	for i := 1; i < n; i++ {
		b[i] = byte('0' + rng.Intn(10))
	}
	if n == 1 && rng.Intn(5) == 0 {
		return "0"
	}
	return string(b)
}

func BenchmarkAdd(b *testing.B) {
	x := MustParse(strconv.FormatUint(1<<63, 10) + "12345678901234567890")
	y := MustParse(strconv.FormatUint(1<<62, 10))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		s, err := Add(x, y)
		if err != nil {
			b.Fatal(err)
		}
		s.Release()
	}
}
