package bignum

import "fmt"

// Add returns a newly allocated Decimal holding a+b. The result comes from
// the allocator of the longer operand. a and b are reversed in place while
// the sum is computed and restored before Add returns, on every path.
// Zero-length operands count as zero.
func Add(a, b *Decimal) (*Decimal, error) {
	if a.Len() < b.Len() {
		swap(&a, &b)
	}

	da, db := a.digits, b.digits
	shared := len(db) > 0 && &da[0] == &db[0]

	reverse(da)
	if !shared {
		reverse(db)
	}
	defer func() {
		reverse(da)
		if !shared {
			reverse(db)
		}
	}()

	alloc := a.allocator()
	buf, err := alloc.Alloc(len(da) + 1)
	if err != nil {
		return nil, fmt.Errorf("add %d-digit and %d-digit values: %w", len(da), len(db), err)
	}

	var carry byte
	i := 0
	for ; i < len(db); i++ {
		sum := (da[i] - '0') + (db[i] - '0') + carry
		buf[i] = '0' + sum%10
		carry = sum / 10
	}
	for ; i < len(da); i++ {
		sum := (da[i] - '0') + carry
		buf[i] = '0' + sum%10
		carry = sum / 10
	}
	if carry > 0 {
		buf[i] = '0' + carry
		i++
	}
	if i == 0 {
		buf[0] = '0'
		i = 1
	}

	out := buf[:i]
	reverse(out)

	return &Decimal{digits: out, alloc: alloc}, nil
}
