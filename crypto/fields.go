package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// ErrMalformedValue is returned for out-of-field or otherwise invalid inputs.
// Malformed values are always rejected, never silently reduced.
var ErrMalformedValue = errors.New("malformed value")

// DefaultFieldOrder is the default prime modulus for input vectors.
// 127 bits, large enough for 16-bit coefficients summed over tens of
// thousands of clients with plenty of headroom.
var DefaultFieldOrder *big.Int

func init() {
	DefaultFieldOrder, _ = big.NewInt(0).SetString("141504642401084501264176625615135659301", 10)
}

// Field wraps a prime modulus and provides modular arithmetic for mask and
// input vectors. The modulus is process-wide immutable configuration,
// initialized once at startup and passed explicitly.
type Field struct {
	order *big.Int
}

// NewField creates a Field with the given prime order.
func NewField(order *big.Int) (*Field, error) {
	if order == nil || order.Sign() <= 0 || order.BitLen() < 2 {
		return nil, fmt.Errorf("%w: field order must be a positive prime", ErrMalformedValue)
	}
	return &Field{order: new(big.Int).Set(order)}, nil
}

// Order returns a copy of the field order.
func (f *Field) Order() *big.Int {
	return new(big.Int).Set(f.order)
}

// ElementBytes returns the number of bytes needed to encode a field element.
func (f *Field) ElementBytes() int {
	return (f.order.BitLen() + 7) / 8
}

// Contains reports whether v is a canonical field element in [0, order).
func (f *Field) Contains(v *big.Int) bool {
	return v != nil && v.Sign() >= 0 && v.Cmp(f.order) < 0
}

// AddInplace performs modular addition in-place: l = (l + r) mod order.
// Both inputs must already be canonical field elements.
func (f *Field) AddInplace(l, r *big.Int) *big.Int {
	l.Add(l, r)
	if l.Cmp(f.order) >= 0 {
		l.Sub(l, f.order)
	}
	return l
}

// SubInplace performs modular subtraction in-place: l = (l - r) mod order.
// Both inputs must already be canonical field elements.
func (f *Field) SubInplace(l, r *big.Int) *big.Int {
	l.Sub(l, r)
	if l.Sign() < 0 {
		l.Add(l, f.order)
	}
	return l
}

// MulInplace performs modular multiplication in-place: l = (l * r) mod order.
func (f *Field) MulInplace(l, r *big.Int) *big.Int {
	l.Mul(l, r)
	return l.Mod(l, f.order)
}

// Inverse returns the multiplicative inverse of v modulo the order. Zero and
// non-invertible elements are rejected with ErrMalformedValue.
func (f *Field) Inverse(v *big.Int) (*big.Int, error) {
	if v == nil || v.Sign() == 0 {
		return nil, fmt.Errorf("%w: zero has no inverse", ErrMalformedValue)
	}
	inv := new(big.Int).ModInverse(v, f.order)
	if inv == nil {
		return nil, fmt.Errorf("%w: element not invertible", ErrMalformedValue)
	}
	return inv, nil
}

// RandomElement samples a uniform field element.
func (f *Field) RandomElement() (*big.Int, error) {
	return rand.Int(rand.Reader, f.order)
}

// Vector is a vector of field elements. All vector operations require the
// operands to have equal length and canonical elements.
type Vector []*big.Int

// NewVector creates a zero vector of the given length.
func NewVector(length int) Vector {
	v := make(Vector, length)
	for i := range v {
		v[i] = new(big.Int)
	}
	return v
}

// NewVectorFromInt64 creates a vector from int64 coefficients, reducing each
// into the field. Negative coefficients are mapped to their field
// representative.
func NewVectorFromInt64(f *Field, coeffs []int64) Vector {
	v := make(Vector, len(coeffs))
	for i, c := range coeffs {
		v[i] = new(big.Int).SetInt64(c)
		v[i].Mod(v[i], f.order)
	}
	return v
}

// Validate rejects vectors with nil or out-of-field elements, or with a
// length different from expected.
func (v Vector) Validate(f *Field, expectedLen int) error {
	if len(v) != expectedLen {
		return fmt.Errorf("%w: vector length %d, expected %d", ErrMalformedValue, len(v), expectedLen)
	}
	for i, el := range v {
		if !f.Contains(el) {
			return fmt.Errorf("%w: element %d out of field", ErrMalformedValue, i)
		}
	}
	return nil
}

// AddInplace adds o into v element-wise: v = (v + o) mod order.
func (v Vector) AddInplace(f *Field, o Vector) Vector {
	for i := range v {
		f.AddInplace(v[i], o[i])
	}
	return v
}

// SubInplace subtracts o from v element-wise: v = (v - o) mod order.
func (v Vector) SubInplace(f *Field, o Vector) Vector {
	for i := range v {
		f.SubInplace(v[i], o[i])
	}
	return v
}

// Clone returns a deep copy of the vector.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for i := range v {
		out[i] = new(big.Int).Set(v[i])
	}
	return out
}

// Equal reports whether two vectors are element-wise equal.
func (v Vector) Equal(o Vector) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i].Cmp(o[i]) != 0 {
			return false
		}
	}
	return true
}
