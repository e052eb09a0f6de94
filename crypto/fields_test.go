package crypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldAddSubRoundTrip(t *testing.T) {
	f, err := NewField(DefaultFieldOrder)
	require.NoError(t, err)

	a, err := f.RandomElement()
	require.NoError(t, err)
	b, err := f.RandomElement()
	require.NoError(t, err)

	sum := new(big.Int).Set(a)
	f.AddInplace(sum, b)
	require.True(t, f.Contains(sum))

	f.SubInplace(sum, b)
	require.Zero(t, sum.Cmp(a))
}

func TestFieldSubWrapsAroundZero(t *testing.T) {
	f, err := NewField(big.NewInt(97))
	require.NoError(t, err)

	v := big.NewInt(3)
	f.SubInplace(v, big.NewInt(10))
	require.Equal(t, int64(90), v.Int64())
}

func TestFieldMulInverseRoundTrip(t *testing.T) {
	f, err := NewField(DefaultFieldOrder)
	require.NoError(t, err)

	a, err := f.RandomElement()
	require.NoError(t, err)

	inv, err := f.Inverse(a)
	require.NoError(t, err)

	prod := new(big.Int).Set(a)
	f.MulInplace(prod, inv)
	require.Equal(t, int64(1), prod.Int64())

	_, err = f.Inverse(big.NewInt(0))
	require.ErrorIs(t, err, ErrMalformedValue)
}

func TestNewFieldRejectsInvalidOrder(t *testing.T) {
	_, err := NewField(nil)
	require.ErrorIs(t, err, ErrMalformedValue)

	_, err = NewField(big.NewInt(0))
	require.ErrorIs(t, err, ErrMalformedValue)

	_, err = NewField(big.NewInt(-7))
	require.ErrorIs(t, err, ErrMalformedValue)
}

func TestVectorValidate(t *testing.T) {
	f, err := NewField(big.NewInt(101))
	require.NoError(t, err)

	v := NewVectorFromInt64(f, []int64{1, 2, 3})
	require.NoError(t, v.Validate(f, 3))

	require.ErrorIs(t, v.Validate(f, 4), ErrMalformedValue)

	v[1] = big.NewInt(101) // not canonical
	require.ErrorIs(t, v.Validate(f, 3), ErrMalformedValue)

	v[1] = nil
	require.ErrorIs(t, v.Validate(f, 3), ErrMalformedValue)
}

func TestVectorAddSubInplace(t *testing.T) {
	f, err := NewField(big.NewInt(101))
	require.NoError(t, err)

	a := NewVectorFromInt64(f, []int64{100, 50, 0})
	b := NewVectorFromInt64(f, []int64{5, 60, 0})

	sum := a.Clone().AddInplace(f, b)
	require.True(t, sum.Equal(NewVectorFromInt64(f, []int64{4, 9, 0})))

	sum.SubInplace(f, b)
	require.True(t, sum.Equal(a))
}

func TestNewVectorFromInt64Negative(t *testing.T) {
	f, err := NewField(big.NewInt(101))
	require.NoError(t, err)

	v := NewVectorFromInt64(f, []int64{-1})
	require.Equal(t, int64(100), v[0].Int64())
	require.NoError(t, v.Validate(f, 1))
}
