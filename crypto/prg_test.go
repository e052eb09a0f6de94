package crypto

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandMaskDeterministic(t *testing.T) {
	f, err := NewField(DefaultFieldOrder)
	require.NoError(t, err)

	seed, err := NewRandomSeed()
	require.NoError(t, err)

	m1 := ExpandMask(seed, 7, f, 32)
	m2 := ExpandMask(seed, 7, f, 32)
	require.True(t, m1.Equal(m2))
	require.NoError(t, m1.Validate(f, 32))
}

func TestExpandMaskBoundToRound(t *testing.T) {
	f, err := NewField(DefaultFieldOrder)
	require.NoError(t, err)

	seed, err := NewRandomSeed()
	require.NoError(t, err)

	m1 := ExpandMask(seed, 1, f, 16)
	m2 := ExpandMask(seed, 2, f, 16)
	require.False(t, m1.Equal(m2), "mask material must not be replayable across rounds")
}

func TestExpandMaskDistinctSeeds(t *testing.T) {
	f, err := NewField(DefaultFieldOrder)
	require.NoError(t, err)

	s1, err := NewRandomSeed()
	require.NoError(t, err)
	s2, err := NewRandomSeed()
	require.NoError(t, err)

	require.False(t, ExpandMask(s1, 1, f, 16).Equal(ExpandMask(s2, 1, f, 16)))
}

func TestExpandMaskUnbiased(t *testing.T) {
	// Over GF(251) a single keystream byte reduced mod 251 would hit the
	// residues 0..4 twice as often as the rest. The expansion oversamples,
	// so the low residues must show up at their fair share.
	f, err := NewField(big.NewInt(251))
	require.NoError(t, err)

	var seed Seed
	seed[0] = 0x42

	const rounds, length = 100, 100
	low := 0
	for r := uint64(0); r < rounds; r++ {
		for _, el := range ExpandMask(seed, r, f, length) {
			if el.Int64() < 5 {
				low++
			}
		}
	}
	// Fair share is ~199 of 10000; the biased reduction lands near 390.
	require.Less(t, low, 300)
}

func TestSeedFromBytes(t *testing.T) {
	seed, err := NewRandomSeed()
	require.NoError(t, err)

	parsed, err := NewSeedFromBytes(seed.Bytes())
	require.NoError(t, err)
	require.Equal(t, seed, parsed)

	_, err = NewSeedFromBytes(seed.Bytes()[:SeedSize-1])
	require.ErrorIs(t, err, ErrMalformedValue)
}
