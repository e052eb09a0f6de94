package crypto

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/share"
)

// ErrInsufficientShares is returned when a reconstruction is attempted with
// fewer than threshold shares. The caller must treat this as fatal for the
// round: no partial reconstruction is ever produced.
var ErrInsufficientShares = errors.New("insufficient shares for reconstruction")

// ErrDuplicateShareIndex is returned when two shares carry the same index.
var ErrDuplicateShareIndex = errors.New("duplicate share index")

// Shamir sharing runs over the edwards25519 scalar field; a 128-bit seed
// embeds losslessly in a scalar.
var shareSuite = edwards25519.NewBlakeSHA256Ed25519()

// SeedShare is one Shamir share of a masking seed. Index identifies the
// committee member slot the share was dealt to (0-based); any t shares with
// distinct indices reconstruct the seed, and t-1 reveal nothing about it.
type SeedShare struct {
	Index int    `json:"index"`
	Value []byte `json:"value"`
}

// SplitSeed deals n Shamir shares of the seed with reconstruction
// threshold t.
func SplitSeed(seed Seed, n, t int) ([]SeedShare, error) {
	if t < 1 || n < t {
		return nil, fmt.Errorf("invalid sharing parameters n=%d t=%d", n, t)
	}

	secret := shareSuite.Scalar().SetBytes(seed[:])
	poly := share.NewPriPoly(shareSuite, t, secret, shareSuite.RandomStream())

	priShares := poly.Shares(n)
	out := make([]SeedShare, n)
	for i, ps := range priShares {
		value, err := ps.V.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = SeedShare{Index: ps.I, Value: value}
	}
	return out, nil
}

// RecoverSeed reconstructs a seed from at least t shares with distinct
// indices. Fewer than t shares fail with ErrInsufficientShares; duplicate
// indices fail with ErrDuplicateShareIndex; shares that do not decode to a
// seed-sized scalar fail with ErrMalformedValue.
func RecoverSeed(shares []SeedShare, t int) (Seed, error) {
	var seed Seed

	if len(shares) < t {
		return seed, fmt.Errorf("%w: got %d, need %d", ErrInsufficientShares, len(shares), t)
	}

	seen := make(map[int]bool, len(shares))
	priShares := make([]*share.PriShare, len(shares))
	for i, s := range shares {
		if seen[s.Index] {
			return seed, fmt.Errorf("%w: index %d", ErrDuplicateShareIndex, s.Index)
		}
		seen[s.Index] = true

		v := shareSuite.Scalar()
		if err := v.UnmarshalBinary(s.Value); err != nil {
			return seed, fmt.Errorf("%w: share %d: %s", ErrMalformedValue, s.Index, err)
		}
		priShares[i] = &share.PriShare{I: s.Index, V: v}
	}

	secret, err := share.RecoverSecret(shareSuite, priShares, t, len(shares))
	if err != nil {
		return seed, fmt.Errorf("reconstruct seed: %w", err)
	}

	raw, err := secret.MarshalBinary()
	if err != nil {
		return seed, err
	}
	// A valid seed occupies the low 16 bytes of the little-endian scalar.
	for _, b := range raw[SeedSize:] {
		if b != 0 {
			return seed, fmt.Errorf("%w: reconstructed scalar is not a seed", ErrMalformedValue)
		}
	}
	copy(seed[:], raw[:SeedSize])
	return seed, nil
}
