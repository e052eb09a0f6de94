package protocol

import (
	"github.com/rtaiello/let-them-drop/crypto"
)

// MaskVector applies the masking rule for client self over the keyed set:
//
//	masked = x + PRG(selfSeed) + sum_{j>self} PRG(pairSeeds[j]) - sum_{j<self} PRG(pairSeeds[j])  (mod p)
//
// pairSeeds holds one per-round seed per keyed peer. The input vector is not
// modified.
func MaskVector(f *crypto.Field, x crypto.Vector, round uint64, self ClientID, selfSeed crypto.Seed, pairSeeds map[ClientID]crypto.Seed) crypto.Vector {
	masked := x.Clone()
	masked.AddInplace(f, crypto.ExpandMask(selfSeed, round, f, len(x)))

	for peer, seed := range pairSeeds {
		mask := crypto.ExpandMask(seed, round, f, len(x))
		if peer > self {
			masked.AddInplace(f, mask)
		} else {
			masked.SubInplace(f, mask)
		}
	}
	return masked
}

// removeSelfMask strips PRG(selfSeed) from the aggregate in-place.
func removeSelfMask(f *crypto.Field, agg crypto.Vector, round uint64, selfSeed crypto.Seed) {
	agg.SubInplace(f, crypto.ExpandMask(selfSeed, round, f, len(agg)))
}

// removePairwiseResidual strips the pairwise mask that online client self
// applied toward dropped keyed peer from the aggregate in-place. The sign is
// the inverse of the one self used when masking.
func removePairwiseResidual(f *crypto.Field, agg crypto.Vector, round uint64, self, dropped ClientID, seed crypto.Seed) {
	mask := crypto.ExpandMask(seed, round, f, len(agg))
	if dropped > self {
		agg.SubInplace(f, mask)
	} else {
		agg.AddInplace(f, mask)
	}
}
