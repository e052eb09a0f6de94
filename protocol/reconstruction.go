package protocol

import (
	"fmt"

	"github.com/rtaiello/let-them-drop/crypto"
)

// unmaskAggregate strips the surviving mask material from the masked sum of
// the online set: each online client's self mask, and the residual pairwise
// masks online clients applied toward keyed peers that dropped after key
// agreement. Pairwise masks between two online clients already cancel in the
// sum and are never reconstructed; a dropped client's self mask is never
// touched, so its input stays hidden forever.
//
// The committee releases each online client's bundle at most once. Any
// client for whom fewer than threshold members answer makes the whole round
// fail with ErrInsufficientShares; a partial unmasking is never returned.
func unmaskAggregate(f *crypto.Field, committee *Committee, round uint64, sum crypto.Vector, online, dropped []ClientID) (crypto.Vector, error) {
	t := committee.Threshold()
	agg := sum.Clone()

	for _, id := range online {
		releases := committee.CollectShares(round, id)

		selfShares := make([]crypto.SeedShare, 0, len(releases))
		for _, rel := range releases {
			selfShares = append(selfShares, rel.SelfShare)
		}
		if len(selfShares) < t {
			return nil, fmt.Errorf("%w: client %d: %d of %d members answered, need %d",
				ErrInsufficientShares, id, len(releases), committee.Size(), t)
		}
		selfSeed, err := crypto.RecoverSeed(selfShares, t)
		if err != nil {
			return nil, fmt.Errorf("recover self seed of client %d: %w", id, err)
		}
		removeSelfMask(f, agg, round, selfSeed)

		for _, peer := range dropped {
			pairShares := make([]crypto.SeedShare, 0, len(releases))
			for _, rel := range releases {
				if share, ok := rel.PairwiseShares[peer]; ok {
					pairShares = append(pairShares, share)
				}
			}
			if len(pairShares) < t {
				return nil, fmt.Errorf("%w: pair (%d,%d): %d shares, need %d",
					ErrInsufficientShares, id, peer, len(pairShares), t)
			}
			pairSeed, err := crypto.RecoverSeed(pairShares, t)
			if err != nil {
				return nil, fmt.Errorf("recover pairwise seed (%d,%d): %w", id, peer, err)
			}
			removePairwiseResidual(f, agg, round, id, peer, pairSeed)
		}
	}

	return agg, nil
}
