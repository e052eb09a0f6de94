package protocol

import (
	"fmt"
	"slices"

	"github.com/rtaiello/let-them-drop/crypto"
)

// ClientSession holds one client's secret state for a synchronous round:
// the per-round ephemeral key, the pairwise seeds toward keyed peers, and
// the self-mask seed. A session is not safe for concurrent use; a client
// drives one round at a time.
type ClientSession struct {
	id         ClientID
	signingKey crypto.PrivateKey
	params     *Params
	field      *crypto.Field

	round     uint64
	kemPub    crypto.KemPublicKey
	kemPriv   crypto.KemPrivateKey
	committee []MemberInfo
	keyed     []ClientID
	pairSeeds map[ClientID]crypto.Seed
	selfSeed  crypto.Seed
	dealt     bool
}

// NewClientSession creates a session for a registered client.
func NewClientSession(id ClientID, signingKey crypto.PrivateKey, params *Params) (*ClientSession, error) {
	field, err := params.Field()
	if err != nil {
		return nil, err
	}
	return &ClientSession{
		id:         id,
		signingKey: signingKey,
		params:     params,
		field:      field,
	}, nil
}

// ID returns the client id.
func (s *ClientSession) ID() ClientID {
	return s.id
}

// RegisterMessage builds the signed registration announcement.
func (s *ClientSession) RegisterMessage() (*Signed[Register], error) {
	return NewSigned(s.signingKey, &Register{ClientID: s.id})
}

// BeginRound generates a fresh ephemeral key for the round and returns the
// signed key-exchange message. State from any previous round is discarded.
func (s *ClientSession) BeginRound(round uint64) (*Signed[KeyExchange], error) {
	pub, priv, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return nil, err
	}

	s.round = round
	s.kemPub = pub
	s.kemPriv = priv
	s.committee = nil
	s.keyed = nil
	s.pairSeeds = nil
	s.dealt = false

	return NewSigned(s.signingKey, &KeyExchange{
		ClientID:        s.id,
		Round:           round,
		EphemeralPubKey: pub.Bytes(),
	})
}

// ProcessRoundInfo derives the pairwise seed toward every keyed peer from
// the broadcast ephemeral keys. Returns ErrRoundClosed if this client did
// not make it into the keyed set; it then skips the round entirely.
func (s *ClientSession) ProcessRoundInfo(info *RoundInfo) error {
	if info.Round != s.round {
		return fmt.Errorf("%w: round info for %d, session at %d", ErrMalformedValue, info.Round, s.round)
	}
	if !slices.Contains(info.KeyedSet, s.id) {
		return fmt.Errorf("%w: client %d not in keyed set", ErrRoundClosed, s.id)
	}

	pairSeeds := make(map[ClientID]crypto.Seed, len(info.KeyedSet)-1)
	for _, peer := range info.KeyedSet {
		if peer == s.id {
			continue
		}
		peerKey, err := crypto.NewKemPublicKeyFromBytes(info.EphemeralKeys[peer])
		if err != nil {
			return fmt.Errorf("peer %d ephemeral key: %w", peer, err)
		}
		seed, err := derivePairSeed(s.kemPriv, peerKey, s.id, peer, s.round)
		if err != nil {
			return fmt.Errorf("peer %d key agreement: %w", peer, err)
		}
		pairSeeds[peer] = seed
	}

	s.keyed = slices.Clone(info.KeyedSet)
	s.committee = info.Committee
	s.pairSeeds = pairSeeds
	return nil
}

// DealShares samples the self-mask seed and deals Shamir shares of it and of
// every pairwise seed to the committee, one signed encrypted bundle per
// member.
func (s *ClientSession) DealShares() ([]*Signed[ShareSubmit], error) {
	if s.pairSeeds == nil {
		return nil, fmt.Errorf("deal shares before round info was processed")
	}

	selfSeed, err := crypto.NewRandomSeed()
	if err != nil {
		return nil, err
	}
	s.selfSeed = selfSeed
	s.dealt = true

	subs, err := dealShares(s.id, s.round, selfSeed, s.pairSeeds, s.committee, s.params.Threshold)
	if err != nil {
		return nil, err
	}
	out := make([]*Signed[ShareSubmit], 0, len(subs))
	for _, sub := range subs {
		signed, err := NewSigned(s.signingKey, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, signed)
	}
	return out, nil
}

// MaskInput validates the input vector and masks it over the keyed set.
func (s *ClientSession) MaskInput(x crypto.Vector) (*Signed[MaskedInput], error) {
	if !s.dealt {
		return nil, fmt.Errorf("mask input before shares were dealt")
	}
	if err := x.Validate(s.field, s.params.VectorLength); err != nil {
		return nil, err
	}

	masked := MaskVector(s.field, x, s.round, s.id, s.selfSeed, s.pairSeeds)
	return NewSigned(s.signingKey, &MaskedInput{
		ClientID: s.id,
		Round:    s.round,
		Vector:   masked,
	})
}

// OwlClientSession holds one client's state for asynchronous windows. The
// KEM key is long-term: pairwise secrets are derivable for any window
// without a per-round exchange, and only the window index changes the seeds.
type OwlClientSession struct {
	id         ClientID
	signingKey crypto.PrivateKey
	params     *Params
	field      *crypto.Field
	kemPub     crypto.KemPublicKey
	kemPriv    crypto.KemPrivateKey
}

// NewOwlClientSession creates a session with a fresh long-term KEM key.
func NewOwlClientSession(id ClientID, signingKey crypto.PrivateKey, params *Params) (*OwlClientSession, error) {
	field, err := params.Field()
	if err != nil {
		return nil, err
	}
	pub, priv, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return nil, err
	}
	return &OwlClientSession{
		id:         id,
		signingKey: signingKey,
		params:     params,
		field:      field,
		kemPub:     pub,
		kemPriv:    priv,
	}, nil
}

// ID returns the client id.
func (s *OwlClientSession) ID() ClientID {
	return s.id
}

// RegisterMessage builds the signed registration announcement carrying the
// long-term KEM key.
func (s *OwlClientSession) RegisterMessage() (*Signed[Register], error) {
	return NewSigned(s.signingKey, &Register{
		ClientID:     s.id,
		KemPublicKey: s.kemPub.Bytes(),
	})
}

// Contribute masks the input for the announced window and piggybacks the
// committee share bundles on the contribution, so this single message is all
// the aggregator ever needs from the client. If the window closes before the
// message lands, the client calls Contribute again with the next window's
// announcement; seeds are bound to the window index, so remasking is safe.
func (s *OwlClientSession) Contribute(x crypto.Vector, info *WindowInfo) (*Signed[Contribution], error) {
	if err := x.Validate(s.field, s.params.VectorLength); err != nil {
		return nil, err
	}
	if !slices.Contains(info.Members, s.id) {
		return nil, fmt.Errorf("%w: client %d not in window member set", ErrRoundClosed, s.id)
	}

	pairSeeds := make(map[ClientID]crypto.Seed, len(info.Members)-1)
	for _, peer := range info.Members {
		if peer == s.id {
			continue
		}
		peerKey, err := crypto.NewKemPublicKeyFromBytes(info.KemKeys[peer])
		if err != nil {
			return nil, fmt.Errorf("peer %d kem key: %w", peer, err)
		}
		seed, err := derivePairSeed(s.kemPriv, peerKey, s.id, peer, info.Window)
		if err != nil {
			return nil, fmt.Errorf("peer %d key agreement: %w", peer, err)
		}
		pairSeeds[peer] = seed
	}

	selfSeed, err := crypto.NewRandomSeed()
	if err != nil {
		return nil, err
	}

	shares, err := dealShares(s.id, info.Window, selfSeed, pairSeeds, info.Committee, s.params.Threshold)
	if err != nil {
		return nil, err
	}

	masked := MaskVector(s.field, x, info.Window, s.id, selfSeed, pairSeeds)
	return NewSigned(s.signingKey, &Contribution{
		ClientID: s.id,
		Window:   info.Window,
		Vector:   masked,
		Shares:   shares,
	})
}

// derivePairSeed derives the symmetric per-round pairwise seed between two
// clients from an X25519 exchange.
func derivePairSeed(priv crypto.KemPrivateKey, peerPub crypto.KemPublicKey, self, peer ClientID, round uint64) (crypto.Seed, error) {
	shared, err := crypto.DeriveSharedSecret(priv, peerPub, []byte("ltd-pairwise-v1"))
	if err != nil {
		return crypto.Seed{}, err
	}
	lo, hi := uint64(self), uint64(peer)
	if lo > hi {
		lo, hi = hi, lo
	}
	return crypto.PairwiseRoundSeed(shared, lo, hi, round), nil
}

// dealShares splits the self seed and every pairwise seed with threshold t
// over the committee and encrypts one bundle per member.
func dealShares(id ClientID, round uint64, selfSeed crypto.Seed, pairSeeds map[ClientID]crypto.Seed, committee []MemberInfo, t int) ([]*ShareSubmit, error) {
	n := len(committee)
	if n == 0 {
		return nil, fmt.Errorf("empty committee roster")
	}

	selfShares, err := crypto.SplitSeed(selfSeed, n, t)
	if err != nil {
		return nil, err
	}
	pairShares := make(map[ClientID][]crypto.SeedShare, len(pairSeeds))
	for peer, seed := range pairSeeds {
		shares, err := crypto.SplitSeed(seed, n, t)
		if err != nil {
			return nil, err
		}
		pairShares[peer] = shares
	}

	out := make([]*ShareSubmit, 0, n)
	for slot, member := range committee {
		bundle := &ShareBundle{
			ClientID:       id,
			Round:          round,
			SelfShare:      selfShares[slot],
			PairwiseShares: make(map[ClientID]crypto.SeedShare, len(pairShares)),
		}
		for peer, shares := range pairShares {
			bundle.PairwiseShares[peer] = shares[slot]
		}

		plaintext, err := SerializeMessage(bundle)
		if err != nil {
			return nil, err
		}
		memberKey, err := crypto.NewKemPublicKeyFromBytes(member.KemPublicKey)
		if err != nil {
			return nil, fmt.Errorf("member %d kem key: %w", member.ID, err)
		}
		payload, err := crypto.Encrypt(memberKey, plaintext)
		if err != nil {
			return nil, fmt.Errorf("encrypt bundle for member %d: %w", member.ID, err)
		}

		out = append(out, &ShareSubmit{
			ClientID: id,
			Round:    round,
			MemberID: member.ID,
			Payload:  payload,
		})
	}
	return out, nil
}
