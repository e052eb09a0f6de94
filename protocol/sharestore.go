package protocol

import (
	"fmt"
	"sync"

	"github.com/rtaiello/let-them-drop/crypto"
)

// MemberInfo is the public view of a committee member: its id and the X25519
// key clients encrypt share bundles to.
type MemberInfo struct {
	ID           int    `json:"id"`
	KemPublicKey []byte `json:"kem_public_key"`
}

// CommitteeMember holds encrypted seed shares dealt to one committee slot.
// Bundles are write-once per (round, client) and released at most once per
// round, so the aggregator cannot widen its view by asking twice with
// different online sets.
type CommitteeMember struct {
	id      int
	kemPub  crypto.KemPublicKey
	kemPriv crypto.KemPrivateKey

	mu     sync.Mutex
	rounds map[uint64]map[ClientID]*storedBundle
}

type storedBundle struct {
	bundle   *ShareBundle
	released bool
}

// NewCommitteeMember creates a member with a fresh key pair.
func NewCommitteeMember(id int) (*CommitteeMember, error) {
	pub, priv, err := crypto.GenerateKemKeyPair()
	if err != nil {
		return nil, err
	}
	return &CommitteeMember{
		id:      id,
		kemPub:  pub,
		kemPriv: priv,
		rounds:  make(map[uint64]map[ClientID]*storedBundle),
	}, nil
}

// Info returns the member's public routing information.
func (m *CommitteeMember) Info() MemberInfo {
	return MemberInfo{ID: m.id, KemPublicKey: m.kemPub.Bytes()}
}

// StoreBundle decrypts and stores a share bundle addressed to this member.
// A second bundle from the same client for the same round is rejected; the
// first one stands.
func (m *CommitteeMember) StoreBundle(sub *ShareSubmit) error {
	if sub.MemberID != m.id {
		return fmt.Errorf("%w: bundle for member %d delivered to %d", ErrUnknownCommitteeMember, sub.MemberID, m.id)
	}

	plaintext, err := crypto.Decrypt(m.kemPriv, sub.Payload)
	if err != nil {
		return fmt.Errorf("%w: open share bundle: %s", ErrMalformedValue, err)
	}
	bundle, err := UnmarshalMessage[ShareBundle](plaintext)
	if err != nil {
		return fmt.Errorf("%w: decode share bundle: %s", ErrMalformedValue, err)
	}
	if bundle.ClientID != sub.ClientID || bundle.Round != sub.Round {
		return fmt.Errorf("%w: bundle identity does not match envelope", ErrMalformedValue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	byClient := m.rounds[sub.Round]
	if byClient == nil {
		byClient = make(map[ClientID]*storedBundle)
		m.rounds[sub.Round] = byClient
	}
	if _, ok := byClient[sub.ClientID]; ok {
		return fmt.Errorf("%w: share bundle for client %d round %d", ErrDuplicateContribution, sub.ClientID, sub.Round)
	}
	byClient[sub.ClientID] = &storedBundle{bundle: bundle}
	return nil
}

// ReleaseShares hands out the shares from one client's bundle, at most once
// per round. A member that never received the bundle returns
// ErrShareNotFound; reconstruction treats that as an honestly missing share
// and proceeds with the remaining members.
func (m *CommitteeMember) ReleaseShares(round uint64, clientID ClientID) (*ShareRelease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rounds[round][clientID]
	if !ok {
		return nil, fmt.Errorf("%w: client %d round %d at member %d", ErrShareNotFound, clientID, round, m.id)
	}
	if stored.released {
		return nil, fmt.Errorf("%w: shares for client %d round %d already released", ErrShareNotFound, clientID, round)
	}
	stored.released = true

	return &ShareRelease{
		MemberID:       m.id,
		ClientID:       clientID,
		SelfShare:      stored.bundle.SelfShare,
		PairwiseShares: stored.bundle.PairwiseShares,
	}, nil
}

// ClearRound drops all share material for a round. Called on round closure
// and on abort.
func (m *CommitteeMember) ClearRound(round uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rounds, round)
}

// Committee is the set of members a deployment deals shares to. In-process
// committees back tests and single-binary deployments; the HTTP services
// front the same type.
type Committee struct {
	members []*CommitteeMember
	t       int
}

// NewCommittee creates n members with fresh key pairs and reconstruction
// threshold t.
func NewCommittee(n, t int) (*Committee, error) {
	if t < 1 || n < t {
		return nil, fmt.Errorf("invalid committee parameters n=%d t=%d", n, t)
	}
	members := make([]*CommitteeMember, n)
	for i := range members {
		m, err := NewCommitteeMember(i)
		if err != nil {
			return nil, err
		}
		members[i] = m
	}
	return &Committee{members: members, t: t}, nil
}

// Size returns the number of members.
func (c *Committee) Size() int {
	return len(c.members)
}

// Threshold returns the reconstruction threshold.
func (c *Committee) Threshold() int {
	return c.t
}

// Roster returns routing information for all members.
func (c *Committee) Roster() []MemberInfo {
	infos := make([]MemberInfo, len(c.members))
	for i, m := range c.members {
		infos[i] = m.Info()
	}
	return infos
}

// Member returns the member with the given id.
func (c *Committee) Member(id int) (*CommitteeMember, error) {
	if id < 0 || id >= len(c.members) {
		return nil, fmt.Errorf("%w: member %d", ErrUnknownCommitteeMember, id)
	}
	return c.members[id], nil
}

// Deliver routes an encrypted share bundle to its member.
func (c *Committee) Deliver(sub *ShareSubmit) error {
	member, err := c.Member(sub.MemberID)
	if err != nil {
		return err
	}
	return member.StoreBundle(sub)
}

// CollectShares gathers releases of one client's bundle from every member
// that holds it. Missing bundles are skipped; the caller checks the
// threshold.
func (c *Committee) CollectShares(round uint64, clientID ClientID) []*ShareRelease {
	releases := make([]*ShareRelease, 0, len(c.members))
	for _, m := range c.members {
		rel, err := m.ReleaseShares(round, clientID)
		if err != nil {
			continue
		}
		releases = append(releases, rel)
	}
	return releases
}

// ClearRound drops share material for the round at every member.
func (c *Committee) ClearRound(round uint64) {
	for _, m := range c.members {
		m.ClearRound(round)
	}
}
