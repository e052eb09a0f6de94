package protocol

import (
	"testing"

	"github.com/rtaiello/let-them-drop/crypto"
	"github.com/stretchr/testify/require"
)

// submitBundleTo encrypts a minimal share bundle for the given member.
func submitBundleTo(t *testing.T, member MemberInfo, clientID ClientID, round uint64) *ShareSubmit {
	t.Helper()

	seed, err := crypto.NewRandomSeed()
	require.NoError(t, err)
	shares, err := crypto.SplitSeed(seed, 3, 2)
	require.NoError(t, err)

	bundle := &ShareBundle{
		ClientID:       clientID,
		Round:          round,
		SelfShare:      shares[0],
		PairwiseShares: map[ClientID]crypto.SeedShare{clientID + 1: shares[1]},
	}
	plaintext, err := SerializeMessage(bundle)
	require.NoError(t, err)

	pub, err := crypto.NewKemPublicKeyFromBytes(member.KemPublicKey)
	require.NoError(t, err)
	payload, err := crypto.Encrypt(pub, plaintext)
	require.NoError(t, err)

	return &ShareSubmit{
		ClientID: clientID,
		Round:    round,
		MemberID: member.ID,
		Payload:  payload,
	}
}

func TestCommitteeMemberStoreAndRelease(t *testing.T) {
	member, err := NewCommitteeMember(0)
	require.NoError(t, err)

	sub := submitBundleTo(t, member.Info(), 42, 1)
	require.NoError(t, member.StoreBundle(sub))

	rel, err := member.ReleaseShares(1, 42)
	require.NoError(t, err)
	require.Equal(t, 0, rel.MemberID)
	require.Equal(t, ClientID(42), rel.ClientID)
	require.Len(t, rel.PairwiseShares, 1)
}

func TestCommitteeMemberReleasesAtMostOnce(t *testing.T) {
	member, err := NewCommitteeMember(0)
	require.NoError(t, err)

	require.NoError(t, member.StoreBundle(submitBundleTo(t, member.Info(), 42, 1)))

	_, err = member.ReleaseShares(1, 42)
	require.NoError(t, err)

	// A second read of the same bundle must fail; the aggregator cannot
	// widen its view by asking twice.
	_, err = member.ReleaseShares(1, 42)
	require.ErrorIs(t, err, ErrShareNotFound)
}

func TestCommitteeMemberRejectsDuplicateBundle(t *testing.T) {
	member, err := NewCommitteeMember(0)
	require.NoError(t, err)

	require.NoError(t, member.StoreBundle(submitBundleTo(t, member.Info(), 42, 1)))
	err = member.StoreBundle(submitBundleTo(t, member.Info(), 42, 1))
	require.ErrorIs(t, err, ErrDuplicateContribution)
}

func TestCommitteeMemberRejectsMisroutedBundle(t *testing.T) {
	member, err := NewCommitteeMember(0)
	require.NoError(t, err)
	other, err := NewCommitteeMember(1)
	require.NoError(t, err)

	sub := submitBundleTo(t, other.Info(), 42, 1)
	require.ErrorIs(t, member.StoreBundle(sub), ErrUnknownCommitteeMember)
}

func TestCommitteeMemberRejectsForeignCiphertext(t *testing.T) {
	member, err := NewCommitteeMember(0)
	require.NoError(t, err)
	other, err := NewCommitteeMember(0)
	require.NoError(t, err)

	// Encrypted to another member's key: undecryptable here.
	sub := submitBundleTo(t, other.Info(), 42, 1)
	require.ErrorIs(t, member.StoreBundle(sub), ErrMalformedValue)
}

func TestCommitteeMemberClearRound(t *testing.T) {
	member, err := NewCommitteeMember(0)
	require.NoError(t, err)

	require.NoError(t, member.StoreBundle(submitBundleTo(t, member.Info(), 42, 1)))
	member.ClearRound(1)

	_, err = member.ReleaseShares(1, 42)
	require.ErrorIs(t, err, ErrShareNotFound)
}

func TestCommitteeRouting(t *testing.T) {
	committee, err := NewCommittee(3, 2)
	require.NoError(t, err)
	require.Equal(t, 3, committee.Size())
	require.Equal(t, 2, committee.Threshold())
	require.Len(t, committee.Roster(), 3)

	_, err = committee.Member(3)
	require.ErrorIs(t, err, ErrUnknownCommitteeMember)

	sub := submitBundleTo(t, committee.Roster()[1], 7, 2)
	require.NoError(t, committee.Deliver(sub))

	sub.MemberID = 99
	require.ErrorIs(t, committee.Deliver(sub), ErrUnknownCommitteeMember)
}

func TestCommitteeCollectSharesSkipsMissing(t *testing.T) {
	committee, err := NewCommittee(3, 2)
	require.NoError(t, err)

	// Only two of three members ever receive the bundle.
	for _, info := range committee.Roster()[:2] {
		require.NoError(t, committee.Deliver(submitBundleTo(t, info, 7, 2)))
	}

	releases := committee.CollectShares(2, 7)
	require.Len(t, releases, 2)
}
