package protocol

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rtaiello/let-them-drop/crypto"
)

// Signed wraps a message with an Ed25519 signature for authentication.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned creates an authenticated message by signing the serialized object
// and public key.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// UnsafeObject returns the wrapped object without verifying the signature.
func (s *Signed[T]) UnsafeObject() *T {
	return s.Object
}

// Recover verifies the signature and returns the authenticated object with
// the signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	ok := s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...))
	if !ok {
		return nil, nil, ErrInvalidSignature
	}

	return s.Object, s.PublicKey, nil
}

// RecoverFrom additionally checks that the signer is the expected key, so a
// validly signed message cannot be replayed under another client's id.
func (s *Signed[T]) RecoverFrom(expected crypto.PublicKey) (*T, error) {
	obj, signer, err := s.Recover()
	if err != nil {
		return nil, err
	}
	if !signer.Equal(expected) {
		return nil, fmt.Errorf("%w: signer does not match registered key", ErrInvalidSignature)
	}
	return obj, nil
}

// Register announces a client to the aggregator. The long-term signing key
// travels in the Signed envelope; KemPublicKey is the client's long-term
// X25519 key, used by the asynchronous protocol where pairwise secrets must
// be derivable without a per-round exchange.
type Register struct {
	ClientID     ClientID `json:"client_id"`
	KemPublicKey []byte   `json:"kem_public_key,omitempty"`
}

// KeyExchange carries a client's per-round ephemeral X25519 key. The
// aggregator relays it to all peers after the key agreement phase closes.
type KeyExchange struct {
	ClientID        ClientID `json:"client_id"`
	Round           uint64   `json:"round"`
	EphemeralPubKey []byte   `json:"ephemeral_pub_key"`
}

// ShareBundle is the plaintext a client deals to one committee member: the
// member's Shamir share of the client's self-mask seed and of each pairwise
// seed toward the client's keyed peers. It only ever travels inside an
// ECIES envelope addressed to the member.
type ShareBundle struct {
	ClientID       ClientID                      `json:"client_id"`
	Round          uint64                        `json:"round"`
	SelfShare      crypto.SeedShare              `json:"self_share"`
	PairwiseShares map[ClientID]crypto.SeedShare `json:"pairwise_shares"`
}

// ShareSubmit routes one encrypted share bundle through the aggregator to a
// committee member. The aggregator forwards the payload without being able
// to open it. Eagle clients submit it inside a Signed envelope; in Owl it
// rides inside the already-signed Contribution.
type ShareSubmit struct {
	ClientID ClientID                 `json:"client_id"`
	Round    uint64                   `json:"round"`
	MemberID int                      `json:"member_id"`
	Payload  *crypto.EncryptedMessage `json:"payload"`
}

// MaskedInput is a client's masked input vector for a synchronous round.
type MaskedInput struct {
	ClientID ClientID      `json:"client_id"`
	Round    uint64        `json:"round"`
	Vector   crypto.Vector `json:"vector"`
}

// Contribution is a client's submission for an asynchronous window: the
// masked vector plus the share bundles for the committee, piggybacked so a
// single message makes the client reconstructible.
type Contribution struct {
	ClientID ClientID       `json:"client_id"`
	Window   uint64         `json:"window"`
	Vector   crypto.Vector  `json:"vector"`
	Shares   []*ShareSubmit `json:"shares"`
}

// ShareRelease is a committee member's answer to a share request: the
// shares from one client's bundle needed to unmask the frozen online set.
type ShareRelease struct {
	MemberID       int                           `json:"member_id"`
	ClientID       ClientID                      `json:"client_id"`
	SelfShare      crypto.SeedShare              `json:"self_share"`
	PairwiseShares map[ClientID]crypto.SeedShare `json:"pairwise_shares"`
}

// RoundInfo is the aggregator's broadcast after key agreement closes: the
// keyed set for the round and every keyed client's ephemeral key, which
// clients need to derive pairwise secrets, plus the committee roster for
// share dealing.
type RoundInfo struct {
	Round         uint64              `json:"round"`
	KeyedSet      []ClientID          `json:"keyed_set"`
	EphemeralKeys map[ClientID][]byte `json:"ephemeral_keys"`
	Committee     []MemberInfo        `json:"committee"`
}

// WindowInfo announces an open asynchronous window: contributors mask over
// the member set frozen when the window opened. KemKeys carries the members'
// long-term X25519 keys so a contributor can derive pairwise secrets without
// waiting for a round-trip with each peer.
type WindowInfo struct {
	Window    uint64              `json:"window"`
	Members   []ClientID          `json:"members"`
	KemKeys   map[ClientID][]byte `json:"kem_keys"`
	Committee []MemberInfo        `json:"committee"`
}

// AggregationResult is the output of a completed round or window.
type AggregationResult struct {
	Round     uint64        `json:"round"`
	Sum       crypto.Vector `json:"sum"`
	OnlineSet []ClientID    `json:"online_set"`
}

// UnmarshalMessage deserializes a message from JSON.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage deserializes a message from a JSON reader.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
