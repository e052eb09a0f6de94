// Package crypto provides the cryptographic primitives for straggler-resilient
// secure aggregation.
//
// This package implements the low-level operations required by the Eagle
// (synchronous) and Owl (asynchronous) aggregation protocols:
//
//   - Field arithmetic over a configurable prime modulus (masked input vectors)
//   - X25519 key agreement with HKDF-based shared secret derivation
//   - Ed25519 signatures for long-term client identities
//   - AES-CTR pseudorandom mask expansion bound to a round index
//   - Shamir threshold secret sharing of masking seeds (kyber, edwards25519
//     scalar field)
//   - ECIES encryption for delivering seed shares to committee members
//
// Note: field arithmetic over math/big is not constant-time; mask material is
// uniformly random in the field, so values handled here do not branch on
// secret inputs beyond what big.Int itself does.
//
// # Masks
//
// Two mask types are produced by ExpandMask:
//   - self masks, keyed by a per-round seed known only to one client and the
//     committee holding its shares
//   - pairwise masks, keyed by a per-round seed derived from an X25519 shared
//     secret, computable by exactly two clients
//
// Both are bound to (seed, round, length) so mask material cannot be replayed
// across rounds.
package crypto
