// Package protocol implements a straggler-resilient secure aggregation
// engine, based on the paper "Let Them Drop: Scalable and Efficient Federated
// Learning Solutions Agnostic to Stragglers".
//
// The coordinating party (the aggregator) computes the sum of per-client
// vectors without learning any individual contribution. The cost of a round
// depends only on the set of clients that actually respond in time (the
// online set), not on how many registered clients drop out.
//
// # Roles
//
//  1. Clients: hold a long-term signing key, derive per-round pairwise
//     secrets with their peers, and submit masked input vectors. A client's
//     true vector never leaves the client unmasked.
//
//  2. Committee: n members holding Shamir shares (threshold t) of each
//     client's masking seeds. Shares travel encrypted end-to-end, so the
//     aggregator relaying them learns nothing. After the online set is
//     frozen, the committee releases exactly the shares needed to unmask the
//     online sum - never a dropped client's self mask.
//
//  3. Aggregator: drives the round state machine, freezes the online set,
//     collects shares from the committee, and emits the aggregation result
//     to the consuming training loop.
//
// # Masking
//
// Client i masks its input x_i for round r over the keyed set K (the clients
// that completed key agreement for the round):
//
//	masked_i = x_i + self_i + sum_{j in K, j>i} pw(i,j) - sum_{j in K, j<i} pw(i,j)  (mod p)
//
// The sign convention by client-id comparison makes pairwise masks cancel in
// any aggregate containing both endpoints. Unmasking the frozen online set S
// removes the self masks of S and the residual pairwise masks toward keyed
// peers that dropped after key agreement:
//
//	sum_{i in S} masked_i - sum_{i in S} self_i - sum_{i in S, j in K\S} ±pw(i,j) = sum_{i in S} x_i
//
// Clients that drop before key agreement - the common straggler case - never
// appear in K and impose no reconstruction work at all.
//
// # Protocol variants
//
// Two state machines share the masking, share-store, and reconstruction
// primitives and differ only in their admission policy (the ClosureTrigger):
//
//   - Eagle (synchronous): fixed rounds with per-phase deadlines
//     (Setup, KeyAgreement, ShareDistribution, MaskedInputCollection,
//     Reconstruction, RoundClosed). The online-set freeze, the committee
//     share requests, and the aggregate computation all happen inside the
//     atomic Reconstruction step.
//
//   - Owl (asynchronous): sliding windows; contributions are folded into a
//     running partial aggregate on arrival, and a rolling condition
//     (k distinct contributors or T elapsed) triggers closure. Share bundles
//     piggyback on contributions, and late arrivals contribute to the next
//     window.
//
// # Failure semantics
//
// Validation errors (malformed vectors, bad signatures, duplicates, late
// arrivals) are local: the offending submission is rejected and the round
// continues. Quorum failures (fewer than t shares, online set below the
// configured minimum) are round-fatal: the round aborts, all partial state is
// discarded, and the consumer receives an explicit no-result signal. A
// partial or approximate sum is never released.
package protocol
