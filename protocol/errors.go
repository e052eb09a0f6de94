package protocol

import (
	"errors"

	"github.com/rtaiello/let-them-drop/crypto"
)

// Sentinel errors for submission handling. Errors in this block are local:
// the offending message is rejected and the round continues. Re-exported
// crypto sentinels keep the full taxonomy reachable from one package.
var (
	// ErrMalformedValue rejects out-of-field elements, wrong-length vectors,
	// and undecodable payloads.
	ErrMalformedValue = crypto.ErrMalformedValue

	// ErrInvalidSignature rejects messages whose signature does not verify
	// under the sender's registered long-term key.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrRoundClosed rejects submissions that arrive after the online set
	// was frozen (Eagle) or after the window closed (Owl). The submission
	// has no effect on the already-emitted result.
	ErrRoundClosed = errors.New("round closed")

	// ErrDuplicateContribution rejects a second contribution from the same
	// client in the same round or window. The first one stands.
	ErrDuplicateContribution = errors.New("duplicate contribution")

	// ErrDuplicateClient rejects registration of an already-registered
	// client id.
	ErrDuplicateClient = errors.New("client already registered")

	// ErrUnknownCommitteeMember rejects share traffic addressed to a
	// committee member id outside the configured committee.
	ErrUnknownCommitteeMember = errors.New("unknown committee member")

	// ErrShareNotFound is returned by a committee member that holds no
	// share bundle for the requested client and round.
	ErrShareNotFound = errors.New("share not found")
)

// Round-fatal errors. When one of these surfaces from Finalize or Close, the
// round aborts: partial state is discarded and no result is emitted.
var (
	// ErrInsufficientShares aborts reconstruction when fewer than threshold
	// shares could be collected for some online client.
	ErrInsufficientShares = crypto.ErrInsufficientShares

	// ErrInsufficientOnlineSet aborts a round whose frozen online set is
	// smaller than the configured minimum.
	ErrInsufficientOnlineSet = errors.New("online set below configured minimum")
)
