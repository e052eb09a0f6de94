package protocol

import (
	"fmt"
	"golang.org/x/exp/maps"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/rtaiello/let-them-drop/crypto"
)

// Phase enumerates the states of a synchronous round.
type Phase int

// PhaseReconstruction covers the online-set freeze, the committee share
// requests, and the aggregate computation: Finalize runs them as one atomic
// step under the lock, so no submission can slip in between.
const (
	PhaseSetup Phase = iota
	PhaseKeyAgreement
	PhaseShareDistribution
	PhaseMaskedInputCollection
	PhaseReconstruction
	PhaseRoundClosed
	PhaseAborted
)

var phaseNames = map[Phase]string{
	PhaseSetup:                 "setup",
	PhaseKeyAgreement:          "key_agreement",
	PhaseShareDistribution:     "share_distribution",
	PhaseMaskedInputCollection: "masked_input_collection",
	PhaseReconstruction:        "reconstruction",
	PhaseRoundClosed:           "round_closed",
	PhaseAborted:               "aborted",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// EagleAggregator drives synchronous aggregation rounds. Submissions may
// arrive concurrently; freezing the online set and everything after it runs
// as one atomic step, so a straggler either makes it in before the freeze or
// is rejected with ErrRoundClosed.
type EagleAggregator struct {
	params    *Params
	field     *crypto.Field
	committee *Committee
	log       *slog.Logger

	mu      sync.Mutex
	clients map[ClientID]crypto.PublicKey

	round      uint64
	phase      Phase
	trigger    ClosureTrigger
	ephemerals map[ClientID]crypto.KemPublicKey
	keyed      []ClientID
	inputs     map[ClientID]crypto.Vector
	result     *AggregationResult
	abortErr   error
}

// NewEagleAggregator creates an aggregator for the given committee.
func NewEagleAggregator(params *Params, committee *Committee, log *slog.Logger) (*EagleAggregator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	field, err := params.Field()
	if err != nil {
		return nil, err
	}
	return &EagleAggregator{
		params:    params,
		field:     field,
		committee: committee,
		log:       log,
		clients:   make(map[ClientID]crypto.PublicKey),
		phase:     PhaseSetup,
	}, nil
}

// Phase returns the current round phase.
func (a *EagleAggregator) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Round returns the current round index.
func (a *EagleAggregator) Round() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.round
}

// Register admits a client. Registration is open between rounds and the
// signer's key becomes the client's long-term identity.
func (a *EagleAggregator) Register(msg *Signed[Register]) error {
	reg, pubkey, err := msg.Recover()
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.clients[reg.ClientID]; ok {
		return fmt.Errorf("%w: client %d", ErrDuplicateClient, reg.ClientID)
	}
	a.clients[reg.ClientID] = pubkey
	a.log.Info("client registered", "client", reg.ClientID, "pubkey", pubkey)
	return nil
}

// StartRound opens key agreement for a new round. Any state from the
// previous round is gone by this point.
func (a *EagleAggregator) StartRound(round uint64, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.phase {
	case PhaseSetup, PhaseRoundClosed, PhaseAborted:
	default:
		return fmt.Errorf("start round %d during phase %s", round, a.phase)
	}

	a.round = round
	a.phase = PhaseKeyAgreement
	a.trigger = NewDeadlineTrigger(now, a.params.RoundDeadline, len(a.clients))
	a.ephemerals = make(map[ClientID]crypto.KemPublicKey)
	a.keyed = nil
	a.inputs = make(map[ClientID]crypto.Vector)
	a.result = nil
	a.abortErr = nil

	a.log.Info("round started", "round", round, "registered", len(a.clients))
	return nil
}

// SubmitKeyExchange records a client's ephemeral key for the round.
func (a *EagleAggregator) SubmitKeyExchange(msg *Signed[KeyExchange], now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseKeyAgreement {
		return fmt.Errorf("%w: key agreement over for round %d", ErrRoundClosed, a.round)
	}

	ke, err := verifySigned(a.clients, msg, msg.UnsafeObject().ClientID)
	if err != nil {
		return err
	}
	if ke.Round != a.round {
		return fmt.Errorf("%w: key exchange for round %d, current %d", ErrRoundClosed, ke.Round, a.round)
	}
	ephemeral, err := crypto.NewKemPublicKeyFromBytes(ke.EphemeralPubKey)
	if err != nil {
		return err
	}
	if _, ok := a.ephemerals[ke.ClientID]; ok {
		return fmt.Errorf("%w: key exchange from client %d", ErrDuplicateContribution, ke.ClientID)
	}

	a.ephemerals[ke.ClientID] = ephemeral
	a.trigger.RecordContribution(ke.ClientID, now)
	return nil
}

// CloseKeyAgreement freezes the keyed set and opens share distribution. The
// returned RoundInfo is broadcast to the keyed clients; clients that missed
// the deadline are simply absent from it and cost the round nothing.
func (a *EagleAggregator) CloseKeyAgreement(now time.Time) (*RoundInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseKeyAgreement {
		return nil, fmt.Errorf("close key agreement during phase %s", a.phase)
	}

	a.keyed = maps.Keys(a.ephemerals)
	slices.Sort(a.keyed)
	a.phase = PhaseShareDistribution
	a.trigger = NewDeadlineTrigger(now, a.params.RoundDeadline, len(a.keyed))

	keys := make(map[ClientID][]byte, len(a.keyed))
	for id, pub := range a.ephemerals {
		keys[id] = pub.Bytes()
	}

	a.log.Info("keyed set frozen", "round", a.round, "keyed", len(a.keyed))
	return &RoundInfo{
		Round:         a.round,
		KeyedSet:      a.keyed,
		EphemeralKeys: keys,
		Committee:     a.committee.Roster(),
	}, nil
}

// SubmitShares forwards an encrypted share bundle to its committee member.
// The aggregator only routes; it cannot open the payload. The envelope
// signature keeps a third party from pre-poisoning a client's write-once
// slot at the member.
func (a *EagleAggregator) SubmitShares(msg *Signed[ShareSubmit], now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseShareDistribution {
		return fmt.Errorf("%w: share distribution over for round %d", ErrRoundClosed, a.round)
	}
	sub, err := verifySigned(a.clients, msg, msg.UnsafeObject().ClientID)
	if err != nil {
		return err
	}
	if sub.Round != a.round {
		return fmt.Errorf("%w: shares for round %d, current %d", ErrRoundClosed, sub.Round, a.round)
	}
	if !slices.Contains(a.keyed, sub.ClientID) {
		return fmt.Errorf("%w: client %d not in keyed set", ErrRoundClosed, sub.ClientID)
	}

	if err := a.committee.Deliver(sub); err != nil {
		return err
	}
	a.trigger.RecordContribution(sub.ClientID, now)
	return nil
}

// CloseShareDistribution opens masked input collection.
func (a *EagleAggregator) CloseShareDistribution(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseShareDistribution {
		return fmt.Errorf("close share distribution during phase %s", a.phase)
	}
	a.phase = PhaseMaskedInputCollection
	a.trigger = NewDeadlineTrigger(now, a.params.RoundDeadline, len(a.keyed))
	return nil
}

// SubmitMaskedInput records a client's masked vector. Once the online set is
// frozen, late inputs fail with ErrRoundClosed and have no effect on the
// result.
func (a *EagleAggregator) SubmitMaskedInput(msg *Signed[MaskedInput], now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase != PhaseMaskedInputCollection {
		return fmt.Errorf("%w: input collection over for round %d", ErrRoundClosed, a.round)
	}

	in, err := verifySigned(a.clients, msg, msg.UnsafeObject().ClientID)
	if err != nil {
		return err
	}
	if in.Round != a.round {
		return fmt.Errorf("%w: input for round %d, current %d", ErrRoundClosed, in.Round, a.round)
	}
	if !slices.Contains(a.keyed, in.ClientID) {
		return fmt.Errorf("%w: client %d not in keyed set", ErrRoundClosed, in.ClientID)
	}
	if err := in.Vector.Validate(a.field, a.params.VectorLength); err != nil {
		return err
	}
	if _, ok := a.inputs[in.ClientID]; ok {
		return fmt.Errorf("%w: input from client %d", ErrDuplicateContribution, in.ClientID)
	}

	a.inputs[in.ClientID] = in.Vector.Clone()
	a.trigger.RecordContribution(in.ClientID, now)
	return nil
}

// ShouldClose reports whether the current collection phase's trigger fired.
func (a *EagleAggregator) ShouldClose(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trigger != nil && a.trigger.ShouldClose(now)
}

// Finalize freezes the online set and runs share collection, reconstruction,
// and aggregation as one atomic step. Calling it again after the round
// closed returns the same result; after an abort it returns the same error.
func (a *EagleAggregator) Finalize() (*AggregationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.phase {
	case PhaseRoundClosed:
		return a.result, nil
	case PhaseAborted:
		return nil, a.abortErr
	case PhaseMaskedInputCollection:
	default:
		return nil, fmt.Errorf("finalize during phase %s", a.phase)
	}

	a.phase = PhaseReconstruction
	online := maps.Keys(a.inputs)
	slices.Sort(online)
	if len(online) < a.params.MinOnline {
		return nil, a.abort(fmt.Errorf("%w: %d online, need %d", ErrInsufficientOnlineSet, len(online), a.params.MinOnline))
	}

	dropped := make([]ClientID, 0, len(a.keyed)-len(online))
	for _, id := range a.keyed {
		if _, ok := a.inputs[id]; !ok {
			dropped = append(dropped, id)
		}
	}
	a.log.Info("online set frozen", "round", a.round, "online", len(online), "dropped", len(dropped))

	sum := crypto.NewVector(a.params.VectorLength)
	for _, id := range online {
		sum.AddInplace(a.field, a.inputs[id])
	}

	unmasked, err := unmaskAggregate(a.field, a.committee, a.round, sum, online, dropped)
	if err != nil {
		return nil, a.abort(fmt.Errorf("round %d reconstruction: %w", a.round, err))
	}

	a.result = &AggregationResult{
		Round:     a.round,
		Sum:       unmasked,
		OnlineSet: online,
	}

	a.committee.ClearRound(a.round)
	a.inputs = nil
	a.phase = PhaseRoundClosed
	a.log.Info("round closed", "round", a.round, "online", len(online))
	return a.result, nil
}

// Abort cancels the round and discards all partial state. No result is ever
// emitted for an aborted round.
func (a *EagleAggregator) Abort(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase == PhaseRoundClosed || a.phase == PhaseAborted {
		return
	}
	_ = a.abort(err)
}

// abort discards partial round state. Caller holds the lock.
func (a *EagleAggregator) abort(err error) error {
	a.abortErr = err
	a.phase = PhaseAborted
	a.inputs = nil
	a.ephemerals = nil
	a.result = nil
	a.committee.ClearRound(a.round)
	a.log.Warn("round aborted", "round", a.round, "err", err)
	return err
}

// verifySigned checks the envelope signature against the registered key of
// the claimed client. Caller holds the aggregator lock.
func verifySigned[T any](clients map[ClientID]crypto.PublicKey, msg *Signed[T], id ClientID) (*T, error) {
	registered, ok := clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: client %d not registered", ErrInvalidSignature, id)
	}
	return msg.RecoverFrom(registered)
}
