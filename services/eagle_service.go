package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rtaiello/let-them-drop/protocol"
)

// EagleService exposes the synchronous aggregator over HTTP and drives its
// round phases on a timer. One instance runs per aggregator deployment.
type EagleService struct {
	log    *slog.Logger
	params *protocol.Params
	agg    *protocol.EagleAggregator

	mu        sync.Mutex
	info      *protocol.RoundInfo
	results   map[uint64]*protocol.AggregationResult
	nextRound uint64
}

// NewEagleService creates the service around a fresh aggregator and
// committee.
func NewEagleService(params *protocol.Params, log *slog.Logger) (*EagleService, error) {
	committee, err := protocol.NewCommittee(params.CommitteeSize, params.Threshold)
	if err != nil {
		return nil, err
	}
	agg, err := protocol.NewEagleAggregator(params, committee, log)
	if err != nil {
		return nil, err
	}
	return &EagleService{
		log:       log,
		params:    params,
		agg:       agg,
		results:   make(map[uint64]*protocol.AggregationResult),
		nextRound: 1,
	}, nil
}

// RegisterRoutes registers the aggregator's HTTP endpoints.
func (s *EagleService) RegisterRoutes(r chi.Router) {
	r.Post("/register", s.handleRegister)
	r.Post("/key-exchange", s.handleKeyExchange)
	r.Post("/shares", s.handleShares)
	r.Post("/input", s.handleInput)
	r.Get("/round", s.handleGetRound)
	r.Get("/status", s.handleStatus)
	r.Get("/result/{round}", s.handleGetResult)
}

// RoundStatus reports where the aggregator currently is, so clients know
// which message to send next.
type RoundStatus struct {
	Round uint64 `json:"round"`
	Phase string `json:"phase"`
}

// Run drives the phase transitions until the context is cancelled. The tick
// interval bounds how late a deadline can fire.
func (s *EagleService) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Step(now)
		}
	}
}

// Step performs at most one phase transition. Exported so tests and
// single-binary deployments can drive the state machine deterministically.
func (s *EagleService) Step(now time.Time) {
	switch s.agg.Phase() {
	case protocol.PhaseSetup, protocol.PhaseRoundClosed, protocol.PhaseAborted:
		s.mu.Lock()
		round := s.nextRound
		s.nextRound++
		s.mu.Unlock()
		if err := s.agg.StartRound(round, now); err != nil {
			s.log.Error("start round", "round", round, "err", err)
		}

	case protocol.PhaseKeyAgreement:
		if !s.agg.ShouldClose(now) {
			return
		}
		info, err := s.agg.CloseKeyAgreement(now)
		if err != nil {
			s.log.Error("close key agreement", "err", err)
			return
		}
		s.mu.Lock()
		s.info = info
		s.mu.Unlock()

	case protocol.PhaseShareDistribution:
		if !s.agg.ShouldClose(now) {
			return
		}
		if err := s.agg.CloseShareDistribution(now); err != nil {
			s.log.Error("close share distribution", "err", err)
		}

	case protocol.PhaseMaskedInputCollection:
		if !s.agg.ShouldClose(now) {
			return
		}
		result, err := s.agg.Finalize()
		if err != nil {
			s.log.Warn("round produced no result", "err", err)
			return
		}
		s.mu.Lock()
		s.results[result.Round] = result
		s.info = nil
		s.mu.Unlock()
	}
}

func (s *EagleService) handleRegister(w http.ResponseWriter, r *http.Request) {
	msg, err := protocol.DecodeMessage[protocol.Signed[protocol.Register]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agg.Register(msg); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *EagleService) handleKeyExchange(w http.ResponseWriter, r *http.Request) {
	msg, err := protocol.DecodeMessage[protocol.Signed[protocol.KeyExchange]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agg.SubmitKeyExchange(msg, time.Now()); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *EagleService) handleShares(w http.ResponseWriter, r *http.Request) {
	msg, err := protocol.DecodeMessage[protocol.Signed[protocol.ShareSubmit]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agg.SubmitShares(msg, time.Now()); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *EagleService) handleInput(w http.ResponseWriter, r *http.Request) {
	msg, err := protocol.DecodeMessage[protocol.Signed[protocol.MaskedInput]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agg.SubmitMaskedInput(msg, time.Now()); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *EagleService) handleGetRound(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	info := s.info
	s.mu.Unlock()

	if info == nil {
		http.Error(w, "key agreement not closed yet", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (s *EagleService) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &RoundStatus{
		Round: s.agg.Round(),
		Phase: s.agg.Phase().String(),
	})
}

func (s *EagleService) handleGetResult(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.ParseUint(chi.URLParam(r, "round"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid round: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	result, ok := s.results[round]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no result for round", http.StatusNotFound)
		return
	}
	writeJSON(w, result)
}
