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

// OwlService exposes the asynchronous aggregator over HTTP. Contributions
// stream in against the open window; a background loop closes windows when
// the rolling condition fires and publishes the results.
type OwlService struct {
	log    *slog.Logger
	params *protocol.Params
	agg    *protocol.OwlAggregator

	mu      sync.Mutex
	results map[uint64]*protocol.AggregationResult
}

// NewOwlService creates the service around a fresh aggregator and committee.
func NewOwlService(params *protocol.Params, log *slog.Logger) (*OwlService, error) {
	committee, err := protocol.NewCommittee(params.CommitteeSize, params.Threshold)
	if err != nil {
		return nil, err
	}
	agg, err := protocol.NewOwlAggregator(params, committee, log)
	if err != nil {
		return nil, err
	}
	return &OwlService{
		log:     log,
		params:  params,
		agg:     agg,
		results: make(map[uint64]*protocol.AggregationResult),
	}, nil
}

// RegisterRoutes registers the aggregator's HTTP endpoints.
func (s *OwlService) RegisterRoutes(r chi.Router) {
	r.Post("/register", s.handleRegister)
	r.Post("/contribution", s.handleContribution)
	r.Get("/window", s.handleGetWindow)
	r.Get("/result/{window}", s.handleGetResult)
}

// Run opens the first window and closes windows as their rolling condition
// fires, until the context is cancelled.
func (s *OwlService) Run(ctx context.Context, tick time.Duration) {
	s.agg.OpenWindow(time.Now())

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

// Step closes the window if due. Exported so tests and single-binary
// deployments can drive closure deterministically.
func (s *OwlService) Step(now time.Time) {
	result, _, err := s.agg.MaybeClose(now)
	if err != nil {
		s.log.Warn("window produced no result", "err", err)
		return
	}
	if result == nil {
		return
	}
	s.mu.Lock()
	s.results[result.Round] = result
	s.mu.Unlock()
}

// OpenWindow opens the next window without running the background loop.
func (s *OwlService) OpenWindow(now time.Time) *protocol.WindowInfo {
	return s.agg.OpenWindow(now)
}

func (s *OwlService) handleRegister(w http.ResponseWriter, r *http.Request) {
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

func (s *OwlService) handleContribution(w http.ResponseWriter, r *http.Request) {
	msg, err := protocol.DecodeMessage[protocol.Signed[protocol.Contribution]](r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.agg.SubmitContribution(msg, time.Now()); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *OwlService) handleGetWindow(w http.ResponseWriter, r *http.Request) {
	info := s.agg.WindowInfo()
	if info == nil {
		http.Error(w, "no window open", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (s *OwlService) handleGetResult(w http.ResponseWriter, r *http.Request) {
	window, err := strconv.ParseUint(chi.URLParam(r, "window"), 10, 64)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid window: %v", err), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	result, ok := s.results[window]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "no result for window", http.StatusNotFound)
		return
	}
	writeJSON(w, result)
}
