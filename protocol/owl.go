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

// OwlAggregator drives asynchronous aggregation windows. Contributions are
// folded into a running partial sum the moment they arrive; a window closes
// once enough distinct clients contributed or it has been open too long.
// There is no per-window key exchange: pairwise secrets come from long-term
// KEM keys registered up front, bound to the window index at mask time.
type OwlAggregator struct {
	params    *Params
	field     *crypto.Field
	committee *Committee
	log       *slog.Logger

	mu      sync.Mutex
	clients map[ClientID]crypto.PublicKey
	kemKeys map[ClientID][]byte

	window       uint64
	members      []ClientID
	partial      crypto.Vector
	contributors map[ClientID]bool
	trigger      *RollingTrigger
}

// NewOwlAggregator creates an aggregator for the given committee. The first
// window opens on the first call to OpenWindow, once enough clients have
// registered.
func NewOwlAggregator(params *Params, committee *Committee, log *slog.Logger) (*OwlAggregator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	field, err := params.Field()
	if err != nil {
		return nil, err
	}
	return &OwlAggregator{
		params:    params,
		field:     field,
		committee: committee,
		log:       log,
		clients:   make(map[ClientID]crypto.PublicKey),
		kemKeys:   make(map[ClientID][]byte),
	}, nil
}

// Window returns the current window index. Zero means no window is open yet.
func (a *OwlAggregator) Window() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.window
}

// Register admits a client with its long-term KEM key. Clients registering
// while a window is open join the member set of the next window.
func (a *OwlAggregator) Register(msg *Signed[Register]) error {
	reg, pubkey, err := msg.Recover()
	if err != nil {
		return err
	}
	if _, err := crypto.NewKemPublicKeyFromBytes(reg.KemPublicKey); err != nil {
		return fmt.Errorf("client %d kem key: %w", reg.ClientID, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.clients[reg.ClientID]; ok {
		return fmt.Errorf("%w: client %d", ErrDuplicateClient, reg.ClientID)
	}
	a.clients[reg.ClientID] = pubkey
	a.kemKeys[reg.ClientID] = slices.Clone(reg.KemPublicKey)
	a.log.Info("client registered", "client", reg.ClientID)
	return nil
}

// OpenWindow opens the next window, freezing its member set from the
// currently registered clients.
func (a *OwlAggregator) OpenWindow(now time.Time) *WindowInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.openWindow(now)
}

// openWindow freezes the member set and resets window state. Caller holds
// the lock.
func (a *OwlAggregator) openWindow(now time.Time) *WindowInfo {
	a.window++
	a.members = maps.Keys(a.clients)
	slices.Sort(a.members)
	a.partial = crypto.NewVector(a.params.VectorLength)
	a.contributors = make(map[ClientID]bool)
	a.trigger = NewRollingTrigger(now, a.params.WindowMinContributions, a.params.WindowMaxAge)

	a.log.Info("window opened", "window", a.window, "members", len(a.members))
	return a.windowInfo()
}

// WindowInfo returns the announcement for the currently open window.
func (a *OwlAggregator) WindowInfo() *WindowInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.window == 0 {
		return nil
	}
	return a.windowInfo()
}

// windowInfo builds the current announcement. Caller holds the lock.
func (a *OwlAggregator) windowInfo() *WindowInfo {
	keys := make(map[ClientID][]byte, len(a.members))
	for _, id := range a.members {
		keys[id] = a.kemKeys[id]
	}
	return &WindowInfo{
		Window:    a.window,
		Members:   a.members,
		KemKeys:   keys,
		Committee: a.committee.Roster(),
	}
}

// SubmitContribution admits a contribution into the open window: the share
// bundles go to the committee and the masked vector folds into the running
// partial sum. A contribution for an already-closed window fails with
// ErrRoundClosed; the client remasks for the current window and retries.
func (a *OwlAggregator) SubmitContribution(msg *Signed[Contribution], now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	c, err := verifySigned(a.clients, msg, msg.UnsafeObject().ClientID)
	if err != nil {
		return err
	}
	if a.window == 0 || c.Window != a.window {
		return fmt.Errorf("%w: contribution for window %d, current %d", ErrRoundClosed, c.Window, a.window)
	}
	if !slices.Contains(a.members, c.ClientID) {
		return fmt.Errorf("%w: client %d not in window member set", ErrRoundClosed, c.ClientID)
	}
	if a.contributors[c.ClientID] {
		return fmt.Errorf("%w: contribution from client %d in window %d", ErrDuplicateContribution, c.ClientID, c.Window)
	}
	if err := c.Vector.Validate(a.field, a.params.VectorLength); err != nil {
		return err
	}

	for _, sub := range c.Shares {
		if sub.ClientID != c.ClientID || sub.Round != c.Window {
			return fmt.Errorf("%w: share bundle identity does not match contribution", ErrMalformedValue)
		}
		if err := a.committee.Deliver(sub); err != nil {
			return err
		}
	}

	a.partial.AddInplace(a.field, c.Vector)
	a.contributors[c.ClientID] = true
	a.trigger.RecordContribution(c.ClientID, now)

	a.log.Debug("contribution admitted", "window", c.Window, "client", c.ClientID, "contributors", len(a.contributors))
	return nil
}

// ShouldClose reports whether the open window's closure condition fired.
func (a *OwlAggregator) ShouldClose(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.trigger != nil && a.trigger.ShouldClose(now)
}

// MaybeClose closes the window if its closure condition fired and opens the
// next one. It returns (nil, nil, nil) while the window should stay open.
func (a *OwlAggregator) MaybeClose(now time.Time) (*AggregationResult, *WindowInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.trigger == nil || !a.trigger.ShouldClose(now) {
		return nil, nil, nil
	}
	return a.closeWindow(now)
}

// CloseWindow unconditionally closes the open window, reconstructs, and
// opens the next one. On a quorum failure the window's partial sum is
// discarded and the error reports why no result was emitted.
func (a *OwlAggregator) CloseWindow(now time.Time) (*AggregationResult, *WindowInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.window == 0 {
		return nil, nil, fmt.Errorf("no window open")
	}
	return a.closeWindow(now)
}

// closeWindow runs reconstruction and rolls over. Caller holds the lock.
func (a *OwlAggregator) closeWindow(now time.Time) (*AggregationResult, *WindowInfo, error) {
	window := a.window
	online := maps.Keys(a.contributors)
	slices.Sort(online)

	if len(online) < a.params.MinOnline {
		err := fmt.Errorf("window %d: %w: %d contributed, need %d",
			window, ErrInsufficientOnlineSet, len(online), a.params.MinOnline)
		a.discardWindow(window)
		next := a.openWindow(now)
		return nil, next, err
	}

	dropped := make([]ClientID, 0, len(a.members)-len(online))
	for _, id := range a.members {
		if !a.contributors[id] {
			dropped = append(dropped, id)
		}
	}

	unmasked, err := unmaskAggregate(a.field, a.committee, window, a.partial, online, dropped)
	if err != nil {
		err = fmt.Errorf("window %d reconstruction: %w", window, err)
		a.discardWindow(window)
		next := a.openWindow(now)
		return nil, next, err
	}

	result := &AggregationResult{
		Round:     window,
		Sum:       unmasked,
		OnlineSet: online,
	}
	a.committee.ClearRound(window)
	a.log.Info("window closed", "window", window, "online", len(online))

	next := a.openWindow(now)
	return result, next, nil
}

// discardWindow drops all partial state of a failed window. Caller holds
// the lock.
func (a *OwlAggregator) discardWindow(window uint64) {
	a.partial = nil
	a.contributors = nil
	a.committee.ClearRound(window)
	a.log.Warn("window discarded", "window", window)
}
