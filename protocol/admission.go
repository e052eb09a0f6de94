package protocol

import (
	"time"
)

// ClosureTrigger decides when an accepting phase stops admitting
// contributions. The synchronous and asynchronous state machines differ only
// in which trigger they plug in.
type ClosureTrigger interface {
	// RecordContribution notes an admitted contribution.
	RecordContribution(id ClientID, now time.Time)

	// ShouldClose reports whether the phase should stop admitting.
	ShouldClose(now time.Time) bool
}

// DeadlineTrigger closes a synchronous collection phase at a fixed deadline,
// or early once every expected client has contributed.
type DeadlineTrigger struct {
	deadline time.Time
	expected int
	seen     map[ClientID]bool
}

// NewDeadlineTrigger creates a trigger for a phase opened at start.
func NewDeadlineTrigger(start time.Time, deadline time.Duration, expected int) *DeadlineTrigger {
	return &DeadlineTrigger{
		deadline: start.Add(deadline),
		expected: expected,
		seen:     make(map[ClientID]bool),
	}
}

func (t *DeadlineTrigger) RecordContribution(id ClientID, _ time.Time) {
	t.seen[id] = true
}

func (t *DeadlineTrigger) ShouldClose(now time.Time) bool {
	if t.expected > 0 && len(t.seen) >= t.expected {
		return true
	}
	return !now.Before(t.deadline)
}

// RollingTrigger closes an asynchronous window once k distinct clients have
// contributed or the window has been open longer than maxAge, whichever
// comes first.
type RollingTrigger struct {
	opened time.Time
	k      int
	maxAge time.Duration
	seen   map[ClientID]bool
}

// NewRollingTrigger creates a trigger for a window opened at start.
func NewRollingTrigger(start time.Time, k int, maxAge time.Duration) *RollingTrigger {
	return &RollingTrigger{
		opened: start,
		k:      k,
		maxAge: maxAge,
		seen:   make(map[ClientID]bool),
	}
}

func (t *RollingTrigger) RecordContribution(id ClientID, _ time.Time) {
	t.seen[id] = true
}

func (t *RollingTrigger) ShouldClose(now time.Time) bool {
	if len(t.seen) >= t.k {
		return true
	}
	return t.maxAge > 0 && now.Sub(t.opened) >= t.maxAge
}
