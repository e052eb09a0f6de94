package protocol

import (
	"fmt"
	"math/big"
	"time"

	"github.com/rtaiello/let-them-drop/crypto"
)

// ClientID identifies a protocol client. The pairwise mask sign convention
// compares client ids numerically, so ids must be unique per deployment.
type ClientID uint64

// Params provides configuration parameters shared by all aggregation
// components. The same Params value must be used by the aggregator, the
// committee, and every client of a deployment.
type Params struct {
	// FieldOrder is the decimal encoding of the prime modulus for input and
	// mask vectors. Empty selects crypto.DefaultFieldOrder.
	FieldOrder string `json:"field_order" yaml:"field_order"`

	// VectorLength is the fixed length of input vectors. Submissions with a
	// different length are rejected.
	VectorLength int `json:"vector_length" yaml:"vector_length"`

	// CommitteeSize is the number of committee members (n).
	CommitteeSize int `json:"committee_size" yaml:"committee_size"`

	// Threshold is the Shamir reconstruction threshold (t). Any t committee
	// members can reconstruct a seed; t-1 learn nothing.
	Threshold int `json:"threshold" yaml:"threshold"`

	// MinOnline is the minimum size of the frozen online set. A round whose
	// online set is smaller aborts without a result.
	MinOnline int `json:"min_online" yaml:"min_online"`

	// RoundDeadline is the per-phase deadline for synchronous rounds.
	RoundDeadline time.Duration `json:"round_deadline,string" yaml:"round_deadline"`

	// WindowMinContributions is the number of distinct contributors that
	// closes an asynchronous window (k).
	WindowMinContributions int `json:"window_min_contributions" yaml:"window_min_contributions"`

	// WindowMaxAge closes an asynchronous window after this much time even
	// if fewer than k clients contributed (T).
	WindowMaxAge time.Duration `json:"window_max_age,string" yaml:"window_max_age"`
}

// DefaultParams returns parameters suitable for local testing.
func DefaultParams() *Params {
	return &Params{
		VectorLength:           16,
		CommitteeSize:          5,
		Threshold:              3,
		MinOnline:              2,
		RoundDeadline:          10 * time.Second,
		WindowMinContributions: 3,
		WindowMaxAge:           30 * time.Second,
	}
}

// Validate checks parameter consistency.
func (p *Params) Validate() error {
	if p.VectorLength <= 0 {
		return fmt.Errorf("vector_length must be positive, got %d", p.VectorLength)
	}
	if p.Threshold < 1 || p.CommitteeSize < p.Threshold {
		return fmt.Errorf("need 1 <= threshold <= committee_size, got t=%d n=%d", p.Threshold, p.CommitteeSize)
	}
	if p.MinOnline < 1 {
		return fmt.Errorf("min_online must be positive, got %d", p.MinOnline)
	}
	if p.WindowMinContributions < 1 {
		return fmt.Errorf("window_min_contributions must be positive, got %d", p.WindowMinContributions)
	}
	if _, err := p.Field(); err != nil {
		return err
	}
	return nil
}

// Field resolves the configured field order into a Field.
func (p *Params) Field() (*crypto.Field, error) {
	if p.FieldOrder == "" {
		return crypto.NewField(crypto.DefaultFieldOrder)
	}
	order, ok := new(big.Int).SetString(p.FieldOrder, 10)
	if !ok {
		return nil, fmt.Errorf("%w: field_order %q is not a decimal integer", ErrMalformedValue, p.FieldOrder)
	}
	return crypto.NewField(order)
}
