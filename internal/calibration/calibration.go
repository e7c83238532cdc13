// Package calibration implements the per-sample calibration formulas
// applied to raw DAQ channel values. The sampler applies them before
// evaluating a trigger threshold but publishes raw values; the archiver
// stores raw values with the calibration as file metadata, and the
// exporter applies it when reading them back.
package calibration

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind discriminates which calibration formula a Spec carries.
type Kind string

const (
	Identity   Kind = "identity"
	Linear     Kind = "linear"
	Polynomial Kind = "polynomial"
)

// Spec is a tagged union of calibration formulas, matching the wire
// shape stored in NATS KV config documents and Parquet file metadata.
type Spec struct {
	ID   string
	Kind Kind

	// Linear
	A float64
	B float64

	// Polynomial, ascending power: coeffs[0] + coeffs[1]*x + ...
	Coeffs []float64
}

// Default returns the identity calibration with no id, matching the
// zero-value semantics of the original implementation.
func Default() Spec {
	return Spec{Kind: Identity}
}

// Apply evaluates the calibration formula against a raw sample value.
func (s Spec) Apply(raw float64) float64 {
	switch s.Kind {
	case Linear:
		return s.A*raw + s.B
	case Polynomial:
		var sum float64
		for i, c := range s.Coeffs {
			sum += c * math.Pow(raw, float64(i))
		}
		return sum
	case Identity, "":
		return raw
	default:
		return raw
	}
}

// IDOrDefault returns the calibration's id, or "identity" if unset.
func (s Spec) IDOrDefault() string {
	if s.ID == "" {
		return "identity"
	}
	return s.ID
}

type wireSpec struct {
	ID     string    `json:"id,omitempty"`
	Type   Kind      `json:"type"`
	A      float64   `json:"a,omitempty"`
	B      float64   `json:"b,omitempty"`
	Coeffs []float64 `json:"coeffs,omitempty"`
}

// MarshalJSON encodes the spec as a {type,...} discriminated union.
func (s Spec) MarshalJSON() ([]byte, error) {
	kind := s.Kind
	if kind == "" {
		kind = Identity
	}
	return json.Marshal(wireSpec{
		ID:     s.ID,
		Type:   kind,
		A:      s.A,
		B:      s.B,
		Coeffs: s.Coeffs,
	})
}

// UnmarshalJSON decodes a {type,...} discriminated union.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var w wireSpec
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case Identity, Linear, Polynomial:
	case "":
		w.Type = Identity
	default:
		return fmt.Errorf("calibration: unknown type %q", w.Type)
	}
	*s = Spec{ID: w.ID, Kind: w.Type, A: w.A, B: w.B, Coeffs: w.Coeffs}
	return nil
}
