// Package quantize rewrites a network graph in place, replacing matrix-
// multiply-heavy leaves with quantized variants and injecting precomputed
// scaling factors. The numerical kernels behind the variants live in the
// external toolkit; this package only selects variants and copies constants.
package quantize

import "fmt"

// Mode is a bit-set of mutually compatible quantization flags. It is
// attached to the model root after a rewrite so the build step can observe
// which scheme was applied.
type Mode uint32

const (
	ModeInt4Weights Mode = 1 << iota
	ModeInt8Weights
	ModeActivations
	ModePerChannel
	ModePerToken
	ModePerGroup
	ModeInt8KVCache
	ModeFP8KVCache
	ModeFP8QDQ
)

// ModeNone applies no quantization.
const ModeNone Mode = 0

// WeightOnlyMode selects uniform weight-only quantization at int8, or int4
// when useInt4 is set.
func WeightOnlyMode(useInt4 bool) Mode {
	if useInt4 {
		return ModeInt4Weights
	}
	return ModeInt8Weights
}

// GroupwiseWeightOnlyMode selects per-group weight-only quantization.
func GroupwiseWeightOnlyMode(useInt4 bool) Mode {
	return WeightOnlyMode(useInt4) | ModePerGroup
}

// SmoothQuantMode selects int8 activation-and-weight quantization.
func SmoothQuantMode(perChannel, perToken bool) Mode {
	m := ModeInt8Weights | ModeActivations
	if perChannel {
		m |= ModePerChannel
	}
	if perToken {
		m |= ModePerToken
	}
	return m
}

// FP8Mode selects fp8 quantize/dequantize for the linear layers, optionally
// together with an fp8 KV cache.
func FP8Mode(kvCache bool) Mode {
	m := ModeFP8QDQ
	if kvCache {
		m |= ModeFP8KVCache
	}
	return m
}

func (m Mode) Has(flag Mode) bool { return m&flag != 0 }

// IsWeightOnly reports whether the mode quantizes weights but not activations.
func (m Mode) IsWeightOnly() bool {
	return m.Has(ModeInt4Weights|ModeInt8Weights) && !m.Has(ModeActivations)
}

// HasActAndWeightQuant reports whether both activations and weights are quantized.
func (m Mode) HasActAndWeightQuant() bool {
	return m.Has(ModeActivations) && m.Has(ModeInt8Weights)
}

func (m Mode) HasInt4Weights() bool     { return m.Has(ModeInt4Weights) }
func (m Mode) HasPerGroupScaling() bool { return m.Has(ModePerGroup) }
func (m Mode) HasFP8QDQ() bool          { return m.Has(ModeFP8QDQ) }
func (m Mode) HasFP8KVCache() bool      { return m.Has(ModeFP8KVCache) }
func (m Mode) HasInt8KVCache() bool     { return m.Has(ModeInt8KVCache) }

// ValidateWeightPrecision enforces the weight-only invariant: exactly one of
// the two weight-precision flags is active.
func (m Mode) ValidateWeightPrecision() error {
	int4 := m.Has(ModeInt4Weights)
	int8 := m.Has(ModeInt8Weights)
	switch {
	case int4 && int8:
		return fmt.Errorf("%w: int4 and int8 weights both requested", ErrConfigConflict)
	case !int4 && !int8:
		return fmt.Errorf("%w: weight-only mode without a weight precision", ErrConfigConflict)
	}
	return nil
}
