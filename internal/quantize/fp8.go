package quantize

import (
	"fmt"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// ScaleTable holds the precomputed fp8 scaling factors for every projection
// of every decoder layer. Values normally come from an external calibration
// toolkit; DummyScales provides placeholder values for benchmarking.
type ScaleTable struct {
	LMHeadAct     float32
	LMHeadWeights float32

	FCAct       []float32
	FCWeights   []float32
	GateAct     []float32
	GateWeights []float32
	ProjAct     []float32
	ProjWeights []float32

	QKVAct       []float32
	QKVWeights   []float32
	QKVOutput    []float32
	DenseAct     []float32
	DenseWeights []float32
}

// DummyScales returns a placeholder scale table for numLayers decoder
// layers. It is intentionally decoupled from any calibration toolkit so
// benchmark builds can run without one.
func DummyScales(numLayers int) *ScaleTable {
	fill := func(v float32) []float32 {
		s := make([]float32, numLayers)
		for i := range s {
			s[i] = v
		}
		return s
	}
	return &ScaleTable{
		LMHeadAct:     0.99,
		LMHeadWeights: 0.99,
		FCAct:         fill(0.99),
		FCWeights:     fill(0.99),
		GateAct:       fill(0.99),
		GateWeights:   fill(0.99),
		ProjAct:       fill(0.99),
		ProjWeights:   fill(0.99),
		QKVAct:        fill(0.99),
		QKVWeights:    fill(0.99),
		QKVOutput:     fill(5.0),
		DenseAct:      fill(0.99),
		DenseWeights:  fill(0.99),
	}
}

// InjectFP8Scales overwrites the scaling-factor constants on every decoder
// layer's projections. It performs no replacement: every targeted projection
// must already be an fp8 variant, which is the case for models constructed
// with an fp8 mode. A nil scales table falls back to DummyScales.
//
// Layers already processed when an error surfaces keep their injected
// values; a tree left mid-injection must be discarded and rebuilt.
func InjectFP8Scales(model Model, mode Mode, scales *ScaleTable) error {
	switch model.Arch() {
	case module.ArchGPT, module.ArchLLaMA, module.ArchGPTJ:
	default:
		return fmt.Errorf("%w: fp8 scale injection does not support %q", ErrUnsupportedModel, model.Arch())
	}
	if !mode.HasFP8QDQ() {
		return fmt.Errorf("%w: fp8 scale injection requires fp8 qdq mode", ErrConfigConflict)
	}
	if model.QuantMode() != mode {
		return fmt.Errorf("%w: mode %#x does not match the model's mode %#x", ErrConfigConflict, uint32(mode), uint32(model.QuantMode()))
	}

	layers := model.DecoderLayers()
	if scales == nil {
		scales = DummyScales(len(layers))
	}

	for i, layer := range layers {
		if err := injectLayerScales(layer, i, mode, scales); err != nil {
			return err
		}
	}
	return nil
}

func injectLayerScales(layer *module.DecoderLayer, idx int, mode Mode, scales *ScaleTable) error {
	switch mlp := layer.MLP.(type) {
	case *module.MLP:
		if err := setScales(mlp.FC, fmt.Sprintf("layers.%d.mlp.fc", idx), scales.FCAct[idx], scales.FCWeights[idx]); err != nil {
			return err
		}
		if err := setScales(mlp.Proj, fmt.Sprintf("layers.%d.mlp.proj", idx), scales.ProjAct[idx], scales.ProjWeights[idx]); err != nil {
			return err
		}
	case *module.GatedMLP:
		if err := setScales(mlp.FC, fmt.Sprintf("layers.%d.mlp.fc", idx), scales.FCAct[idx], scales.FCWeights[idx]); err != nil {
			return err
		}
		if err := setScales(mlp.Gate, fmt.Sprintf("layers.%d.mlp.gate", idx), scales.GateAct[idx], scales.GateWeights[idx]); err != nil {
			return err
		}
		if err := setScales(mlp.Proj, fmt.Sprintf("layers.%d.mlp.proj", idx), scales.ProjAct[idx], scales.ProjWeights[idx]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: layers.%d.mlp is not a feed-forward block", ErrPrecondition, idx)
	}

	attn, ok := layer.Attention.(*module.Attention)
	if !ok {
		return fmt.Errorf("%w: layers.%d.attention is not an attention block", ErrPrecondition, idx)
	}
	if err := setScales(attn.QKV, fmt.Sprintf("layers.%d.attention.qkv", idx), scales.QKVAct[idx], scales.QKVWeights[idx]); err != nil {
		return err
	}
	if err := setScales(attn.Dense, fmt.Sprintf("layers.%d.attention.dense", idx), scales.DenseAct[idx], scales.DenseWeights[idx]); err != nil {
		return err
	}
	if mode.HasFP8KVCache() {
		attn.KVOrigQuantScale.SetScalar(scales.QKVOutput[idx])
		attn.KVQuantOrigScale.SetScalar(1.0 / scales.QKVOutput[idx])
	}
	return nil
}

// setScales writes the activation and weight scaling factors onto an fp8
// variant, failing fast when the slot holds anything else.
func setScales(m module.Module, path string, act, weights float32) error {
	scaled, ok := m.(fp8Scaled)
	if !ok {
		return fmt.Errorf("%w: %s is not an fp8 linear", ErrPrecondition, path)
	}
	actParam, weightsParam := scaled.scales()
	actParam.SetScalar(act)
	weightsParam.SetScalar(weights)
	return nil
}
