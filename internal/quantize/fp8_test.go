package quantize

import (
	"errors"
	"math"
	"testing"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// fp8StubModel builds a stub whose projections are already fp8 variants,
// the layout a graph constructed under an fp8 mode has.
func fp8StubModel(t *testing.T, arch module.Arch, numLayers int, mode Mode, gated bool) *stubModel {
	t.Helper()

	m := newStubModel(t, arch, numLayers, module.SingleRank(), gated)
	for _, layer := range m.layers.Layers {
		attn := layer.Attention.(*module.Attention)
		cfg := layer.Attn
		headDim := cfg.HiddenSize / cfg.NumHeads
		qkvOut := cfg.HiddenSize + 2*cfg.NumKVHeads*headDim
		attn.QKV = NewFP8Linear(cfg.HiddenSize, qkvOut, cfg.Bias, cfg.DType, cfg.Mapping, false)
		attn.Dense = NewFP8RowLinear(cfg.HiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping)

		ffn := layer.FFN
		switch mlp := layer.MLP.(type) {
		case *module.MLP:
			mlp.FC = NewFP8Linear(ffn.HiddenSize, ffn.FFNHiddenSize, ffn.Bias, ffn.DType, ffn.Mapping, false)
			mlp.Proj = NewFP8RowLinear(ffn.FFNHiddenSize, ffn.HiddenSize, ffn.Bias, ffn.DType, ffn.Mapping)
		case *module.GatedMLP:
			mlp.FC = NewFP8Linear(ffn.HiddenSize, ffn.FFNHiddenSize, ffn.Bias, ffn.DType, ffn.Mapping, false)
			mlp.Gate = NewFP8Linear(ffn.HiddenSize, ffn.FFNHiddenSize, ffn.Bias, ffn.DType, ffn.Mapping, false)
			mlp.Proj = NewFP8RowLinear(ffn.FFNHiddenSize, ffn.HiddenSize, ffn.Bias, ffn.DType, ffn.Mapping)
		}
	}
	m.mode = mode
	return m
}

func TestInjectFP8Scales(t *testing.T) {
	t.Parallel()

	mode := FP8Mode(true)
	m := fp8StubModel(t, module.ArchGPT, 2, mode, false)

	if err := InjectFP8Scales(m, mode, nil); err != nil {
		t.Fatalf("InjectFP8Scales: %v", err)
	}

	for i, layer := range m.layers.Layers {
		attn := layer.Attention.(*module.Attention)
		qkv := attn.QKV.(*FP8Linear)
		if got := qkv.ActivationScalingFactor.Scalar(); got != 0.99 {
			t.Errorf("layer %d qkv act scale = %v, want 0.99", i, got)
		}
		if got := qkv.WeightsScalingFactor.Scalar(); got != 0.99 {
			t.Errorf("layer %d qkv weight scale = %v, want 0.99", i, got)
		}
		if got := attn.KVOrigQuantScale.Scalar(); got != 5.0 {
			t.Errorf("layer %d kv quant scale = %v, want 5.0", i, got)
		}
		inv := attn.KVQuantOrigScale.Scalar()
		if math.Abs(float64(inv-1.0/5.0)) > 1e-7 {
			t.Errorf("layer %d kv dequant scale = %v, want 0.2", i, inv)
		}
	}
}

func TestInjectFP8ScalesSkipsKVWithoutKVCacheMode(t *testing.T) {
	t.Parallel()

	mode := FP8Mode(false)
	m := fp8StubModel(t, module.ArchLLaMA, 1, mode, true)

	if err := InjectFP8Scales(m, mode, nil); err != nil {
		t.Fatalf("InjectFP8Scales: %v", err)
	}
	attn := m.layers.Layers[0].Attention.(*module.Attention)
	if got := attn.KVOrigQuantScale.Scalar(); got != 0 {
		t.Errorf("kv scale written without fp8 kv-cache mode: %v", got)
	}

	gate := m.layers.Layers[0].MLP.(*module.GatedMLP).Gate.(*FP8Linear)
	if got := gate.ActivationScalingFactor.Scalar(); got != 0.99 {
		t.Errorf("gate act scale = %v, want 0.99", got)
	}
}

func TestInjectFP8ScalesUnsupportedArch(t *testing.T) {
	t.Parallel()

	mode := FP8Mode(false)
	m := fp8StubModel(t, module.ArchBloom, 1, mode, false)
	if err := InjectFP8Scales(m, mode, nil); !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("err = %v, want ErrUnsupportedModel", err)
	}
}

func TestInjectFP8ScalesModeMismatch(t *testing.T) {
	t.Parallel()

	m := fp8StubModel(t, module.ArchGPT, 1, FP8Mode(false), false)
	if err := InjectFP8Scales(m, FP8Mode(true), nil); !errors.Is(err, ErrConfigConflict) {
		t.Fatalf("err = %v, want ErrConfigConflict", err)
	}
	if err := InjectFP8Scales(m, WeightOnlyMode(false), nil); !errors.Is(err, ErrConfigConflict) {
		t.Fatalf("non-fp8 mode: err = %v, want ErrConfigConflict", err)
	}
}

func TestInjectFP8ScalesPrecondition(t *testing.T) {
	t.Parallel()

	// Plain linears in the slots: the injection pass must refuse rather
	// than replace.
	mode := FP8Mode(false)
	m := newStubModel(t, module.ArchGPT, 1, module.SingleRank(), false)
	m.mode = mode

	if err := InjectFP8Scales(m, mode, nil); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
}

func TestDummyScales(t *testing.T) {
	t.Parallel()

	s := DummyScales(3)
	if len(s.QKVOutput) != 3 {
		t.Fatalf("len(QKVOutput) = %d, want 3", len(s.QKVOutput))
	}
	for i := range s.QKVOutput {
		if s.QKVOutput[i] != 5.0 {
			t.Errorf("QKVOutput[%d] = %v, want 5.0", i, s.QKVOutput[i])
		}
		if s.FCAct[i] != 0.99 || s.ProjWeights[i] != 0.99 {
			t.Errorf("scale[%d] not 0.99", i)
		}
	}
}
