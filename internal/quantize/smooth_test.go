package quantize

import (
	"errors"
	"testing"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

func TestSmoothQuantGPT(t *testing.T) {
	t.Parallel()

	mode := SmoothQuantMode(true, true)
	m := newStubModel(t, module.ArchGPT, 2, module.SingleRank(), false)
	if _, err := SmoothQuant(m, mode); err != nil {
		t.Fatalf("SmoothQuant: %v", err)
	}

	for i, layer := range m.layers.Layers {
		if layer.InputLayerNorm.Kind() != module.KindSmoothQuantLayerNorm {
			t.Errorf("layer %d input norm kind = %v", i, layer.InputLayerNorm.Kind())
		}
		if layer.PostLayerNorm.Kind() != module.KindSmoothQuantLayerNorm {
			t.Errorf("layer %d post norm kind = %v", i, layer.PostLayerNorm.Kind())
		}
		if layer.Attention.Kind() != module.KindSmoothQuantAttention {
			t.Errorf("layer %d attention kind = %v", i, layer.Attention.Kind())
		}
		if layer.MLP.Kind() != module.KindSmoothQuantMLP {
			t.Errorf("layer %d mlp kind = %v", i, layer.MLP.Kind())
		}
	}
	if m.mode != mode {
		t.Errorf("mode tag = %#x, want %#x", uint32(m.mode), uint32(mode))
	}
	if m.finalNorm.Kind() != module.KindLayerNorm {
		t.Errorf("final norm replaced; only per-layer blocks should change")
	}
}

func TestSmoothQuantLLaMA(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchLLaMA, 1, module.SingleRank(), true)
	// Preserve a non-default epsilon through the replacement.
	m.layers.Layers[0].InputLayerNorm = module.NewRMSNorm(testHidden, 1e-6, module.DTypeFloat16)
	m.layers.Layers[0].PostLayerNorm = module.NewRMSNorm(testHidden, 1e-6, module.DTypeFloat16)

	if _, err := SmoothQuant(m, SmoothQuantMode(false, false)); err != nil {
		t.Fatalf("SmoothQuant: %v", err)
	}

	layer := m.layers.Layers[0]
	norm, ok := layer.InputLayerNorm.(*SmoothQuantRMSNorm)
	if !ok {
		t.Fatalf("input norm type = %T, want *SmoothQuantRMSNorm", layer.InputLayerNorm)
	}
	if norm.Eps != 1e-6 {
		t.Errorf("norm eps = %v, want 1e-6", norm.Eps)
	}
	if layer.MLP.Kind() != module.KindSmoothQuantGatedMLP {
		t.Errorf("mlp kind = %v, want gated smooth-quant", layer.MLP.Kind())
	}
}

func TestSmoothQuantRejectsNonActivationMode(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchGPT, 1, module.SingleRank(), false)
	if _, err := SmoothQuant(m, WeightOnlyMode(false)); !errors.Is(err, ErrConfigConflict) {
		t.Fatalf("err = %v, want ErrConfigConflict", err)
	}
}

func TestSmoothQuantUnsupportedArch(t *testing.T) {
	t.Parallel()

	for _, arch := range []module.Arch{module.ArchFalcon, module.ArchGPTJ, module.ArchBaichuan} {
		m := newStubModel(t, arch, 1, module.SingleRank(), false)
		if _, err := SmoothQuant(m, SmoothQuantMode(false, false)); !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("%s: err = %v, want ErrUnsupportedModel", arch, err)
		}
	}
}

func TestSmoothQuantModeFlags(t *testing.T) {
	t.Parallel()

	m := SmoothQuantMode(true, false)
	if !m.HasActAndWeightQuant() {
		t.Errorf("missing activation-and-weight flags")
	}
	if !m.Has(ModePerChannel) || m.Has(ModePerToken) {
		t.Errorf("scaling flags wrong: %#x", uint32(m))
	}
	if m.IsWeightOnly() {
		t.Errorf("smooth-quant mode reports weight-only")
	}
}

func TestSmoothQuantLinearVariants(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchLLaMA, 1, module.SingleRank(), true)
	if _, err := SmoothQuant(m, SmoothQuantMode(true, false)); err != nil {
		t.Fatalf("SmoothQuant: %v", err)
	}

	attn := m.layers.Layers[0].Attention.(*SmoothQuantAttention)
	qkv, ok := attn.QKV.(*SmoothQuantColumnLinear)
	if !ok {
		t.Fatalf("qkv type = %T, want *SmoothQuantColumnLinear", attn.QKV)
	}
	if qkv.Weight.DType != module.DTypeInt8 {
		t.Errorf("qkv weight dtype = %v, want int8", qkv.Weight.DType)
	}
	dense, ok := attn.Dense.(*SmoothQuantRowLinear)
	if !ok {
		t.Fatalf("dense type = %T, want *SmoothQuantRowLinear", attn.Dense)
	}
	if got := dense.Smoother.Shape[0]; got != testHidden {
		t.Errorf("dense smoother has %d elements, want %d", got, testHidden)
	}

	names := make(map[string]bool)
	for _, p := range qkv.Parameters() {
		names[p.Name] = true
	}
	for _, want := range []string{"weight", "per_channel_scale", "act_scale"} {
		if !names[want] {
			t.Errorf("qkv missing %q parameter", want)
		}
	}

	// A later weight-only pass only touches plain linear kinds, so the
	// int8 GEMMs survive it untouched.
	if _, err := WeightOnly(m, WeightOnlyMode(false), DefaultExclude()); err != nil {
		t.Fatalf("WeightOnly: %v", err)
	}
	if attn.QKV.Kind() != module.KindSmoothQuantColumnLinear {
		t.Errorf("qkv kind after weight-only pass = %v", attn.QKV.Kind())
	}
	if attn.Dense.Kind() != module.KindSmoothQuantRowLinear {
		t.Errorf("dense kind after weight-only pass = %v", attn.Dense.Kind())
	}
}
