package quantize

import (
	"errors"
	"strconv"
	"testing"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// stubModel is a minimal decoder-only root for exercising the rewrites
// without pulling in the full family constructors.
type stubModel struct {
	arch module.Arch
	mode Mode

	embedding *module.Embedding
	layers    *module.LayerList
	finalNorm module.Module
	lmHead    module.Module
}

func (m *stubModel) Kind() module.Kind { return module.KindComposite }

func (m *stubModel) Children() []module.Named {
	return []module.Named{
		{Name: "vocab_embedding", Module: m.embedding},
		{Name: "layers", Module: m.layers},
		{Name: "ln_f", Module: m.finalNorm},
		{Name: "lm_head", Module: m.lmHead},
	}
}

func (m *stubModel) ReplaceChild(name string, mod module.Module) bool {
	switch name {
	case "ln_f":
		m.finalNorm = mod
	case "lm_head":
		m.lmHead = mod
	default:
		return false
	}
	return true
}

func (m *stubModel) Parameters() []module.NamedParameter   { return nil }
func (m *stubModel) Arch() module.Arch                     { return m.arch }
func (m *stubModel) DecoderLayers() []*module.DecoderLayer { return m.layers.Layers }
func (m *stubModel) QuantMode() Mode                       { return m.mode }
func (m *stubModel) SetQuantMode(mode Mode)                { m.mode = mode }

const (
	testHidden = 64
	testFFN    = 256
	testVocab  = 128
	testHeads  = 4
)

func newStubModel(t *testing.T, arch module.Arch, numLayers int, mapping module.Mapping, gated bool) *stubModel {
	t.Helper()

	layers := make([]*module.DecoderLayer, numLayers)
	for i := range layers {
		attnCfg := module.AttentionConfig{
			HiddenSize: testHidden,
			NumHeads:   testHeads,
			NumKVHeads: testHeads,
			DType:      module.DTypeFloat16,
			Mapping:    mapping,
		}
		ffnCfg := module.MLPConfig{
			HiddenSize:    testHidden,
			FFNHiddenSize: testFFN,
			HiddenAct:     "gelu",
			DType:         module.DTypeFloat16,
			Mapping:       mapping,
		}
		layer := &module.DecoderLayer{
			Attn:           attnCfg,
			FFN:            ffnCfg,
			InputLayerNorm: module.NewLayerNorm(testHidden, 1e-5, module.DTypeFloat16),
			Attention:      module.NewAttention(attnCfg),
			PostLayerNorm:  module.NewLayerNorm(testHidden, 1e-5, module.DTypeFloat16),
		}
		if gated {
			layer.MLP = module.NewGatedMLP(ffnCfg)
		} else {
			layer.MLP = module.NewMLP(ffnCfg)
		}
		layers[i] = layer
	}

	return &stubModel{
		arch:      arch,
		embedding: module.NewEmbedding(testVocab, testHidden, module.DTypeFloat16),
		layers:    &module.LayerList{Layers: layers},
		finalNorm: module.NewLayerNorm(testHidden, 1e-5, module.DTypeFloat16),
		lmHead:    module.NewColumnLinear(testHidden, testVocab, false, module.DTypeFloat16, mapping, true),
	}
}

func layerKinds(t *testing.T, m Model, layer int) map[string]module.Kind {
	t.Helper()
	kinds := make(map[string]module.Kind)
	for _, name := range []string{"attention.qkv", "attention.dense", "mlp.fc", "mlp.gate", "mlp.proj"} {
		path := "layers." + strconv.Itoa(layer) + "." + name
		if mod := module.Find(m, path); mod != nil {
			kinds[name] = mod.Kind()
		}
	}
	return kinds
}

func TestWeightOnlyReplacesLinears(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchGPT, 2, module.SingleRank(), false)
	got, err := WeightOnly(m, WeightOnlyMode(false), nil)
	if err != nil {
		t.Fatalf("WeightOnly: %v", err)
	}
	if got != Model(m) {
		t.Fatalf("rewrite should return the same root")
	}

	for layer := 0; layer < 2; layer++ {
		kinds := layerKinds(t, m, layer)
		want := map[string]module.Kind{
			"attention.qkv":   module.KindWeightOnlyColumnLinear,
			"attention.dense": module.KindWeightOnlyRowLinear,
			"mlp.fc":          module.KindWeightOnlyColumnLinear,
			"mlp.proj":        module.KindWeightOnlyRowLinear,
		}
		for name, wantKind := range want {
			if kinds[name] != wantKind {
				t.Errorf("layer %d %s: kind = %v, want %v", layer, name, kinds[name], wantKind)
			}
		}
	}

	if m.lmHead.Kind() != module.KindColumnLinear {
		t.Errorf("lm_head replaced despite default exclusion")
	}
	if m.mode != WeightOnlyMode(false) {
		t.Errorf("mode tag = %#x, want %#x", uint32(m.mode), uint32(WeightOnlyMode(false)))
	}
}

func TestWeightOnlyInt4WeightDType(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchGPT, 1, module.SingleRank(), false)
	if _, err := WeightOnly(m, WeightOnlyMode(true), nil); err != nil {
		t.Fatalf("WeightOnly: %v", err)
	}
	fc := module.Find(m, "layers.0.mlp.fc").(*WeightOnlyColumnLinear)
	if fc.Weight.DType != module.DTypeInt4 {
		t.Errorf("weight dtype = %v, want int4", fc.Weight.DType)
	}
	if got := fc.Scale.Shape[0]; got != testFFN {
		t.Errorf("scale width = %d, want %d", got, testFFN)
	}
}

func TestWeightOnlyExclusion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		exclude  []string
		replaced map[string]bool // path -> expect replaced
	}{
		{
			name:    "substring matches lm_head",
			exclude: []string{"head"},
			replaced: map[string]bool{
				"lm_head":                  false,
				"layers.0.attention.qkv":   true,
				"layers.0.mlp.fc":          true,
			},
		},
		{
			name:    "layer prefix excludes one layer",
			exclude: []string{"layers.0"},
			replaced: map[string]bool{
				"layers.0.attention.qkv":   false,
				"layers.0.attention.dense": false,
				"layers.0.mlp.fc":          false,
				"layers.0.mlp.proj":        false,
				"layers.1.attention.qkv":   true,
				"layers.1.mlp.proj":        true,
			},
		},
		{
			name:    "bare leaf name",
			exclude: []string{"dense"},
			replaced: map[string]bool{
				"layers.0.attention.dense": false,
				"layers.1.attention.dense": false,
				"layers.0.attention.qkv":   true,
			},
		},
		{
			name:    "component substring excludes everywhere",
			exclude: []string{"fc"},
			replaced: map[string]bool{
				"layers.0.mlp.fc":   false,
				"layers.1.mlp.fc":   false,
				"layers.0.mlp.proj": true,
			},
		},
		{
			name:    "empty set replaces the output head too",
			exclude: []string{},
			replaced: map[string]bool{
				"lm_head":         true,
				"layers.0.mlp.fc": true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newStubModel(t, module.ArchGPT, 2, module.SingleRank(), false)
			if _, err := WeightOnly(m, WeightOnlyMode(false), tt.exclude); err != nil {
				t.Fatalf("WeightOnly: %v", err)
			}
			for path, wantReplaced := range tt.replaced {
				mod := module.Find(m, path)
				if mod == nil {
					t.Fatalf("path %q not found", path)
				}
				replaced := mod.Kind() != module.KindColumnLinear && mod.Kind() != module.KindRowLinear
				if replaced != wantReplaced {
					t.Errorf("%s: replaced = %v, want %v", path, replaced, wantReplaced)
				}
			}
		})
	}
}

func TestWeightOnlyTensorParallelWidths(t *testing.T) {
	t.Parallel()

	mapping := module.NewMapping(2, 1)
	m := newStubModel(t, module.ArchGPT, 1, mapping, false)

	origFC := module.Find(m, "layers.0.mlp.fc").(*module.ColumnLinear)
	if origFC.OutFeatures != testFFN/2 {
		t.Fatalf("fixture shard width = %d, want %d", origFC.OutFeatures, testFFN/2)
	}

	if _, err := WeightOnly(m, WeightOnlyMode(false), nil); err != nil {
		t.Fatalf("WeightOnly: %v", err)
	}

	fc := module.Find(m, "layers.0.mlp.fc").(*WeightOnlyColumnLinear)
	if fc.OutFeatures != testFFN/2 {
		t.Errorf("column shard out = %d, want %d", fc.OutFeatures, testFFN/2)
	}
	if fc.OutFeatures*fc.Mapping.TPSize != testFFN {
		t.Errorf("column full width = %d, want %d", fc.OutFeatures*fc.Mapping.TPSize, testFFN)
	}

	proj := module.Find(m, "layers.0.mlp.proj").(*WeightOnlyRowLinear)
	if proj.InFeatures != testFFN/2 {
		t.Errorf("row shard in = %d, want %d", proj.InFeatures, testFFN/2)
	}
	if proj.InFeatures*proj.Mapping.TPSize != testFFN {
		t.Errorf("row full width = %d, want %d", proj.InFeatures*proj.Mapping.TPSize, testFFN)
	}
}

func TestWeightOnlySecondPassIsInert(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchGPT, 1, module.SingleRank(), false)
	if _, err := WeightOnly(m, WeightOnlyMode(false), nil); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	first := module.Find(m, "layers.0.mlp.fc")

	if _, err := WeightOnly(m, WeightOnlyMode(false), nil); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second := module.Find(m, "layers.0.mlp.fc"); second != first {
		t.Errorf("already-quantized leaf was replaced again")
	}
}

func TestWeightOnlyModeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mode Mode
	}{
		{"not weight-only", SmoothQuantMode(false, false)},
		{"both precisions", ModeInt4Weights | ModeInt8Weights},
		{"no precision", Mode(0)},
		{"per-group via uniform rewrite", GroupwiseWeightOnlyMode(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newStubModel(t, module.ArchGPT, 1, module.SingleRank(), false)
			if _, err := WeightOnly(m, tt.mode, nil); !errors.Is(err, ErrConfigConflict) {
				t.Fatalf("err = %v, want ErrConfigConflict", err)
			}
		})
	}
}

func TestWeightOnlyGroupwise(t *testing.T) {
	t.Parallel()

	m := newStubModel(t, module.ArchLLaMA, 1, module.SingleRank(), true)
	cfg := GroupwiseConfig{GroupSize: 64, PreQuantScale: true, ZeroPoint: true}
	if _, err := WeightOnlyGroupwise(m, GroupwiseWeightOnlyMode(true), cfg, nil); err != nil {
		t.Fatalf("WeightOnlyGroupwise: %v", err)
	}

	fc := module.Find(m, "layers.0.mlp.fc").(*GroupwiseColumnLinear)
	if fc.Kind() != module.KindGroupwiseColumnLinear {
		t.Fatalf("fc kind = %v", fc.Kind())
	}
	if got, want := fc.Scales.Shape[0], testHidden/64; got != want {
		t.Errorf("scale groups = %d, want %d", got, want)
	}
	if fc.PreQuantScale == nil {
		t.Errorf("missing prequant scaling factor")
	}
	if fc.Zeros == nil {
		t.Errorf("missing zero points")
	}

	gate := module.Find(m, "layers.0.mlp.gate")
	if gate.Kind() != module.KindGroupwiseColumnLinear {
		t.Errorf("gate kind = %v, want groupwise column", gate.Kind())
	}

	if _, err := WeightOnlyGroupwise(m, WeightOnlyMode(true), cfg, nil); !errors.Is(err, ErrConfigConflict) {
		t.Errorf("non-groupwise mode: err = %v, want ErrConfigConflict", err)
	}
}

func TestDefaultExclude(t *testing.T) {
	t.Parallel()

	got := DefaultExclude()
	if len(got) != 1 || got[0] != "lm_head" {
		t.Fatalf("DefaultExclude() = %v", got)
	}
}

func TestGroupwiseConstructorsDefaultGroupSize(t *testing.T) {
	t.Parallel()

	// A zero-valued config must not leave the constructors without a
	// group size; they fall back the same way the rewrite does.
	col := NewGroupwiseColumnLinear(256, 128, GroupwiseConfig{}, false, module.DTypeFloat16, module.SingleRank(), false)
	if col.Groupwise.GroupSize != DefaultGroupSize {
		t.Errorf("column group size = %d, want %d", col.Groupwise.GroupSize, DefaultGroupSize)
	}
	if got := col.Scales.Shape[0]; got != 256/DefaultGroupSize {
		t.Errorf("column scale groups = %d, want %d", got, 256/DefaultGroupSize)
	}

	row := NewGroupwiseRowLinear(256, 128, GroupwiseConfig{}, false, module.DTypeFloat16, module.SingleRank())
	if row.Groupwise.GroupSize != DefaultGroupSize {
		t.Errorf("row group size = %d, want %d", row.Groupwise.GroupSize, DefaultGroupSize)
	}
	if got := row.Scales.Shape[0]; got != 256/DefaultGroupSize {
		t.Errorf("row scale groups = %d, want %d", got, 256/DefaultGroupSize)
	}
}
