package module

import (
	"testing"
)

func TestJoinPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{name: "empty", segments: nil, want: ""},
		{name: "single", segments: []string{"lm_head"}, want: "lm_head"},
		{name: "nested", segments: []string{"layers", "0", "attention", "qkv"}, want: "layers.0.attention.qkv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := JoinPath(tt.segments); got != tt.want {
				t.Fatalf("JoinPath(%v) = %q, want %q", tt.segments, got, tt.want)
			}
		})
	}
}

func testLayer(t *testing.T, m Mapping) *DecoderLayer {
	t.Helper()

	attn := AttentionConfig{
		HiddenSize: 32,
		NumHeads:   4,
		Bias:       true,
		DType:      DTypeFloat16,
		Mapping:    m,
	}
	ffn := MLPConfig{
		HiddenSize:    32,
		FFNHiddenSize: 128,
		HiddenAct:     "gelu",
		Bias:          true,
		DType:         DTypeFloat16,
		Mapping:       m,
	}
	return &DecoderLayer{
		Attn:           attn,
		FFN:            ffn,
		InputLayerNorm: NewLayerNorm(32, 1e-5, DTypeFloat16),
		Attention:      NewAttention(attn),
		PostLayerNorm:  NewLayerNorm(32, 1e-5, DTypeFloat16),
		MLP:            NewMLP(ffn),
	}
}

func TestNamedParametersPaths(t *testing.T) {
	t.Parallel()

	layer := testLayer(t, SingleRank())
	root := &LayerList{Layers: []*DecoderLayer{layer}}

	params := NamedParameters(root)

	want := []string{
		"0.input_layernorm.weight",
		"0.input_layernorm.bias",
		"0.attention.kv_orig_quant_scale",
		"0.attention.kv_quant_orig_scale",
		"0.attention.qkv.weight",
		"0.attention.qkv.bias",
		"0.attention.dense.weight",
		"0.attention.dense.bias",
		"0.post_layernorm.weight",
		"0.post_layernorm.bias",
		"0.mlp.fc.weight",
		"0.mlp.fc.bias",
		"0.mlp.proj.weight",
		"0.mlp.proj.bias",
	}
	if len(params) != len(want) {
		t.Fatalf("got %d parameters, want %d", len(params), len(want))
	}
	for _, path := range want {
		if params[path] == nil {
			t.Errorf("missing parameter %q", path)
		}
	}
}

func TestFind(t *testing.T) {
	t.Parallel()

	layer := testLayer(t, SingleRank())
	root := &LayerList{Layers: []*DecoderLayer{layer}}

	if got := Find(root, ""); got != Module(root) {
		t.Fatalf("Find with empty path did not return the root")
	}
	if got := Find(root, "0.attention.qkv"); got != layer.Attention.(*Attention).QKV {
		t.Fatalf("Find(0.attention.qkv) returned wrong module")
	}
	if got := Find(root, "0.mlp.proj"); got == nil || got.Kind() != KindRowLinear {
		t.Fatalf("Find(0.mlp.proj) = %v, want row-parallel linear", got)
	}
	if got := Find(root, "0.attention.missing"); got != nil {
		t.Fatalf("Find on a missing path = %v, want nil", got)
	}
	if got := Find(root, "1"); got != nil {
		t.Fatalf("Find on an out-of-range layer = %v, want nil", got)
	}
}

func TestReplaceChild(t *testing.T) {
	t.Parallel()

	layer := testLayer(t, SingleRank())
	attn := layer.Attention.(*Attention)

	repl := NewRowLinear(32, 32, false, DTypeFloat16, SingleRank())
	if !attn.ReplaceChild("dense", repl) {
		t.Fatalf("ReplaceChild(dense) = false, want true")
	}
	if attn.Dense != Module(repl) {
		t.Fatalf("dense slot was not overwritten")
	}
	if attn.ReplaceChild("unknown", repl) {
		t.Fatalf("ReplaceChild accepted an unknown slot name")
	}

	// Leaves and layer lists have no replaceable slots.
	if repl.ReplaceChild("weight", nil) {
		t.Fatalf("leaf module accepted a child replacement")
	}
	ll := &LayerList{Layers: []*DecoderLayer{layer}}
	if ll.ReplaceChild("0", layer) {
		t.Fatalf("layer list accepted a child replacement")
	}
}

func TestAttentionQKVWidth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		numHeads   int
		numKVHeads int
		wantOut    int
	}{
		{name: "multi head", numHeads: 8, numKVHeads: 0, wantOut: 3 * 64},
		{name: "grouped query", numHeads: 8, numKVHeads: 2, wantOut: 64 + 2*2*8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := NewAttention(AttentionConfig{
				HiddenSize: 64,
				NumHeads:   tt.numHeads,
				NumKVHeads: tt.numKVHeads,
				DType:      DTypeFloat16,
				Mapping:    SingleRank(),
			})
			qkv := a.QKV.(*ColumnLinear)
			if qkv.OutFeatures != tt.wantOut {
				t.Fatalf("qkv out features = %d, want %d", qkv.OutFeatures, tt.wantOut)
			}
			if a.KVOrigQuantScale == nil || a.KVQuantOrigScale == nil {
				t.Fatalf("kv cache scale slots were not allocated")
			}
		})
	}
}

func TestLinearSharding(t *testing.T) {
	t.Parallel()

	m := NewMapping(4, 1)

	col := NewColumnLinear(64, 256, true, DTypeFloat16, m, false)
	if col.OutFeatures != 64 {
		t.Fatalf("column shard width = %d, want 64", col.OutFeatures)
	}
	if got := col.Weight.Shape; got[0] != 64 || got[1] != 64 {
		t.Fatalf("column weight shape = %v, want [64 64]", got)
	}
	if got := col.Bias.Shape; got[0] != 64 {
		t.Fatalf("column bias shape = %v, want [64]", got)
	}

	row := NewRowLinear(256, 64, true, DTypeFloat16, m)
	if row.InFeatures != 64 {
		t.Fatalf("row shard width = %d, want 64", row.InFeatures)
	}
	if got := row.Weight.Shape; got[0] != 64 || got[1] != 64 {
		t.Fatalf("row weight shape = %v, want [64 64]", got)
	}
	if got := row.Bias.Shape; got[0] != 64 {
		t.Fatalf("row bias shape = %v, want [64], bias is not sharded", got)
	}
}

func TestMapping(t *testing.T) {
	t.Parallel()

	single := SingleRank()
	if single.WorldSize != 1 || single.Rank != 0 || single.TPSize != 1 {
		t.Fatalf("SingleRank() = %+v", single)
	}

	m := NewMapping(4, 2)
	if m.TPSize != 4 || m.Rank != 2 {
		t.Fatalf("NewMapping(4, 2) = %+v", m)
	}
	group := m.TPGroup()
	if len(group) != 4 || group[0] != 0 || group[3] != 3 {
		t.Fatalf("TPGroup() = %v", group)
	}
}

func TestParameter(t *testing.T) {
	t.Parallel()

	p := NewParameter([]int{4, 8}, DTypeFloat16)
	if p.NumElements() != 32 {
		t.Fatalf("NumElements() = %d, want 32", p.NumElements())
	}

	p.SetF32(make([]float32, 32))
	if p.F32 == nil || p.Raw != nil {
		t.Fatalf("SetF32 left raw data in place")
	}
	p.SetRaw(make([]byte, 32))
	if p.Raw == nil || p.F32 != nil {
		t.Fatalf("SetRaw left float data in place")
	}

	s := NewScalarParameter()
	if s.Scalar() != 0 {
		t.Fatalf("unset scalar = %v, want 0", s.Scalar())
	}
	s.SetScalar(5)
	if s.Scalar() != 5 {
		t.Fatalf("Scalar() = %v, want 5", s.Scalar())
	}
}

func TestParseDType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    DType
		wantErr bool
	}{
		{in: "float16", want: DTypeFloat16},
		{in: "fp16", want: DTypeFloat16},
		{in: "bfloat16", want: DTypeBFloat16},
		{in: "float32", want: DTypeFloat32},
		{in: "int8", want: DTypeInt8},
		{in: "fp8", want: DTypeFP8},
		{in: "float64", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDType(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDType(%q) accepted an unknown name", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDType(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseDType(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if got.String() == "" {
				t.Fatalf("String() returned empty for %v", got)
			}
		})
	}
}
