package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/subauw/TensorRT-LLM/internal/module"
	"github.com/subauw/TensorRT-LLM/internal/quantize"
)

func testConfig() Config {
	return Config{
		NumLayers:             2,
		HiddenSize:            64,
		NumHeads:              4,
		VocabSize:             128,
		MaxPositionEmbeddings: 256,
		DType:                 module.DTypeFloat16,
	}
}

func TestFamilyConstruction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		arch        module.Arch
		normKind    module.Kind
		gated       bool
		bias        bool
		posEmbed    module.PositionEmbeddingType
		learnedPos  bool
		wantDefault string
	}{
		{arch: module.ArchGPT, normKind: module.KindLayerNorm, bias: true, posEmbed: module.PositionEmbeddingLearnedAbsolute, learnedPos: true, wantDefault: "gelu"},
		{arch: module.ArchGPTJ, normKind: module.KindLayerNorm, posEmbed: module.PositionEmbeddingRopeGPTJ, wantDefault: "gelu"},
		{arch: module.ArchLLaMA, normKind: module.KindRMSNorm, gated: true, posEmbed: module.PositionEmbeddingRopeGPTNeox, wantDefault: "silu"},
		{arch: module.ArchBloom, normKind: module.KindLayerNorm, bias: true, posEmbed: module.PositionEmbeddingAlibi, wantDefault: "gelu"},
		{arch: module.ArchFalcon, normKind: module.KindLayerNorm, posEmbed: module.PositionEmbeddingRopeGPTNeox, wantDefault: "gelu"},
		{arch: module.ArchBaichuan, normKind: module.KindRMSNorm, gated: true, posEmbed: module.PositionEmbeddingRopeGPTNeox, wantDefault: "silu"},
	}

	for _, tt := range tests {
		t.Run(string(tt.arch), func(t *testing.T) {
			t.Parallel()

			m, err := New(tt.arch, testConfig())
			if err != nil {
				t.Fatalf("New(%s): %v", tt.arch, err)
			}
			if m.Arch() != tt.arch {
				t.Fatalf("Arch() = %s, want %s", m.Arch(), tt.arch)
			}
			if len(m.DecoderLayers()) != 2 {
				t.Fatalf("got %d layers, want 2", len(m.DecoderLayers()))
			}
			if got := m.FinalNorm.Kind(); got != tt.normKind {
				t.Errorf("final norm kind = %v, want %v", got, tt.normKind)
			}
			if (m.PositionEmbedding != nil) != tt.learnedPos {
				t.Errorf("position embedding present = %v, want %v", m.PositionEmbedding != nil, tt.learnedPos)
			}

			layer := m.DecoderLayers()[0]
			if got := layer.InputLayerNorm.Kind(); got != tt.normKind {
				t.Errorf("input norm kind = %v, want %v", got, tt.normKind)
			}
			if layer.Attn.PositionEmbedding != tt.posEmbed {
				t.Errorf("position embedding type = %v, want %v", layer.Attn.PositionEmbedding, tt.posEmbed)
			}
			if layer.Attn.Bias != tt.bias {
				t.Errorf("attention bias = %v, want %v", layer.Attn.Bias, tt.bias)
			}
			if layer.FFN.HiddenAct != tt.wantDefault {
				t.Errorf("hidden act = %q, want %q", layer.FFN.HiddenAct, tt.wantDefault)
			}
			_, isGated := layer.MLP.(*module.GatedMLP)
			if isGated != tt.gated {
				t.Errorf("gated mlp = %v, want %v", isGated, tt.gated)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	m := NewGPT(testConfig())

	if got := m.Config.NumKVHeads; got != 4 {
		t.Fatalf("kv heads defaulted to %d, want num heads", got)
	}
	if got := m.Config.MLPHiddenSize; got != 4*64 {
		t.Fatalf("mlp hidden size defaulted to %d, want %d", got, 4*64)
	}
	if got := m.Config.Mapping.TPSize; got != 1 {
		t.Fatalf("mapping defaulted to tp size %d, want 1", got)
	}

	llama := NewLLaMA(testConfig())
	if got := llama.Config.NormEps; got != 1e-6 {
		t.Fatalf("llama norm eps = %v, want 1e-6", got)
	}
}

func TestFP8Layout(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Mode = quantize.FP8Mode(false)

	m := NewLLaMA(cfg)
	if m.QuantMode() != cfg.Mode {
		t.Fatalf("quant mode = %v, want %v", m.QuantMode(), cfg.Mode)
	}

	layer := m.DecoderLayers()[0]
	attn := layer.Attention.(*module.Attention)
	if got := attn.QKV.Kind(); got != module.KindFP8Linear {
		t.Fatalf("qkv kind = %v, want fp8 linear", got)
	}
	if got := attn.Dense.Kind(); got != module.KindFP8RowLinear {
		t.Fatalf("dense kind = %v, want fp8 row linear", got)
	}
	mlp := layer.MLP.(*module.GatedMLP)
	if got := mlp.Gate.Kind(); got != module.KindFP8Linear {
		t.Fatalf("gate kind = %v, want fp8 linear", got)
	}
	if got := mlp.Proj.Kind(); got != module.KindFP8RowLinear {
		t.Fatalf("proj kind = %v, want fp8 row linear", got)
	}

	// Without an fp8 mode the plain layout is kept.
	plain := NewLLaMA(testConfig())
	if got := plain.DecoderLayers()[0].Attention.(*module.Attention).QKV.Kind(); got != module.KindColumnLinear {
		t.Fatalf("plain qkv kind = %v, want column linear", got)
	}
}

func TestDetectArch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     hfConfig
		want    module.Arch
		wantErr bool
	}{
		{name: "gpt2", cfg: hfConfig{ModelType: "gpt2"}, want: module.ArchGPT},
		{name: "llama", cfg: hfConfig{ModelType: "llama"}, want: module.ArchLLaMA},
		{name: "case insensitive", cfg: hfConfig{ModelType: "LLaMA"}, want: module.ArchLLaMA},
		{name: "gptj", cfg: hfConfig{ModelType: "gptj"}, want: module.ArchGPTJ},
		{name: "bloom", cfg: hfConfig{ModelType: "bloom"}, want: module.ArchBloom},
		{name: "falcon alias", cfg: hfConfig{ModelType: "RefinedWebModel"}, want: module.ArchFalcon},
		{name: "baichuan prefix", cfg: hfConfig{ModelType: "baichuan-13b"}, want: module.ArchBaichuan},
		{name: "architectures fallback", cfg: hfConfig{Architectures: []string{"LlamaForCausalLM"}}, want: module.ArchLLaMA},
		{name: "unknown", cfg: hfConfig{ModelType: "t5"}, wantErr: true},
		{name: "empty", cfg: hfConfig{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DetectArch(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DetectArch accepted %+v", tt.cfg)
				}
				return
			}
			if err != nil {
				t.Fatalf("DetectArch: %v", err)
			}
			if got != tt.want {
				t.Fatalf("DetectArch = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadCheckpointConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := `{
		"model_type": "llama",
		"hidden_size": 4096,
		"intermediate_size": 11008,
		"num_hidden_layers": 32,
		"num_attention_heads": 32,
		"num_key_value_heads": 8,
		"vocab_size": 32000,
		"max_position_embeddings": 2048,
		"hidden_act": "silu",
		"rms_norm_eps": 1e-06
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	arch, cfg, err := LoadCheckpointConfig(dir)
	if err != nil {
		t.Fatalf("LoadCheckpointConfig: %v", err)
	}
	if arch != module.ArchLLaMA {
		t.Fatalf("arch = %s, want llama", arch)
	}
	if cfg.NumLayers != 32 || cfg.HiddenSize != 4096 || cfg.NumHeads != 32 {
		t.Fatalf("unexpected geometry: %+v", cfg)
	}
	if cfg.NumKVHeads != 8 || cfg.MLPHiddenSize != 11008 || cfg.VocabSize != 32000 {
		t.Fatalf("unexpected geometry: %+v", cfg)
	}
	if cfg.NormEps != 1e-6 {
		t.Fatalf("norm eps = %v, want 1e-6", cfg.NormEps)
	}
}

func TestLoadCheckpointConfigGPT2Aliases(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	raw := `{
		"model_type": "gpt2",
		"n_embd": 768,
		"n_layer": 12,
		"n_head": 12,
		"n_ctx": 1024,
		"vocab_size": 50257,
		"layer_norm_epsilon": 1e-05
	}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	arch, cfg, err := LoadCheckpointConfig(dir)
	if err != nil {
		t.Fatalf("LoadCheckpointConfig: %v", err)
	}
	if arch != module.ArchGPT {
		t.Fatalf("arch = %s, want gpt", arch)
	}
	if cfg.HiddenSize != 768 || cfg.NumLayers != 12 || cfg.NumHeads != 12 {
		t.Fatalf("gpt2 aliases not applied: %+v", cfg)
	}
	if cfg.MaxPositionEmbeddings != 1024 {
		t.Fatalf("max positions = %d, want 1024", cfg.MaxPositionEmbeddings)
	}
	if cfg.NormEps != 1e-5 {
		t.Fatalf("norm eps = %v, want 1e-5", cfg.NormEps)
	}
}

func TestLoadCheckpointConfigMissing(t *testing.T) {
	t.Parallel()

	if _, _, err := LoadCheckpointConfig(t.TempDir()); err == nil {
		t.Fatalf("LoadCheckpointConfig accepted a directory without config.json")
	}
}

func TestNewUnknownArch(t *testing.T) {
	t.Parallel()

	if _, err := New(module.Arch("mamba"), testConfig()); err == nil {
		t.Fatalf("New accepted an unknown architecture")
	}
}
