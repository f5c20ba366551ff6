package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// hfConfig mirrors the fields of a HuggingFace config.json that the graph
// definitions consume. Unknown fields are ignored.
type hfConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`

	HiddenSize            int     `json:"hidden_size"`
	IntermediateSize      int     `json:"intermediate_size"`
	NumHiddenLayers       int     `json:"num_hidden_layers"`
	NumAttentionHeads     int     `json:"num_attention_heads"`
	NumKeyValueHeads      int     `json:"num_key_value_heads"`
	VocabSize             int     `json:"vocab_size"`
	MaxPositionEmbeddings int     `json:"max_position_embeddings"`
	ModelMaxLength        int     `json:"model_max_length"`
	HiddenAct             string  `json:"hidden_act"`
	RMSNormEps            float64 `json:"rms_norm_eps"`
	LayerNormEps          float64 `json:"layer_norm_epsilon"`

	// GPT-2 style aliases.
	NEmbd  int `json:"n_embd"`
	NLayer int `json:"n_layer"`
	NHead  int `json:"n_head"`
	NCtx   int `json:"n_ctx"`
}

// DetectArch maps a checkpoint's model_type (falling back to the
// architectures list) to the family tag used by this toolkit.
func DetectArch(cfg hfConfig) (module.Arch, error) {
	t := strings.ToLower(cfg.ModelType)
	if t == "" && len(cfg.Architectures) > 0 {
		t = strings.ToLower(cfg.Architectures[0])
	}
	switch {
	case t == "gpt2" || t == "gpt" || strings.HasPrefix(t, "gptlmhead"):
		return module.ArchGPT, nil
	case t == "gptj" || strings.HasPrefix(t, "gptjforcausallm"):
		return module.ArchGPTJ, nil
	case t == "llama" || strings.HasPrefix(t, "llamaforcausallm"):
		return module.ArchLLaMA, nil
	case t == "bloom" || strings.HasPrefix(t, "bloomforcausallm"):
		return module.ArchBloom, nil
	case t == "falcon" || t == "refinedweb" || t == "refinedwebmodel":
		return module.ArchFalcon, nil
	case strings.HasPrefix(t, "baichuan"):
		return module.ArchBaichuan, nil
	default:
		return "", fmt.Errorf("unsupported model_type %q", cfg.ModelType)
	}
}

// LoadCheckpointConfig reads <dir>/config.json and returns the detected
// family plus the hyperparameters needed to define its graph.
func LoadCheckpointConfig(dir string) (module.Arch, Config, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return "", Config{}, fmt.Errorf("read checkpoint config: %w", err)
	}
	var hf hfConfig
	if err := json.Unmarshal(raw, &hf); err != nil {
		return "", Config{}, fmt.Errorf("parse checkpoint config: %w", err)
	}
	arch, err := DetectArch(hf)
	if err != nil {
		return "", Config{}, err
	}

	cfg := Config{
		NumLayers:             firstNonZero(hf.NumHiddenLayers, hf.NLayer),
		HiddenSize:            firstNonZero(hf.HiddenSize, hf.NEmbd),
		NumHeads:              firstNonZero(hf.NumAttentionHeads, hf.NHead),
		NumKVHeads:            hf.NumKeyValueHeads,
		VocabSize:             hf.VocabSize,
		HiddenAct:             hf.HiddenAct,
		MaxPositionEmbeddings: firstNonZero(hf.MaxPositionEmbeddings, hf.ModelMaxLength, hf.NCtx),
		MLPHiddenSize:         hf.IntermediateSize,
		NormEps:               firstNonZeroF(hf.RMSNormEps, hf.LayerNormEps),
	}
	return arch, cfg, nil
}

// New dispatches to the family constructor for the given tag.
func New(arch module.Arch, cfg Config) (*CausalLM, error) {
	switch arch {
	case module.ArchGPT:
		return NewGPT(cfg), nil
	case module.ArchGPTJ:
		return NewGPTJ(cfg), nil
	case module.ArchLLaMA:
		return NewLLaMA(cfg), nil
	case module.ArchBloom:
		return NewBloom(cfg), nil
	case module.ArchFalcon:
		return NewFalcon(cfg), nil
	case module.ArchBaichuan:
		return NewBaichuan(cfg, false), nil
	default:
		return nil, fmt.Errorf("unsupported architecture %q", arch)
	}
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func firstNonZeroF(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
