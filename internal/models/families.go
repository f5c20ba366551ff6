package models

import "github.com/subauw/TensorRT-LLM/internal/module"

// NewGPT builds a GPT-style model: layer norms, learned absolute position
// embedding, biased projections, plain feed-forward.
func NewGPT(cfg Config) *CausalLM {
	cfg.PositionEmbedding = module.PositionEmbeddingLearnedAbsolute
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	return newCausalLM(module.ArchGPT, cfg, layerStyle{bias: true})
}

// NewGPTJ builds a GPT-J-style model: layer norms, GPT-J rotary positions,
// unbiased projections, plain feed-forward.
func NewGPTJ(cfg Config) *CausalLM {
	cfg.PositionEmbedding = module.PositionEmbeddingRopeGPTJ
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	return newCausalLM(module.ArchGPTJ, cfg, layerStyle{})
}

// NewLLaMA builds a LLaMA-style model: RMS norms, GPT-NeoX rotary
// positions, unbiased projections, gated feed-forward.
func NewLLaMA(cfg Config) *CausalLM {
	cfg.PositionEmbedding = module.PositionEmbeddingRopeGPTNeox
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "silu"
	}
	if cfg.NormEps == 0 {
		cfg.NormEps = 1e-6
	}
	return newCausalLM(module.ArchLLaMA, cfg, layerStyle{rmsNorm: true, gated: true})
}

// NewBloom builds a Bloom-style model: layer norms, alibi positions, biased
// projections, plain feed-forward.
func NewBloom(cfg Config) *CausalLM {
	cfg.PositionEmbedding = module.PositionEmbeddingAlibi
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	return newCausalLM(module.ArchBloom, cfg, layerStyle{bias: true})
}

// NewFalcon builds a Falcon-style model. Recognized for graph definition
// and weight-only rewrites; the family-specific quantization passes reject
// it.
func NewFalcon(cfg Config) *CausalLM {
	cfg.PositionEmbedding = module.PositionEmbeddingRopeGPTNeox
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "gelu"
	}
	return newCausalLM(module.ArchFalcon, cfg, layerStyle{})
}

// NewBaichuan builds a Baichuan model. The 7B variants use rotary
// positions, the 13B variants use alibi; both are LLaMA-like otherwise.
func NewBaichuan(cfg Config, alibi bool) *CausalLM {
	if alibi {
		cfg.PositionEmbedding = module.PositionEmbeddingAlibi
	} else {
		cfg.PositionEmbedding = module.PositionEmbeddingRopeGPTNeox
	}
	if cfg.HiddenAct == "" {
		cfg.HiddenAct = "silu"
	}
	if cfg.NormEps == 0 {
		cfg.NormEps = 1e-6
	}
	return newCausalLM(module.ArchBaichuan, cfg, layerStyle{rmsNorm: true, gated: true})
}
