// Package models builds the network graphs of the supported decoder-only
// model families from hyperparameters and a tensor-parallel mapping.
package models

import (
	"github.com/subauw/TensorRT-LLM/internal/module"
	"github.com/subauw/TensorRT-LLM/internal/quantize"
)

// Config carries the hyperparameters shared by every supported family.
type Config struct {
	NumLayers             int
	HiddenSize            int
	NumHeads              int
	NumKVHeads            int
	VocabSize             int
	HiddenAct             string
	MaxPositionEmbeddings int
	MLPHiddenSize         int
	NormEps               float64
	DType                 module.DType
	PositionEmbedding     module.PositionEmbeddingType
	Mapping               module.Mapping

	// Mode selects quantization-aware construction: fp8 modes build the
	// layer projections as fp8 variants up front. Weight-only modes are
	// applied as a separate rewrite after construction instead.
	Mode quantize.Mode
}

func (c Config) withDefaults() Config {
	if c.NumKVHeads == 0 {
		c.NumKVHeads = c.NumHeads
	}
	if c.MLPHiddenSize == 0 {
		c.MLPHiddenSize = 4 * c.HiddenSize
	}
	if c.NormEps == 0 {
		c.NormEps = 1e-5
	}
	if c.Mapping.TPSize == 0 {
		c.Mapping = module.SingleRank()
	}
	return c
}

// CausalLM is the root of a decoder-only language model graph: vocabulary
// embedding, optional learned position embedding, the decoder layer stack,
// final norm, and the lm_head output projection.
type CausalLM struct {
	Config Config

	arch module.Arch
	mode quantize.Mode

	VocabEmbedding    *module.Embedding
	PositionEmbedding *module.Embedding
	Layers            *module.LayerList
	FinalNorm         module.Module
	LMHead            module.Module
}

func (m *CausalLM) Kind() module.Kind { return module.KindComposite }

func (m *CausalLM) Children() []module.Named {
	out := []module.Named{
		{Name: "vocab_embedding", Module: m.VocabEmbedding},
	}
	if m.PositionEmbedding != nil {
		out = append(out, module.Named{Name: "position_embedding", Module: m.PositionEmbedding})
	}
	out = append(out,
		module.Named{Name: "layers", Module: m.Layers},
		module.Named{Name: "ln_f", Module: m.FinalNorm},
		module.Named{Name: "lm_head", Module: m.LMHead},
	)
	return out
}

func (m *CausalLM) ReplaceChild(name string, mod module.Module) bool {
	switch name {
	case "ln_f":
		m.FinalNorm = mod
	case "lm_head":
		m.LMHead = mod
	default:
		return false
	}
	return true
}

func (m *CausalLM) Parameters() []module.NamedParameter { return nil }

func (m *CausalLM) Arch() module.Arch { return m.arch }

func (m *CausalLM) DecoderLayers() []*module.DecoderLayer { return m.Layers.Layers }

func (m *CausalLM) QuantMode() quantize.Mode     { return m.mode }
func (m *CausalLM) SetQuantMode(q quantize.Mode) { m.mode = q }

// layerStyle captures what differs between families at the layer level.
type layerStyle struct {
	rmsNorm bool
	gated   bool
	bias    bool
}

func newCausalLM(arch module.Arch, cfg Config, style layerStyle) *CausalLM {
	cfg = cfg.withDefaults()

	layers := make([]*module.DecoderLayer, cfg.NumLayers)
	for i := range layers {
		layers[i] = newDecoderLayer(cfg, style)
	}

	m := &CausalLM{
		Config:         cfg,
		arch:           arch,
		mode:           cfg.Mode,
		VocabEmbedding: module.NewEmbedding(cfg.VocabSize, cfg.HiddenSize, cfg.DType),
		Layers:         &module.LayerList{Layers: layers},
		LMHead:         module.NewColumnLinear(cfg.HiddenSize, cfg.VocabSize, false, cfg.DType, cfg.Mapping, true),
	}
	if cfg.PositionEmbedding == module.PositionEmbeddingLearnedAbsolute {
		m.PositionEmbedding = module.NewEmbedding(cfg.MaxPositionEmbeddings, cfg.HiddenSize, cfg.DType)
	}
	if style.rmsNorm {
		m.FinalNorm = module.NewRMSNorm(cfg.HiddenSize, cfg.NormEps, cfg.DType)
	} else {
		m.FinalNorm = module.NewLayerNorm(cfg.HiddenSize, cfg.NormEps, cfg.DType)
	}
	return m
}

func newDecoderLayer(cfg Config, style layerStyle) *module.DecoderLayer {
	attnCfg := module.AttentionConfig{
		HiddenSize:            cfg.HiddenSize,
		NumHeads:              cfg.NumHeads,
		NumKVHeads:            cfg.NumKVHeads,
		MaxPositionEmbeddings: cfg.MaxPositionEmbeddings,
		PositionEmbedding:     cfg.PositionEmbedding,
		Bias:                  style.bias,
		DType:                 cfg.DType,
		Mapping:               cfg.Mapping,
	}
	ffnCfg := module.MLPConfig{
		HiddenSize:    cfg.HiddenSize,
		FFNHiddenSize: cfg.MLPHiddenSize,
		HiddenAct:     cfg.HiddenAct,
		Bias:          style.bias,
		DType:         cfg.DType,
		Mapping:       cfg.Mapping,
	}

	layer := &module.DecoderLayer{
		Attn:      attnCfg,
		FFN:       ffnCfg,
		Attention: module.NewAttention(attnCfg),
	}
	if style.rmsNorm {
		layer.InputLayerNorm = module.NewRMSNorm(cfg.HiddenSize, cfg.NormEps, cfg.DType)
		layer.PostLayerNorm = module.NewRMSNorm(cfg.HiddenSize, cfg.NormEps, cfg.DType)
	} else {
		layer.InputLayerNorm = module.NewLayerNorm(cfg.HiddenSize, cfg.NormEps, cfg.DType)
		layer.PostLayerNorm = module.NewLayerNorm(cfg.HiddenSize, cfg.NormEps, cfg.DType)
	}
	if style.gated {
		layer.MLP = module.NewGatedMLP(ffnCfg)
	} else {
		layer.MLP = module.NewMLP(ffnCfg)
	}

	if cfg.Mode.HasFP8QDQ() {
		applyFP8Layout(layer, attnCfg, ffnCfg)
	}
	return layer
}

// applyFP8Layout swaps the layer's projections for fp8 variants so a later
// calibration pass only has to inject constants.
func applyFP8Layout(layer *module.DecoderLayer, attnCfg module.AttentionConfig, ffnCfg module.MLPConfig) {
	attn := layer.Attention.(*module.Attention)
	headDim := attnCfg.HiddenSize / attnCfg.NumHeads
	qkvOut := attnCfg.HiddenSize + 2*attnCfg.NumKVHeads*headDim
	attn.QKV = quantize.NewFP8Linear(attnCfg.HiddenSize, qkvOut, attnCfg.Bias, attnCfg.DType, attnCfg.Mapping, false)
	attn.Dense = quantize.NewFP8RowLinear(attnCfg.HiddenSize, attnCfg.HiddenSize, attnCfg.Bias, attnCfg.DType, attnCfg.Mapping)

	switch mlp := layer.MLP.(type) {
	case *module.MLP:
		mlp.FC = quantize.NewFP8Linear(ffnCfg.HiddenSize, ffnCfg.FFNHiddenSize, ffnCfg.Bias, ffnCfg.DType, ffnCfg.Mapping, false)
		mlp.Proj = quantize.NewFP8RowLinear(ffnCfg.FFNHiddenSize, ffnCfg.HiddenSize, ffnCfg.Bias, ffnCfg.DType, ffnCfg.Mapping)
	case *module.GatedMLP:
		mlp.FC = quantize.NewFP8Linear(ffnCfg.HiddenSize, ffnCfg.FFNHiddenSize, ffnCfg.Bias, ffnCfg.DType, ffnCfg.Mapping, false)
		mlp.Gate = quantize.NewFP8Linear(ffnCfg.HiddenSize, ffnCfg.FFNHiddenSize, ffnCfg.Bias, ffnCfg.DType, ffnCfg.Mapping, false)
		mlp.Proj = quantize.NewFP8RowLinear(ffnCfg.FFNHiddenSize, ffnCfg.HiddenSize, ffnCfg.Bias, ffnCfg.DType, ffnCfg.Mapping)
	}
}
