package quantize

import (
	"fmt"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// SmoothQuant replaces every decoder layer's norms, attention and
// feed-forward block with their int8 smooth-quant variants. Unlike the
// weight-only rewrites this is a flat, family-specific pass: the layer
// structure of each supported family is known, so no tree walk is needed.
func SmoothQuant(model Model, mode Mode) (Model, error) {
	if !mode.HasActAndWeightQuant() {
		return nil, fmt.Errorf("%w: smooth-quant requires activation and weight quantization", ErrConfigConflict)
	}
	switch model.Arch() {
	case module.ArchGPT:
		smoothQuantLayers(model, mode, false, false)
	case module.ArchLLaMA:
		smoothQuantLayers(model, mode, true, true)
	case module.ArchBloom:
		smoothQuantLayers(model, mode, false, false)
	default:
		return nil, fmt.Errorf("%w: smooth-quant does not support %q", ErrUnsupportedModel, model.Arch())
	}
	model.SetQuantMode(mode)
	return model, nil
}

// smoothQuantLayers rewrites the per-layer blocks. rmsNorm selects the
// scale-only norm variant and gated selects the gated feed-forward variant,
// both of which go together for the LLaMA family.
func smoothQuantLayers(model Model, mode Mode, rmsNorm, gated bool) {
	for _, layer := range model.DecoderLayers() {
		attnCfg := layer.Attn
		ffnCfg := layer.FFN

		if rmsNorm {
			layer.InputLayerNorm = NewSmoothQuantRMSNorm(attnCfg.HiddenSize, normEps(layer.InputLayerNorm), attnCfg.DType, mode)
			layer.PostLayerNorm = NewSmoothQuantRMSNorm(attnCfg.HiddenSize, normEps(layer.PostLayerNorm), attnCfg.DType, mode)
		} else {
			layer.InputLayerNorm = NewSmoothQuantLayerNorm(attnCfg.HiddenSize, normEps(layer.InputLayerNorm), attnCfg.DType, mode)
			layer.PostLayerNorm = NewSmoothQuantLayerNorm(attnCfg.HiddenSize, normEps(layer.PostLayerNorm), attnCfg.DType, mode)
		}

		layer.Attention = NewSmoothQuantAttention(attnCfg, mode)

		if gated {
			layer.MLP = NewSmoothQuantGatedMLP(ffnCfg, mode)
		} else {
			layer.MLP = NewSmoothQuantMLP(ffnCfg, mode)
		}
	}
}

// normEps recovers the epsilon of whichever norm variant currently occupies
// the slot, so the replacement keeps the layer's numerics.
func normEps(m module.Module) float64 {
	switch n := m.(type) {
	case *module.LayerNorm:
		return n.Eps
	case *module.RMSNorm:
		return n.Eps
	case *SmoothQuantLayerNorm:
		return n.Eps
	case *SmoothQuantRMSNorm:
		return n.Eps
	default:
		return 1e-5
	}
}
