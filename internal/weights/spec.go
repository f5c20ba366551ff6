// Package weights copies pretrained checkpoint tensors onto a model graph,
// slicing each projection for the building rank's tensor-parallel shard.
package weights

import (
	"fmt"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// tensorSpec names the checkpoint tensors of one family. Either qkvFused or
// the q/k/v triple is set, never both. transposed marks conv1d-style
// [in, out] weight storage that must be transposed before sharding.
type tensorSpec struct {
	embedding         string
	positionEmbedding string
	finalNorm         string
	lmHead            string

	inputNorm func(i int) string
	postNorm  func(i int) string

	qkvFused  func(i int) string
	q, k, v   func(i int) string
	attnDense func(i int) string

	fc   func(i int) string
	gate func(i int) string
	proj func(i int) string

	normBias   bool
	linearBias bool
	transposed bool
}

func layerName(format string) func(i int) string {
	return func(i int) string { return fmt.Sprintf(format, i) }
}

func specFor(arch module.Arch) (tensorSpec, error) {
	switch arch {
	case module.ArchGPT:
		return tensorSpec{
			embedding:         "wte.weight",
			positionEmbedding: "wpe.weight",
			finalNorm:         "ln_f.weight",
			lmHead:            "wte.weight",
			inputNorm:         layerName("h.%d.ln_1.weight"),
			postNorm:          layerName("h.%d.ln_2.weight"),
			qkvFused:          layerName("h.%d.attn.c_attn.weight"),
			attnDense:         layerName("h.%d.attn.c_proj.weight"),
			fc:                layerName("h.%d.mlp.c_fc.weight"),
			proj:              layerName("h.%d.mlp.c_proj.weight"),
			normBias:          true,
			linearBias:        true,
			transposed:        true,
		}, nil
	case module.ArchGPTJ:
		return tensorSpec{
			embedding: "transformer.wte.weight",
			finalNorm: "transformer.ln_f.weight",
			lmHead:    "lm_head.weight",
			inputNorm: layerName("transformer.h.%d.ln_1.weight"),
			postNorm:  layerName("transformer.h.%d.ln_1.weight"),
			q:         layerName("transformer.h.%d.attn.q_proj.weight"),
			k:         layerName("transformer.h.%d.attn.k_proj.weight"),
			v:         layerName("transformer.h.%d.attn.v_proj.weight"),
			attnDense: layerName("transformer.h.%d.attn.out_proj.weight"),
			fc:        layerName("transformer.h.%d.mlp.fc_in.weight"),
			proj:      layerName("transformer.h.%d.mlp.fc_out.weight"),
			normBias:  true,
		}, nil
	case module.ArchLLaMA:
		return tensorSpec{
			embedding: "model.embed_tokens.weight",
			finalNorm: "model.norm.weight",
			lmHead:    "lm_head.weight",
			inputNorm: layerName("model.layers.%d.input_layernorm.weight"),
			postNorm:  layerName("model.layers.%d.post_attention_layernorm.weight"),
			q:         layerName("model.layers.%d.self_attn.q_proj.weight"),
			k:         layerName("model.layers.%d.self_attn.k_proj.weight"),
			v:         layerName("model.layers.%d.self_attn.v_proj.weight"),
			attnDense: layerName("model.layers.%d.self_attn.o_proj.weight"),
			fc:        layerName("model.layers.%d.mlp.up_proj.weight"),
			gate:      layerName("model.layers.%d.mlp.gate_proj.weight"),
			proj:      layerName("model.layers.%d.mlp.down_proj.weight"),
		}, nil
	case module.ArchBaichuan:
		return tensorSpec{
			embedding: "model.embed_tokens.weight",
			finalNorm: "model.norm.weight",
			lmHead:    "lm_head.weight",
			inputNorm: layerName("model.layers.%d.input_layernorm.weight"),
			postNorm:  layerName("model.layers.%d.post_attention_layernorm.weight"),
			qkvFused:  layerName("model.layers.%d.self_attn.W_pack.weight"),
			attnDense: layerName("model.layers.%d.self_attn.o_proj.weight"),
			fc:        layerName("model.layers.%d.mlp.up_proj.weight"),
			gate:      layerName("model.layers.%d.mlp.gate_proj.weight"),
			proj:      layerName("model.layers.%d.mlp.down_proj.weight"),
		}, nil
	case module.ArchBloom:
		return tensorSpec{
			embedding: "word_embeddings.weight",
			finalNorm: "ln_f.weight",
			lmHead:    "word_embeddings.weight",
			inputNorm: layerName("h.%d.input_layernorm.weight"),
			postNorm:  layerName("h.%d.post_attention_layernorm.weight"),
			qkvFused:  layerName("h.%d.self_attention.query_key_value.weight"),
			attnDense: layerName("h.%d.self_attention.dense.weight"),
			fc:        layerName("h.%d.mlp.dense_h_to_4h.weight"),
			proj:      layerName("h.%d.mlp.dense_4h_to_h.weight"),
			normBias:   true,
			linearBias: true,
		}, nil
	case module.ArchFalcon:
		return tensorSpec{
			embedding: "transformer.word_embeddings.weight",
			finalNorm: "transformer.ln_f.weight",
			lmHead:    "lm_head.weight",
			inputNorm: layerName("transformer.h.%d.input_layernorm.weight"),
			postNorm:  layerName("transformer.h.%d.post_attention_layernorm.weight"),
			qkvFused:  layerName("transformer.h.%d.self_attention.query_key_value.weight"),
			attnDense: layerName("transformer.h.%d.self_attention.dense.weight"),
			fc:        layerName("transformer.h.%d.mlp.dense_h_to_4h.weight"),
			proj:      layerName("transformer.h.%d.mlp.dense_4h_to_h.weight"),
			normBias:  true,
		}, nil
	default:
		return tensorSpec{}, fmt.Errorf("no weight mapping for architecture %q", arch)
	}
}
