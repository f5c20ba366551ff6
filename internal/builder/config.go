// Package builder drives a constructed model graph through quantization,
// weight loading, and serialization into per-rank engine containers.
package builder

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/subauw/TensorRT-LLM/internal/module"
	"github.com/subauw/TensorRT-LLM/internal/quantize"
)

// PluginConfig records which fused kernels the runtime should use. The
// kernels themselves live in the runtime; the build only pins the choice.
type PluginConfig struct {
	// GEMM and Attention name the plugin precision ("float16",
	// "bfloat16", ...) or are empty when the plugin is off.
	GEMM      string `json:"gemm_plugin,omitempty"`
	Attention string `json:"gpt_attention_plugin,omitempty"`

	// WeightOnlyMatmul enables the fused weight-only dequant matmul.
	WeightOnlyMatmul bool `json:"weight_only_quant_matmul_plugin,omitempty"`

	// NCCL enables the collective plugin for multi-rank engines.
	NCCL bool `json:"nccl_plugin,omitempty"`
}

// Config describes one multi-rank build. Rank 0 writes it out as
// config.json next to the engines.
type Config struct {
	ID        string `json:"build_id"`
	Name      string `json:"name"`
	Precision string `json:"precision"`

	WorldSize     int  `json:"tensor_parallel"`
	ParallelBuild bool `json:"parallel_build"`

	NumLayers             int    `json:"num_layers"`
	HiddenSize            int    `json:"hidden_size"`
	NumHeads              int    `json:"num_heads"`
	NumKVHeads            int    `json:"num_kv_heads,omitempty"`
	VocabSize             int    `json:"vocab_size"`
	HiddenAct             string `json:"hidden_act"`
	MaxPositionEmbeddings int    `json:"max_position_embeddings"`
	MLPHiddenSize         int    `json:"inter_size,omitempty"`

	MaxBatchSize int `json:"max_batch_size"`
	MaxInputLen  int `json:"max_input_len"`
	MaxOutputLen int `json:"max_output_len"`

	Int8      bool          `json:"int8"`
	QuantMode quantize.Mode `json:"quant_mode"`
	GroupSize int           `json:"group_size,omitempty"`

	Plugins PluginConfig `json:"plugin_config"`

	Arch            module.Arch `json:"-"`
	ModelDir        string      `json:"-"`
	OutputDir       string      `json:"-"`
	TimingCachePath string      `json:"-"`
}

// NewBuildID returns a fresh identifier for one build invocation.
func NewBuildID() string { return uuid.NewString() }

// EngineName returns the per-rank artifact filename.
func EngineName(model string, dtype module.DType, tpSize, rank int) string {
	return fmt.Sprintf("%s_%s_tp%d_rank%d.engine", model, dtype, tpSize, rank)
}

func (c *Config) validate() error {
	if c.WorldSize < 1 {
		return fmt.Errorf("%w: world size %d", quantize.ErrConfigConflict, c.WorldSize)
	}
	dtype, err := module.ParseDType(c.Precision)
	if err != nil {
		return err
	}
	if dtype == module.DTypeBFloat16 && c.Plugins.GEMM == "" {
		return fmt.Errorf("%w: bfloat16 engines need the gemm plugin", quantize.ErrConfigConflict)
	}
	if c.QuantMode.HasInt4Weights() && !c.QuantMode.IsWeightOnly() {
		return fmt.Errorf("%w: int4 weights need a weight-only mode", quantize.ErrConfigConflict)
	}
	if c.QuantMode.IsWeightOnly() {
		if err := c.QuantMode.ValidateWeightPrecision(); err != nil {
			return err
		}
		if !c.Plugins.WeightOnlyMatmul {
			return fmt.Errorf("%w: weight-only engines need the weight-only matmul plugin", quantize.ErrConfigConflict)
		}
	}
	if c.WorldSize > 1 && !c.Plugins.NCCL {
		return fmt.Errorf("%w: multi-rank engines need the nccl plugin", quantize.ErrConfigConflict)
	}
	return nil
}

func (c *Config) dtype() module.DType {
	d, _ := module.ParseDType(c.Precision)
	return d
}
