package module

// PositionEmbeddingType selects how positions are injected into attention.
type PositionEmbeddingType int

const (
	PositionEmbeddingLearnedAbsolute PositionEmbeddingType = iota
	PositionEmbeddingRopeGPTNeox
	PositionEmbeddingRopeGPTJ
	PositionEmbeddingAlibi
)

func (p PositionEmbeddingType) String() string {
	switch p {
	case PositionEmbeddingLearnedAbsolute:
		return "learned_absolute"
	case PositionEmbeddingRopeGPTNeox:
		return "rope_gpt_neox"
	case PositionEmbeddingRopeGPTJ:
		return "rope_gptj"
	case PositionEmbeddingAlibi:
		return "alibi"
	default:
		return "unknown"
	}
}

// AttentionConfig carries the hyperparameters needed to construct an
// attention block, or to rebuild it as a quantized variant.
type AttentionConfig struct {
	HiddenSize            int
	NumHeads              int
	NumKVHeads            int
	MaxPositionEmbeddings int
	PositionEmbedding     PositionEmbeddingType
	Bias                  bool
	DType                 DType
	Mapping               Mapping
}

// Attention is the multi-head attention block: a fused QKV column-parallel
// projection followed by a dense row-parallel projection. The KV cache
// scaling factors are allocated up front so a later calibration pass can
// write them without reshaping the tree.
type Attention struct {
	Config AttentionConfig

	QKV   Module
	Dense Module

	KVOrigQuantScale *Parameter
	KVQuantOrigScale *Parameter
}

// NewAttention wires plain column/row-parallel QKV and dense projections for
// the given geometry. Quantization-aware model constructors overwrite the
// QKV and Dense slots with their variants after construction.
func NewAttention(cfg AttentionConfig) *Attention {
	if cfg.NumKVHeads == 0 {
		cfg.NumKVHeads = cfg.NumHeads
	}
	headDim := cfg.HiddenSize / cfg.NumHeads
	qkvOut := cfg.HiddenSize + 2*cfg.NumKVHeads*headDim
	return &Attention{
		Config:           cfg,
		QKV:              NewColumnLinear(cfg.HiddenSize, qkvOut, cfg.Bias, cfg.DType, cfg.Mapping, false),
		Dense:            NewRowLinear(cfg.HiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping),
		KVOrigQuantScale: NewScalarParameter(),
		KVQuantOrigScale: NewScalarParameter(),
	}
}

func (a *Attention) Kind() Kind { return KindComposite }

func (a *Attention) Children() []Named {
	return []Named{
		{Name: "qkv", Module: a.QKV},
		{Name: "dense", Module: a.Dense},
	}
}

func (a *Attention) ReplaceChild(name string, m Module) bool {
	switch name {
	case "qkv":
		a.QKV = m
	case "dense":
		a.Dense = m
	default:
		return false
	}
	return true
}

func (a *Attention) Parameters() []NamedParameter {
	return []NamedParameter{
		{Name: "kv_orig_quant_scale", Param: a.KVOrigQuantScale},
		{Name: "kv_quant_orig_scale", Param: a.KVQuantOrigScale},
	}
}
