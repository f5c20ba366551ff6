package quantize

import "github.com/subauw/TensorRT-LLM/internal/module"

// SmoothQuantLayerNorm is a layer norm that also emits the int8-quantized
// activation stream consumed by the smooth-quant GEMMs that follow it.
type SmoothQuantLayerNorm struct {
	NormalizedShape int
	Eps             float64
	DType           module.DType
	Mode            Mode

	Weight *module.Parameter
	Bias   *module.Parameter

	// ScaleToInt converts the normalized output to int8 when static
	// activation scaling is selected.
	ScaleToInt *module.Parameter
}

func NewSmoothQuantLayerNorm(normalizedShape int, eps float64, dtype module.DType, mode Mode) *SmoothQuantLayerNorm {
	return &SmoothQuantLayerNorm{
		NormalizedShape: normalizedShape,
		Eps:             eps,
		DType:           dtype,
		Mode:            mode,
		Weight:          module.NewParameter([]int{normalizedShape}, dtype),
		Bias:            module.NewParameter([]int{normalizedShape}, dtype),
		ScaleToInt:      module.NewScalarParameter(),
	}
}

func (n *SmoothQuantLayerNorm) Kind() module.Kind                       { return module.KindSmoothQuantLayerNorm }
func (n *SmoothQuantLayerNorm) Children() []module.Named                { return nil }
func (n *SmoothQuantLayerNorm) ReplaceChild(string, module.Module) bool { return false }
func (n *SmoothQuantLayerNorm) Parameters() []module.NamedParameter {
	return []module.NamedParameter{
		{Name: "weight", Param: n.Weight},
		{Name: "bias", Param: n.Bias},
		{Name: "scale_to_int", Param: n.ScaleToInt},
	}
}

// SmoothQuantRMSNorm is the scale-only counterpart used by the LLaMA family.
type SmoothQuantRMSNorm struct {
	NormalizedShape int
	Eps             float64
	DType           module.DType
	Mode            Mode

	Weight     *module.Parameter
	ScaleToInt *module.Parameter
}

func NewSmoothQuantRMSNorm(normalizedShape int, eps float64, dtype module.DType, mode Mode) *SmoothQuantRMSNorm {
	return &SmoothQuantRMSNorm{
		NormalizedShape: normalizedShape,
		Eps:             eps,
		DType:           dtype,
		Mode:            mode,
		Weight:          module.NewParameter([]int{normalizedShape}, dtype),
		ScaleToInt:      module.NewScalarParameter(),
	}
}

func (n *SmoothQuantRMSNorm) Kind() module.Kind                       { return module.KindSmoothQuantRMSNorm }
func (n *SmoothQuantRMSNorm) Children() []module.Named                { return nil }
func (n *SmoothQuantRMSNorm) ReplaceChild(string, module.Module) bool { return false }
func (n *SmoothQuantRMSNorm) Parameters() []module.NamedParameter {
	return []module.NamedParameter{
		{Name: "weight", Param: n.Weight},
		{Name: "scale_to_int", Param: n.ScaleToInt},
	}
}

// SmoothQuantColumnLinear is a column-parallel linear with an int8 weight,
// per-output-channel weight scales and a static activation scale.
type SmoothQuantColumnLinear struct {
	InFeatures   int
	OutFeatures  int
	HasBias      bool
	DType        module.DType
	Mapping      module.Mapping
	GatherOutput bool
	Mode         Mode

	Weight   *module.Parameter
	Scale    *module.Parameter
	ActScale *module.Parameter
	Bias     *module.Parameter
}

func NewSmoothQuantColumnLinear(inFeatures, outFeatures int, bias bool, dtype module.DType, mapping module.Mapping, gatherOutput bool, mode Mode) *SmoothQuantColumnLinear {
	shard := outFeatures / mapping.TPSize
	l := &SmoothQuantColumnLinear{
		InFeatures:   inFeatures,
		OutFeatures:  shard,
		HasBias:      bias,
		DType:        dtype,
		Mapping:      mapping,
		GatherOutput: gatherOutput,
		Mode:         mode,
		Weight:       module.NewParameter([]int{shard, inFeatures}, module.DTypeInt8),
		Scale:        module.NewParameter([]int{shard}, module.DTypeFloat32),
		ActScale:     module.NewScalarParameter(),
	}
	if bias {
		l.Bias = module.NewParameter([]int{shard}, dtype)
	}
	return l
}

func (l *SmoothQuantColumnLinear) Kind() module.Kind                       { return module.KindSmoothQuantColumnLinear }
func (l *SmoothQuantColumnLinear) Children() []module.Named                { return nil }
func (l *SmoothQuantColumnLinear) ReplaceChild(string, module.Module) bool { return false }
func (l *SmoothQuantColumnLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "per_channel_scale", Param: l.Scale},
		{Name: "act_scale", Param: l.ActScale},
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// SmoothQuantRowLinear is the row-parallel counterpart. The smoother is the
// per-input-channel factor that migrates activation outliers into the weight.
type SmoothQuantRowLinear struct {
	InFeatures  int
	OutFeatures int
	HasBias     bool
	DType       module.DType
	Mapping     module.Mapping
	Mode        Mode

	Weight   *module.Parameter
	Scale    *module.Parameter
	ActScale *module.Parameter
	Smoother *module.Parameter
	Bias     *module.Parameter
}

func NewSmoothQuantRowLinear(inFeatures, outFeatures int, bias bool, dtype module.DType, mapping module.Mapping, mode Mode) *SmoothQuantRowLinear {
	shard := inFeatures / mapping.TPSize
	l := &SmoothQuantRowLinear{
		InFeatures:  shard,
		OutFeatures: outFeatures,
		HasBias:     bias,
		DType:       dtype,
		Mapping:     mapping,
		Mode:        mode,
		Weight:      module.NewParameter([]int{outFeatures, shard}, module.DTypeInt8),
		Scale:       module.NewParameter([]int{outFeatures}, module.DTypeFloat32),
		ActScale:    module.NewScalarParameter(),
		Smoother:    module.NewParameter([]int{shard}, module.DTypeFloat32),
	}
	if bias {
		l.Bias = module.NewParameter([]int{outFeatures}, dtype)
	}
	return l
}

func (l *SmoothQuantRowLinear) Kind() module.Kind                       { return module.KindSmoothQuantRowLinear }
func (l *SmoothQuantRowLinear) Children() []module.Named                { return nil }
func (l *SmoothQuantRowLinear) ReplaceChild(string, module.Module) bool { return false }
func (l *SmoothQuantRowLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "per_channel_scale", Param: l.Scale},
		{Name: "act_scale", Param: l.ActScale},
		{Name: "smoother", Param: l.Smoother},
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// SmoothQuantAttention is the attention block with int8 GEMMs. Its
// projections stay column/row-parallel; the smooth-quant kernels consume the
// per-token and per-channel scaling factors recorded on the block.
type SmoothQuantAttention struct {
	Config module.AttentionConfig
	Mode   Mode

	QKV   module.Module
	Dense module.Module

	KVOrigQuantScale *module.Parameter
	KVQuantOrigScale *module.Parameter
}

func NewSmoothQuantAttention(cfg module.AttentionConfig, mode Mode) *SmoothQuantAttention {
	if cfg.NumKVHeads == 0 {
		cfg.NumKVHeads = cfg.NumHeads
	}
	headDim := cfg.HiddenSize / cfg.NumHeads
	qkvOut := cfg.HiddenSize + 2*cfg.NumKVHeads*headDim
	return &SmoothQuantAttention{
		Config:           cfg,
		Mode:             mode,
		QKV:              NewSmoothQuantColumnLinear(cfg.HiddenSize, qkvOut, cfg.Bias, cfg.DType, cfg.Mapping, false, mode),
		Dense:            NewSmoothQuantRowLinear(cfg.HiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, mode),
		KVOrigQuantScale: module.NewScalarParameter(),
		KVQuantOrigScale: module.NewScalarParameter(),
	}
}

func (a *SmoothQuantAttention) Kind() module.Kind { return module.KindSmoothQuantAttention }

func (a *SmoothQuantAttention) Children() []module.Named {
	return []module.Named{
		{Name: "qkv", Module: a.QKV},
		{Name: "dense", Module: a.Dense},
	}
}

func (a *SmoothQuantAttention) ReplaceChild(name string, m module.Module) bool {
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

func (a *SmoothQuantAttention) Parameters() []module.NamedParameter {
	return []module.NamedParameter{
		{Name: "kv_orig_quant_scale", Param: a.KVOrigQuantScale},
		{Name: "kv_quant_orig_scale", Param: a.KVQuantOrigScale},
	}
}

// SmoothQuantMLP is the feed-forward block with int8 GEMMs.
type SmoothQuantMLP struct {
	Config module.MLPConfig
	Mode   Mode

	FC   module.Module
	Proj module.Module
}

func NewSmoothQuantMLP(cfg module.MLPConfig, mode Mode) *SmoothQuantMLP {
	return &SmoothQuantMLP{
		Config: cfg,
		Mode:   mode,
		FC:     NewSmoothQuantColumnLinear(cfg.HiddenSize, cfg.FFNHiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, false, mode),
		Proj:   NewSmoothQuantRowLinear(cfg.FFNHiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, mode),
	}
}

func (m *SmoothQuantMLP) Kind() module.Kind { return module.KindSmoothQuantMLP }

func (m *SmoothQuantMLP) Children() []module.Named {
	return []module.Named{
		{Name: "fc", Module: m.FC},
		{Name: "proj", Module: m.Proj},
	}
}

func (m *SmoothQuantMLP) ReplaceChild(name string, mod module.Module) bool {
	switch name {
	case "fc":
		m.FC = mod
	case "proj":
		m.Proj = mod
	default:
		return false
	}
	return true
}

func (m *SmoothQuantMLP) Parameters() []module.NamedParameter { return nil }

// SmoothQuantGatedMLP adds the gate projection for SiLU-gated blocks.
type SmoothQuantGatedMLP struct {
	Config module.MLPConfig
	Mode   Mode

	FC   module.Module
	Gate module.Module
	Proj module.Module
}

func NewSmoothQuantGatedMLP(cfg module.MLPConfig, mode Mode) *SmoothQuantGatedMLP {
	return &SmoothQuantGatedMLP{
		Config: cfg,
		Mode:   mode,
		FC:     NewSmoothQuantColumnLinear(cfg.HiddenSize, cfg.FFNHiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, false, mode),
		Gate:   NewSmoothQuantColumnLinear(cfg.HiddenSize, cfg.FFNHiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, false, mode),
		Proj:   NewSmoothQuantRowLinear(cfg.FFNHiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, mode),
	}
}

func (m *SmoothQuantGatedMLP) Kind() module.Kind { return module.KindSmoothQuantGatedMLP }

func (m *SmoothQuantGatedMLP) Children() []module.Named {
	return []module.Named{
		{Name: "fc", Module: m.FC},
		{Name: "gate", Module: m.Gate},
		{Name: "proj", Module: m.Proj},
	}
}

func (m *SmoothQuantGatedMLP) ReplaceChild(name string, mod module.Module) bool {
	switch name {
	case "fc":
		m.FC = mod
	case "gate":
		m.Gate = mod
	case "proj":
		m.Proj = mod
	default:
		return false
	}
	return true
}

func (m *SmoothQuantGatedMLP) Parameters() []module.NamedParameter { return nil }
