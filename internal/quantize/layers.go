package quantize

import "github.com/subauw/TensorRT-LLM/internal/module"

// weightDType returns the storage dtype for a weight-only mode.
func weightDType(mode Mode) module.DType {
	if mode.HasInt4Weights() {
		return module.DTypeInt4
	}
	return module.DTypeInt8
}

// WeightOnlyColumnLinear is a column-parallel linear whose weight is stored
// at reduced bit-width with one scaling factor per output channel.
type WeightOnlyColumnLinear struct {
	InFeatures   int
	OutFeatures  int
	HasBias      bool
	DType        module.DType
	Mapping      module.Mapping
	GatherOutput bool
	Mode         Mode

	Weight *module.Parameter
	Scale  *module.Parameter
	Bias   *module.Parameter
}

// NewWeightOnlyColumnLinear builds the variant for the full output width;
// the stored shard width is outFeatures divided by the tensor-parallel size.
func NewWeightOnlyColumnLinear(inFeatures, outFeatures int, bias bool, dtype module.DType, mapping module.Mapping, gatherOutput bool, mode Mode) *WeightOnlyColumnLinear {
	shard := outFeatures / mapping.TPSize
	l := &WeightOnlyColumnLinear{
		InFeatures:   inFeatures,
		OutFeatures:  shard,
		HasBias:      bias,
		DType:        dtype,
		Mapping:      mapping,
		GatherOutput: gatherOutput,
		Mode:         mode,
		Weight:       module.NewParameter([]int{shard, inFeatures}, weightDType(mode)),
		Scale:        module.NewParameter([]int{shard}, module.DTypeFloat32),
	}
	if bias {
		l.Bias = module.NewParameter([]int{shard}, dtype)
	}
	return l
}

func (l *WeightOnlyColumnLinear) Kind() module.Kind                       { return module.KindWeightOnlyColumnLinear }
func (l *WeightOnlyColumnLinear) Children() []module.Named                { return nil }
func (l *WeightOnlyColumnLinear) ReplaceChild(string, module.Module) bool { return false }
func (l *WeightOnlyColumnLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "per_channel_scale", Param: l.Scale},
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// WeightOnlyRowLinear is the row-parallel counterpart.
type WeightOnlyRowLinear struct {
	InFeatures  int
	OutFeatures int
	HasBias     bool
	DType       module.DType
	Mapping     module.Mapping
	Mode        Mode

	Weight *module.Parameter
	Scale  *module.Parameter
	Bias   *module.Parameter
}

// NewWeightOnlyRowLinear builds the variant for the full input width; the
// stored shard width is inFeatures divided by the tensor-parallel size.
func NewWeightOnlyRowLinear(inFeatures, outFeatures int, bias bool, dtype module.DType, mapping module.Mapping, mode Mode) *WeightOnlyRowLinear {
	shard := inFeatures / mapping.TPSize
	l := &WeightOnlyRowLinear{
		InFeatures:  shard,
		OutFeatures: outFeatures,
		HasBias:     bias,
		DType:       dtype,
		Mapping:     mapping,
		Mode:        mode,
		Weight:      module.NewParameter([]int{outFeatures, shard}, weightDType(mode)),
		Scale:       module.NewParameter([]int{outFeatures}, module.DTypeFloat32),
	}
	if bias {
		l.Bias = module.NewParameter([]int{outFeatures}, dtype)
	}
	return l
}

func (l *WeightOnlyRowLinear) Kind() module.Kind                         { return module.KindWeightOnlyRowLinear }
func (l *WeightOnlyRowLinear) Children() []module.Named                  { return nil }
func (l *WeightOnlyRowLinear) ReplaceChild(string, module.Module) bool   { return false }
func (l *WeightOnlyRowLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "per_channel_scale", Param: l.Scale},
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// GroupwiseConfig carries the extra knobs of the groupwise rewrite family.
type GroupwiseConfig struct {
	// GroupSize is the number of contiguous weight elements sharing one
	// scaling factor.
	GroupSize int
	// PreQuantScale adds a per-input-channel scale multiplied into the
	// activations before the quantized matmul.
	PreQuantScale bool
	// ZeroPoint enables asymmetric quantization with per-group zero points.
	ZeroPoint bool
}

// DefaultGroupSize matches the toolkit's groupwise default.
const DefaultGroupSize = 128

// GroupwiseColumnLinear is a column-parallel linear with per-group scaling
// factors and optional pre-quant scale and zero-point parameters.
type GroupwiseColumnLinear struct {
	InFeatures   int
	OutFeatures  int
	HasBias      bool
	DType        module.DType
	Mapping      module.Mapping
	GatherOutput bool
	Groupwise    GroupwiseConfig

	Weight        *module.Parameter
	Scales        *module.Parameter
	PreQuantScale *module.Parameter
	Zeros         *module.Parameter
	Bias          *module.Parameter
}

func NewGroupwiseColumnLinear(inFeatures, outFeatures int, cfg GroupwiseConfig, bias bool, dtype module.DType, mapping module.Mapping, gatherOutput bool) *GroupwiseColumnLinear {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	shard := outFeatures / mapping.TPSize
	groups := inFeatures / cfg.GroupSize
	l := &GroupwiseColumnLinear{
		InFeatures:   inFeatures,
		OutFeatures:  shard,
		HasBias:      bias,
		DType:        dtype,
		Mapping:      mapping,
		GatherOutput: gatherOutput,
		Groupwise:    cfg,
		Weight:       module.NewParameter([]int{shard, inFeatures}, module.DTypeInt4),
		Scales:       module.NewParameter([]int{groups, shard}, module.DTypeFloat32),
	}
	if cfg.PreQuantScale {
		l.PreQuantScale = module.NewParameter([]int{inFeatures}, dtype)
	}
	if cfg.ZeroPoint {
		l.Zeros = module.NewParameter([]int{groups, shard}, module.DTypeFloat32)
	}
	if bias {
		l.Bias = module.NewParameter([]int{shard}, dtype)
	}
	return l
}

func (l *GroupwiseColumnLinear) Kind() module.Kind                       { return module.KindGroupwiseColumnLinear }
func (l *GroupwiseColumnLinear) Children() []module.Named                { return nil }
func (l *GroupwiseColumnLinear) ReplaceChild(string, module.Module) bool { return false }
func (l *GroupwiseColumnLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "scales", Param: l.Scales},
	}
	if l.PreQuantScale != nil {
		params = append(params, module.NamedParameter{Name: "prequant_scaling_factor", Param: l.PreQuantScale})
	}
	if l.Zeros != nil {
		params = append(params, module.NamedParameter{Name: "zero", Param: l.Zeros})
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// GroupwiseRowLinear is the row-parallel counterpart.
type GroupwiseRowLinear struct {
	InFeatures  int
	OutFeatures int
	HasBias     bool
	DType       module.DType
	Mapping     module.Mapping
	Groupwise   GroupwiseConfig

	Weight        *module.Parameter
	Scales        *module.Parameter
	PreQuantScale *module.Parameter
	Zeros         *module.Parameter
	Bias          *module.Parameter
}

func NewGroupwiseRowLinear(inFeatures, outFeatures int, cfg GroupwiseConfig, bias bool, dtype module.DType, mapping module.Mapping) *GroupwiseRowLinear {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	shard := inFeatures / mapping.TPSize
	groups := shard / cfg.GroupSize
	l := &GroupwiseRowLinear{
		InFeatures:  shard,
		OutFeatures: outFeatures,
		HasBias:     bias,
		DType:       dtype,
		Mapping:     mapping,
		Groupwise:   cfg,
		Weight:      module.NewParameter([]int{outFeatures, shard}, module.DTypeInt4),
		Scales:      module.NewParameter([]int{groups, outFeatures}, module.DTypeFloat32),
	}
	if cfg.PreQuantScale {
		l.PreQuantScale = module.NewParameter([]int{shard}, dtype)
	}
	if cfg.ZeroPoint {
		l.Zeros = module.NewParameter([]int{groups, outFeatures}, module.DTypeFloat32)
	}
	if bias {
		l.Bias = module.NewParameter([]int{outFeatures}, dtype)
	}
	return l
}

func (l *GroupwiseRowLinear) Kind() module.Kind                       { return module.KindGroupwiseRowLinear }
func (l *GroupwiseRowLinear) Children() []module.Named                { return nil }
func (l *GroupwiseRowLinear) ReplaceChild(string, module.Module) bool { return false }
func (l *GroupwiseRowLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "scales", Param: l.Scales},
	}
	if l.PreQuantScale != nil {
		params = append(params, module.NamedParameter{Name: "prequant_scaling_factor", Param: l.PreQuantScale})
	}
	if l.Zeros != nil {
		params = append(params, module.NamedParameter{Name: "zero", Param: l.Zeros})
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}
