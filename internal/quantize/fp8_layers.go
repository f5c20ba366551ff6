package quantize

import "github.com/subauw/TensorRT-LLM/internal/module"

// FP8Linear is a column-parallel linear carrying fp8 quantize/dequantize
// scaling factors. The weight itself stays at the model dtype; the builder
// inserts Q/DQ pairs around the matmul using the recorded scales.
type FP8Linear struct {
	InFeatures   int
	OutFeatures  int
	HasBias      bool
	DType        module.DType
	Mapping      module.Mapping
	GatherOutput bool

	Weight                  *module.Parameter
	Bias                    *module.Parameter
	ActivationScalingFactor *module.Parameter
	WeightsScalingFactor    *module.Parameter
}

func NewFP8Linear(inFeatures, outFeatures int, bias bool, dtype module.DType, mapping module.Mapping, gatherOutput bool) *FP8Linear {
	shard := outFeatures / mapping.TPSize
	l := &FP8Linear{
		InFeatures:              inFeatures,
		OutFeatures:             shard,
		HasBias:                 bias,
		DType:                   dtype,
		Mapping:                 mapping,
		GatherOutput:            gatherOutput,
		Weight:                  module.NewParameter([]int{shard, inFeatures}, dtype),
		ActivationScalingFactor: module.NewScalarParameter(),
		WeightsScalingFactor:    module.NewScalarParameter(),
	}
	if bias {
		l.Bias = module.NewParameter([]int{shard}, dtype)
	}
	return l
}

func (l *FP8Linear) Kind() module.Kind                       { return module.KindFP8Linear }
func (l *FP8Linear) Children() []module.Named                { return nil }
func (l *FP8Linear) ReplaceChild(string, module.Module) bool { return false }
func (l *FP8Linear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "activation_scaling_factor", Param: l.ActivationScalingFactor},
		{Name: "weights_scaling_factor", Param: l.WeightsScalingFactor},
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// FP8RowLinear is the row-parallel counterpart of FP8Linear.
type FP8RowLinear struct {
	InFeatures  int
	OutFeatures int
	HasBias     bool
	DType       module.DType
	Mapping     module.Mapping

	Weight                  *module.Parameter
	Bias                    *module.Parameter
	ActivationScalingFactor *module.Parameter
	WeightsScalingFactor    *module.Parameter
}

func NewFP8RowLinear(inFeatures, outFeatures int, bias bool, dtype module.DType, mapping module.Mapping) *FP8RowLinear {
	shard := inFeatures / mapping.TPSize
	l := &FP8RowLinear{
		InFeatures:              shard,
		OutFeatures:             outFeatures,
		HasBias:                 bias,
		DType:                   dtype,
		Mapping:                 mapping,
		Weight:                  module.NewParameter([]int{outFeatures, shard}, dtype),
		ActivationScalingFactor: module.NewScalarParameter(),
		WeightsScalingFactor:    module.NewScalarParameter(),
	}
	if bias {
		l.Bias = module.NewParameter([]int{outFeatures}, dtype)
	}
	return l
}

func (l *FP8RowLinear) Kind() module.Kind                       { return module.KindFP8RowLinear }
func (l *FP8RowLinear) Children() []module.Named                { return nil }
func (l *FP8RowLinear) ReplaceChild(string, module.Module) bool { return false }
func (l *FP8RowLinear) Parameters() []module.NamedParameter {
	params := []module.NamedParameter{
		{Name: "weight", Param: l.Weight},
		{Name: "activation_scaling_factor", Param: l.ActivationScalingFactor},
		{Name: "weights_scaling_factor", Param: l.WeightsScalingFactor},
	}
	if l.Bias != nil {
		params = append(params, module.NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// fp8Scaled is the shared surface of the two fp8 variants used by the
// scale-injection pass.
type fp8Scaled interface {
	scales() (act, weights *module.Parameter)
}

func (l *FP8Linear) scales() (*module.Parameter, *module.Parameter) {
	return l.ActivationScalingFactor, l.WeightsScalingFactor
}

func (l *FP8RowLinear) scales() (*module.Parameter, *module.Parameter) {
	return l.ActivationScalingFactor, l.WeightsScalingFactor
}
