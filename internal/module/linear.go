package module

// ColumnLinear is a matrix-multiply layer whose weight is sharded along the
// output-feature axis across the tensor-parallel group. OutFeatures is the
// per-shard width; the full width is OutFeatures * Mapping.TPSize.
type ColumnLinear struct {
	InFeatures   int
	OutFeatures  int
	HasBias      bool
	DType        DType
	Mapping      Mapping
	GatherOutput bool

	Weight *Parameter
	Bias   *Parameter
}

// NewColumnLinear builds a column-parallel linear for the full output width
// outFeatures; the stored shard width is outFeatures divided by the
// tensor-parallel size.
func NewColumnLinear(inFeatures, outFeatures int, bias bool, dtype DType, mapping Mapping, gatherOutput bool) *ColumnLinear {
	shard := outFeatures / mapping.TPSize
	l := &ColumnLinear{
		InFeatures:   inFeatures,
		OutFeatures:  shard,
		HasBias:      bias,
		DType:        dtype,
		Mapping:      mapping,
		GatherOutput: gatherOutput,
		Weight:       NewParameter([]int{shard, inFeatures}, dtype),
	}
	if bias {
		l.Bias = NewParameter([]int{shard}, dtype)
	}
	return l
}

func (l *ColumnLinear) Kind() Kind                       { return KindColumnLinear }
func (l *ColumnLinear) Children() []Named                { return nil }
func (l *ColumnLinear) ReplaceChild(string, Module) bool { return false }

func (l *ColumnLinear) Parameters() []NamedParameter {
	params := []NamedParameter{{Name: "weight", Param: l.Weight}}
	if l.Bias != nil {
		params = append(params, NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}

// RowLinear is a matrix-multiply layer whose weight is sharded along the
// input-feature axis. InFeatures is the per-shard width; the full width is
// InFeatures * Mapping.TPSize.
type RowLinear struct {
	InFeatures  int
	OutFeatures int
	HasBias     bool
	DType       DType
	Mapping     Mapping

	Weight *Parameter
	Bias   *Parameter
}

// NewRowLinear builds a row-parallel linear for the full input width
// inFeatures; the stored shard width is inFeatures divided by the
// tensor-parallel size.
func NewRowLinear(inFeatures, outFeatures int, bias bool, dtype DType, mapping Mapping) *RowLinear {
	shard := inFeatures / mapping.TPSize
	l := &RowLinear{
		InFeatures:  shard,
		OutFeatures: outFeatures,
		HasBias:     bias,
		DType:       dtype,
		Mapping:     mapping,
		Weight:      NewParameter([]int{outFeatures, shard}, dtype),
	}
	if bias {
		l.Bias = NewParameter([]int{outFeatures}, dtype)
	}
	return l
}

func (l *RowLinear) Kind() Kind                       { return KindRowLinear }
func (l *RowLinear) Children() []Named                { return nil }
func (l *RowLinear) ReplaceChild(string, Module) bool { return false }

func (l *RowLinear) Parameters() []NamedParameter {
	params := []NamedParameter{{Name: "weight", Param: l.Weight}}
	if l.Bias != nil {
		params = append(params, NamedParameter{Name: "bias", Param: l.Bias})
	}
	return params
}
