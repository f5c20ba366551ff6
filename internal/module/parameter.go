package module

// Parameter is a named weight slot on a module. Values are populated from a
// checkpoint (or by a quantization pass, for scaling factors) before the
// tree is handed to the builder.
type Parameter struct {
	Shape []int
	DType DType

	// F32 holds float-valued data. Raw holds packed integer payloads for
	// quantized weights. At most one of the two is set.
	F32 []float32
	Raw []byte
}

// NewParameter allocates an empty parameter slot with the given geometry.
func NewParameter(shape []int, dtype DType) *Parameter {
	return &Parameter{Shape: shape, DType: dtype}
}

// NewScalarParameter allocates a single-element float32 parameter.
// Scaling factors are stored this way regardless of the weight dtype.
func NewScalarParameter() *Parameter {
	return &Parameter{Shape: []int{1}, DType: DTypeFloat32}
}

// SetF32 stores float data on the parameter.
func (p *Parameter) SetF32(v []float32) {
	p.F32 = v
	p.Raw = nil
}

// SetScalar stores a single float32 value.
func (p *Parameter) SetScalar(v float32) {
	p.F32 = []float32{v}
	p.Raw = nil
}

// SetRaw stores a packed payload on the parameter.
func (p *Parameter) SetRaw(b []byte) {
	p.Raw = b
	p.F32 = nil
}

// Scalar returns the first float32 value, or zero when unset.
func (p *Parameter) Scalar() float32 {
	if len(p.F32) == 0 {
		return 0
	}
	return p.F32[0]
}

// NumElements returns the element count implied by the shape.
func (p *Parameter) NumElements() int {
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	return n
}
