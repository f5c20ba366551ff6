package module

// Embedding is a vocabulary lookup table. It is never quantized by the
// weight-only rewrites: only matrix-multiply-heavy leaves benefit.
type Embedding struct {
	NumEmbeddings int
	EmbeddingDim  int
	DType         DType

	Weight *Parameter
}

func NewEmbedding(numEmbeddings, embeddingDim int, dtype DType) *Embedding {
	return &Embedding{
		NumEmbeddings: numEmbeddings,
		EmbeddingDim:  embeddingDim,
		DType:         dtype,
		Weight:        NewParameter([]int{numEmbeddings, embeddingDim}, dtype),
	}
}

func (e *Embedding) Kind() Kind                       { return KindEmbedding }
func (e *Embedding) Children() []Named                { return nil }
func (e *Embedding) ReplaceChild(string, Module) bool { return false }
func (e *Embedding) Parameters() []NamedParameter {
	return []NamedParameter{{Name: "weight", Param: e.Weight}}
}

// LayerNorm normalizes over the last dimension with learned scale and shift.
type LayerNorm struct {
	NormalizedShape int
	Eps             float64
	DType           DType

	Weight *Parameter
	Bias   *Parameter
}

func NewLayerNorm(normalizedShape int, eps float64, dtype DType) *LayerNorm {
	return &LayerNorm{
		NormalizedShape: normalizedShape,
		Eps:             eps,
		DType:           dtype,
		Weight:          NewParameter([]int{normalizedShape}, dtype),
		Bias:            NewParameter([]int{normalizedShape}, dtype),
	}
}

func (n *LayerNorm) Kind() Kind                       { return KindLayerNorm }
func (n *LayerNorm) Children() []Named                { return nil }
func (n *LayerNorm) ReplaceChild(string, Module) bool { return false }
func (n *LayerNorm) Parameters() []NamedParameter {
	return []NamedParameter{
		{Name: "weight", Param: n.Weight},
		{Name: "bias", Param: n.Bias},
	}
}

// RMSNorm is the scale-only normalization used by the LLaMA family.
type RMSNorm struct {
	NormalizedShape int
	Eps             float64
	DType           DType

	Weight *Parameter
}

func NewRMSNorm(normalizedShape int, eps float64, dtype DType) *RMSNorm {
	return &RMSNorm{
		NormalizedShape: normalizedShape,
		Eps:             eps,
		DType:           dtype,
		Weight:          NewParameter([]int{normalizedShape}, dtype),
	}
}

func (n *RMSNorm) Kind() Kind                       { return KindRMSNorm }
func (n *RMSNorm) Children() []Named                { return nil }
func (n *RMSNorm) ReplaceChild(string, Module) bool { return false }
func (n *RMSNorm) Parameters() []NamedParameter {
	return []NamedParameter{{Name: "weight", Param: n.Weight}}
}
