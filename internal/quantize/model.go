package quantize

import "github.com/subauw/TensorRT-LLM/internal/module"

// Model is the view of a model root required by the quantization passes:
// the module tree itself, the architecture tag consulted by the family-
// specific passes, flat access to the decoder layers for the injection
// pass, and the mode tag written after a rewrite.
type Model interface {
	module.Module

	Arch() module.Arch
	DecoderLayers() []*module.DecoderLayer

	QuantMode() Mode
	SetQuantMode(Mode)
}
