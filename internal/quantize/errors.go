package quantize

import "errors"

var (
	// ErrUnsupportedModel means the root's architecture family is not
	// recognized by the requested quantization routine.
	ErrUnsupportedModel = errors.New("quantize: unsupported model architecture")

	// ErrPrecondition means a sub-object expected to already be quantized
	// is not. This indicates a caller-ordering bug: scale injection must run
	// after the structural rewrite (or quantization-aware construction).
	ErrPrecondition = errors.New("quantize: precondition violated")

	// ErrConfigConflict means the requested mode flags are inconsistent
	// with each other or with the invoked rewrite. Detected before any
	// traversal begins.
	ErrConfigConflict = errors.New("quantize: conflicting quantization config")
)
