package quantize

import (
	"fmt"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// InjectInt8KVScales writes identity scaling factors onto every decoder
// layer's KV cache slots. Calibration pipelines overwrite these with
// measured activation ranges; an int8 cache built without one still needs
// nonzero scales to be usable.
func InjectInt8KVScales(model Model, mode Mode) error {
	if !mode.HasInt8KVCache() {
		return fmt.Errorf("%w: int8 kv scale injection requires int8 kv cache mode", ErrConfigConflict)
	}
	for i, layer := range model.DecoderLayers() {
		switch attn := layer.Attention.(type) {
		case *module.Attention:
			attn.KVOrigQuantScale.SetScalar(1)
			attn.KVQuantOrigScale.SetScalar(1)
		case *SmoothQuantAttention:
			attn.KVOrigQuantScale.SetScalar(1)
			attn.KVQuantOrigScale.SetScalar(1)
		default:
			return fmt.Errorf("%w: layers.%d.attention is not an attention block", ErrPrecondition, i)
		}
	}
	return nil
}
