package weights

import (
	"errors"
	"fmt"

	"github.com/subauw/TensorRT-LLM/internal/checkpoint"
	"github.com/subauw/TensorRT-LLM/internal/models"
	"github.com/subauw/TensorRT-LLM/internal/module"
)

var (
	// ErrMissingTensor reports a checkpoint tensor the mapping requires
	// but the files do not contain.
	ErrMissingTensor = errors.New("weights: tensor not found in checkpoint")

	// ErrShapeMismatch reports a checkpoint tensor whose sharded size
	// does not match the graph parameter it maps onto.
	ErrShapeMismatch = errors.New("weights: tensor shape mismatch")
)

// Load copies checkpoint tensors onto the model's parameters for the rank
// in the model's mapping. Column-parallel weights are sliced along the
// output dimension, row-parallel weights along the input dimension, norms
// and embeddings are copied whole. Weight-only quantized projections get
// their float data symmetrically quantized into the variant's integer
// weight and scale slots; everything else is stored as float.
func Load(m *models.CausalLM, ckpt *checkpoint.Dir) error {
	spec, err := specFor(m.Arch())
	if err != nil {
		return err
	}

	l := loader{
		ckpt:    ckpt,
		spec:    spec,
		params:  module.NamedParameters(m),
		mapping: m.Config.Mapping,
	}

	if err := l.copyFull("vocab_embedding.weight", spec.embedding); err != nil {
		return err
	}
	if m.PositionEmbedding != nil && spec.positionEmbedding != "" {
		if err := l.copyFull("position_embedding.weight", spec.positionEmbedding); err != nil {
			return err
		}
	}
	if err := l.copyFull("ln_f.weight", spec.finalNorm); err != nil {
		return err
	}
	if spec.normBias {
		if err := l.copyOptional("ln_f.bias", biasName(spec.finalNorm)); err != nil {
			return err
		}
	}
	// The output head is plain [vocab, hidden] storage in every family,
	// including the ones that keep conv1d projections.
	headData, headShape, err := l.read(spec.lmHead)
	if err != nil {
		return err
	}
	headShard, _, err := shardRows(headData, headShape, l.mapping)
	if err != nil {
		return err
	}
	if err := l.set("lm_head.weight", headShard); err != nil {
		return err
	}

	for i := 0; i < m.Config.NumLayers; i++ {
		if err := l.loadLayer(i); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
	}
	return nil
}

type loader struct {
	ckpt    *checkpoint.Dir
	spec    tensorSpec
	params  map[string]*module.Parameter
	mapping module.Mapping
}

func (l *loader) loadLayer(i int) error {
	prefix := fmt.Sprintf("layers.%d.", i)

	if err := l.copyFull(prefix+"input_layernorm.weight", l.spec.inputNorm(i)); err != nil {
		return err
	}
	if err := l.copyFull(prefix+"post_layernorm.weight", l.spec.postNorm(i)); err != nil {
		return err
	}
	if l.spec.normBias {
		if err := l.copyOptional(prefix+"input_layernorm.bias", biasName(l.spec.inputNorm(i))); err != nil {
			return err
		}
		if err := l.copyOptional(prefix+"post_layernorm.bias", biasName(l.spec.postNorm(i))); err != nil {
			return err
		}
	}

	if err := l.loadQKV(i, prefix+"attention.qkv"); err != nil {
		return err
	}
	if err := l.copyRow(prefix+"attention.dense.weight", l.spec.attnDense(i)); err != nil {
		return err
	}

	if err := l.copyColumn(prefix+"mlp.fc.weight", l.spec.fc(i)); err != nil {
		return err
	}
	if l.spec.gate != nil {
		if err := l.copyColumn(prefix+"mlp.gate.weight", l.spec.gate(i)); err != nil {
			return err
		}
	}
	if err := l.copyRow(prefix+"mlp.proj.weight", l.spec.proj(i)); err != nil {
		return err
	}

	if l.spec.linearBias {
		// Row-parallel biases are added once after the all-reduce, so
		// only rank 0 keeps a nonzero copy.
		if err := l.biasColumn(prefix+"attention.qkv.bias", i, true); err != nil {
			return err
		}
		if err := l.biasRank0(prefix+"attention.dense.bias", biasName(l.spec.attnDense(i))); err != nil {
			return err
		}
		if err := l.biasColumn(prefix+"mlp.fc.bias", i, false); err != nil {
			return err
		}
		if err := l.biasRank0(prefix+"mlp.proj.bias", biasName(l.spec.proj(i))); err != nil {
			return err
		}
	}
	return nil
}

// loadQKV assembles the fused attention projection. Separate q/k/v tensors
// are sharded individually then concatenated so each rank holds contiguous
// head groups.
func (l *loader) loadQKV(i int, target string) error {
	if l.spec.qkvFused != nil {
		data, shape, err := l.readLinear(l.spec.qkvFused(i))
		if err != nil {
			return err
		}
		parts, partShape, err := splitFused(data, shape, 3)
		if err != nil {
			return err
		}
		var fused []float32
		for _, p := range parts {
			s, _, err := shardRows(p, partShape, l.mapping)
			if err != nil {
				return err
			}
			fused = append(fused, s...)
		}
		return l.set(target+".weight", fused)
	}

	var fused []float32
	for _, name := range []string{l.spec.q(i), l.spec.k(i), l.spec.v(i)} {
		data, shape, err := l.readLinear(name)
		if err != nil {
			return err
		}
		s, _, err := shardRows(data, shape, l.mapping)
		if err != nil {
			return err
		}
		fused = append(fused, s...)
	}
	return l.set(target+".weight", fused)
}

func (l *loader) biasColumn(target string, i int, qkv bool) error {
	var name string
	if qkv {
		if l.spec.qkvFused != nil {
			name = biasName(l.spec.qkvFused(i))
		} else {
			name = biasName(l.spec.q(i))
		}
	} else {
		name = biasName(l.spec.fc(i))
	}
	if _, ok := l.params[target]; !ok {
		return nil
	}
	if !l.ckpt.Has(name) {
		return nil
	}
	data, shape, err := l.read(name)
	if err != nil {
		return err
	}
	if qkv && l.spec.qkvFused != nil {
		parts, partShape, err := splitFused(data, shape, 3)
		if err != nil {
			return err
		}
		var fused []float32
		for _, p := range parts {
			s, _, err := shardRows(p, partShape, l.mapping)
			if err != nil {
				return err
			}
			fused = append(fused, s...)
		}
		return l.set(target, fused)
	}
	s, _, err := shardRows(data, shape, l.mapping)
	if err != nil {
		return err
	}
	if qkv {
		// Separate q/k/v biases: shard each and concatenate.
		kData, kShape, err := l.read(biasName(l.spec.k(i)))
		if err != nil {
			return err
		}
		vData, vShape, err := l.read(biasName(l.spec.v(i)))
		if err != nil {
			return err
		}
		ks, _, err := shardRows(kData, kShape, l.mapping)
		if err != nil {
			return err
		}
		vs, _, err := shardRows(vData, vShape, l.mapping)
		if err != nil {
			return err
		}
		s = append(append(s, ks...), vs...)
	}
	return l.set(target, s)
}

func (l *loader) biasRank0(target, name string) error {
	p, ok := l.params[target]
	if !ok || !l.ckpt.Has(name) {
		return nil
	}
	if l.mapping.Rank != 0 {
		p.SetF32(make([]float32, p.NumElements()))
		return nil
	}
	return l.copyFull(target, name)
}

func (l *loader) copyFull(target, name string) error {
	data, _, err := l.read(name)
	if err != nil {
		return err
	}
	return l.set(target, data)
}

func (l *loader) copyOptional(target, name string) error {
	if _, ok := l.params[target]; !ok {
		return nil
	}
	if !l.ckpt.Has(name) {
		return nil
	}
	return l.copyFull(target, name)
}

func (l *loader) copyColumn(target, name string) error {
	data, shape, err := l.readLinear(name)
	if err != nil {
		return err
	}
	s, _, err := shardRows(data, shape, l.mapping)
	if err != nil {
		return err
	}
	return l.set(target, s)
}

func (l *loader) copyRow(target, name string) error {
	data, shape, err := l.readLinear(name)
	if err != nil {
		return err
	}
	s, _, err := shardCols(data, shape, l.mapping)
	if err != nil {
		return err
	}
	return l.set(target, s)
}

func (l *loader) read(name string) ([]float32, []int, error) {
	data, info, err := l.ckpt.ReadTensorF32(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrMissingTensor, name)
	}
	return data, info.Shape, nil
}

// readLinear reads a projection weight, undoing conv1d [in, out] storage
// where the family uses it. Bias vectors are 1-D and pass through.
func (l *loader) readLinear(name string) ([]float32, []int, error) {
	data, shape, err := l.read(name)
	if err != nil {
		return nil, nil, err
	}
	if l.spec.transposed && len(shape) == 2 {
		data, shape = transpose2D(data, shape)
	}
	return data, shape, nil
}

func (l *loader) set(target string, data []float32) error {
	p, ok := l.params[target]
	if !ok {
		return fmt.Errorf("%w: no graph parameter %q", ErrShapeMismatch, target)
	}
	if n := p.NumElements(); n != len(data) {
		return fmt.Errorf("%w: %q wants %d elements, checkpoint slice has %d",
			ErrShapeMismatch, target, n, len(data))
	}
	switch p.DType {
	case module.DTypeInt8, module.DTypeInt4:
		return l.setQuantized(target, p, data)
	}
	p.SetF32(data)
	return nil
}

// setQuantized fills a weight-only layer's integer weight and scale slots
// from float checkpoint data. The scale lives on a sibling parameter of the
// weight; which sibling exists decides per-channel versus groupwise.
func (l *loader) setQuantized(target string, p *module.Parameter, data []float32) error {
	if len(p.Shape) != 2 {
		return fmt.Errorf("%w: quantized parameter %q is not 2-D", ErrShapeMismatch, target)
	}
	rows, cols := p.Shape[0], p.Shape[1]
	base := target[:len(target)-len("weight")]

	if scale, ok := l.params[base+"per_channel_scale"]; ok {
		packed, scales := quantizePerChannel(data, rows, cols, p.DType)
		p.SetRaw(packed)
		scale.SetF32(scales)
		return nil
	}
	if scales, ok := l.params[base+"scales"]; ok {
		groups := 0
		if len(scales.Shape) == 2 {
			groups = scales.Shape[0]
		}
		if groups == 0 || cols%groups != 0 {
			return fmt.Errorf("%w: %q has %d scale groups over %d input features",
				ErrShapeMismatch, target, groups, cols)
		}
		packed, sc := quantizeGroupwise(data, rows, cols, cols/groups, p.DType)
		p.SetRaw(packed)
		scales.SetF32(sc)
		// Symmetric quantization only: zero points stay zero and the
		// activation pre-scale is identity until calibration says otherwise.
		if pre, ok := l.params[base+"prequant_scaling_factor"]; ok {
			ones := make([]float32, pre.NumElements())
			for i := range ones {
				ones[i] = 1
			}
			pre.SetF32(ones)
		}
		return nil
	}
	p.SetF32(data)
	return nil
}

func biasName(weight string) string {
	return weight[:len(weight)-len("weight")] + "bias"
}
