package quantize

import (
	"fmt"
	"strings"

	"github.com/subauw/TensorRT-LLM/internal/module"
)

// DefaultExclude is the exclusion set applied when the caller passes nil.
// The output projection is kept at full precision by default.
func DefaultExclude() []string {
	return []string{"lm_head"}
}

// WeightOnly walks the tree depth-first and replaces every eligible
// column/row-parallel linear with its uniform-precision weight-only variant.
// The tree is mutated in place and returned for chaining; the root is tagged
// with the applied mode.
//
// A leaf is skipped when its bare name is a member of exclude, or when any
// exclude entry occurs as a substring of the leaf's qualified dotted path.
// The containment match is deliberately coarse: "head" excludes "lm_head",
// and "lm_head" excludes "lm_head_proj".
func WeightOnly(model Model, mode Mode, exclude []string) (Model, error) {
	if !mode.IsWeightOnly() {
		return nil, fmt.Errorf("%w: weight-only rewrite requires a weight-only mode", ErrConfigConflict)
	}
	if err := mode.ValidateWeightPrecision(); err != nil {
		return nil, err
	}
	if mode.HasPerGroupScaling() {
		return nil, fmt.Errorf("%w: per-group scaling requires the groupwise rewrite", ErrConfigConflict)
	}
	ex := newExcluder(exclude)
	rewriteLinears(model, ex, make([]string, 0, 8), func(m module.Module) module.Module {
		switch l := m.(type) {
		case *module.ColumnLinear:
			return NewWeightOnlyColumnLinear(
				l.InFeatures,
				l.OutFeatures*l.Mapping.TPSize,
				l.HasBias,
				l.DType,
				l.Mapping,
				l.GatherOutput,
				mode,
			)
		case *module.RowLinear:
			return NewWeightOnlyRowLinear(
				l.InFeatures*l.Mapping.TPSize,
				l.OutFeatures,
				l.HasBias,
				l.DType,
				l.Mapping,
				mode,
			)
		}
		return nil
	})
	model.SetQuantMode(mode)
	return model, nil
}

// WeightOnlyGroupwise is the groupwise rewrite family: the same traversal as
// WeightOnly, replacing eligible leaves with per-group variants that carry a
// fixed group size and the optional pre-quant scale and zero-point flags.
func WeightOnlyGroupwise(model Model, mode Mode, cfg GroupwiseConfig, exclude []string) (Model, error) {
	if !mode.HasPerGroupScaling() {
		return nil, fmt.Errorf("%w: groupwise rewrite requires per-group scaling mode", ErrConfigConflict)
	}
	if err := mode.ValidateWeightPrecision(); err != nil {
		return nil, err
	}
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	ex := newExcluder(exclude)
	rewriteLinears(model, ex, make([]string, 0, 8), func(m module.Module) module.Module {
		switch l := m.(type) {
		case *module.ColumnLinear:
			return NewGroupwiseColumnLinear(
				l.InFeatures,
				l.OutFeatures*l.Mapping.TPSize,
				cfg,
				l.HasBias,
				l.DType,
				l.Mapping,
				l.GatherOutput,
			)
		case *module.RowLinear:
			return NewGroupwiseRowLinear(
				l.InFeatures*l.Mapping.TPSize,
				l.OutFeatures,
				cfg,
				l.HasBias,
				l.DType,
				l.Mapping,
			)
		}
		return nil
	})
	model.SetQuantMode(mode)
	return model, nil
}

// excluder implements the two-stage exclusion test: direct membership of the
// bare name, then substring containment over the joined qualified path.
type excluder struct {
	names   map[string]struct{}
	entries []string
}

func newExcluder(exclude []string) *excluder {
	if exclude == nil {
		exclude = DefaultExclude()
	}
	names := make(map[string]struct{}, len(exclude))
	for _, e := range exclude {
		names[e] = struct{}{}
	}
	return &excluder{names: names, entries: exclude}
}

func (e *excluder) excluded(name string, path []string) bool {
	if _, ok := e.names[name]; ok {
		return true
	}
	joined := module.JoinPath(path)
	for _, entry := range e.entries {
		if strings.Contains(joined, entry) {
			return true
		}
	}
	return false
}

// rewriteLinears recurses into each child before testing the child itself,
// so the deepest eligible leaves are rewritten first. The path is threaded
// through as an explicit parameter: pushed before descending, popped after
// the replacement decision.
func rewriteLinears(parent module.Module, ex *excluder, path []string, replace func(module.Module) module.Module) []string {
	for _, child := range parent.Children() {
		path = append(path, child.Name)
		if len(child.Module.Children()) > 0 {
			path = rewriteLinears(child.Module, ex, path, replace)
		}
		if isPlainLinear(child.Module.Kind()) && !ex.excluded(child.Name, path) {
			if q := replace(child.Module); q != nil {
				parent.ReplaceChild(child.Name, q)
			}
		}
		path = path[:len(path)-1]
	}
	return path
}

// isPlainLinear reports whether the kind participates in the weight-only
// rewrites. Normalization, embedding and already-quantized leaves never do.
func isPlainLinear(k module.Kind) bool {
	return k == module.KindColumnLinear || k == module.KindRowLinear
}
