// Package module defines the in-memory network graph that gets handed to
// the engine builder: a rooted tree of named computation modules mirroring
// the layer structure of a transformer checkpoint.
package module

import "strings"

// PathSeparator joins module names into a qualified path ("layers.0.attention.qkv").
const PathSeparator = "."

// Kind identifies the concrete variant held in a tree slot. The set is
// closed: passes that walk the tree switch on Kind instead of inspecting
// concrete types where the kind alone decides the outcome.
type Kind int

const (
	KindComposite Kind = iota
	KindEmbedding
	KindLayerNorm
	KindRMSNorm
	KindColumnLinear
	KindRowLinear

	// Quantized variants. A rewritten tree reports these, never the plain
	// linear kinds, so a second rewrite pass leaves them alone.
	KindWeightOnlyColumnLinear
	KindWeightOnlyRowLinear
	KindGroupwiseColumnLinear
	KindGroupwiseRowLinear
	KindFP8Linear
	KindFP8RowLinear
	KindSmoothQuantColumnLinear
	KindSmoothQuantRowLinear
	KindSmoothQuantLayerNorm
	KindSmoothQuantRMSNorm
	KindSmoothQuantAttention
	KindSmoothQuantMLP
	KindSmoothQuantGatedMLP
)

// Named is an owned child slot. The parent holds the only reference;
// replacing the slot invalidates any prior alias to the old child.
type Named struct {
	Name   string
	Module Module
}

// Module is a node in the network graph.
//
// Children returns the ordered named child slots. Leaf modules return nil.
// ReplaceChild overwrites the named slot in place and reports whether the
// slot exists. Parameters returns the module's own (direct) parameters;
// parameters of children are collected by walking the tree.
type Module interface {
	Kind() Kind
	Children() []Named
	ReplaceChild(name string, m Module) bool
	Parameters() []NamedParameter
}

// NamedParameter is a parameter slot directly owned by a module.
type NamedParameter struct {
	Name  string
	Param *Parameter
}

// JoinPath joins name segments into a qualified dotted path.
func JoinPath(segments []string) string {
	return strings.Join(segments, PathSeparator)
}

// NamedParameters walks the tree depth-first and returns every parameter
// keyed by its qualified path. This is the view the graph builder consumes.
func NamedParameters(root Module) map[string]*Parameter {
	out := make(map[string]*Parameter)
	collectParameters(root, nil, out)
	return out
}

func collectParameters(m Module, path []string, out map[string]*Parameter) {
	for _, p := range m.Parameters() {
		path = append(path, p.Name)
		out[JoinPath(path)] = p.Param
		path = path[:len(path)-1]
	}
	for _, c := range m.Children() {
		path = append(path, c.Name)
		collectParameters(c.Module, path, out)
		path = path[:len(path)-1]
	}
}

// Find returns the module at the given qualified path, or nil.
func Find(root Module, path string) Module {
	cur := root
	if path == "" {
		return cur
	}
	for _, seg := range strings.Split(path, PathSeparator) {
		var next Module
		for _, c := range cur.Children() {
			if c.Name == seg {
				next = c.Module
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}
