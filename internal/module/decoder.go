package module

import "strconv"

// DecoderLayer is one transformer block: pre-attention norm, attention,
// post-attention norm, feed-forward. The norm and block slots are Module so
// quantization passes can swap in their variants.
type DecoderLayer struct {
	Attn AttentionConfig
	FFN  MLPConfig

	InputLayerNorm Module
	Attention      Module
	PostLayerNorm  Module
	MLP            Module
}

func (l *DecoderLayer) Kind() Kind { return KindComposite }

func (l *DecoderLayer) Children() []Named {
	return []Named{
		{Name: "input_layernorm", Module: l.InputLayerNorm},
		{Name: "attention", Module: l.Attention},
		{Name: "post_layernorm", Module: l.PostLayerNorm},
		{Name: "mlp", Module: l.MLP},
	}
}

func (l *DecoderLayer) ReplaceChild(name string, m Module) bool {
	switch name {
	case "input_layernorm":
		l.InputLayerNorm = m
	case "attention":
		l.Attention = m
	case "post_layernorm":
		l.PostLayerNorm = m
	case "mlp":
		l.MLP = m
	default:
		return false
	}
	return true
}

func (l *DecoderLayer) Parameters() []NamedParameter { return nil }

// LayerList is the ordered "layers" container; children are named by index.
type LayerList struct {
	Layers []*DecoderLayer
}

func (ll *LayerList) Kind() Kind { return KindComposite }

func (ll *LayerList) Children() []Named {
	out := make([]Named, len(ll.Layers))
	for i, l := range ll.Layers {
		out[i] = Named{Name: strconv.Itoa(i), Module: l}
	}
	return out
}

// ReplaceChild is a no-op for layer lists: whole decoder layers are never
// replacement targets, only their inner projections are.
func (ll *LayerList) ReplaceChild(string, Module) bool { return false }

func (ll *LayerList) Parameters() []NamedParameter { return nil }
