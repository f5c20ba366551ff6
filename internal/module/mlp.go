package module

// MLPConfig carries the hyperparameters for an MLP block.
type MLPConfig struct {
	HiddenSize    int
	FFNHiddenSize int
	HiddenAct     string
	Bias          bool
	DType         DType
	Mapping       Mapping
}

// MLP is the two-projection feed-forward block: fc (column-parallel) up to
// the FFN width, activation, proj (row-parallel) back down.
type MLP struct {
	Config MLPConfig

	FC   Module
	Proj Module
}

func NewMLP(cfg MLPConfig) *MLP {
	return &MLP{
		Config: cfg,
		FC:     NewColumnLinear(cfg.HiddenSize, cfg.FFNHiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, false),
		Proj:   NewRowLinear(cfg.FFNHiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping),
	}
}

func (m *MLP) Kind() Kind { return KindComposite }

func (m *MLP) Children() []Named {
	return []Named{
		{Name: "fc", Module: m.FC},
		{Name: "proj", Module: m.Proj},
	}
}

func (m *MLP) ReplaceChild(name string, mod Module) bool {
	switch name {
	case "fc":
		m.FC = mod
	case "proj":
		m.Proj = mod
	default:
		return false
	}
	return true
}

func (m *MLP) Parameters() []NamedParameter { return nil }

// GatedMLP adds the gate projection used by SiLU-gated feed-forward blocks.
type GatedMLP struct {
	Config MLPConfig

	FC   Module
	Gate Module
	Proj Module
}

func NewGatedMLP(cfg MLPConfig) *GatedMLP {
	return &GatedMLP{
		Config: cfg,
		FC:     NewColumnLinear(cfg.HiddenSize, cfg.FFNHiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, false),
		Gate:   NewColumnLinear(cfg.HiddenSize, cfg.FFNHiddenSize, cfg.Bias, cfg.DType, cfg.Mapping, false),
		Proj:   NewRowLinear(cfg.FFNHiddenSize, cfg.HiddenSize, cfg.Bias, cfg.DType, cfg.Mapping),
	}
}

func (m *GatedMLP) Kind() Kind { return KindComposite }

func (m *GatedMLP) Children() []Named {
	return []Named{
		{Name: "fc", Module: m.FC},
		{Name: "gate", Module: m.Gate},
		{Name: "proj", Module: m.Proj},
	}
}

func (m *GatedMLP) ReplaceChild(name string, mod Module) bool {
	switch name {
	case "fc":
		m.FC = mod
	case "gate":
		m.Gate = mod
	case "proj":
		m.Proj = mod
	default:
		return false
	}
	return true
}

func (m *GatedMLP) Parameters() []NamedParameter { return nil }
