package module

// Arch tags a model root with its architecture family. Quantization passes
// that only support specific families consult this tag and reject the rest.
type Arch string

const (
	ArchGPT      Arch = "gpt"
	ArchGPTJ     Arch = "gptj"
	ArchLLaMA    Arch = "llama"
	ArchBloom    Arch = "bloom"
	ArchFalcon   Arch = "falcon"
	ArchBaichuan Arch = "baichuan"
)
