package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/subauw/TensorRT-LLM/internal/builder"
	"github.com/subauw/TensorRT-LLM/internal/logger"
	"github.com/subauw/TensorRT-LLM/internal/models"
	"github.com/subauw/TensorRT-LLM/internal/module"
	"github.com/subauw/TensorRT-LLM/internal/quantize"
)

var (
	modelName     string
	modelDir      string
	outputDir     string
	timingCache   string
	dtypeName     string
	worldSize     int64
	parallelBuild bool

	nLayer     int64
	nEmbd      int64
	nHead      int64
	nKVHead    int64
	vocabSize  int64
	interSize  int64
	hiddenAct  string
	nPositions int64

	maxBatchSize int64
	maxInputLen  int64
	maxOutputLen int64

	useGemmPlugin      string
	useAttentionPlugin string

	useWeightOnly       bool
	weightOnlyPrecision string
	perGroup            bool
	groupSize           int64
	useSmoothQuant      bool
	perChannel          bool
	perToken            bool
	enableFP8           bool
	fp8KVCache          bool
	int8KVCache         bool
)

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:  "build",
		Usage: "Build serialized engines for every tensor-parallel rank",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Usage:       "model family (gpt, gptj, llama, bloom, falcon, baichuan)",
				Value:       "gpt",
				Destination: &modelName,
			},
			&cli.StringFlag{
				Name:        "model-dir",
				Usage:       "checkpoint directory with config.json and safetensors weights",
				Destination: &modelDir,
			},
			&cli.StringFlag{
				Name:        "output-dir",
				Usage:       "directory receiving the engines and config.json",
				Value:       "engine_outputs",
				Destination: &outputDir,
			},
			&cli.StringFlag{
				Name:        "timing-cache",
				Usage:       "path to a tactic timing cache file, read and updated",
				Destination: &timingCache,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "network precision (float32, float16, bfloat16)",
				Value:       "float16",
				Destination: &dtypeName,
			},
			&cli.Int64Flag{
				Name:        "world-size",
				Usage:       "number of tensor-parallel ranks",
				Value:       1,
				Destination: &worldSize,
			},
			&cli.BoolFlag{
				Name:        "parallel-build",
				Usage:       "build all ranks concurrently",
				Destination: &parallelBuild,
			},

			&cli.Int64Flag{Name: "n-layer", Value: 0, Destination: &nLayer},
			&cli.Int64Flag{Name: "n-embd", Value: 0, Destination: &nEmbd},
			&cli.Int64Flag{Name: "n-head", Value: 0, Destination: &nHead},
			&cli.Int64Flag{Name: "n-kv-head", Value: 0, Destination: &nKVHead},
			&cli.Int64Flag{Name: "vocab-size", Value: 0, Destination: &vocabSize},
			&cli.Int64Flag{Name: "inter-size", Value: 0, Destination: &interSize},
			&cli.StringFlag{Name: "hidden-act", Destination: &hiddenAct},
			&cli.Int64Flag{Name: "n-positions", Value: 0, Destination: &nPositions},

			&cli.Int64Flag{
				Name:        "max-batch-size",
				Value:       8,
				Destination: &maxBatchSize,
			},
			&cli.Int64Flag{
				Name:        "max-input-len",
				Value:       1024,
				Destination: &maxInputLen,
			},
			&cli.Int64Flag{
				Name:        "max-output-len",
				Value:       1024,
				Destination: &maxOutputLen,
			},

			&cli.StringFlag{
				Name:        "use-gemm-plugin",
				Usage:       "enable the gemm plugin at the given precision",
				Destination: &useGemmPlugin,
			},
			&cli.StringFlag{
				Name:        "use-gpt-attention-plugin",
				Usage:       "enable the attention plugin at the given precision",
				Destination: &useAttentionPlugin,
			},

			&cli.BoolFlag{
				Name:        "use-weight-only",
				Usage:       "quantize linear weights, keep activations in the network precision",
				Destination: &useWeightOnly,
			},
			&cli.StringFlag{
				Name:        "weight-only-precision",
				Usage:       "weight precision for weight-only builds (int8, int4)",
				Value:       "int8",
				Destination: &weightOnlyPrecision,
			},
			&cli.BoolFlag{
				Name:        "per-group",
				Usage:       "use groupwise scales instead of per-channel",
				Destination: &perGroup,
			},
			&cli.Int64Flag{
				Name:        "group-size",
				Value:       int64(quantize.DefaultGroupSize),
				Destination: &groupSize,
			},
			&cli.BoolFlag{
				Name:        "use-smooth-quant",
				Usage:       "int8 quantization of weights and activations",
				Destination: &useSmoothQuant,
			},
			&cli.BoolFlag{Name: "per-channel", Destination: &perChannel},
			&cli.BoolFlag{Name: "per-token", Destination: &perToken},
			&cli.BoolFlag{
				Name:        "enable-fp8",
				Usage:       "fp8 quantize-dequantize on the linear projections",
				Destination: &enableFP8,
			},
			&cli.BoolFlag{Name: "fp8-kv-cache", Destination: &fp8KVCache},
			&cli.BoolFlag{Name: "int8-kv-cache", Destination: &int8KVCache},
		}, loggingFlags()...),
		Action: runBuild,
	}
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	applyBuildConfig(cmd, LoadConfig())
	log := stderrLogger()
	ctx = logger.WithContext(ctx, log)

	arch, hyper, err := resolveModel(cmd)
	if err != nil {
		return err
	}

	mode, err := resolveQuantMode()
	if err != nil {
		return err
	}

	cfg := builder.Config{
		ID:        builder.NewBuildID(),
		Name:      modelName,
		Precision: dtypeName,

		WorldSize:     int(worldSize),
		ParallelBuild: parallelBuild,

		NumLayers:             hyper.NumLayers,
		HiddenSize:            hyper.HiddenSize,
		NumHeads:              hyper.NumHeads,
		NumKVHeads:            hyper.NumKVHeads,
		VocabSize:             hyper.VocabSize,
		HiddenAct:             hyper.HiddenAct,
		MaxPositionEmbeddings: hyper.MaxPositionEmbeddings,
		MLPHiddenSize:         hyper.MLPHiddenSize,

		MaxBatchSize: int(maxBatchSize),
		MaxInputLen:  int(maxInputLen),
		MaxOutputLen: int(maxOutputLen),

		Int8:      mode.HasInt8KVCache() || useSmoothQuant || (useWeightOnly && weightOnlyPrecision == "int8"),
		QuantMode: mode,
		GroupSize: int(groupSize),

		Plugins: builder.PluginConfig{
			GEMM:             useGemmPlugin,
			Attention:        useAttentionPlugin,
			WeightOnlyMatmul: useWeightOnly,
			NCCL:             worldSize > 1,
		},

		Arch:            arch,
		ModelDir:        modelDir,
		OutputDir:       outputDir,
		TimingCachePath: timingCache,
	}

	b, err := builder.New(cfg, log)
	if err != nil {
		return err
	}
	log.Info("starting build",
		"build_id", cfg.ID,
		"model", modelName,
		"dtype", dtypeName,
		"world_size", worldSize,
		"quant_mode", cfg.QuantMode)
	return b.BuildAll(ctx)
}

// resolveModel merges checkpoint config.json hyperparameters with explicit
// flag overrides. Flags win over the checkpoint.
func resolveModel(cmd *cli.Command) (module.Arch, models.Config, error) {
	var (
		arch module.Arch
		cfg  models.Config
	)

	if modelDir != "" {
		a, c, err := models.LoadCheckpointConfig(modelDir)
		if err != nil {
			return "", models.Config{}, err
		}
		arch, cfg = a, c
	}

	if cmd.IsSet("model") || arch == "" {
		a, err := archForName(modelName)
		if err != nil {
			return "", models.Config{}, err
		}
		arch = a
	} else {
		modelName = nameForArch(arch)
	}

	if nLayer > 0 {
		cfg.NumLayers = int(nLayer)
	}
	if nEmbd > 0 {
		cfg.HiddenSize = int(nEmbd)
	}
	if nHead > 0 {
		cfg.NumHeads = int(nHead)
	}
	if nKVHead > 0 {
		cfg.NumKVHeads = int(nKVHead)
	}
	if vocabSize > 0 {
		cfg.VocabSize = int(vocabSize)
	}
	if interSize > 0 {
		cfg.MLPHiddenSize = int(interSize)
	}
	if hiddenAct != "" {
		cfg.HiddenAct = hiddenAct
	}
	if nPositions > 0 {
		cfg.MaxPositionEmbeddings = int(nPositions)
	}

	if cfg.NumLayers == 0 || cfg.HiddenSize == 0 || cfg.NumHeads == 0 || cfg.VocabSize == 0 {
		return "", models.Config{}, fmt.Errorf("model hyperparameters incomplete: need --model-dir or --n-layer/--n-embd/--n-head/--vocab-size")
	}
	return arch, cfg, nil
}

func resolveQuantMode() (quantize.Mode, error) {
	var mode quantize.Mode
	switch {
	case useWeightOnly:
		useInt4 := weightOnlyPrecision == "int4"
		if !useInt4 && weightOnlyPrecision != "int8" {
			return 0, fmt.Errorf("unknown weight-only precision %q", weightOnlyPrecision)
		}
		if perGroup {
			mode = quantize.GroupwiseWeightOnlyMode(useInt4)
		} else {
			mode = quantize.WeightOnlyMode(useInt4)
		}
	case useSmoothQuant:
		mode = quantize.SmoothQuantMode(perChannel, perToken)
	case enableFP8:
		mode = quantize.FP8Mode(fp8KVCache)
	}
	if int8KVCache {
		mode |= quantize.ModeInt8KVCache
	}
	return mode, nil
}

func archForName(name string) (module.Arch, error) {
	switch name {
	case "gpt":
		return module.ArchGPT, nil
	case "gptj":
		return module.ArchGPTJ, nil
	case "llama":
		return module.ArchLLaMA, nil
	case "bloom":
		return module.ArchBloom, nil
	case "falcon":
		return module.ArchFalcon, nil
	case "baichuan":
		return module.ArchBaichuan, nil
	default:
		return "", fmt.Errorf("unknown model family %q", name)
	}
}

func nameForArch(arch module.Arch) string {
	return string(arch)
}
