package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/subauw/TensorRT-LLM/internal/checkpoint"
	"github.com/subauw/TensorRT-LLM/internal/logger"
	"github.com/subauw/TensorRT-LLM/internal/models"
	"github.com/subauw/TensorRT-LLM/internal/module"
	"github.com/subauw/TensorRT-LLM/internal/quantize"
	"github.com/subauw/TensorRT-LLM/internal/weights"
	"github.com/subauw/TensorRT-LLM/pkg/engine"
)

// Builder produces one engine container per tensor-parallel rank.
type Builder struct {
	cfg   Config
	log   logger.Logger
	cache *TimingCache
}

// New validates the configuration and prepares a builder. The timing cache
// is loaded from cfg.TimingCachePath when set.
func New(cfg Config, log logger.Logger) (*Builder, error) {
	if cfg.ID == "" {
		cfg.ID = NewBuildID()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cache := NewTimingCache()
	if cfg.TimingCachePath != "" {
		var err error
		cache, err = LoadTimingCache(cfg.TimingCachePath)
		if err != nil {
			return nil, fmt.Errorf("load timing cache: %w", err)
		}
	}
	return &Builder{cfg: cfg, log: log, cache: cache}, nil
}

// BuildAll builds every rank. Serial builds share the timing cache so later
// ranks reuse the tactics of rank 0; parallel builds trade that reuse for
// wall-clock time. Rank 0 additionally writes config.json and, when a cache
// path is configured, the updated timing cache.
func (b *Builder) BuildAll(ctx context.Context) error {
	start := time.Now()
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return err
	}

	if b.cfg.ParallelBuild {
		g, gctx := errgroup.WithContext(ctx)
		for rank := 0; rank < b.cfg.WorldSize; rank++ {
			g.Go(func() error { return b.buildRank(gctx, rank) })
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		for rank := 0; rank < b.cfg.WorldSize; rank++ {
			if err := b.buildRank(ctx, rank); err != nil {
				return err
			}
		}
	}

	if err := b.writeBuildConfig(); err != nil {
		return err
	}
	if b.cfg.TimingCachePath != "" {
		if err := b.cache.Save(b.cfg.TimingCachePath); err != nil {
			return fmt.Errorf("save timing cache: %w", err)
		}
	}
	b.log.Info("build finished",
		"build_id", b.cfg.ID,
		"ranks", b.cfg.WorldSize,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (b *Builder) buildRank(ctx context.Context, rank int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log := b.log.With("rank", rank)
	start := time.Now()

	m, err := b.assembleRank(rank)
	if err != nil {
		return fmt.Errorf("rank %d: %w", rank, err)
	}

	name := EngineName(b.cfg.Name, b.cfg.dtype(), b.cfg.WorldSize, rank)
	path := filepath.Join(b.cfg.OutputDir, name)
	if err := b.serialize(m, path); err != nil {
		return fmt.Errorf("rank %d: %w", rank, err)
	}

	log.Info("engine written",
		"path", path,
		"tactics", b.cache.Len(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// assembleRank constructs the rank's graph, applies the configured
// quantization rewrite, and loads checkpoint weights when a model directory
// is configured.
func (b *Builder) assembleRank(rank int) (*models.CausalLM, error) {
	cfg := models.Config{
		NumLayers:             b.cfg.NumLayers,
		HiddenSize:            b.cfg.HiddenSize,
		NumHeads:              b.cfg.NumHeads,
		NumKVHeads:            b.cfg.NumKVHeads,
		VocabSize:             b.cfg.VocabSize,
		HiddenAct:             b.cfg.HiddenAct,
		MaxPositionEmbeddings: b.cfg.MaxPositionEmbeddings,
		MLPHiddenSize:         b.cfg.MLPHiddenSize,
		DType:                 b.cfg.dtype(),
		Mapping:               module.NewMapping(b.cfg.WorldSize, rank),
	}
	if b.cfg.QuantMode.HasFP8QDQ() {
		cfg.Mode = b.cfg.QuantMode
	}

	m, err := models.New(b.cfg.Arch, cfg)
	if err != nil {
		return nil, err
	}

	mode := b.cfg.QuantMode
	switch {
	case mode == 0:
	case mode.IsWeightOnly() && mode.HasPerGroupScaling():
		gw := quantize.GroupwiseConfig{GroupSize: b.cfg.GroupSize}
		if gw.GroupSize == 0 {
			gw.GroupSize = quantize.DefaultGroupSize
		}
		if _, err := quantize.WeightOnlyGroupwise(m, mode, gw, quantize.DefaultExclude()); err != nil {
			return nil, err
		}
	case mode.IsWeightOnly():
		if _, err := quantize.WeightOnly(m, mode, quantize.DefaultExclude()); err != nil {
			return nil, err
		}
	case mode.HasActAndWeightQuant():
		if _, err := quantize.SmoothQuant(m, mode); err != nil {
			return nil, err
		}
	case mode.HasFP8QDQ():
		scales := quantize.DummyScales(b.cfg.NumLayers)
		if err := quantize.InjectFP8Scales(m, mode, scales); err != nil {
			return nil, err
		}
	}
	if mode.HasInt8KVCache() && !mode.HasFP8KVCache() {
		if err := quantize.InjectInt8KVScales(m, mode); err != nil {
			return nil, err
		}
	}

	if b.cfg.ModelDir != "" {
		ckpt, err := checkpoint.OpenDir(b.cfg.ModelDir)
		if err != nil {
			return nil, fmt.Errorf("open checkpoint: %w", err)
		}
		if err := weights.Load(m, ckpt); err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		}
	}
	return m, nil
}

// serialize writes one rank's graph into an engine container.
func (b *Builder) serialize(m *models.CausalLM, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := engine.NewWriter(f)
	if err != nil {
		return err
	}

	cfgJSON, err := json.Marshal(&b.cfg)
	if err != nil {
		return err
	}
	if err := w.WriteBuildConfig(cfgJSON); err != nil {
		return err
	}

	params := module.NamedParameters(m)
	tw, err := w.BeginTensors()
	if err != nil {
		return err
	}
	for _, name := range sortedParams(params) {
		p := params[name]
		data, dtype := paramBytes(p)
		b.cache.Lookup(gemmKey(p))
		if err := tw.Add(name, dtype, p.Shape, data); err != nil {
			return err
		}
	}
	if err := tw.End(); err != nil {
		return err
	}

	cacheBlob, err := b.cache.Serialize()
	if err != nil {
		return err
	}
	if err := w.WriteTimingCache(cacheBlob); err != nil {
		return err
	}
	return w.Finalise()
}

// writeBuildConfig records the build parameters next to the engines so
// deploy tooling can recover them without opening a container.
func (b *Builder) writeBuildConfig() error {
	data, err := json.MarshalIndent(&b.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(b.cfg.OutputDir, "config.json"), data, 0o644)
}

// gemmKey is the timing cache key for one weight shape. Identical shapes
// across layers collapse onto one entry, which is what makes the cache
// worth sharing between ranks.
func gemmKey(p *module.Parameter) string {
	return fmt.Sprintf("%s/%v", p.DType, p.Shape)
}
