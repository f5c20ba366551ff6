package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the trtllm configuration file
// (~/.config/trtllm/config.yaml). Pointer fields distinguish "not set"
// from zero values.
type Config struct {
	OutputDir   string `yaml:"output_dir"`
	TimingCache string `yaml:"timing_cache"`

	WorldSize     *int64 `yaml:"world_size"`
	ParallelBuild *bool  `yaml:"parallel_build"`

	MaxBatchSize *int64 `yaml:"max_batch_size"`
	MaxInputLen  *int64 `yaml:"max_input_len"`
	MaxOutputLen *int64 `yaml:"max_output_len"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "trtllm", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyBuildConfig applies config file defaults to build command variables
// when the corresponding CLI flag was not explicitly set.
func applyBuildConfig(c *cli.Command, cfg Config) {
	if cfg.OutputDir != "" && !c.IsSet("output-dir") {
		outputDir = cfg.OutputDir
	}
	if cfg.TimingCache != "" && !c.IsSet("timing-cache") {
		timingCache = cfg.TimingCache
	}
	if cfg.WorldSize != nil && !c.IsSet("world-size") {
		worldSize = *cfg.WorldSize
	}
	if cfg.ParallelBuild != nil && !c.IsSet("parallel-build") {
		parallelBuild = *cfg.ParallelBuild
	}
	if cfg.MaxBatchSize != nil && !c.IsSet("max-batch-size") {
		maxBatchSize = *cfg.MaxBatchSize
	}
	if cfg.MaxInputLen != nil && !c.IsSet("max-input-len") {
		maxInputLen = *cfg.MaxInputLen
	}
	if cfg.MaxOutputLen != nil && !c.IsSet("max-output-len") {
		maxOutputLen = *cfg.MaxOutputLen
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}
