package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/subauw/TensorRT-LLM/pkg/engine"
)

func inspectCmd() *cli.Command {
	var (
		enginePath   string
		showTensors  bool
		tensorFilter string
		tensorLimit  int64
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a serialized engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "engine",
				Aliases:     []string{"e"},
				Usage:       "path to .engine file",
				Destination: &enginePath,
				Required:    true,
			},
			&cli.BoolFlag{
				Name:        "tensors",
				Usage:       "list the tensor index",
				Destination: &showTensors,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only list tensors whose name contains this substring",
				Destination: &tensorFilter,
			},
			&cli.Int64Flag{
				Name:        "limit",
				Usage:       "max tensors to list (0 = all)",
				Destination: &tensorLimit,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := engine.Open(enginePath)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			fmt.Printf("engine:   %s\n", enginePath)
			fmt.Printf("version:  %d.%d\n", f.Header.Major, f.Header.Minor)
			fmt.Printf("size:     %d bytes\n", f.Header.FileSize)
			fmt.Printf("sections: %d\n", len(f.Sections))
			for _, s := range f.Sections {
				fmt.Printf("  %-12s v%d  offset=%d size=%d\n",
					sectionName(engine.SectionType(s.Type)), s.Version, s.Offset, s.Size)
			}

			if cfgRaw, err := f.BuildConfig(); err == nil {
				var pretty map[string]any
				if json.Unmarshal(cfgRaw, &pretty) == nil {
					out, _ := json.MarshalIndent(pretty, "", "  ")
					fmt.Printf("\nbuild config:\n%s\n", out)
				}
			}

			if showTensors {
				entries, err := f.Tensors()
				if err != nil {
					return err
				}
				fmt.Printf("\ntensors: %d\n", len(entries))
				shown := int64(0)
				for _, e := range entries {
					if tensorFilter != "" && !strings.Contains(e.Name, tensorFilter) {
						continue
					}
					if tensorLimit > 0 && shown >= tensorLimit {
						fmt.Println("  ...")
						break
					}
					fmt.Printf("  %-60s dtype=%s shape=%v size=%d\n", e.Name, e.DType, e.Shape, e.Size)
					shown++
				}
			}
			return nil
		},
	}
}

func sectionName(t engine.SectionType) string {
	switch t {
	case engine.SectionBuildConfig:
		return "BuildConfig"
	case engine.SectionTensorIndex:
		return "TensorIndex"
	case engine.SectionTensorData:
		return "TensorData"
	case engine.SectionTimingCache:
		return "TimingCache"
	default:
		return fmt.Sprintf("0x%04x", uint32(t))
	}
}
