package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
)

// Dir is a checkpoint directory: either a single model.safetensors file or
// a sharded checkpoint described by model.safetensors.index.json.
type Dir struct {
	path  string
	files map[string]*File // shard filename -> parsed header
	index map[string]string // tensor name -> shard filename
}

type weightIndex struct {
	WeightMap map[string]string `json:"weight_map"`
}

// OpenDir scans a checkpoint directory and builds the tensor-to-shard map.
func OpenDir(dir string) (*Dir, error) {
	d := &Dir{
		path:  dir,
		files: make(map[string]*File),
		index: make(map[string]string),
	}

	indexPath := filepath.Join(dir, "model.safetensors.index.json")
	if raw, err := os.ReadFile(indexPath); err == nil {
		var idx weightIndex
		if err := json.Unmarshal(raw, &idx); err != nil {
			return nil, fmt.Errorf("parse weight index: %w", err)
		}
		shards := make(map[string]struct{})
		for name, shard := range idx.WeightMap {
			d.index[name] = shard
			shards[shard] = struct{}{}
		}
		for shard := range shards {
			f, err := Open(filepath.Join(dir, shard))
			if err != nil {
				return nil, err
			}
			d.files[shard] = f
		}
		return d, nil
	}

	// Single-file checkpoint: accept model.safetensors or any *.safetensors.
	matches, err := filepath.Glob(filepath.Join(dir, "*.safetensors"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no safetensors files in %s", dir)
	}
	sort.Strings(matches)
	for _, path := range matches {
		f, err := Open(path)
		if err != nil {
			return nil, err
		}
		shard := filepath.Base(path)
		d.files[shard] = f
		for name := range f.Tensors {
			d.index[name] = shard
		}
	}
	return d, nil
}

// Has reports whether the checkpoint contains the named tensor.
func (d *Dir) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Tensor returns the metadata for a named tensor.
func (d *Dir) Tensor(name string) (TensorInfo, bool) {
	shard, ok := d.index[name]
	if !ok {
		return TensorInfo{}, false
	}
	return d.files[shard].Tensor(name)
}

// ReadTensorF32 reads a tensor from whichever shard holds it.
func (d *Dir) ReadTensorF32(name string) ([]float32, TensorInfo, error) {
	shard, ok := d.index[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	return d.files[shard].ReadTensorF32(name)
}

// Names returns every tensor name in the checkpoint, sorted.
func (d *Dir) Names() []string {
	names := make([]string, 0, len(d.index))
	for name := range d.index {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
