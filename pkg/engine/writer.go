package engine

import (
	"errors"
	"io"
	"os"
	"sort"
	"sync"
)

const writerPadBufSize = 4096

// Writer builds an engine file in a streaming fashion.
//
// Space for the header is reserved up front and patched during Finalise, so
// tensor payloads never need to be buffered in memory.
type Writer struct {
	f        *os.File
	sections []Section
	seen     map[SectionType]struct{}
	tensors  *TensorWriter
	closed   bool

	padBuf []byte

	mu sync.Mutex
}

// NewWriter creates a writer targeting the given file. It truncates the
// file and reserves the header bytes.
func NewWriter(f *os.File) (*Writer, error) {
	if f == nil {
		return nil, errors.New("engine: nil file")
	}
	if err := f.Truncate(0); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	w := &Writer{
		f:      f,
		seen:   make(map[SectionType]struct{}),
		padBuf: make([]byte, writerPadBufSize),
	}
	if err := w.writeZeros(headerSize); err != nil {
		return nil, err
	}
	if err := w.alignTo(fileAlign); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteSection writes a section payload and records it in the directory.
// A section type may only be written once.
func (w *Writer) WriteSection(typ SectionType, version uint32, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeSectionLocked(typ, version, data)
}

func (w *Writer) writeSectionLocked(typ SectionType, version uint32, data []byte) error {
	if w.closed {
		return errors.New("engine: writer already finalised")
	}
	if w.tensors != nil {
		return errors.New("engine: tensor data write in progress")
	}
	if _, ok := w.seen[typ]; ok {
		return errors.New("engine: duplicate section type")
	}
	if err := w.alignTo(fileAlign); err != nil {
		return err
	}
	offset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		if err := writeFull(w.f, data); err != nil {
			return err
		}
	}
	w.sections = append(w.sections, Section{
		Type:    uint32(typ),
		Version: version,
		Offset:  uint64(offset),
		Size:    uint64(len(data)),
	})
	w.seen[typ] = struct{}{}
	return nil
}

// WriteBuildConfig records the serialized build configuration.
func (w *Writer) WriteBuildConfig(data []byte) error {
	return w.WriteSection(SectionBuildConfig, 1, data)
}

// WriteTimingCache records an opaque tactic timing cache blob.
func (w *Writer) WriteTimingCache(data []byte) error {
	return w.WriteSection(SectionTimingCache, 1, data)
}

// TensorWriter streams tensor payloads into the TensorData section and
// accumulates the index entries. End writes both sections' bookkeeping.
type TensorWriter struct {
	w       *Writer
	start   int64
	entries []TensorEntry
	names   map[string]struct{}
	ended   bool
}

// BeginTensors starts the TensorData section. It must be ended before any
// other section can be written.
func (w *Writer) BeginTensors() (*TensorWriter, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, errors.New("engine: writer already finalised")
	}
	if w.tensors != nil {
		return nil, errors.New("engine: tensor data write in progress")
	}
	if _, ok := w.seen[SectionTensorData]; ok {
		return nil, errors.New("engine: duplicate section type")
	}
	if err := w.alignTo(fileAlign); err != nil {
		return nil, err
	}
	start, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}
	tw := &TensorWriter{
		w:     w,
		start: start,
		names: make(map[string]struct{}),
	}
	w.tensors = tw
	w.seen[SectionTensorData] = struct{}{}
	return tw, nil
}

// Add appends one tensor payload, aligned within the section, and records
// its index entry. Tensor names must be unique.
func (tw *TensorWriter) Add(name string, dtype DType, shape []int, data []byte) error {
	tw.w.mu.Lock()
	defer tw.w.mu.Unlock()

	if tw.ended {
		return errors.New("engine: tensor writer ended")
	}
	if _, ok := tw.names[name]; ok {
		return errors.New("engine: duplicate tensor name " + name)
	}
	if err := tw.w.alignTo(fileAlign); err != nil {
		return err
	}
	pos, err := tw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := writeFull(tw.w.f, data); err != nil {
		return err
	}
	tw.entries = append(tw.entries, TensorEntry{
		Name:   name,
		DType:  dtype,
		Shape:  append([]int(nil), shape...),
		Offset: uint64(pos - tw.start),
		Size:   uint64(len(data)),
	})
	tw.names[name] = struct{}{}
	return nil
}

// End closes the TensorData section and writes the TensorIndex section.
func (tw *TensorWriter) End() error {
	tw.w.mu.Lock()
	defer tw.w.mu.Unlock()

	if tw.ended {
		return errors.New("engine: tensor writer already ended")
	}
	pos, err := tw.w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	tw.w.sections = append(tw.w.sections, Section{
		Type:    uint32(SectionTensorData),
		Version: 1,
		Offset:  uint64(tw.start),
		Size:    uint64(pos - tw.start),
	})
	tw.w.tensors = nil
	tw.ended = true
	return tw.w.writeSectionLocked(SectionTensorIndex, TensorIndexVersion, encodeTensorIndex(tw.entries))
}

// Close is an alias for End, allowing use with defer.
func (tw *TensorWriter) Close() error { return tw.End() }

// Finalise writes the section directory and patches the header. After
// Finalise the writer must not be used again.
func (w *Writer) Finalise() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.New("engine: writer already finalised")
	}
	if w.tensors != nil {
		return errors.New("engine: tensor data write in progress")
	}
	w.closed = true

	// Deterministic directory ordering.
	sort.Slice(w.sections, func(i, j int) bool {
		return w.sections[i].Type < w.sections[j].Type
	})

	if err := w.alignTo(fileAlign); err != nil {
		return err
	}
	dirOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	var secBuf [sectionSize]byte
	for i := range w.sections {
		if !encodeSection(secBuf[:], w.sections[i]) {
			return errors.New("engine: encode section failed")
		}
		if err := writeFull(w.f, secBuf[:]); err != nil {
			return err
		}
	}

	fileSize, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if err := w.f.Truncate(fileSize); err != nil {
		return err
	}

	var header Header
	copy(header.Magic[:], Magic)
	header.Major = CurrentMajor
	header.Minor = CurrentMinor
	header.HeaderSize = headerSize
	header.SectionCount = uint32(len(w.sections))
	header.SectionDirOffset = uint64(dirOffset)
	header.FileSize = uint64(fileSize)

	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var hdrBuf [headerSize]byte
	if !encodeHeader(hdrBuf[:], header) {
		return errors.New("engine: encode header failed")
	}
	if err := writeFull(w.f, hdrBuf[:]); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) alignTo(n int64) error {
	pos, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	mod := pos % n
	if mod == 0 {
		return nil
	}
	return w.writeZeros(int(n - mod))
}

func (w *Writer) writeZeros(n int) error {
	for n > 0 {
		chunk := n
		if chunk > len(w.padBuf) {
			chunk = len(w.padBuf)
		}
		if err := writeFull(w.f, w.padBuf[:chunk]); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

func writeFull(f *os.File, p []byte) error {
	for len(p) > 0 {
		n, err := f.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
