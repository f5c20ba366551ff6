// Package engine implements the serialized engine container format.
//
// An engine file is a single memory-mappable artifact holding everything one
// rank needs at deploy time: the build configuration, the rank's tensor
// shards, and optionally the tactic timing cache the build produced. The
// format describes structure and data only and never implies runtime
// behaviour.
package engine

import "errors"

const (
	// Magic is the file magic for all engine containers, encoded "TRTE".
	Magic = "TRTE"

	// CurrentMajor changes only on breaking format changes.
	CurrentMajor uint16 = 1

	// CurrentMinor may add new optional sections or fields.
	CurrentMinor uint16 = 0
)

type SectionType uint32

const (
	SectionBuildConfig SectionType = 0x0001
	SectionTensorIndex SectionType = 0x0002
	SectionTensorData  SectionType = 0x0003
	SectionTimingCache SectionType = 0x0004
)

// Header is the fixed-size file header, patched in place by Finalise.
type Header struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
}

// Section is one entry of the section directory.
type Section struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

var (
	ErrInvalidMagic     = errors.New("invalid engine magic")
	ErrUnsupportedMajor = errors.New("unsupported engine major version")
	ErrCorruptFile      = errors.New("corrupt engine file")
)

const (
	headerSize  = 32
	sectionSize = 24
	fileAlign   = 8
)

func (h *Header) valid() bool {
	if string(h.Magic[:]) != Magic {
		return false
	}
	if h.HeaderSize < headerSize {
		return false
	}
	return h.SectionCount > 0
}

func (h *Header) compatible() bool {
	return h.Major == CurrentMajor
}
