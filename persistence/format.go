package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// MagicNumber identifies vector store binary files (ASCII: "VST0").
	MagicNumber = 0x56535430
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000

	// FileHeaderSize is the encoded size of FileHeader in bytes.
	FileHeaderSize = 64

	// File kinds
	FileKindFlat     = 1
	FileKindHNSW     = 2
	FileKindMetadata = 3
)

const (
	// IndexFileName is the index file inside a store directory.
	IndexFileName = "index.bin"
	// MetadataFileName is the metadata file inside a store directory.
	MetadataFileName = "metadata.bin"
)

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidKind    = errors.New("invalid file kind")
)

// FileHeader is the 64-byte header at the start of every store file.
// All integers are little-endian.
type FileHeader struct {
	Magic     uint32  // 0x56535430 ("VST0")
	Version   uint32  // File format version
	Kind      uint8   // 1=Flat, 2=HNSW, 3=Metadata
	Padding1  [3]byte
	Count     uint64  // Vectors (index files) or documents (metadata files)
	Dimension uint32  // Vector dimensionality
	Padding2  [4]byte
	Codec     [8]byte // Zero-padded codec name; zero for raw binary payloads
	Reserved  [28]byte
}

// SetCodec records the codec name in the header. Names longer than the
// field are rejected so the round-trip stays lossless.
func (h *FileHeader) SetCodec(name string) error {
	if len(name) > len(h.Codec) {
		return fmt.Errorf("persistence: codec name %q exceeds %d bytes", name, len(h.Codec))
	}
	h.Codec = [8]byte{}
	copy(h.Codec[:], name)
	return nil
}

// CodecName returns the codec name recorded in the header, or "" for raw
// binary payloads.
func (h *FileHeader) CodecName() string {
	end := bytes.IndexByte(h.Codec[:], 0)
	if end < 0 {
		end = len(h.Codec)
	}
	return string(h.Codec[:end])
}

// WriteHeader stamps the magic and version and writes the header to w.
func WriteHeader(w io.Writer, header *FileHeader) error {
	header.Magic = MagicNumber
	header.Version = Version
	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates a file header.
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}
	if header.Kind < FileKindFlat || header.Kind > FileKindMetadata {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidKind, header.Kind)
	}
	return &header, nil
}

// NodeHeader is the 16-byte per-node record header in HNSW index files.
type NodeHeader struct {
	ID      uint64  // Node ID
	Layer   uint16  // Highest layer the node appears on
	VecLen  uint16  // Vector length (dimensions)
	Deleted uint8   // 1 if the node is tombstoned
	Padding [3]byte // Align to 16 bytes
}
