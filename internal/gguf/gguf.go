// Package gguf validates GGUF model file headers and discovers model files on
// disk. Only the fixed 24-byte header is parsed here; everything past it
// belongs to the tensor runtime.
package gguf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Magic is the little-endian encoding of the ASCII bytes "GGUF".
const Magic uint32 = 0x46554747

// headerSize is magic(4) + version(4) + tensor_count(8) + metadata_kv_count(8).
const headerSize = 24

var (
	// ErrFileTooSmall indicates the file cannot hold a full GGUF header.
	ErrFileTooSmall = errors.New("file too small to be valid GGUF")
)

// InvalidMagicError reports the magic value actually found in the file.
type InvalidMagicError struct {
	Got uint32
}

func (e *InvalidMagicError) Error() string {
	return fmt.Sprintf("invalid GGUF file: magic bytes mismatch (expected 0x%08X, got 0x%08X)", Magic, e.Got)
}

// UnsupportedVersionError reports a GGUF version outside the accepted range.
type UnsupportedVersionError struct {
	Version uint32
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported GGUF version: %d", e.Version)
}

// Metadata holds the fields extracted from a GGUF file header.
type Metadata struct {
	Version         uint32
	TensorCount     uint64
	MetadataKVCount uint64
}

// ValidateHeader checks that the file at path starts with a valid GGUF v2/v3
// header and returns the parsed header fields.
func ValidateHeader(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	return readHeader(f)
}

func readHeader(r io.ReadSeeker) (Metadata, error) {
	size, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return Metadata{}, err
	}
	if size < headerSize {
		return Metadata{}, ErrFileTooSmall
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return Metadata{}, err
	}

	var hdr struct {
		Magic           uint32
		Version         uint32
		TensorCount     uint64
		MetadataKVCount uint64
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return Metadata{}, err
	}
	if hdr.Magic != Magic {
		return Metadata{}, &InvalidMagicError{Got: hdr.Magic}
	}
	if hdr.Version < 2 || hdr.Version > 3 {
		return Metadata{}, &UnsupportedVersionError{Version: hdr.Version}
	}
	return Metadata{
		Version:         hdr.Version,
		TensorCount:     hdr.TensorCount,
		MetadataKVCount: hdr.MetadataKVCount,
	}, nil
}

// IsModelFile reports whether path has a .gguf extension and a valid header.
func IsModelFile(path string) bool {
	if !strings.EqualFold(filepath.Ext(path), ".gguf") {
		return false
	}
	_, err := ValidateHeader(path)
	return err == nil
}
