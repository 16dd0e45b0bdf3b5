package gguf

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeHeader(t *testing.T, dir, name string, magic, version uint32, tensors, kvs uint64) string {
	t.Helper()
	buf := make([]byte, 0, 24)
	buf = binary.LittleEndian.AppendUint32(buf, magic)
	buf = binary.LittleEndian.AppendUint32(buf, version)
	buf = binary.LittleEndian.AppendUint64(buf, tensors)
	buf = binary.LittleEndian.AppendUint64(buf, kvs)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestValidateHeader(t *testing.T) {
	dir := t.TempDir()
	path := writeHeader(t, dir, "model.gguf", Magic, 3, 10, 5)

	md, err := ValidateHeader(path)
	require.NoError(t, err)
	require.Equal(t, uint32(3), md.Version)
	require.Equal(t, uint64(10), md.TensorCount)
	require.Equal(t, uint64(5), md.MetadataKVCount)
}

func TestValidateHeaderVersion2(t *testing.T) {
	dir := t.TempDir()
	path := writeHeader(t, dir, "v2.gguf", Magic, 2, 1, 1)
	md, err := ValidateHeader(path)
	require.NoError(t, err)
	require.Equal(t, uint32(2), md.Version)
}

func TestValidateHeaderInvalidMagic(t *testing.T) {
	dir := t.TempDir()
	path := writeHeader(t, dir, "bad.gguf", 0xDEADBEEF, 3, 10, 5)

	_, err := ValidateHeader(path)
	var magicErr *InvalidMagicError
	require.ErrorAs(t, err, &magicErr)
	require.Equal(t, uint32(0xDEADBEEF), magicErr.Got)
}

func TestValidateHeaderUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeHeader(t, dir, "v9.gguf", Magic, 9, 1, 1)

	_, err := ValidateHeader(path)
	var verErr *UnsupportedVersionError
	require.ErrorAs(t, err, &verErr)
	require.Equal(t, uint32(9), verErr.Version)
}

func TestValidateHeaderTooSmall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.gguf")
	buf := binary.LittleEndian.AppendUint32(nil, Magic)
	require.NoError(t, os.WriteFile(path, buf, 0o644))

	_, err := ValidateHeader(path)
	require.True(t, errors.Is(err, ErrFileTooSmall))
}

func TestValidateHeaderTruncationSweep(t *testing.T) {
	dir := t.TempDir()
	full := writeHeader(t, dir, "full.gguf", Magic, 3, 7, 2)
	raw, err := os.ReadFile(full)
	require.NoError(t, err)

	for n := 0; n < 24; n++ {
		path := filepath.Join(dir, "trunc.gguf")
		require.NoError(t, os.WriteFile(path, raw[:n], 0o644))
		_, err := ValidateHeader(path)
		require.ErrorIs(t, err, ErrFileTooSmall, "length %d", n)
	}
}

func TestIsModelFile(t *testing.T) {
	dir := t.TempDir()
	good := writeHeader(t, dir, "good.gguf", Magic, 3, 1, 1)
	require.True(t, IsModelFile(good))

	// valid header, wrong extension
	wrongExt := writeHeader(t, dir, "good.bin", Magic, 3, 1, 1)
	require.False(t, IsModelFile(wrongExt))

	require.False(t, IsModelFile(filepath.Join(dir, "missing.gguf")))
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	writeHeader(t, dir, "b-model.gguf", Magic, 3, 1, 1)
	writeHeader(t, dir, "a-model.gguf", Magic, 2, 2, 2)
	writeHeader(t, dir, "broken.gguf", 0x1234, 3, 1, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	models, err := ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Equal(t, "a-model", models[0].Name)
	require.Equal(t, "b-model", models[1].Name)
	require.Equal(t, uint32(2), models[0].Header.Version)
}

func TestScanDirMissing(t *testing.T) {
	models, err := ScanDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Nil(t, models)
}
