package gguf

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ModelFile describes a discovered model on disk.
type ModelFile struct {
	Name      string
	Path      string
	SizeBytes int64
	Header    Metadata
}

// ScanDir lists all valid .gguf files directly under dir, sorted by name.
// Files that fail header validation are skipped with a warning.
func ScanDir(dir string) ([]ModelFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var models []ModelFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".gguf") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		hdr, err := ValidateHeader(path)
		if err != nil {
			log.Warn().Str("path", path).Err(err).Msg("model_file_skipped")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		models = append(models, ModelFile{
			Name:      strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path:      path,
			SizeBytes: info.Size(),
			Header:    hdr,
		})
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })
	return models, nil
}
