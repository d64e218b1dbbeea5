package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// MetadataFilename is the sidecar written next to downloaded or generated
// plots.
const MetadataFilename = "metadata.json"

// WriteMetadata merges meta into the metadata.json sidecar in dir. Existing
// keys not present in meta are preserved; each write stamps a fresh batch_id.
// Uses atomic write (temp file + rename).
func WriteMetadata(dir string, meta map[string]any) error {
	path := filepath.Join(dir, MetadataFilename)

	merged := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		// A corrupt sidecar is replaced rather than failing the batch.
		var existing map[string]any
		if err := json.Unmarshal(data, &existing); err == nil {
			merged = existing
		}
	}
	for k, v := range meta {
		merged[k] = v
	}
	merged["batch_id"] = uuid.NewString()

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

// ReadMetadata reads the metadata.json sidecar in dir. Returns an empty map
// if the file does not exist.
func ReadMetadata(dir string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFilename))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}
