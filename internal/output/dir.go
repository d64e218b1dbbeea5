// Package output implements the local output conventions: per-run plot
// directories and the metadata.json sidecar.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RunDir returns the conventional output directory for a single run:
// <base>/<entity>_<project>/<run_name>_<run_id>. An empty run name drops the
// name segment.
func RunDir(base, entity, project, runID, runName string) string {
	projectDir := fmt.Sprintf("%s_%s", entity, project)
	runDir := runID
	if runName != "" {
		runDir = fmt.Sprintf("%s_%s", SafeFilename(runName), runID)
	}
	return filepath.Join(base, projectDir, runDir)
}

// CompareDir returns the output directory for a multi-run comparison:
// <base>/<entity>_<project>/compare_<id1>_<id2>...
func CompareDir(base, entity, project string, runIDs []string) string {
	projectDir := fmt.Sprintf("%s_%s", entity, project)
	ids := make([]string, len(runIDs))
	for i, id := range runIDs {
		ids[i] = SafeFilename(id)
	}
	return filepath.Join(base, projectDir, "compare_"+strings.Join(ids, "_"))
}

// Ensure creates the directory (and parents) if needed and returns it.
func Ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %q: %w", dir, err)
	}
	return dir, nil
}

// SafeFilename converts a metric or run label into a filesystem-safe name.
func SafeFilename(name string) string {
	if name == "" {
		return "unnamed"
	}
	name = strings.ReplaceAll(name, "/", "_")
	return strings.ReplaceAll(name, "\\", "_")
}
