package wandb

import (
	"fmt"
	"strings"
)

// SplitProjectPath splits "entity/project" into its parts. A bare project
// name returns an empty entity, which callers resolve via Viewer.
func SplitProjectPath(s string) (entity, project string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("project path cannot be empty")
	}
	if !strings.Contains(s, "/") {
		return "", s, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", fmt.Errorf("invalid project path %q: expected 'entity/project' or 'project'", s)
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}
