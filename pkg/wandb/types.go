package wandb

import (
	"fmt"
	"time"
)

// Viewer identifies the authenticated user.
type Viewer struct {
	Entity   string
	Username string
}

// Project is a read-only snapshot of a W&B project.
type Project struct {
	Name        string
	Entity      string
	Description string
	CreatedAt   time.Time
	URL         string
}

// Run is a read-only snapshot of one tracked experiment at query time.
type Run struct {
	ID          string
	Name        string
	DisplayName string
	State       string
	CreatedAt   time.Time
	Tags        []string
	Summary     map[string]any
	Entity      string
	Project     string
}

// File is a file attached to a run, downloadable via its direct URL.
type File struct {
	Name      string
	SizeBytes int64
	DirectURL string
}

// HistoryRow is one logged step: metric name -> value, plus the _step and
// _timestamp system keys. Values may be absent or null for metrics not
// logged at that step.
type HistoryRow map[string]any

// Step returns the _step value of the row, if present and numeric.
func (r HistoryRow) Step() (float64, bool) {
	v, ok := r["_step"]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// AuthError is returned when the API rejects or lacks credentials.
type AuthError struct{}

func (e *AuthError) Error() string {
	return "W&B authentication required.\n" +
		"Please do one of the following:\n" +
		"  1. export WANDB_API_KEY=<your-key>\n" +
		"  2. wandbplot config set api.api_key <your-key>\n" +
		"  3. Add the key to ~/.netrc for api.wandb.ai"
}

// NotFoundError is returned when a project or run does not exist or is not
// visible to the authenticated user.
type NotFoundError struct {
	Kind string // "project" or "run"
	Path string // entity/project[/run_id]
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found.\n"+
		"Please check:\n"+
		"  1. The %s path is correct\n"+
		"  2. You have access to it", e.Kind, e.Path, e.Kind)
}

// StatusError is a non-2xx HTTP response from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Code, e.Body)
}
