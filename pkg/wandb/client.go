package wandb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the public W&B API endpoint.
const DefaultBaseURL = "https://api.wandb.ai"

// DefaultPlotPatterns are the glob patterns tried when looking for plot
// images attached to a run.
var DefaultPlotPatterns = []string{
	"media/images/*.png",
	"media/plots/*.png",
	"*.png",
	"media/images/*.jpg",
	"media/images/*.jpeg",
	"plots/*.png",
	"figures/*.png",
}

// Config holds configuration for the API client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   *RetryPolicy
}

// Client talks to the W&B GraphQL API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retry      *RetryPolicy
}

// New creates a new API client with the given configuration.
func New(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retry: retry,
	}
}

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

// do sends a GraphQL query and unmarshals the data payload into out.
// Transient failures are retried according to the client's retry policy.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	return c.retry.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth("api", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("sending request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &AuthError{}
		}
		if resp.StatusCode != http.StatusOK {
			return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
		}

		var gql gqlResponse
		if err := json.Unmarshal(respBody, &gql); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		if len(gql.Errors) > 0 {
			return fmt.Errorf("graphql error: %s", gql.Errors[0].Message)
		}
		if err := json.Unmarshal(gql.Data, out); err != nil {
			return fmt.Errorf("parsing data: %w", err)
		}
		return nil
	})
}

const viewerQuery = `query Viewer {
  viewer { entity username }
}`

// Viewer returns the authenticated user, resolving the default entity.
func (c *Client) Viewer(ctx context.Context) (*Viewer, error) {
	var data struct {
		Viewer *struct {
			Entity   string `json:"entity"`
			Username string `json:"username"`
		} `json:"viewer"`
	}
	if err := c.do(ctx, viewerQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Viewer == nil {
		return nil, &AuthError{}
	}
	return &Viewer{Entity: data.Viewer.Entity, Username: data.Viewer.Username}, nil
}

const projectsQuery = `query Projects($entity: String!, $first: Int) {
  models(entityName: $entity, first: $first) {
    edges { node { name entityName description createdAt } }
  }
}`

// Projects lists up to limit projects for an entity.
func (c *Client) Projects(ctx context.Context, entity string, limit int) ([]Project, error) {
	var data struct {
		Models *struct {
			Edges []struct {
				Node struct {
					Name        string `json:"name"`
					EntityName  string `json:"entityName"`
					Description string `json:"description"`
					CreatedAt   string `json:"createdAt"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"models"`
	}
	vars := map[string]any{"entity": entity, "first": limit}
	if err := c.do(ctx, projectsQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Models == nil {
		return nil, &NotFoundError{Kind: "entity", Path: entity}
	}
	projects := make([]Project, 0, len(data.Models.Edges))
	for _, e := range data.Models.Edges {
		projects = append(projects, Project{
			Name:        e.Node.Name,
			Entity:      e.Node.EntityName,
			Description: e.Node.Description,
			CreatedAt:   parseTime(e.Node.CreatedAt),
			URL:         fmt.Sprintf("https://wandb.ai/%s/%s", e.Node.EntityName, e.Node.Name),
		})
	}
	return projects, nil
}

// runNode is the GraphQL shape of a run; summaryMetrics arrives as a JSON
// string.
type runNode struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	DisplayName    string   `json:"displayName"`
	State          string   `json:"state"`
	CreatedAt      string   `json:"createdAt"`
	Tags           []string `json:"tags"`
	SummaryMetrics string   `json:"summaryMetrics"`
}

func (n *runNode) toRun(entity, project string) Run {
	run := Run{
		ID:          n.Name, // the short run id; the GraphQL `id` is an opaque node id
		Name:        n.DisplayName,
		DisplayName: n.DisplayName,
		State:       n.State,
		CreatedAt:   parseTime(n.CreatedAt),
		Tags:        n.Tags,
		Entity:      entity,
		Project:     project,
	}
	if n.SummaryMetrics != "" {
		var summary map[string]any
		if err := json.Unmarshal([]byte(n.SummaryMetrics), &summary); err == nil {
			run.Summary = summary
		}
	}
	return run
}

const runsQuery = `query Runs($entity: String!, $project: String!, $first: Int, $filters: JSONString) {
  project(name: $project, entityName: $entity) {
    runs(first: $first, filters: $filters) {
      edges { node { id name displayName state createdAt tags summaryMetrics } }
    }
  }
}`

// Runs lists up to limit runs in a project, optionally filtered by state.
func (c *Client) Runs(ctx context.Context, entity, project, state string, limit int) ([]Run, error) {
	vars := map[string]any{"entity": entity, "project": project, "first": limit}
	if state != "" {
		filters, err := json.Marshal(map[string]string{"state": state})
		if err != nil {
			return nil, fmt.Errorf("marshaling filters: %w", err)
		}
		vars["filters"] = string(filters)
	}

	var data struct {
		Project *struct {
			Runs struct {
				Edges []struct {
					Node runNode `json:"node"`
				} `json:"edges"`
			} `json:"runs"`
		} `json:"project"`
	}
	if err := c.do(ctx, runsQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Project == nil {
		return nil, &NotFoundError{Kind: "project", Path: entity + "/" + project}
	}
	runs := make([]Run, 0, len(data.Project.Runs.Edges))
	for _, e := range data.Project.Runs.Edges {
		runs = append(runs, e.Node.toRun(entity, project))
	}
	return runs, nil
}

const runQuery = `query Run($entity: String!, $project: String!, $name: String!) {
  project(name: $project, entityName: $entity) {
    run(name: $name) { id name displayName state createdAt tags summaryMetrics }
  }
}`

// Run fetches a single run by its short id.
func (c *Client) Run(ctx context.Context, entity, project, runID string) (*Run, error) {
	vars := map[string]any{"entity": entity, "project": project, "name": runID}
	var data struct {
		Project *struct {
			Run *runNode `json:"run"`
		} `json:"project"`
	}
	if err := c.do(ctx, runQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Project == nil {
		return nil, &NotFoundError{Kind: "project", Path: entity + "/" + project}
	}
	if data.Project.Run == nil {
		return nil, &NotFoundError{Kind: "run", Path: entity + "/" + project + "/" + runID}
	}
	run := data.Project.Run.toRun(entity, project)
	return &run, nil
}

const historyQuery = `query RunHistory($entity: String!, $project: String!, $name: String!, $samples: Int, $minStep: Int64) {
  project(name: $project, entityName: $entity) {
    run(name: $name) { history(samples: $samples, minStep: $minStep) }
  }
}`

// historyPage fetches one page of history rows. The API returns each row as
// a JSON-encoded string.
func (c *Client) historyPage(ctx context.Context, entity, project, runID string, samples int, minStep int64) ([]HistoryRow, error) {
	vars := map[string]any{"entity": entity, "project": project, "name": runID, "samples": samples}
	if minStep > 0 {
		vars["minStep"] = minStep
	}
	var data struct {
		Project *struct {
			Run *struct {
				History []string `json:"history"`
			} `json:"run"`
		} `json:"project"`
	}
	if err := c.do(ctx, historyQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Project == nil {
		return nil, &NotFoundError{Kind: "project", Path: entity + "/" + project}
	}
	if data.Project.Run == nil {
		return nil, &NotFoundError{Kind: "run", Path: entity + "/" + project + "/" + runID}
	}
	rows := make([]HistoryRow, 0, len(data.Project.Run.History))
	for _, raw := range data.Project.Run.History {
		var row HistoryRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("parsing history row: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// History fetches sampled history for a run (the service downsamples to
// roughly the requested number of points).
func (c *Client) History(ctx context.Context, entity, project, runID string, samples int) ([]HistoryRow, error) {
	if samples <= 0 {
		samples = 500
	}
	return c.historyPage(ctx, entity, project, runID, samples, 0)
}

// ScanHistory fetches full-resolution history by paging through step ranges.
// Slower than History but returns every logged point.
func (c *Client) ScanHistory(ctx context.Context, entity, project, runID string, pageSize int) ([]HistoryRow, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	var all []HistoryRow
	var minStep int64
	for {
		rows, err := c.historyPage(ctx, entity, project, runID, pageSize, minStep)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}
		all = append(all, rows...)
		last, ok := rows[len(rows)-1].Step()
		if !ok || int64(last)+1 <= minStep {
			break
		}
		minStep = int64(last) + 1
		if len(rows) < pageSize {
			break
		}
	}
	return all, nil
}

const filesQuery = `query RunFiles($entity: String!, $project: String!, $name: String!, $first: Int) {
  project(name: $project, entityName: $entity) {
    run(name: $name) {
      files(first: $first) {
        edges { node { name sizeBytes url(upload: false) } }
      }
    }
  }
}`

// Files lists files attached to a run.
func (c *Client) Files(ctx context.Context, entity, project, runID string) ([]File, error) {
	vars := map[string]any{"entity": entity, "project": project, "name": runID, "first": 1000}
	var data struct {
		Project *struct {
			Run *struct {
				Files struct {
					Edges []struct {
						Node struct {
							Name      string `json:"name"`
							SizeBytes int64  `json:"sizeBytes"`
							URL       string `json:"url"`
						} `json:"node"`
					} `json:"edges"`
				} `json:"files"`
			} `json:"run"`
		} `json:"project"`
	}
	if err := c.do(ctx, filesQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.Project == nil {
		return nil, &NotFoundError{Kind: "project", Path: entity + "/" + project}
	}
	if data.Project.Run == nil {
		return nil, &NotFoundError{Kind: "run", Path: entity + "/" + project + "/" + runID}
	}
	files := make([]File, 0, len(data.Project.Run.Files.Edges))
	for _, e := range data.Project.Run.Files.Edges {
		files = append(files, File{
			Name:      e.Node.Name,
			SizeBytes: e.Node.SizeBytes,
			DirectURL: e.Node.URL,
		})
	}
	return files, nil
}

// MatchPatterns returns the files whose names match any of the glob
// patterns, preserving order and dropping duplicates.
func MatchPatterns(files []File, patterns []string) []File {
	var matched []File
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		for _, f := range files {
			if seen[f.Name] {
				continue
			}
			ok, err := path.Match(pattern, f.Name)
			if err != nil {
				continue
			}
			if ok {
				matched = append(matched, f)
				seen[f.Name] = true
			}
		}
	}
	return matched
}

// DownloadFile streams a run file to dest using an atomic write
// (temp file + rename).
func (c *Client) DownloadFile(ctx context.Context, file File, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.DirectURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth("api", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// parseTime parses the timestamp formats the API emits. Returns the zero
// time if none match.
func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
