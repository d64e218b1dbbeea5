package wandb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// gqlServer fakes the GraphQL endpoint, dispatching on the operation name in
// the query text. The handler returns the data payload.
func gqlServer(t *testing.T, handler func(query string, vars map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/graphql" {
			t.Errorf("expected path /graphql, got %q", r.URL.Path)
		}
		var req gqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		data := handler(req.Query, req.Variables)
		json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
}

func testClient(url string) *Client {
	return New(&Config{
		BaseURL: url,
		APIKey:  "test-key",
		Retry:   &RetryPolicy{MaxAttempts: 1, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
	})
}

func TestViewer(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		if !strings.Contains(query, "viewer") {
			t.Errorf("unexpected query: %s", query)
		}
		return map[string]any{
			"viewer": map[string]any{"entity": "my-org", "username": "me"},
		}
	})
	defer server.Close()

	viewer, err := testClient(server.URL).Viewer(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if viewer.Entity != "my-org" || viewer.Username != "me" {
		t.Errorf("unexpected viewer: %+v", viewer)
	}
}

func TestClientBasicAuth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "test-key" {
			t.Errorf("expected basic auth api:test-key, got %q:%q", user, pass)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"viewer": map[string]any{"entity": "e", "username": "u"}},
		})
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Viewer(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestRuns(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		if vars["entity"] != "my-org" || vars["project"] != "my-project" {
			t.Errorf("unexpected vars: %v", vars)
		}
		if vars["filters"] != `{"state":"finished"}` {
			t.Errorf("expected state filter, got %v", vars["filters"])
		}
		return map[string]any{
			"project": map[string]any{
				"runs": map[string]any{
					"edges": []map[string]any{
						{"node": map[string]any{
							"id":             "UnVuOnYx",
							"name":           "abc123",
							"displayName":    "sunny-dawn-1",
							"state":          "finished",
							"createdAt":      "2024-03-01T10:00:00",
							"tags":           []string{"baseline"},
							"summaryMetrics": `{"loss": 0.12, "acc": 0.9}`,
						}},
					},
				},
			},
		}
	})
	defer server.Close()

	runs, err := testClient(server.URL).Runs(context.Background(), "my-org", "my-project", "finished", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	run := runs[0]
	if run.ID != "abc123" {
		t.Errorf("expected run id abc123, got %q", run.ID)
	}
	if run.Name != "sunny-dawn-1" {
		t.Errorf("expected display name, got %q", run.Name)
	}
	if run.State != "finished" {
		t.Errorf("expected finished, got %q", run.State)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected createdAt to parse")
	}
	if run.Summary["loss"] != 0.12 {
		t.Errorf("expected summary loss 0.12, got %v", run.Summary["loss"])
	}
	if run.Entity != "my-org" || run.Project != "my-project" {
		t.Errorf("expected entity/project to be set, got %s/%s", run.Entity, run.Project)
	}
}

func TestRunNotFound(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		return map[string]any{"project": map[string]any{"run": nil}}
	})
	defer server.Close()

	_, err := testClient(server.URL).Run(context.Background(), "e", "p", "missing")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Kind != "run" {
		t.Errorf("expected run not found, got %q", notFound.Kind)
	}
}

func TestProjectNotFound(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		return map[string]any{"project": nil}
	})
	defer server.Close()

	_, err := testClient(server.URL).Runs(context.Background(), "e", "nope", "", 10)
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Kind != "project" {
		t.Errorf("expected project not found, got %q", notFound.Kind)
	}
}

func TestHistory(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		if vars["samples"] != float64(500) {
			t.Errorf("expected 500 samples, got %v", vars["samples"])
		}
		return map[string]any{
			"project": map[string]any{
				"run": map[string]any{
					"history": []string{
						`{"_step": 0, "_timestamp": 1700000000, "loss": 1.5}`,
						`{"_step": 1, "_timestamp": 1700000060, "loss": null}`,
						`{"_step": 2, "_timestamp": 1700000120, "loss": 0.8}`,
					},
				},
			},
		}
	})
	defer server.Close()

	rows, err := testClient(server.URL).History(context.Background(), "e", "p", "abc", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if step, ok := rows[2].Step(); !ok || step != 2 {
		t.Errorf("expected step 2, got %v", step)
	}
	if rows[1]["loss"] != nil {
		t.Errorf("expected null loss at step 1, got %v", rows[1]["loss"])
	}
}

func TestScanHistoryPaging(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		minStep := float64(0)
		if v, ok := vars["minStep"].(float64); ok {
			minStep = v
		}
		var rows []string
		switch minStep {
		case 0:
			rows = []string{`{"_step": 0, "loss": 3.0}`, `{"_step": 1, "loss": 2.0}`}
		case 2:
			rows = []string{`{"_step": 2, "loss": 1.0}`}
		default:
			rows = nil
		}
		return map[string]any{
			"project": map[string]any{"run": map[string]any{"history": rows}},
		}
	})
	defer server.Close()

	rows, err := testClient(server.URL).ScanHistory(context.Background(), "e", "p", "abc", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows across pages, got %d", len(rows))
	}
	if step, _ := rows[2].Step(); step != 2 {
		t.Errorf("expected last step 2, got %v", step)
	}
}

func TestFiles(t *testing.T) {
	server := gqlServer(t, func(query string, vars map[string]any) any {
		return map[string]any{
			"project": map[string]any{
				"run": map[string]any{
					"files": map[string]any{
						"edges": []map[string]any{
							{"node": map[string]any{"name": "media/images/loss.png", "sizeBytes": 1024, "url": "https://storage.example/loss.png"}},
							{"node": map[string]any{"name": "output.log", "sizeBytes": 99, "url": "https://storage.example/output.log"}},
						},
					},
				},
			},
		}
	})
	defer server.Close()

	files, err := testClient(server.URL).Files(context.Background(), "e", "p", "abc")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Name != "media/images/loss.png" || files[0].SizeBytes != 1024 {
		t.Errorf("unexpected file: %+v", files[0])
	}
}

func TestMatchPatterns(t *testing.T) {
	files := []File{
		{Name: "media/images/loss.png"},
		{Name: "media/images/acc.jpg"},
		{Name: "output.log"},
		{Name: "top.png"},
	}

	matched := MatchPatterns(files, DefaultPlotPatterns)
	names := make([]string, len(matched))
	for i, f := range matched {
		names[i] = f.Name
	}

	want := []string{"media/images/loss.png", "top.png", "media/images/acc.jpg"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("expected %v, got %v", want, names)
			break
		}
	}
}

func TestDownloadFile(t *testing.T) {
	fileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("png-bytes"))
	}))
	defer fileServer.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "loss.png")
	client := testClient("http://unused")

	err := client.DownloadFile(context.Background(), File{Name: "loss.png", DirectURL: fileServer.URL}, dest)
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("unexpected file contents: %q", data)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not exist after download")
	}
}

func TestAuthError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Viewer(context.Background())
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if !strings.Contains(err.Error(), "WANDB_API_KEY") {
		t.Errorf("auth error should mention WANDB_API_KEY: %q", err.Error())
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"viewer": map[string]any{"entity": "e", "username": "u"}},
		})
	}))
	defer server.Close()

	client := New(&Config{
		BaseURL: server.URL,
		APIKey:  "k",
		Retry:   &RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond},
	})
	if _, err := client.Viewer(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", calls.Load())
	}
}
