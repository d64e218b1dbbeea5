package plot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/user/wandbplot/internal/series"
)

func points(values ...float64) []series.Point {
	pts := make([]series.Point, len(values))
	for i, v := range values {
		pts[i] = series.Point{Step: float64(i), Value: v}
	}
	return pts
}

func TestRenderWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.png")

	err := Render(path, []Line{{
		Label:    "train/loss",
		Raw:      points(1.0, 0.8, 0.5, 0.3),
		Smoothed: points(1.0, 0.9, 0.7, 0.5),
	}}, Options{Title: "train/loss over time", XLabel: "Step", YLabel: "train/loss"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() == 0 {
		t.Error("expected non-empty plot file")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("expected temp file to be renamed away")
	}
}

func TestRenderMultipleLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "compare.png")

	err := Render(path, []Line{
		{Label: "run-a", Raw: points(0.1, 0.2, 0.3)},
		{Label: "run-b", Raw: points(0.3, 0.2, 0.1)},
	}, Options{Title: "accuracy", YLabel: "accuracy"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stat output: %v", err)
	}
}

func TestRenderNoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.png")

	err := Render(path, []Line{{Label: "loss"}}, Options{YLabel: "loss"})
	if err == nil {
		t.Fatal("expected error for empty lines")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("expected no output file on failure")
	}
}

func TestRenderSkipsEmptyLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.png")

	err := Render(path, []Line{
		{Label: "missing"},
		{Label: "present", Raw: points(1, 2, 3)},
	}, Options{YLabel: "metric"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
}

func TestPositiveRange(t *testing.T) {
	min, max, ok := positiveRange([]float64{-1, 0, 0.001, 50})
	if !ok || min != 0.001 || max != 50 {
		t.Errorf("positiveRange = (%v, %v, %v)", min, max, ok)
	}
	if _, _, ok := positiveRange([]float64{-1, 0}); ok {
		t.Error("expected no positive range")
	}
}

func TestInUnitRange(t *testing.T) {
	if !inUnitRange([]float64{0, 0.5, 1}) {
		t.Error("expected [0,1] values to be in unit range")
	}
	if inUnitRange([]float64{0.5, 1.2}) {
		t.Error("expected out-of-range value to fail")
	}
	if inUnitRange(nil) {
		t.Error("expected empty values to fail")
	}
}
