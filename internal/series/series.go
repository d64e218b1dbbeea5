// Package series shapes raw run history into plottable metric series:
// null filtering, summary statistics, prefix grouping and EMA smoothing.
package series

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/user/wandbplot/pkg/wandb"
)

// Point is one non-null sample of a metric.
type Point struct {
	Step  float64
	Value float64
}

// Series is the ordered non-null samples of one metric within one run.
type Series struct {
	Metric string
	Points []Point
}

// Empty reports whether the series has no usable samples.
func (s Series) Empty() bool { return len(s.Points) == 0 }

// systemPrefixes mark history columns that are bookkeeping, not user metrics.
var systemPrefixes = []string{"_", "system/", "gradients/"}

// IsSystemColumn reports whether a history column is a system column.
func IsSystemColumn(name string) bool {
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Columns returns the sorted set of column names present in the rows.
// System columns are excluded unless includeSystem is set.
func Columns(rows []wandb.HistoryRow, includeSystem bool) []string {
	seen := make(map[string]bool)
	for _, row := range rows {
		for name := range row {
			if !includeSystem && IsSystemColumn(name) {
				continue
			}
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FromRows extracts the named metric from history rows as an ordered series.
// Null and non-numeric samples are dropped, not interpolated; a missing
// sample never contributes to the series. Rows without a _step use their
// index as the step.
func FromRows(rows []wandb.HistoryRow, metric string) Series {
	s := Series{Metric: metric}
	for i, row := range rows {
		v, ok := row[metric]
		if !ok || v == nil {
			continue
		}
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) {
			continue
		}
		step, ok := row.Step()
		if !ok {
			step = float64(i)
		}
		s.Points = append(s.Points, Point{Step: step, Value: f})
	}
	return s
}

// Stats summarizes one history column. Numeric aggregates are only
// meaningful when Numeric is set.
type Stats struct {
	Type         string  `json:"type"`
	Count        int     `json:"count"`
	NonNullCount int     `json:"non_null_count"`
	Numeric      bool    `json:"-"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	Std          float64 `json:"std"`
}

// MarshalJSON always emits the numeric aggregates for numeric columns, even
// when they are zero, and omits them for non-numeric columns.
func (s Stats) MarshalJSON() ([]byte, error) {
	base := struct {
		Type         string `json:"type"`
		Count        int    `json:"count"`
		NonNullCount int    `json:"non_null_count"`
	}{s.Type, s.Count, s.NonNullCount}

	if !s.Numeric {
		return json.Marshal(base)
	}
	return json.Marshal(struct {
		Type         string  `json:"type"`
		Count        int     `json:"count"`
		NonNullCount int     `json:"non_null_count"`
		Min          float64 `json:"min"`
		Max          float64 `json:"max"`
		Mean         float64 `json:"mean"`
		Std          float64 `json:"std"`
	}{s.Type, s.Count, s.NonNullCount, s.Min, s.Max, s.Mean, s.Std})
}

// ColumnStats computes summary statistics for one column over the rows.
// Returns false when the column has no non-null samples. Std is the sample
// standard deviation (n-1); a single sample reports 0.
func ColumnStats(rows []wandb.HistoryRow, metric string) (Stats, bool) {
	stats := Stats{Count: len(rows)}

	var values []float64
	numeric := true
	for _, row := range rows {
		v, ok := row[metric]
		if !ok || v == nil {
			continue
		}
		stats.NonNullCount++
		switch val := v.(type) {
		case float64:
			if stats.Type == "" {
				stats.Type = "numeric"
			}
			values = append(values, val)
		case bool:
			if stats.Type == "" {
				stats.Type = "boolean"
			}
			numeric = false
		case string:
			if stats.Type == "" {
				stats.Type = "string"
			}
			numeric = false
		default:
			if stats.Type == "" {
				stats.Type = "other"
			}
			numeric = false
		}
	}
	if stats.NonNullCount == 0 {
		return stats, false
	}

	if numeric && len(values) > 0 {
		stats.Numeric = true
		stats.Min = values[0]
		stats.Max = values[0]
		var sum float64
		for _, v := range values {
			if v < stats.Min {
				stats.Min = v
			}
			if v > stats.Max {
				stats.Max = v
			}
			sum += v
		}
		stats.Mean = sum / float64(len(values))
		if len(values) > 1 {
			var sq float64
			for _, v := range values {
				d := v - stats.Mean
				sq += d * d
			}
			stats.Std = math.Sqrt(sq / float64(len(values)-1))
		}
	}
	return stats, true
}

// Group is a named set of metrics that share one output plot.
type Group struct {
	Name    string
	Metrics []string
}

// GroupByPrefix buckets metric names by the text before the first slash.
// Names without a slash form their own singleton group. Groups are returned
// sorted by name; metrics keep their input order within a group.
func GroupByPrefix(metrics []string) []Group {
	byName := make(map[string][]string)
	for _, m := range metrics {
		name := m
		if i := strings.Index(m, "/"); i >= 0 {
			name = m[:i]
		}
		byName[name] = append(byName[name], m)
	}
	groups := make([]Group, 0, len(byName))
	for name, ms := range byName {
		groups = append(groups, Group{Name: name, Metrics: ms})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })
	return groups
}

// SingletonGroups puts every metric in its own group, preserving order.
func SingletonGroups(metrics []string) []Group {
	groups := make([]Group, 0, len(metrics))
	for _, m := range metrics {
		groups = append(groups, Group{Name: m, Metrics: []string{m}})
	}
	return groups
}
