package plot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset is a reusable plot configuration loaded from a YAML file. Explicit
// command-line flags still win over preset values.
type Preset struct {
	Metrics       []string      `yaml:"metrics"`
	Groups        []PresetGroup `yaml:"groups"`
	EMAWeight     *float64      `yaml:"ema_weight"`
	ViewportScale *int          `yaml:"viewport_scale"`
	FullRes       bool          `yaml:"full_res"`
}

// PresetGroup is a named set of metrics drawn on one chart.
type PresetGroup struct {
	Name    string   `yaml:"name"`
	Metrics []string `yaml:"metrics"`
}

// LoadPreset reads and validates a preset file.
func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	if len(p.Metrics) == 0 && len(p.Groups) == 0 {
		return nil, fmt.Errorf("preset %s names no metrics or groups", path)
	}
	for _, g := range p.Groups {
		if g.Name == "" {
			return nil, fmt.Errorf("preset %s has a group without a name", path)
		}
		if len(g.Metrics) == 0 {
			return nil, fmt.Errorf("preset group %q has no metrics", g.Name)
		}
	}
	if p.EMAWeight != nil && (*p.EMAWeight < 0 || *p.EMAWeight >= 1) {
		return nil, fmt.Errorf("preset ema_weight %v out of range [0, 1)", *p.EMAWeight)
	}
	return &p, nil
}

// AllMetrics returns every metric the preset references, in order, without
// duplicates.
func (p *Preset) AllMetrics() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(m string) {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	for _, m := range p.Metrics {
		add(m)
	}
	for _, g := range p.Groups {
		for _, m := range g.Metrics {
			add(m)
		}
	}
	return out
}
