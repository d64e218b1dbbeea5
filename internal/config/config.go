package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	OutputDir string `json:"output_dir"`
	LogLevel  string `json:"log_level"`
	API       struct {
		BaseURL        string `json:"base_url"`
		APIKey         string `json:"api_key"`
		Entity         string `json:"entity"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"api"`
	Fetch struct {
		Samples       int    `json:"samples"`
		PageSize      int    `json:"page_size"`
		MaxConcurrent int    `json:"max_concurrent"`
		CachePath     string `json:"cache_path"`
	} `json:"fetch"`
	Plot struct {
		WidthInches   float64 `json:"width_inches"`
		HeightInches  float64 `json:"height_inches"`
		DPI           int     `json:"dpi"`
		EMAWeight     float64 `json:"ema_weight"`
		ViewportScale int     `json:"viewport_scale"`
	} `json:"plot"`
}

func defaults() *Config {
	cfg := &Config{
		OutputDir: "wandb_plots",
		LogLevel:  "info",
	}
	cfg.API.BaseURL = "https://api.wandb.ai"
	cfg.API.TimeoutSeconds = 30
	cfg.Fetch.Samples = 500
	cfg.Fetch.PageSize = 1000
	cfg.Fetch.MaxConcurrent = 4
	cfg.Fetch.CachePath = filepath.Join(os.Getenv("HOME"), ".wandbplot", "history.db")
	cfg.Plot.WidthInches = 10
	cfg.Plot.HeightInches = 6
	cfg.Plot.DPI = 150
	cfg.Plot.EMAWeight = 0.99
	cfg.Plot.ViewportScale = 1000
	return cfg
}

// Load reads the config file at path, writing the defaults first if it does
// not exist. Environment variables take highest precedence.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if apiKey := os.Getenv("WANDB_API_KEY"); apiKey != "" {
		cfg.API.APIKey = apiKey
	}
	if baseURL := os.Getenv("WANDB_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if entity := os.Getenv("WANDB_ENTITY"); entity != "" {
		cfg.API.Entity = entity
	}
	if level := os.Getenv("WANDB_PLOT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return cfg, nil
}

// Save writes the config to path using atomic write (temp file + rename),
// creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap converts the config into a nested map via its JSON representation.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns the config as a flat dot-keyed map, with secrets masked
// when mask is set.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config file and returns the value at the dot-separated
// key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := ListValues(cfg, false)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates the dot-separated key in the config file. The raw value
// is stored as JSON when it parses as JSON (numbers, booleans), otherwise as
// a string. Unknown keys are allowed and preserved.
func SetValue(path, key, raw string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		value = raw
	}

	flat := Flatten(m)
	flat[key] = value
	nested := Unflatten(flat)

	out, err := json.MarshalIndent(nested, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	out = append(out, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
