package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the YAML configuration file layout.
type File struct {
	Persona        string   `yaml:"persona"`
	Designation    string   `yaml:"designation"`
	Timezone       string   `yaml:"timezone"`
	AllowedNumbers []string `yaml:"allowed_numbers"`

	History struct {
		Limit         int           `yaml:"limit"`
		TokenBudget   int           `yaml:"token_budget"`
		Retention     time.Duration `yaml:"retention"`
		PruneSchedule string        `yaml:"prune_schedule"`
	} `yaml:"history"`

	Confirmation struct {
		DuplicateWindow time.Duration `yaml:"duplicate_window"`
		PendingTTL      time.Duration `yaml:"pending_ttl"`
	} `yaml:"confirmation"`

	OpenAI struct {
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"openai"`
}

// LoadFile reads the YAML file at path and overlays its non-empty values.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.applyFile(f)
	return nil
}

func (c *Config) applyFile(f File) {
	overlay(&c.Persona, f.Persona)
	overlay(&c.Designation, f.Designation)
	overlay(&c.Timezone, f.Timezone)
	if len(f.AllowedNumbers) > 0 {
		c.AllowedNumbers = f.AllowedNumbers
	}

	overlay(&c.HistoryLimit, f.History.Limit)
	overlay(&c.TokenBudget, f.History.TokenBudget)
	overlay(&c.HistoryRetention, f.History.Retention)
	overlay(&c.PruneSchedule, f.History.PruneSchedule)

	overlay(&c.DuplicateWindow, f.Confirmation.DuplicateWindow)
	overlay(&c.PendingTTL, f.Confirmation.PendingTTL)

	overlay(&c.OpenAI.Model, f.OpenAI.Model)
	overlay(&c.OpenAI.BaseURL, f.OpenAI.BaseURL)
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
