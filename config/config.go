// Package config holds the overlay layout the GUI renders onto the
// background: text elements and metric modules with their fonts,
// colors and screen positions. The file format is plain JSON so other
// front-ends can edit it.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
)

type Config struct {
	data map[string]any
}

func font(size int) map[string]any {
	return map[string]any{
		"family": "DejaVu Sans",
		"size":   size,
		"style":  "bold",
	}
}

func textElement(x, y, size int, color string, enabled bool) map[string]any {
	return map[string]any{
		"x":       x,
		"y":       y,
		"font":    font(size),
		"color":   color,
		"enabled": enabled,
	}
}

func module(metric string, x, y int, color string) map[string]any {
	return map[string]any{
		"metric":  metric,
		"enabled": true,
		"font":    font(20),
		"color":   color,
		"x":       x,
		"y":       y,
	}
}

// Defaults returns a config populated with the stock layout: clock,
// date, optional custom text, CPU/GPU labels and the six metric
// modules M1..M6.
func Defaults() *Config {
	data := map[string]any{}

	timeEl := textElement(60, 5, 38, "#FFFFFF", true)
	timeEl["format"] = "12h"
	data["time"] = timeEl

	dateEl := textElement(85, 60, 24, "#CCCCCC", true)
	dateEl["format"] = "%d-%m-%Y"
	data["date"] = dateEl

	custom := textElement(90, 90, 38, "#00FF00", false)
	custom["text"] = "LINUX"
	data["custom"] = custom

	cpuLabel := textElement(15, 140, 20, "#FF6B35", true)
	cpuLabel["text"] = "CPU"
	data["cpu_label"] = cpuLabel

	gpuLabel := textElement(15, 180, 20, "#35A7FF", true)
	gpuLabel["text"] = "GPU"
	data["gpu_label"] = gpuLabel

	data["M1"] = module("cpu_temp", 70, 140, "#FF6B35")
	data["M2"] = module("cpu_percent", 135, 140, "#FF6B35")
	data["M3"] = module("cpu_freq", 195, 140, "#FF6B35")
	data["M4"] = module("gpu_temp", 70, 180, "#35A7FF")
	data["M5"] = module("gpu_usage", 135, 180, "#35A7FF")
	data["M6"] = module("gpu_clock", 195, 180, "#35A7FF")

	return &Config{data: data}
}

// Load builds the defaults and overlays the top-level keys found in
// the file at path. A missing file is not an error; the defaults
// stand.
func Load(path string) (*Config, error) {
	c := Defaults()

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, err
	}

	var loaded map[string]any
	if err := json.Unmarshal(b, &loaded); err != nil {
		return nil, err
	}
	for k, v := range loaded {
		c.data[k] = v
	}
	return c, nil
}

// Save writes the config as indented JSON.
func (c *Config) Save(path string) error {
	b, err := json.MarshalIndent(c.data, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Get looks up a dotted key ("time.font.size"). It returns nil when
// any path segment is missing.
func (c *Config) Get(key string) any {
	var current any = c.data
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[part]
		if !ok {
			return nil
		}
	}
	return current
}

// Set stores a value under a dotted key, creating intermediate
// objects as needed and overwriting non-object intermediates.
func (c *Config) Set(key string, value any) {
	parts := strings.Split(key, ".")
	current := c.data
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = value
			return
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[part] = next
		}
		current = next
	}
}
