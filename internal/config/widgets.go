package config

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// WidgetConfig describes the dashboard's visualization widgets: how many
// points each live window retains and the default fetch limits. The file
// is optional; absent or unreadable files yield the stock layout.
type WidgetConfig struct {
	Voltage      WidgetSettings `yaml:"voltage"`
	PowerQuality WidgetSettings `yaml:"power_quality"`
	Faults       WidgetSettings `yaml:"faults"`
}

// WidgetSettings tunes one widget.
type WidgetSettings struct {
	Window       int `yaml:"window"`        // live ring-buffer cap
	DefaultLimit int `yaml:"default_limit"` // polled fetch limit
}

// DefaultWidgetConfig returns the stock widget layout.
func DefaultWidgetConfig() *WidgetConfig {
	return &WidgetConfig{
		Voltage:      WidgetSettings{Window: 30, DefaultLimit: 30},
		PowerQuality: WidgetSettings{Window: 20, DefaultLimit: 20},
		Faults:       WidgetSettings{Window: 50, DefaultLimit: 10},
	}
}

// LoadWidgetConfig reads the YAML widget layout from filePath, falling
// back to defaults when the file is missing.
func LoadWidgetConfig(filePath string) (*WidgetConfig, error) {
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultWidgetConfig(), nil
		}
		return nil, err
	}
	defer file.Close()

	return ParseWidgetConfig(file)
}

// ParseWidgetConfig parses the widget layout from an io.Reader. Missing
// values inherit the defaults.
func ParseWidgetConfig(r io.Reader) (*WidgetConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg := DefaultWidgetConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// yaml.Unmarshal zeroes absent nested fields; restore defaults.
	defaults := DefaultWidgetConfig()
	fill := func(w *WidgetSettings, d WidgetSettings) {
		if w.Window <= 0 {
			w.Window = d.Window
		}
		if w.DefaultLimit <= 0 {
			w.DefaultLimit = d.DefaultLimit
		}
	}
	fill(&cfg.Voltage, defaults.Voltage)
	fill(&cfg.PowerQuality, defaults.PowerQuality)
	fill(&cfg.Faults, defaults.Faults)

	return cfg, nil
}
