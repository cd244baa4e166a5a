// Package config provides XML-based configuration management for the
// dashboard gateway.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"GridDashboard"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Upstream backend configuration
	Upstream UpstreamConfig `xml:"Upstream"`

	// Session configuration
	Session SessionConfig `xml:"Session"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// UpstreamConfig locates the external grid-monitoring backend
type UpstreamConfig struct {
	BaseURL        string `xml:"BaseURL"`     // REST root, including the /api prefix
	GraphQLURL     string `xml:"GraphQLURL"`  // single POST endpoint
	StreamURL      string `xml:"StreamURL"`   // SSE endpoint
	StatsPath      string `xml:"StatsPath"`   // "/sensors/stats" or "/stats", per deployment
	TimeoutSeconds int    `xml:"TimeoutSeconds"`
	DemoMode       bool   `xml:"DemoMode"` // accept the demo credential without an upstream
}

// SessionConfig contains dashboard session settings
type SessionConfig struct {
	TimeoutMinutes         int `xml:"TimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// StorageConfig contains local state settings
type StorageConfig struct {
	DataDirectory   string `xml:"DataDirectory"`
	PreferencesFile string `xml:"PreferencesFile"`
	WidgetsFile     string `xml:"WidgetsFile"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
	NetworkLogCapacity   int    `xml:"NetworkLogCapacity"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8090,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "4M",
		},
		Upstream: UpstreamConfig{
			BaseURL:        "http://localhost:8000/api",
			GraphQLURL:     "http://localhost:8000/graphql",
			StreamURL:      "http://localhost:8000/api/stream",
			StatsPath:      "/sensors/stats",
			TimeoutSeconds: 30,
			DemoMode:       true,
		},
		Session: SessionConfig{
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
		},
		Storage: StorageConfig{
			DataDirectory:   "./data",
			PreferencesFile: "./data/preferences.json",
			WidgetsFile:     "./widgets.yaml",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			EnableRequestLogging: true,
			NetworkLogCapacity:   100,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &AppConfig{}
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Grid Monitor Dashboard Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// GRID_API_URL override
	if base := os.Getenv("GRID_API_URL"); base != "" {
		c.Upstream.BaseURL = base
	}

	// GRID_GRAPHQL_URL override
	if gql := os.Getenv("GRID_GRAPHQL_URL"); gql != "" {
		c.Upstream.GraphQLURL = gql
	}

	// GRID_STREAM_URL override
	if stream := os.Getenv("GRID_STREAM_URL"); stream != "" {
		c.Upstream.StreamURL = stream
	}

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.PreferencesFile) {
		c.Storage.PreferencesFile = filepath.Join(configDir, c.Storage.PreferencesFile)
	}
	if !filepath.IsAbs(c.Storage.WidgetsFile) {
		c.Storage.WidgetsFile = filepath.Join(configDir, c.Storage.WidgetsFile)
	}
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
