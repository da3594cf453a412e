// Package config defines the YAML configuration of the embedreduce server.
//
// Values are resolved in order: built-in defaults, the YAML file (with
// ${VAR} references expanded from the environment), listener environment
// variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Error status policies for POST /pca.
const (
	// StatusStrict answers failures with 4xx/5xx codes.
	StatusStrict = "strict"
	// StatusLenient answers every handled failure with 200 and an error body.
	StatusLenient = "lenient"
)

// Config is the top-level structure of the configuration file.
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	CORS    CORSConfig    `yaml:"cors"`
	Reduce  ReduceConfig  `yaml:"reduce"`
	Log     LogConfig     `yaml:"log"`
	MCP     MCPConfig     `yaml:"mcp"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// CORSConfig lists what cross-origin callers may do. "*" allows everything.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type ReduceConfig struct {
	DefaultComponents int    `yaml:"default_components"`
	MaxConcurrent     int    `yaml:"max_concurrent"`
	ErrorStatus       string `yaml:"error_status"` // "strict" or "lenient"
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// AllMethods is what "*" expands to in cors.allowed_methods.
var AllMethods = []string{
	http.MethodHead,
	http.MethodGet,
	http.MethodPost,
	http.MethodPut,
	http.MethodPatch,
	http.MethodDelete,
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    64 << 20,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"*"},
			AllowedHeaders: []string{"*"},
		},
		Reduce: ReduceConfig{
			DefaultComponents: 256,
			MaxConcurrent:     runtime.NumCPU(),
			ErrorStatus:       StatusStrict,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		MCP: MCPConfig{
			Enabled: true,
			Path:    "/mcp",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// listener overrides from the environment. An empty path skips the file.
// Decoding is strict so a misspelled key is an error instead of a silent default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read configuration file '%s': %w", path, err)
		}

		expanded := os.ExpandEnv(string(data))

		decoder := yaml.NewDecoder(strings.NewReader(expanded))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments set the listener without a file:
// EMBEDREDUCE_ADDR wins, otherwise HOST and PORT are combined.
func (c *Config) applyEnv() {
	if addr := os.Getenv("EMBEDREDUCE_ADDR"); addr != "" {
		c.HTTP.Addr = addr
		return
	}
	host, port := os.Getenv("HOST"), os.Getenv("PORT")
	if host == "" && port == "" {
		return
	}
	curHost, curPort, err := net.SplitHostPort(c.HTTP.Addr)
	if err != nil {
		curHost, curPort = "", "8000"
	}
	if host == "" {
		host = curHost
	}
	if port == "" {
		port = curPort
	}
	c.HTTP.Addr = net.JoinHostPort(host, port)
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr must not be empty")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be positive, got %d", c.HTTP.MaxBodyBytes)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("http.shutdown_timeout must be positive, got %s", c.HTTP.ShutdownTimeout)
	}
	if c.Reduce.DefaultComponents < 1 {
		return fmt.Errorf("reduce.default_components must be positive, got %d", c.Reduce.DefaultComponents)
	}
	if c.Reduce.MaxConcurrent < 1 {
		return fmt.Errorf("reduce.max_concurrent must be positive, got %d", c.Reduce.MaxConcurrent)
	}
	switch c.Reduce.ErrorStatus {
	case StatusStrict, StatusLenient:
	default:
		return fmt.Errorf("reduce.error_status must be %q or %q, got %q", StatusStrict, StatusLenient, c.Reduce.ErrorStatus)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", c.Log.Format)
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		return fmt.Errorf("mcp.path must start with '/', got %q", c.MCP.Path)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	return nil
}

// CORSMethods expands "*" into AllMethods.
func (c CORSConfig) CORSMethods() []string {
	for _, m := range c.AllowedMethods {
		if m == "*" {
			return AllMethods
		}
	}
	return c.AllowedMethods
}

// SlogLevel parses the configured level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// NewLogger builds the process logger. Callers install it with slog.SetDefault.
func (l LogConfig) NewLogger() (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}
