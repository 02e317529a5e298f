// Package config loads configuration from environment variables and an
// optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fruitsalade/elfinder/internal/connector"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string
	FilesPrefix string

	// Logging
	LogLevel  string
	LogFormat string

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string
	TLSKeyFile  string

	// Auth (optional; empty disables token checks)
	JWTSecret string

	ConfigFile string
	Connector  connector.Options
}

// fileConfig is the document shape of CONFIG_FILE.
type fileConfig struct {
	Connector connector.Overrides `yaml:"connector"`
}

// Load reads configuration with precedence defaults < CONFIG_FILE < environment.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		FilesPrefix: envOr("FILES_PREFIX", "/files/"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		TLSCertFile: envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:  envOr("TLS_KEY_FILE", ""),
		JWTSecret:   envOr("JWT_SECRET", ""),
		ConfigFile:  envOr("CONFIG_FILE", ""),
	}
	if !strings.HasPrefix(cfg.FilesPrefix, "/") {
		cfg.FilesPrefix = "/" + cfg.FilesPrefix
	}
	if !strings.HasSuffix(cfg.FilesPrefix, "/") {
		cfg.FilesPrefix += "/"
	}

	opts := connector.DefaultOptions()
	if cfg.ConfigFile != "" {
		ov, err := loadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		opts = opts.With(ov)
	}
	opts = opts.With(envOverrides())

	if opts.URL == "" && opts.FileURL {
		opts.URL = strings.TrimSuffix(cfg.FilesPrefix, "/")
	}
	if opts.Root == "" {
		return nil, fmt.Errorf("CONNECTOR_ROOT is required")
	}
	cfg.Connector = opts
	return cfg, nil
}

func loadFile(path string) (connector.Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return connector.Overrides{}, fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return connector.Overrides{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return fc.Connector, nil
}

func envOverrides() connector.Overrides {
	return connector.Overrides{
		Root:      envString("CONNECTOR_ROOT"),
		URL:       envString("CONNECTOR_URL"),
		RootAlias: envString("CONNECTOR_ROOT_ALIAS"),
		DotFiles:  envBoolPtr("CONNECTOR_DOT_FILES"),
		DirSize:   envBoolPtr("CONNECTOR_DIR_SIZE"),
		FileURL:   envBoolPtr("CONNECTOR_FILE_URL"),
		TmbDir:    envString("CONNECTOR_TMB_DIR"),
		TmbSize:   envIntPtr("CONNECTOR_TMB_SIZE"),
		TmbAtOnce: envIntPtr("CONNECTOR_TMB_AT_ONCE"),
		MaxDepth:  envIntPtr("CONNECTOR_MAX_DEPTH"),
		Debug:     envBoolPtr("CONNECTOR_DEBUG"),
		Disabled:  envList("CONNECTOR_DISABLED"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envString returns nil when key is unset so the lower layer wins. A set
// but empty value is an explicit override.
func envString(key string) *string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	return &v
}

func envBoolPtr(key string) *bool {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

func envIntPtr(key string) *int {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &i
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
