package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for mediadex.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Remote     RemoteConfig     `toml:"remote"`
	Cache      CacheConfig      `toml:"cache"`
	Vector     VectorConfig     `toml:"vector"`
	Captioner  ServiceConfig    `toml:"captioner"`
	Embedder   ServiceConfig    `toml:"embedder"`
	Processing ProcessingConfig `toml:"processing"`
	Search     SearchConfig     `toml:"search"`
	Server     ServerConfig     `toml:"server"`
}

// RemoteConfig represents configuration for the remote file source.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "s3" or "memory"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// CacheConfig holds settings for the metadata cache database.
type CacheConfig struct {
	Path string `toml:"path"` // SQLite file path, or ":memory:"
}

// VectorConfig holds settings for the vector database.
type VectorConfig struct {
	Path       string `toml:"path"`       // SQLite file path, or ":memory:"
	Dimensions int    `toml:"dimensions"` // Expected embedding length; writes with any other length are rejected
}

// ServiceConfig holds the endpoint for an HTTP collaborator
// (captioning or embedding service).
type ServiceConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ProcessingConfig holds settings for the processing pipeline.
type ProcessingConfig struct {
	BatchSize            int `toml:"batch_size"`
	Concurrency          int `toml:"concurrency"` // Worker pool bound within a batch
	MaxFramesPerVideo    int `toml:"max_frames_per_video"`
	FrameIntervalSeconds int `toml:"frame_interval_seconds"`
}

// SearchConfig holds settings for the retrieval engine. The distance
// threshold is deliberately a config value, not a constant.
type SearchConfig struct {
	DistanceThreshold float64 `toml:"distance_threshold"`
	CaptionWeight     float64 `toml:"caption_weight"`
	NameWeight        float64 `toml:"name_weight"`
	PathWeight        float64 `toml:"path_weight"`
	DefaultLimit      int     `toml:"default_limit"`
}

// ServerConfig holds settings for the HTTP API.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// NewConfig creates a new Config with the provided base directory and
// defaults matching a typical deployment.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Remote:  RemoteConfig{Type: "s3"},
		Cache:   CacheConfig{Path: filepath.Join(baseDir, "cache.db")},
		Vector: VectorConfig{
			Path:       filepath.Join(baseDir, "vectors.db"),
			Dimensions: 512,
		},
		Captioner: ServiceConfig{TimeoutSeconds: 120},
		Embedder:  ServiceConfig{TimeoutSeconds: 30},
		Processing: ProcessingConfig{
			BatchSize:            25,
			Concurrency:          4,
			MaxFramesPerVideo:    5,
			FrameIntervalSeconds: 10,
		},
		Search: SearchConfig{
			DistanceThreshold: 0.8,
			CaptionWeight:     0.6,
			NameWeight:        0.3,
			PathWeight:        0.1,
			DefaultLimit:      10,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
