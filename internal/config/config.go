package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/vjranagit/editmetrics/pkg/axis"
	"github.com/vjranagit/editmetrics/pkg/pipeline"
	"github.com/vjranagit/editmetrics/pkg/report"
	"github.com/vjranagit/editmetrics/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" json:"server"`
	Storage      StorageConfig      `yaml:"storage" json:"storage"`
	Pipeline     PipelineConfig     `yaml:"pipeline" json:"pipeline"`
	Axes         []AxisConfig       `yaml:"axes" json:"axes"`
	Interleaving InterleavingConfig `yaml:"interleaving" json:"interleaving"`
	Heap         HeapConfig         `yaml:"heap" json:"heap"`
	// Styles overrides entries of the default metric display table.
	Styles  report.StyleTable `yaml:"styles,omitempty" json:"styles,omitempty"`
	Logging LoggingConfig     `yaml:"logging" json:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr" json:"listen_addr"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize  int           `yaml:"cache_size" json:"cache_size"`
	CacheTTL   time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// StorageConfig holds result archive configuration
type StorageConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	Path             string `yaml:"path" json:"path"`
	RetentionDays    int    `yaml:"retention_days" json:"retention_days"`
	CompressionLevel int    `yaml:"compression_level" json:"compression_level"`
	InMemory         bool   `yaml:"in_memory" json:"in_memory"`
}

// PipelineConfig holds pipeline behaviour
type PipelineConfig struct {
	SkipMalformed bool `yaml:"skip_malformed" json:"skip_malformed"`
	Workers       int  `yaml:"workers" json:"workers"`
}

// AxisConfig describes one axis run. Label, Pattern, Extension and Metrics
// default to those of the built-in axis with the same name.
type AxisConfig struct {
	Name      string   `yaml:"name" json:"name"`
	Dir       string   `yaml:"dir" json:"dir"`
	Variant   string   `yaml:"variant,omitempty" json:"variant,omitempty"`
	Label     string   `yaml:"label,omitempty" json:"label,omitempty"`
	Pattern   string   `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Extension string   `yaml:"extension,omitempty" json:"extension,omitempty"`
	Metrics   []string `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

// InterleavingConfig holds the document comparison inputs
type InterleavingConfig struct {
	Reference string `yaml:"reference" json:"reference"`
	Documents string `yaml:"documents" json:"documents"`
	Output    string `yaml:"output" json:"output"`
}

// VariantConfig names one algorithm variant's edit-axis directory
type VariantConfig struct {
	Name string `yaml:"name" json:"name"`
	Dir  string `yaml:"dir" json:"dir"`
}

// HeapConfig holds the heap-size comparison inputs
type HeapConfig struct {
	Variants      []VariantConfig `yaml:"variants" json:"variants"`
	CommitSizes   string          `yaml:"commit_sizes" json:"commit_sizes"`
	ReferenceName string          `yaml:"reference_name" json:"reference_name"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Encoding string `yaml:"encoding" json:"encoding"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":9090",
			Timeout:    30 * time.Second,
			CacheSize:  64,
			CacheTTL:   5 * time.Minute,
		},
		Storage: StorageConfig{
			Enabled:          false,
			Path:             "./data",
			RetentionDays:    30,
			CompressionLevel: 3,
		},
		Pipeline: PipelineConfig{
			SkipMalformed: false,
			Workers:       0,
		},
		Axes: []AxisConfig{
			{Name: axis.Commit.Name, Dir: filepath.Join("debug", "metadata", "no_byzantine_nodes")},
			{Name: axis.Byzantine.Name, Dir: filepath.Join("debug", "metadata", "byzantine_nodes")},
		},
		Interleaving: InterleavingConfig{
			Reference: filepath.Join("debug", "README_versions", "README_f9993d0c.md"),
			Documents: filepath.Join("debug", "documents", "logoot"),
			Output:    "diff_comparison.json",
		},
		Heap: HeapConfig{
			Variants: []VariantConfig{
				{Name: "fugue", Dir: filepath.Join("debug", "metadata", "individual_peer", "fugue")},
				{Name: "syncordian", Dir: filepath.Join("debug", "metadata", "individual_peer", "syncordian")},
				{Name: "logoot", Dir: filepath.Join("debug", "metadata", "individual_peer", "logoot")},
			},
			CommitSizes:   filepath.Join("debug", "README_versions", "commit_sizes_with_edits.json"),
			ReferenceName: "Original README",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	c.Server.ListenAddr = getEnv("EDITMETRICS_LISTEN_ADDR", c.Server.ListenAddr)
	c.Storage.Path = getEnv("EDITMETRICS_STORAGE_PATH", c.Storage.Path)
	c.Storage.Enabled = getEnvBool("EDITMETRICS_STORAGE_ENABLED", c.Storage.Enabled)
	c.Storage.RetentionDays = getEnvInt("EDITMETRICS_RETENTION_DAYS", c.Storage.RetentionDays)
	c.Storage.CompressionLevel = getEnvInt("EDITMETRICS_COMPRESSION_LEVEL", c.Storage.CompressionLevel)
	c.Pipeline.SkipMalformed = getEnvBool("EDITMETRICS_SKIP_MALFORMED", c.Pipeline.SkipMalformed)
	c.Pipeline.Workers = getEnvInt("EDITMETRICS_WORKERS", c.Pipeline.Workers)
	c.Logging.Level = getEnv("EDITMETRICS_LOG_LEVEL", c.Logging.Level)
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		RetentionDays:    c.Storage.RetentionDays,
		CompressionLevel: c.Storage.CompressionLevel,
		InMemory:         c.Storage.InMemory,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Storage.Enabled && !c.Storage.InMemory && c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if _, err := c.AxisRequests(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Heap.Variants))
	for _, v := range c.Heap.Variants {
		if v.Name == "" || v.Dir == "" {
			return fmt.Errorf("heap variant needs a name and a directory")
		}
		if seen[v.Name] {
			return fmt.Errorf("heap variant %q listed twice", v.Name)
		}
		seen[v.Name] = true
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	return nil
}

// Axis resolves one axis definition against the built-in axes
func (ac AxisConfig) Axis() (axis.Axis, error) {
	base, builtin := axis.Lookup(ac.Name)
	if !builtin && ac.Pattern == "" {
		return axis.Axis{}, fmt.Errorf("axis %q: pattern is required for a custom axis", ac.Name)
	}
	if !builtin && len(ac.Metrics) == 0 {
		return axis.Axis{}, fmt.Errorf("axis %q: metrics are required for a custom axis", ac.Name)
	}

	label, pattern, ext, metrics := base.Label, base.Pattern(), base.Extension, base.Metrics
	if ac.Label != "" {
		label = ac.Label
	}
	if ac.Pattern != "" {
		pattern = ac.Pattern
	}
	if ac.Extension != "" {
		ext = ac.Extension
	}
	if len(ac.Metrics) > 0 {
		metrics = ac.Metrics
	}
	if label == "" {
		label = ac.Name
	}

	a, err := axis.New(ac.Name, label, pattern, ext, metrics...)
	if err != nil {
		return axis.Axis{}, fmt.Errorf("axis %q: %w", ac.Name, err)
	}
	return a, nil
}

// AxisRequests converts the configured axes into pipeline requests
func (c *Config) AxisRequests() ([]pipeline.AxisRequest, error) {
	reqs := make([]pipeline.AxisRequest, 0, len(c.Axes))
	for _, ac := range c.Axes {
		if ac.Dir == "" {
			return nil, fmt.Errorf("axis %q: directory is required", ac.Name)
		}
		a, err := ac.Axis()
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, pipeline.AxisRequest{Axis: a, Dir: ac.Dir, Variant: ac.Variant})
	}
	return reqs, nil
}

// HeapRequest converts the heap section into a pipeline request
func (c *Config) HeapRequest() pipeline.HeapRequest {
	req := pipeline.HeapRequest{
		CommitSizes:   c.Heap.CommitSizes,
		ReferenceName: c.Heap.ReferenceName,
	}
	for _, v := range c.Heap.Variants {
		req.Variants = append(req.Variants, pipeline.VariantDir{Name: v.Name, Dir: v.Dir})
	}
	return req
}

// StyleTable returns the default display table with configured overrides
func (c *Config) StyleTable() report.StyleTable {
	return report.DefaultStyles().Merge(c.Styles)
}

// ZapConfig builds the logger configuration. Verbose forces debug level.
func (c *Config) ZapConfig(verbose bool) zap.Config {
	zc := zap.NewProductionConfig()
	if c.Logging.Encoding != "" {
		zc.Encoding = c.Logging.Encoding
	}
	if c.Logging.Encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
