package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultModelPath = "efficientnet-lite4-11-int8.onnx"
	DefaultLabelsURL = "https://huggingface.co/datasets/huggingface/label-files/raw/main/imagenet-1k-id2label.json"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Model struct {
		Path        string `yaml:"path"`
		LibraryPath string `yaml:"library_path"`
		Threads     int    `yaml:"threads"`
		Resample    string `yaml:"resample"`
	} `yaml:"model"`

	Labels struct {
		Path    string        `yaml:"path"`
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"labels"`

	Fetch struct {
		Timeout      time.Duration `yaml:"timeout"`
		MaxBytes     int64         `yaml:"max_bytes"`
		MaxRedirects int           `yaml:"max_redirects"`
	} `yaml:"fetch"`

	Static struct {
		Dir string `yaml:"dir"`
	} `yaml:"static"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	GPU struct {
		Command string `yaml:"command"`
	} `yaml:"gpu"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Model.Path = DefaultModelPath
	cfg.Model.Resample = "bicubic"
	cfg.Labels.URL = DefaultLabelsURL
	cfg.Labels.Timeout = 10 * time.Second
	cfg.Fetch.Timeout = 30 * time.Second
	cfg.Fetch.MaxBytes = 20 << 20
	cfg.Fetch.MaxRedirects = 3
	cfg.Static.Dir = "static"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.GPU.Command = "nvidia-smi"
	return cfg
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.LibraryPath = getEnv("ONNXRUNTIME_LIB", c.Model.LibraryPath)
	c.Model.Resample = getEnv("RESAMPLE", c.Model.Resample)
	c.Labels.Path = getEnv("LABELS_PATH", c.Labels.Path)
	c.Labels.URL = getEnv("LABELS_URL", c.Labels.URL)
	c.Static.Dir = getEnv("STATIC_DIR", c.Static.Dir)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.GPU.Command = getEnv("GPU_COMMAND", c.GPU.Command)

	var err error
	if c.Model.Threads, err = getEnvInt("ORT_THREADS", c.Model.Threads); err != nil {
		return err
	}
	if c.Fetch.Timeout, err = getEnvDuration("FETCH_TIMEOUT", c.Fetch.Timeout); err != nil {
		return err
	}
	if c.Labels.Timeout, err = getEnvDuration("LABELS_TIMEOUT", c.Labels.Timeout); err != nil {
		return err
	}
	maxBytes, err := getEnvInt("FETCH_MAX_BYTES", int(c.Fetch.MaxBytes))
	if err != nil {
		return err
	}
	c.Fetch.MaxBytes = int64(maxBytes)
	return nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port must not be empty")
	}
	if c.Model.Path == "" {
		return errors.New("model path must not be empty")
	}
	if c.Model.Threads < 0 {
		return fmt.Errorf("model threads must be >= 0, got %d", c.Model.Threads)
	}
	switch c.Model.Resample {
	case "nearest", "bilinear", "bicubic", "lanczos":
	default:
		return fmt.Errorf("unknown resample filter %q", c.Model.Resample)
	}
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Fetch.Timeout)
	}
	if c.Fetch.MaxBytes <= 0 {
		return fmt.Errorf("fetch max_bytes must be positive, got %d", c.Fetch.MaxBytes)
	}
	if c.Fetch.MaxRedirects < 0 {
		return fmt.Errorf("fetch max_redirects must be >= 0, got %d", c.Fetch.MaxRedirects)
	}
	if c.Labels.Timeout <= 0 {
		return fmt.Errorf("labels timeout must be positive, got %s", c.Labels.Timeout)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return i, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
