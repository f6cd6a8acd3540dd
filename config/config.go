// Package config 加载服务配置：YAML 文件 + 环境变量覆盖
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	BackendRemBG   = "rembg"
	BackendComfyUI = "comfyui"
	BackendNone    = "none"
)

type Config struct {
	Server       Server       `yaml:"server"`
	Log          Log          `yaml:"log"`
	Segmentation Segmentation `yaml:"segmentation"`
	Processing   Processing   `yaml:"processing"`
	Store        Store        `yaml:"store"`
}

type Server struct {
	Addr          string  `yaml:"addr"`
	MaxUploadMB   int     `yaml:"max_upload_mb"`
	RateLimit     float64 `yaml:"rate_limit"` // 每个客户端每秒请求数
	RateBurst     int     `yaml:"rate_burst"`
	MaxConcurrent int     `yaml:"max_concurrent"`
}

type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // console | json
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Segmentation struct {
	Backend      string        `yaml:"backend"`
	URL          string        `yaml:"url"`
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	WorkflowFile string        `yaml:"workflow_file"`
	HealthSpec   string        `yaml:"health_spec"`
}

type Processing struct {
	MaxSide     int    `yaml:"max_side"`
	JPEGQuality int    `yaml:"jpeg_quality"`
	FaceModel   string `yaml:"face_model"`
}

type Store struct {
	TTL       time.Duration `yaml:"ttl"`
	MaxMB     int64         `yaml:"max_mb"`
	StatsSpec string        `yaml:"stats_spec"`
}

func Default() *Config {
	return &Config{
		Server: Server{
			Addr:          ":8501",
			MaxUploadMB:   10,
			RateLimit:     1,
			RateBurst:     5,
			MaxConcurrent: 2,
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 2,
			MaxAgeDays: 28,
		},
		Segmentation: Segmentation{
			Backend:      BackendRemBG,
			URL:          "http://127.0.0.1:7000",
			Model:        "u2net",
			Timeout:      2 * time.Minute,
			PollInterval: time.Second,
			HealthSpec:   "@every 1m",
		},
		Processing: Processing{
			MaxSide:     2048,
			JPEGQuality: 95,
		},
		Store: Store{
			TTL:       30 * time.Minute,
			MaxMB:     512,
			StatsSpec: "@every 5m",
		},
	}
}

// Load 读取配置文件，文件不存在时使用默认值，最后应用环境变量
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"PROPHOTO_ADDR":                 &c.Server.Addr,
		"PROPHOTO_LOG_LEVEL":            &c.Log.Level,
		"PROPHOTO_SEGMENTATION_BACKEND": &c.Segmentation.Backend,
		"PROPHOTO_SEGMENTATION_URL":     &c.Segmentation.URL,
		"PROPHOTO_FACE_MODEL":           &c.Processing.FaceModel,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Segmentation.Backend {
	case BackendRemBG, BackendComfyUI:
		if c.Segmentation.URL == "" {
			errs = append(errs, fmt.Errorf("segmentation.url is required for backend %q", c.Segmentation.Backend))
		}
	case BackendNone:
	default:
		errs = append(errs, fmt.Errorf("unknown segmentation.backend %q", c.Segmentation.Backend))
	}

	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Server.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("server.max_upload_mb must be positive"))
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst <= 0 {
		errs = append(errs, errors.New("server.rate_limit and server.rate_burst must be positive"))
	}
	if c.Server.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("server.max_concurrent must be positive"))
	}
	if c.Processing.MaxSide <= 0 {
		errs = append(errs, errors.New("processing.max_side must be positive"))
	}
	if c.Processing.JPEGQuality < 1 || c.Processing.JPEGQuality > 100 {
		errs = append(errs, errors.New("processing.jpeg_quality must be in [1,100]"))
	}
	if c.Segmentation.PollInterval <= 0 || c.Segmentation.Timeout <= 0 {
		errs = append(errs, errors.New("segmentation.timeout and segmentation.poll_interval must be positive"))
	}
	if c.Store.TTL <= 0 || c.Store.MaxMB <= 0 {
		errs = append(errs, errors.New("store.ttl and store.max_mb must be positive"))
	}

	for name, spec := range map[string]string{
		"segmentation.health_spec": c.Segmentation.HealthSpec,
		"store.stats_spec":         c.Store.StatsSpec,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	return errors.Join(errs...)
}

func (s Server) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}
