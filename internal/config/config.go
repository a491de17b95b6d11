// Package config loads imagegen settings from defaults, an optional TOML
// file and IMAGEGEN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. IMAGEGEN_PROCESSOR_TIMEOUT.
const EnvPrefix = "IMAGEGEN"

// Config holds application configuration.
type Config struct {
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Processor    ProcessorConfig    `mapstructure:"processor"`
	Coordinator  CoordinatorConfig  `mapstructure:"coordinator"`
	AWS          AWSConfig          `mapstructure:"aws"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// GeminiConfig selects the models behind the engines and the image client.
type GeminiConfig struct {
	ImageModel string `mapstructure:"image_model"`
	TextModel  string `mapstructure:"text_model"`
}

// OrchestratorConfig holds Stage Orchestrator settings.
type OrchestratorConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// ProcessorConfig holds Two-Stage Processor settings.
type ProcessorConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"`
	TargetProcessingTime time.Duration `mapstructure:"target_processing_time"`
	EnableOptimization   bool          `mapstructure:"enable_optimization"`
	SessionRetention     time.Duration `mapstructure:"session_retention"`
}

// CoordinatorConfig holds Multi-Image Coordinator settings.
type CoordinatorConfig struct {
	MaxConcurrentImages int  `mapstructure:"max_concurrent_images"`
	EnableParallel      bool `mapstructure:"enable_parallel"`
}

// AWSConfig names the optional AWS resources. Empty values disable them.
type AWSConfig struct {
	SessionsTable string `mapstructure:"sessions_table"`
	ImagesBucket  string `mapstructure:"images_bucket"`
}

// MetricsConfig controls EMF metric emission.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads configuration from file and env.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "imagegen"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Default returns the built-in configuration without reading files or env.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return c
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gemini.image_model", "gemini-2.5-flash-image")
	v.SetDefault("gemini.text_model", "gemini-2.5-flash")
	v.SetDefault("orchestrator.stage_timeout", 30*time.Second)
	v.SetDefault("processor.timeout", 120*time.Second)
	v.SetDefault("processor.target_processing_time", 45*time.Second)
	v.SetDefault("processor.enable_optimization", true)
	v.SetDefault("processor.session_retention", time.Hour)
	v.SetDefault("coordinator.max_concurrent_images", 3)
	v.SetDefault("coordinator.enable_parallel", true)
	v.SetDefault("aws.sessions_table", "")
	v.SetDefault("aws.images_bucket", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.namespace", "ImageOrchestrator")
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Orchestrator.StageTimeout <= 0 {
		errs = append(errs, fmt.Errorf("orchestrator.stage_timeout must be positive, got %s", c.Orchestrator.StageTimeout))
	}
	if c.Processor.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("processor.timeout must be positive, got %s", c.Processor.Timeout))
	}
	if c.Processor.TargetProcessingTime <= 0 {
		errs = append(errs, fmt.Errorf("processor.target_processing_time must be positive, got %s", c.Processor.TargetProcessingTime))
	}
	if c.Processor.SessionRetention <= 0 {
		errs = append(errs, fmt.Errorf("processor.session_retention must be positive, got %s", c.Processor.SessionRetention))
	}
	if c.Coordinator.MaxConcurrentImages <= 0 {
		errs = append(errs, fmt.Errorf("coordinator.max_concurrent_images must be positive, got %d", c.Coordinator.MaxConcurrentImages))
	}
	if strings.TrimSpace(c.Gemini.ImageModel) == "" {
		errs = append(errs, errors.New("gemini.image_model is required"))
	}
	if strings.TrimSpace(c.Gemini.TextModel) == "" {
		errs = append(errs, errors.New("gemini.text_model is required"))
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Namespace) == "" {
		errs = append(errs, errors.New("metrics.namespace is required when metrics are enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
