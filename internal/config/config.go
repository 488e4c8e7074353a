package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a complete posepipe run configuration
type Config struct {
	Input    string `yaml:"input"`
	Format   string `yaml:"format"` // ffmpeg demuxer for devices, e.g. v4l2
	Output   string `yaml:"output"`
	Database string `yaml:"database"` // optional run ledger connection string
	LogLevel string `yaml:"log_level"`

	Pipeline  PipelineConfig `yaml:"pipeline"`
	Transform string         `yaml:"transform"` // built-in name or "pose"
	Pose      PoseConfig     `yaml:"pose"`
}

// PipelineConfig tunes the worker pool and reassembly
type PipelineConfig struct {
	Workers        int           `yaml:"workers"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`  // worker idle timeout on the input queue
	DrainTimeout   time.Duration `yaml:"drain_timeout"` // reassembler idle timeout on the output queue
	FailurePolicy  string        `yaml:"failure_policy"`
	MaxAttempts    int           `yaml:"max_attempts"`
	OutputCapacity int           `yaml:"output_queue_capacity"` // 0 = unbounded
	FrameRate      float64       `yaml:"frame_rate"`            // 0 = use the source's rate
	Every          int           `yaml:"every"`                 // keep one frame in N
	Limit          int           `yaml:"limit"`                 // 0 = all frames
	Strict         bool          `yaml:"strict"`
}

// PoseConfig launches the external pose engine
type PoseConfig struct {
	Python      string        `yaml:"python"`
	Script      string        `yaml:"script"`
	Model       string        `yaml:"model"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Transform: "identity",
		Pipeline: PipelineConfig{
			Workers:       4,
			PollTimeout:   time.Second,
			DrainTimeout:  9 * time.Second,
			FailurePolicy: "degrade",
			MaxAttempts:   1,
			Every:         1,
		},
		Pose: PoseConfig{
			Python:      "python3",
			Script:      "python/pose_worker.py",
			Model:       "mediapipe",
			ReadTimeout: 30 * time.Second,
		},
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges. It is separate from Load so flags can be applied first.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Input == "" {
		errs = append(errs, errors.New("input is required"))
	}
	if cfg.Output == "" {
		errs = append(errs, errors.New("output is required"))
	}
	p := cfg.Pipeline
	if p.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be >= 1, got %d", p.Workers))
	}
	if p.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("poll_timeout must be positive, got %s", p.PollTimeout))
	}
	if p.DrainTimeout <= 0 {
		errs = append(errs, fmt.Errorf("drain_timeout must be positive, got %s", p.DrainTimeout))
	}
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be >= 1, got %d", p.MaxAttempts))
	}
	if p.OutputCapacity < 0 {
		errs = append(errs, fmt.Errorf("output_queue_capacity must be >= 0, got %d", p.OutputCapacity))
	}
	if p.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("frame_rate must be >= 0, got %g", p.FrameRate))
	}
	if p.Every < 1 {
		errs = append(errs, fmt.Errorf("every must be >= 1, got %d", p.Every))
	}
	if p.Limit < 0 {
		errs = append(errs, fmt.Errorf("limit must be >= 0, got %d", p.Limit))
	}
	if cfg.Transform == "pose" && cfg.Pose.Script == "" {
		errs = append(errs, errors.New("pose.script is required for the pose transform"))
	}
	return errors.Join(errs...)
}
