package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// NetConfig holds the listening ports for the two client channels and the
// optional web status server.
type NetConfig struct {
	ImagePort   int `yaml:"image_port" env:"IMAGE_PORT"`     // image/telemetry channel (default 8000)
	ControlPort int `yaml:"control_port" env:"CONTROL_PORT"` // control channel (default 8001)
	WebPort     int `yaml:"web_port" env:"WEB_PORT"`         // status server; 0 = disabled
}

// StepperConfig holds the configuration for the film transport motor.
type StepperConfig struct {
	StepPin       int `yaml:"step_pin"`
	DirPin        int `yaml:"dir_pin"`
	EnablePin     int `yaml:"enable_pin"` // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerFrame int `yaml:"steps_per_frame"`
	StepDelayUs   int `yaml:"step_delay_us"` // delay per half-cycle of STEP pulse
	LightPin      int `yaml:"light_pin"`     // illumination source control line
}

// SensorConfig describes the image sensor.
// Type selects a concrete implementation (e.g., "sim").
type SensorConfig struct {
	Type            string `yaml:"type"`               // e.g., "sim"
	SceneExposureUs int    `yaml:"scene_exposure_us"`  // sim: exposure at which analogue gain reaches 1
	PipelineLag     int    `yaml:"pipeline_lag"`       // sim: frames before a commanded exposure is reported
	WidthPx         int    `yaml:"width_px"`           // capture resolution
	HeightPx        int    `yaml:"height_px"`
}

// ExposureConfig bounds and tunes the exposure machinery.
type ExposureConfig struct {
	MinUs         int `yaml:"min_us"`          // lower exposure clamp (µs)
	MaxUs         int `yaml:"max_us"`          // upper exposure clamp (µs)
	StepUs        int `yaml:"step_us"`         // autoexposure search increment (µs)
	BaseUs        int `yaml:"base_us"`         // initial autoexposure seed (µs)
	ToleranceUs   int `yaml:"tolerance_us"`    // settled when |reported-commanded| <= tolerance
	SettleRetries int `yaml:"settle_retries"`  // bound on the settle loop
	AEMaxIter     int `yaml:"ae_max_iter"`     // bound on the autoexposure search
}

// CaptureConfig holds capture-path tuning.
type CaptureConfig struct {
	PoolSize       int `yaml:"pool_size"`        // transmit worker slots
	QualityPreview int `yaml:"quality_preview"`  // JPEG quality for preview frames
	QualityCapture int `yaml:"quality_capture"`  // JPEG quality for capture frames
	QualityAE      int `yaml:"quality_ae"`       // JPEG quality for autoexposure probes
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel int  `yaml:"debug_level" env:"DEBUG_LEVEL"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `yaml:"mock_gpio" env:"MOCK_GPIO"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Net      NetConfig      `yaml:"net" envPrefix:"NET_"`
	Stepper  StepperConfig  `yaml:"stepper"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Exposure ExposureConfig `yaml:"exposure"`
	Capture  CaptureConfig  `yaml:"capture"`
	Defaults DefaultsConfig `yaml:"defaults" envPrefix:""`
}

// Load reads a YAML file, applies FILMRIG_* environment overrides and
// returns the validated configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FILMRIG_"}); err != nil {
		return nil, fmt.Errorf("parse env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate checks ranges and fills defaults for unset values.
func (c *Config) validate() error {
	if c.Net.ImagePort == 0 {
		c.Net.ImagePort = 8000
	}
	if c.Net.ControlPort == 0 {
		c.Net.ControlPort = 8001
	}
	for _, p := range []int{c.Net.ImagePort, c.Net.ControlPort} {
		if p < 1 || p > 65535 {
			return fmt.Errorf("port must be 1-65535, got %d", p)
		}
	}
	if c.Net.ImagePort == c.Net.ControlPort {
		return fmt.Errorf("image_port and control_port must differ, both are %d", c.Net.ImagePort)
	}
	if c.Net.WebPort < 0 || c.Net.WebPort > 65535 {
		return fmt.Errorf("web_port must be 0-65535, got %d", c.Net.WebPort)
	}

	if c.Sensor.Type == "" {
		return fmt.Errorf("sensor.type is required")
	}
	if c.Sensor.SceneExposureUs <= 0 {
		c.Sensor.SceneExposureUs = 4000
	}
	if c.Sensor.PipelineLag <= 0 {
		c.Sensor.PipelineLag = 2
	}
	if c.Sensor.WidthPx <= 0 {
		c.Sensor.WidthPx = 2028
	}
	if c.Sensor.HeightPx <= 0 {
		c.Sensor.HeightPx = 1520
	}

	if c.Exposure.MinUs <= 0 {
		c.Exposure.MinUs = 100
	}
	if c.Exposure.MaxUs <= 0 {
		c.Exposure.MaxUs = 1000000
	}
	if c.Exposure.MaxUs <= c.Exposure.MinUs {
		return fmt.Errorf("exposure.max_us (%d) must be greater than exposure.min_us (%d)",
			c.Exposure.MaxUs, c.Exposure.MinUs)
	}
	if c.Exposure.StepUs <= 0 {
		c.Exposure.StepUs = 500
	}
	if c.Exposure.BaseUs <= 0 {
		c.Exposure.BaseUs = 500
	}
	if c.Exposure.ToleranceUs <= 0 {
		c.Exposure.ToleranceUs = 50
	}
	if c.Exposure.SettleRetries <= 0 {
		c.Exposure.SettleRetries = 10
	}
	if c.Exposure.AEMaxIter <= 0 {
		c.Exposure.AEMaxIter = 64
	}

	if c.Capture.PoolSize <= 0 {
		c.Capture.PoolSize = 5
	}
	if c.Capture.QualityPreview <= 0 {
		c.Capture.QualityPreview = 60
	}
	if c.Capture.QualityCapture <= 0 {
		c.Capture.QualityCapture = 97
	}
	if c.Capture.QualityAE <= 0 {
		c.Capture.QualityAE = 30
	}
	for _, q := range []int{c.Capture.QualityPreview, c.Capture.QualityCapture, c.Capture.QualityAE} {
		if q > 100 {
			return fmt.Errorf("jpeg quality must be <= 100, got %d", q)
		}
	}

	if c.Stepper.StepsPerFrame <= 0 {
		c.Stepper.StepsPerFrame = 40
	}
	if c.Stepper.StepDelayUs <= 0 {
		c.Stepper.StepDelayUs = 1000
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be 0-4, got %d", c.Defaults.DebugLevel)
	}

	return nil
}

// StepDelay returns the duration of one STEP pulse half-cycle.
func (c *Config) StepDelay() time.Duration {
	return time.Duration(c.Stepper.StepDelayUs) * time.Microsecond
}
