// Package ovdaconfig loads the coordinator's tunables from YAML. The
// coordinator reads only PictureFenceDelay; the role, library path,
// picture buffer count, input buffer size, timeouts and log level are
// parsed (and partly validated) but not read by any package in this
// module.
package ovdaconfig

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the coordinator's tunables. Durations are parsed from
// Go duration strings ("500ms", "2s") via yaml's time.Duration support.
type Config struct {
	Role                   string        `yaml:"role"`
	LibraryPath            string        `yaml:"library_path"`
	NumPictureBuffers      int           `yaml:"num_picture_buffers"`
	InputBufferSize        int           `yaml:"input_buffer_size"`
	StateTransitionTimeout time.Duration `yaml:"state_transition_timeout"`
	FlushTimeout           time.Duration `yaml:"flush_timeout"`
	LogLevel               string        `yaml:"log_level"`

	// PictureFenceDelay is how long the gpufence stand-in waits before
	// self-signaling a picture's GPU fence, in the absence of a real
	// EGL/GL sync object on this platform. See internal/gpufence.
	PictureFenceDelay time.Duration `yaml:"picture_fence_delay"`
}

// Defaults returns the configuration the coordinator uses when no file
// is supplied, matching the original decoder's hardcoded constants.
func Defaults() Config {
	return Config{
		Role:                   "video_decoder.avc",
		LibraryPath:            "/usr/lib/libomxr_core.so",
		NumPictureBuffers:      8,
		InputBufferSize:        1 << 20,
		StateTransitionTimeout: 5 * time.Second,
		FlushTimeout:           5 * time.Second,
		LogLevel:               "info",
		PictureFenceDelay:      2 * time.Millisecond,
	}
}

// LoadFromFile reads path as YAML and overlays it onto Defaults. Fields
// absent from the file keep their default value.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("ovdaconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("ovdaconfig: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("ovdaconfig: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the coordinator could not act on.
func (c Config) Validate() error {
	if c.NumPictureBuffers <= 0 {
		return fmt.Errorf("num_picture_buffers must be positive, got %d", c.NumPictureBuffers)
	}
	if c.InputBufferSize <= 0 {
		return fmt.Errorf("input_buffer_size must be positive, got %d", c.InputBufferSize)
	}
	if c.StateTransitionTimeout <= 0 {
		return fmt.Errorf("state_transition_timeout must be positive, got %v", c.StateTransitionTimeout)
	}
	return nil
}
