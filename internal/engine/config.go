package engine

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// CaptureConfig holds the tunables of the capture loop. The defaults are the
// values the pipeline was calibrated with; use [DefaultCaptureConfig] and
// override selectively.
type CaptureConfig struct {
	// TargetRate is the sample rate all audio is normalised to before
	// buffering, in Hz.
	TargetRate int `yaml:"target_rate"`

	// WindowDuration is the length of the transcription window. Emitted
	// chunks are at most this long and the buffer is capped at twice it.
	WindowDuration time.Duration `yaml:"window_duration"`

	// MinInterval is the minimum time between two emitted chunks.
	MinInterval time.Duration `yaml:"min_interval"`

	// MinAudio is the minimum amount of buffered audio before a chunk may be
	// emitted.
	MinAudio time.Duration `yaml:"min_audio"`

	// SilenceRMS is the RMS threshold below which the buffer is considered
	// silent and no chunk is emitted.
	SilenceRMS float64 `yaml:"silence_rms"`

	// LevelInterval is the minimum time between two audio-level events.
	LevelInterval time.Duration `yaml:"level_interval"`

	// FailureBudget is the number of consecutive transient errors tolerated
	// before the capture loop gives up.
	FailureBudget int `yaml:"failure_budget"`
}

// DefaultCaptureConfig returns the calibrated defaults: a 4 s window at
// 16 kHz, 800 ms between chunks, 1.5 s minimum audio, and a silence gate of
// 0.00305 RMS.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		TargetRate:     16000,
		WindowDuration: 4 * time.Second,
		MinInterval:    800 * time.Millisecond,
		MinAudio:       1500 * time.Millisecond,
		SilenceRMS:     0.00305,
		LevelInterval:  100 * time.Millisecond,
		FailureBudget:  10,
	}
}

// UnmarshalYAML decodes the config, accepting Go duration strings ("800ms",
// "4s") for the duration fields, which yaml.v3 cannot parse on its own.
func (c *CaptureConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TargetRate     int     `yaml:"target_rate"`
		WindowDuration string  `yaml:"window_duration"`
		MinInterval    string  `yaml:"min_interval"`
		MinAudio       string  `yaml:"min_audio"`
		SilenceRMS     float64 `yaml:"silence_rms"`
		LevelInterval  string  `yaml:"level_interval"`
		FailureBudget  int     `yaml:"failure_budget"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.TargetRate = raw.TargetRate
	c.SilenceRMS = raw.SilenceRMS
	c.FailureBudget = raw.FailureBudget

	durations := []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"window_duration", raw.WindowDuration, &c.WindowDuration},
		{"min_interval", raw.MinInterval, &c.MinInterval},
		{"min_audio", raw.MinAudio, &c.MinAudio},
		{"level_interval", raw.LevelInterval, &c.LevelInterval},
	}
	for _, f := range durations {
		if f.in == "" {
			continue
		}
		d, err := time.ParseDuration(f.in)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.out = d
	}
	return nil
}

// Validate reports every invalid field at once.
func (c CaptureConfig) Validate() error {
	var errs []error
	if c.TargetRate <= 0 {
		errs = append(errs, fmt.Errorf("target_rate must be positive, got %d", c.TargetRate))
	}
	if c.WindowDuration <= 0 {
		errs = append(errs, fmt.Errorf("window_duration must be positive, got %s", c.WindowDuration))
	}
	if c.MinInterval <= 0 {
		errs = append(errs, fmt.Errorf("min_interval must be positive, got %s", c.MinInterval))
	}
	if c.MinAudio <= 0 {
		errs = append(errs, fmt.Errorf("min_audio must be positive, got %s", c.MinAudio))
	}
	if c.MinAudio > c.WindowDuration {
		errs = append(errs, fmt.Errorf("min_audio (%s) must not exceed window_duration (%s)", c.MinAudio, c.WindowDuration))
	}
	if c.SilenceRMS < 0 {
		errs = append(errs, fmt.Errorf("silence_rms must not be negative, got %f", c.SilenceRMS))
	}
	if c.LevelInterval <= 0 {
		errs = append(errs, fmt.Errorf("level_interval must be positive, got %s", c.LevelInterval))
	}
	if c.FailureBudget <= 0 {
		errs = append(errs, fmt.Errorf("failure_budget must be positive, got %d", c.FailureBudget))
	}
	return errors.Join(errs...)
}

// windowSamples is the transcription window length in samples.
func (c CaptureConfig) windowSamples() int {
	return int(float64(c.TargetRate) * c.WindowDuration.Seconds())
}

// minAudioSamples is the emission floor in samples.
func (c CaptureConfig) minAudioSamples() int {
	return int(float64(c.TargetRate) * c.MinAudio.Seconds())
}
