// Package config provides the configuration schema and loader for the
// Earshot capture service, plus the separately persisted mutable device
// settings.
package config

import (
	"github.com/earshot-dev/earshot/internal/engine"
)

// LogLevel controls log verbosity for the Earshot server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Earshot.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig         `yaml:"server"`
	Capture     engine.CaptureConfig `yaml:"capture"`
	STT         STTConfig            `yaml:"stt"`
	Storage     StorageConfig        `yaml:"storage"`
	Diagnostics DiagnosticsConfig    `yaml:"diagnostics"`
}

// ServerConfig holds network and logging settings for the Earshot server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// STTConfig configures the optional in-process transcription worker. When
// ModelPath is empty, chunks are only emitted to listeners and nothing is
// transcribed locally.
type STTConfig struct {
	// ModelPath is the path to a whisper.cpp ggml model file.
	ModelPath string `yaml:"model_path"`

	// Language is the BCP-47 language code for recognition. Empty means "en".
	Language string `yaml:"language"`
}

// StorageConfig configures transcript persistence. When SQLitePath is empty,
// transcripts are emitted as events but not stored.
type StorageConfig struct {
	// SQLitePath is the transcript database file.
	SQLitePath string `yaml:"sqlite_path"`
}

// DiagnosticsConfig configures the audio diagnostics trace.
type DiagnosticsConfig struct {
	// LogPath is the diagnostics trace file. Empty disables the trace.
	LogPath string `yaml:"log_path"`
}

// applyDefaults fills unset fields with working values.
func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Capture == (engine.CaptureConfig{}) {
		c.Capture = engine.DefaultCaptureConfig()
	}
	if c.STT.Language == "" {
		c.STT.Language = "en"
	}
}
