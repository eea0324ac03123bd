package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// DeviceSettings is the mutable per-user device preference, persisted
// separately from the service configuration so the UI can change it at
// runtime.
type DeviceSettings struct {
	// SelectedDeviceID is the device to capture from. Empty means use
	// auto-selection.
	SelectedDeviceID string `json:"selected_device_id"`

	// AutoSelect lets the service pick the best device on start.
	AutoSelect bool `json:"auto_select"`
}

// DefaultDeviceSettings is what a fresh installation behaves like.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{AutoSelect: true}
}

// SettingsPath returns the device settings file location inside the user's
// config directory.
func SettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "earshot", "audio_settings.json"), nil
}

// SaveSettings writes the settings as pretty-printed JSON, creating parent
// directories as needed.
func SaveSettings(path string, s DeviceSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write settings: %w", err)
	}
	return nil
}

// LoadSettings reads the settings file. A missing file is not an error; the
// defaults are returned instead.
func LoadSettings(path string) (DeviceSettings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultDeviceSettings(), nil
	}
	if err != nil {
		return DeviceSettings{}, fmt.Errorf("config: read settings: %w", err)
	}

	var s DeviceSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return DeviceSettings{}, fmt.Errorf("config: parse settings: %w", err)
	}
	return s, nil
}
