package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	appName    = "lemuria"
	configFile = "lemuria.yaml"

	// CurrentVersion is the only configuration file version understood
	CurrentVersion = 1

	DefaultQueueSize  = 4096
	DefaultPattern    = "*.apd"
	DefaultSessionTTL = 300 * time.Second
	DefaultNVMSize    = 512
)

// Mutex for thread-safe file operations
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/lemuria or $HOME/.config/lemuria
//   - macOS: $HOME/.config/lemuria (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\lemuria
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			// Fallback to USERPROFILE\AppData\Local if LOCALAPPDATA not set
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// Load reads, normalizes and validates the configuration at path. An empty
// path means the default location. A missing file yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a configuration document, then normalizes and validates it.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	Normalize(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills in defaults for unset fields. It is allowed to mutate
// configuration and is called before Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultPort
	}
	if cfg.Server.QueueSize == 0 {
		cfg.Server.QueueSize = DefaultQueueSize
	}

	d := &cfg.Device
	if d.MaxIncomingParamLen == 0 {
		d.MaxIncomingParamLen = defaultMaxParamLen
	}
	if d.MaxOutgoingParamLen == 0 {
		d.MaxOutgoingParamLen = defaultMaxParamLen
	}
	if d.StreamPacketSize == 0 {
		d.StreamPacketSize = defaultStreamPacketSize
	}
	if d.NVMSize == 0 {
		d.NVMSize = DefaultNVMSize
	}
	if len(d.TagLocations) == 0 {
		d.TagLocations = defaultTagLocations(d.NVMSize)
	}

	if cfg.Playback.Pattern == "" {
		cfg.Playback.Pattern = DefaultPattern
	}

	if cfg.Events.SessionTTL == 0 {
		cfg.Events.SessionTTL = DefaultSessionTTL
	}
}

// defaultTagLocations splits the start of the NVM image into two 16-word user
// tags followed by the general settings area
func defaultTagLocations(nvmSize int) []TagLocationConfig {
	const tagLen = 64
	rest := nvmSize - 2*tagLen
	if rest < 0 {
		rest = 0
	}
	return []TagLocationConfig{
		{Offset: 0, Length: tagLen},
		{Offset: tagLen, Length: tagLen},
		{Offset: 2 * tagLen, Length: rest},
	}
}

// Save writes the configuration to path atomically. An empty path means the
// default location.
func (c *Config) Save(path string) error {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`# Lemuria Configuration File
# Describes the emulated Asphodel device, the capture files replayed as its
# stream data, and where device events are published.
#
# Location: ` + path + `

`)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
