// Package config loads and saves the Lemuria configuration file.
//
// A single YAML file describes the emulated device (its personality: identity
// strings, protocol limits, NVM layout and catalogs), the server sockets,
// the capture directory replayed as stream data, and the optional event
// sinks. The file follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/lemuria/lemuria.yaml or $HOME/.config/lemuria/lemuria.yaml
//   - macOS: $HOME/.config/lemuria/lemuria.yaml
//   - Windows: %LOCALAPPDATA%\lemuria\lemuria.yaml
//
// # Loading
//
// Load decodes the file with unknown keys rejected, fills defaults with
// Normalize and then checks it with Validate. Validate never mutates the
// configuration and reports the first problem as a *ValidationError naming
// the offending field:
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    return err
//	}
//	personality, err := cfg.Device.Personality()
//
// # Saving
//
// Save writes a header comment followed by the YAML document, using a
// temporary file and rename so that a crash never leaves a partial file.
package config
