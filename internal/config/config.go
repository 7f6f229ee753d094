// Package config holds the daemon configuration: which numbering scheme the
// board uses, how each panel is wired, and the redraw schedule. The file is
// YAML, created with defaults on first run, and written back atomically.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"lcdhat/internal/pinmap"
)

// Pins carries the GPIO line ids for one panel. Values are pointers so an
// omitted pin can be filled from the board variant's table during
// normalization; chip-select additionally may stay nil when the SPI
// controller provides hardware CS.
type Pins struct {
	Reset     *int `yaml:"reset,omitempty"`
	DC        *int `yaml:"dc,omitempty"`
	CS        *int `yaml:"cs,omitempty"`
	Backlight *int `yaml:"backlight,omitempty"`
}

// Panel describes one attached display.
type Panel struct {
	// Width, Height are visible pixels in the chosen orientation.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Rotation is one of 0, 90, 180, 270.
	Rotation int `yaml:"rotation"`

	SPIBus    int `yaml:"spi_bus"`
	SPIDevice int `yaml:"spi_device"`
	SPIHz     int `yaml:"spi_hz"`

	Pins Pins `yaml:"pins"`
}

// Config is the top-level daemon configuration.
type Config struct {
	// Variant selects the GPIO numbering scheme; see internal/pinmap.
	Variant string `yaml:"variant"`
	// Refresh is a cron expression for the periodic redraw.
	Refresh string `yaml:"refresh"`
	// Panels lists one or two displays sharing the SPI bus.
	Panels []Panel `yaml:"panels"`
}

func intPtr(v int) *int { return &v }

// DefaultConfig returns a single 0.96" landscape panel on SPI0.0 with the
// pins of the selected variant's table.
func DefaultConfig() *Config {
	return &Config{
		Variant: string(pinmap.ReferenceBCM),
		Refresh: "*/1 * * * *",
		Panels: []Panel{{
			Width:     160,
			Height:    80,
			Rotation:  90,
			SPIBus:    0,
			SPIDevice: 0,
			SPIHz:     10_000_000,
		}},
	}
}

// Normalize fills zero values with defaults and resolves omitted pins from
// the variant table, so partially-filled configs behave.
func (c *Config) Normalize() error {
	if c.Variant == "" {
		c.Variant = string(pinmap.ReferenceBCM)
	}
	v := pinmap.Variant(c.Variant)
	if !v.Valid() {
		return fmt.Errorf("config: unknown board variant %q (have %v)", c.Variant, pinmap.Variants())
	}
	if c.Refresh == "" {
		c.Refresh = "*/1 * * * *"
	}
	if len(c.Panels) == 0 {
		c.Panels = DefaultConfig().Panels
	}

	for i := range c.Panels {
		p := &c.Panels[i]
		if p.Width == 0 && p.Height == 0 {
			p.Width, p.Height = 160, 80
		}
		if p.SPIHz == 0 {
			p.SPIHz = 10_000_000
		}
		// Only the first panel may default to the variant table; a
		// second panel is wired to different lines by definition and
		// must be explicit.
		if i == 0 {
			if p.Pins.Reset == nil {
				id, err := pinmap.Resolve(v, pinmap.Reset)
				if err != nil {
					return err
				}
				p.Pins.Reset = intPtr(id)
			}
			if p.Pins.DC == nil {
				id, err := pinmap.Resolve(v, pinmap.DataCommand)
				if err != nil {
					return err
				}
				p.Pins.DC = intPtr(id)
			}
			if p.Pins.Backlight == nil {
				id, err := pinmap.Resolve(v, pinmap.Backlight)
				if err != nil {
					return err
				}
				p.Pins.Backlight = intPtr(id)
			}
		}
	}
	return c.validate()
}

// validate enforces the invariants a panel set must satisfy before any
// hardware is touched.
func (c *Config) validate() error {
	if len(c.Panels) > 2 {
		return fmt.Errorf("config: at most 2 panels supported, got %d", len(c.Panels))
	}
	usedLines := map[int]string{}
	usedBus := map[[2]int]int{}
	for i := range c.Panels {
		p := &c.Panels[i]
		switch p.Rotation {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("config: panel %d rotation %d not one of 0/90/180/270", i, p.Rotation)
		}
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("config: panel %d has empty geometry %dx%d", i, p.Width, p.Height)
		}
		if p.SPIBus < 0 || p.SPIDevice < 0 {
			return fmt.Errorf("config: panel %d has negative spi address %d.%d", i, p.SPIBus, p.SPIDevice)
		}
		if p.SPIHz <= 0 {
			return fmt.Errorf("config: panel %d spi_hz must be positive", i)
		}
		if p.Pins.Reset == nil || p.Pins.DC == nil {
			return fmt.Errorf("config: panel %d needs explicit reset and dc pins", i)
		}
		if prev, ok := usedBus[[2]int{p.SPIBus, p.SPIDevice}]; ok {
			return fmt.Errorf("config: panels %d and %d share spi %d.%d", prev, i, p.SPIBus, p.SPIDevice)
		}
		usedBus[[2]int{p.SPIBus, p.SPIDevice}] = i

		for role, id := range map[string]*int{
			"reset": p.Pins.Reset, "dc": p.Pins.DC,
			"cs": p.Pins.CS, "backlight": p.Pins.Backlight,
		} {
			if id == nil {
				continue
			}
			if prev, ok := usedLines[*id]; ok {
				return fmt.Errorf("config: panel %d %s and %s both use line %d", i, role, prev, *id)
			}
			usedLines[*id] = fmt.Sprintf("panel %d %s", i, role)
		}
	}
	return nil
}

// Load reads the YAML config at path. If the file does not exist, a default
// config is written there (0600, parent created) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config: path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := cfg.Normalize(); err != nil {
				return nil, err
			}
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config: path is empty")
	}
	if cfg == nil {
		return errors.New("config: nil config")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".lcdhat-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
