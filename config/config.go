// Package config loads the hailfire TOML configuration shared by the
// simulator, the firmware build and the host tools.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"hailfire/controller"
	"hailfire/core"
	"hailfire/logging"
	"hailfire/protocol"
)

var ErrInvalid = errors.New("invalid configuration")

// Link is the [link] section: the synchronous serial link to the master
type Link struct {
	Mode          uint8  `toml:"mode"`
	WordWidth     uint8  `toml:"word_width"`
	MaxLength     int    `toml:"max_length"`
	TickRatio     int    `toml:"tick_ratio"`
	WatchdogTicks uint32 `toml:"watchdog_ticks"`
}

// Dispatch is the [dispatch] section
type Dispatch struct {
	ShortWrite string `toml:"short_write"`
}

// Controller is the [controller] section
type Controller struct {
	Optocoupled bool   `toml:"optocoupled"`
	ClockHz     uint32 `toml:"clock_hz"`
	LEDBlinkHz  uint32 `toml:"led_blink_hz"`
	ADCReadHz   uint32 `toml:"adc_read_hz"`
	ControlHz   uint32 `toml:"control_hz"`
}

// Host is the [host] section used by hailfire-host
type Host struct {
	Device        string `toml:"device"`
	Baud          int    `toml:"baud"`
	ReadTimeoutMS int    `toml:"read_timeout_ms"`
	Bridge        string `toml:"bridge"` // "serial" or "sim"
	MetricsAddr   string `toml:"metrics_addr"`
}

// Config is the whole file
type Config struct {
	Link       Link           `toml:"link"`
	Dispatch   Dispatch       `toml:"dispatch"`
	Controller Controller     `toml:"controller"`
	Host       Host           `toml:"host"`
	Log        logging.Config `toml:"log"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	ctl := controller.DefaultConfig()
	return Config{
		Link: Link{
			Mode:      uint8(ctl.Mode),
			WordWidth: ctl.WordWidth,
			MaxLength: ctl.MaxLength,
			TickRatio: 4,
		},
		Dispatch: Dispatch{ShortWrite: ctl.ShortWrite.String()},
		Controller: Controller{
			Optocoupled: ctl.Optocoupled,
			ClockHz:     ctl.ClockHz,
			LEDBlinkHz:  ctl.LEDBlinkHz,
			ADCReadHz:   ctl.ADCReadHz,
			ControlHz:   ctl.ControlHz,
		},
		Host: Host{
			Device:        "/dev/ttyACM0",
			Baud:          250000,
			ReadTimeoutMS: 100,
			Bridge:        "serial",
		},
		Log: logging.DefaultConfig(logging.ProfileRuntime),
	}
}

// Load overlays the keys present in the file at path onto Default
func Load(path string) (Config, error) {
	cfg := Default()

	var raw Config
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %s", ErrInvalid, undecoded[0])
	}

	overlay := func(keys []string, apply func()) {
		if meta.IsDefined(keys...) {
			apply()
		}
	}

	overlay([]string{"link", "mode"}, func() { cfg.Link.Mode = raw.Link.Mode })
	overlay([]string{"link", "word_width"}, func() { cfg.Link.WordWidth = raw.Link.WordWidth })
	overlay([]string{"link", "max_length"}, func() { cfg.Link.MaxLength = raw.Link.MaxLength })
	overlay([]string{"link", "tick_ratio"}, func() { cfg.Link.TickRatio = raw.Link.TickRatio })
	overlay([]string{"link", "watchdog_ticks"}, func() { cfg.Link.WatchdogTicks = raw.Link.WatchdogTicks })

	overlay([]string{"dispatch", "short_write"}, func() {
		cfg.Dispatch.ShortWrite = strings.TrimSpace(raw.Dispatch.ShortWrite)
	})

	overlay([]string{"controller", "optocoupled"}, func() { cfg.Controller.Optocoupled = raw.Controller.Optocoupled })
	overlay([]string{"controller", "clock_hz"}, func() { cfg.Controller.ClockHz = raw.Controller.ClockHz })
	overlay([]string{"controller", "led_blink_hz"}, func() { cfg.Controller.LEDBlinkHz = raw.Controller.LEDBlinkHz })
	overlay([]string{"controller", "adc_read_hz"}, func() { cfg.Controller.ADCReadHz = raw.Controller.ADCReadHz })
	overlay([]string{"controller", "control_hz"}, func() { cfg.Controller.ControlHz = raw.Controller.ControlHz })

	overlay([]string{"host", "device"}, func() { cfg.Host.Device = strings.TrimSpace(raw.Host.Device) })
	overlay([]string{"host", "baud"}, func() { cfg.Host.Baud = raw.Host.Baud })
	overlay([]string{"host", "read_timeout_ms"}, func() { cfg.Host.ReadTimeoutMS = raw.Host.ReadTimeoutMS })
	overlay([]string{"host", "bridge"}, func() { cfg.Host.Bridge = strings.TrimSpace(raw.Host.Bridge) })
	overlay([]string{"host", "metrics_addr"}, func() { cfg.Host.MetricsAddr = strings.TrimSpace(raw.Host.MetricsAddr) })

	overlay([]string{"log", "level"}, func() { cfg.Log.Level = raw.Log.Level })
	overlay([]string{"log", "no_color"}, func() { cfg.Log.NoColor = raw.Log.NoColor })
	overlay([]string{"log", "timestamp"}, func() { cfg.Log.Timestamp = raw.Log.Timestamp })

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be checked by decoding
func (c Config) Validate() error {
	mode := protocol.Mode(c.Link.Mode)
	switch {
	case c.Link.Mode > 3:
		return fmt.Errorf("%w: link.mode %d (must be 0..3)", ErrInvalid, c.Link.Mode)
	case !mode.CPHA():
		return fmt.Errorf("%w: link.mode %d: %w", ErrInvalid, c.Link.Mode, protocol.ErrUnsupportedMode)
	case c.Link.WordWidth != protocol.WordWidth:
		return fmt.Errorf("%w: link.word_width %d (frames use %d-bit words)", ErrInvalid, c.Link.WordWidth, protocol.WordWidth)
	case c.Link.MaxLength < 1 || c.Link.MaxLength > 255:
		return fmt.Errorf("%w: link.max_length %d (must be 1..255)", ErrInvalid, c.Link.MaxLength)
	case c.Link.TickRatio < 1:
		return fmt.Errorf("%w: link.tick_ratio %d", ErrInvalid, c.Link.TickRatio)
	}
	if _, err := core.ParseShortWritePolicy(c.Dispatch.ShortWrite); err != nil {
		return fmt.Errorf("%w: dispatch.short_write: %w", ErrInvalid, err)
	}
	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	switch c.Host.Bridge {
	case "serial", "sim":
	default:
		return fmt.Errorf("%w: host.bridge %q (serial or sim)", ErrInvalid, c.Host.Bridge)
	}
	if err := c.ControllerConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ControllerConfig converts the link, dispatch and controller sections
func (c Config) ControllerConfig() controller.Config {
	policy, _ := core.ParseShortWritePolicy(c.Dispatch.ShortWrite)
	return controller.Config{
		Mode:          protocol.Mode(c.Link.Mode),
		WordWidth:     c.Link.WordWidth,
		MaxLength:     c.Link.MaxLength,
		WatchdogTicks: c.Link.WatchdogTicks,
		ShortWrite:    policy,
		Optocoupled:   c.Controller.Optocoupled,
		ClockHz:       c.Controller.ClockHz,
		LEDBlinkHz:    c.Controller.LEDBlinkHz,
		ADCReadHz:     c.Controller.ADCReadHz,
		ControlHz:     c.Controller.ControlHz,
	}
}

// ReadTimeout returns host.read_timeout_ms as a duration
func (h Host) ReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeoutMS) * time.Millisecond
}
