package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in    string
		level zerolog.Level
		ok    bool
	}{
		{"debug", zerolog.DebugLevel, true},
		{" WARNING ", zerolog.WarnLevel, true},
		{"off", zerolog.Disabled, true},
		{"", zerolog.InfoLevel, false},
		{"loud", zerolog.InfoLevel, false},
	}
	for _, tc := range testCases {
		level, ok := ParseLevel(tc.in)
		if level != tc.level || ok != tc.ok {
			t.Errorf("%q: expected %s %v, got %s %v", tc.in, tc.level, tc.ok, level, ok)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvLogLevel:     "error",
		EnvLogTimestamp: "false",
		EnvLogNoColor:   "1",
	}
	cfg := DefaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg, func(k string) string { return env[k] })

	if cfg.Level != "error" || cfg.Timestamp || !cfg.NoColor {
		t.Errorf("Unexpected config after overrides: %+v", cfg)
	}

	// Invalid values leave the config alone
	env = map[string]string{EnvLogLevel: "chatty", EnvLogNoColor: "maybe"}
	cfg = DefaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg, func(k string) string { return env[k] })
	if cfg.Level != "info" || cfg.NoColor {
		t.Errorf("Expected defaults to survive invalid overrides, got %+v", cfg)
	}
}

func TestNewConsoleLogger(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "hailfire-test", DefaultConfig(ProfileTest))

	log.Debug().Uint8("key", 0x42).Msg("read")
	log.Trace().Msg("hidden")

	out := buf.String()
	if !strings.Contains(out, "read") || !strings.Contains(out, "app=hailfire-test") || !strings.Contains(out, "key=66") {
		t.Errorf("Unexpected log output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected trace to be filtered at debug level, got %q", out)
	}
}
