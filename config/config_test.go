package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	null "gopkg.in/guregu/null.v3"
)

func envLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestApply(t *testing.T) {
	base := Default()
	got := base.Apply(Config{MaxInterpretedRunCount: null.IntFrom(-1)})

	if got.MaxInterpretedRunCount.Int64 != -1 {
		t.Errorf("MaxInterpretedRunCount = %d, want -1", got.MaxInterpretedRunCount.Int64)
	}
	if got.MaxCallDepth != base.MaxCallDepth {
		t.Errorf("MaxCallDepth changed by an invalid field: %v", got.MaxCallDepth)
	}
	if !got.NativeEnabled.Bool {
		t.Error("NativeEnabled lost its default")
	}
}

func TestConsolidation(t *testing.T) {
	fs := afero.NewMemMapFs()
	yamlConf := "maxCallDepth: 64\nforceNative: true\nlogLevel: warn\n"
	if err := afero.WriteFile(fs, "/etc/lazywasm.yaml", []byte(yamlConf), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		path  string
		env   map[string]string
		args  []string
		check func(t *testing.T, c Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c Config) {
				if c.MaxCallDepth.Int64 != DefaultMaxCallDepth || c.MaxInterpretedRunCount.Int64 != DefaultMaxInterpretedRunCount {
					t.Errorf("unexpected defaults: %+v", c)
				}
				if c.LogFormat.String != "console" {
					t.Errorf("LogFormat = %q", c.LogFormat.String)
				}
			},
		},
		{
			name: "file",
			path: "/etc/lazywasm.yaml",
			check: func(t *testing.T, c Config) {
				if c.MaxCallDepth.Int64 != 64 || !c.ForceNative.Bool || c.LogLevel.String != "warn" {
					t.Errorf("file not applied: %+v", c)
				}
			},
		},
		{
			name: "missing file is empty",
			path: "/nope.yaml",
			check: func(t *testing.T, c Config) {
				if c.MaxCallDepth.Int64 != DefaultMaxCallDepth {
					t.Errorf("MaxCallDepth = %d", c.MaxCallDepth.Int64)
				}
			},
		},
		{
			name: "env over file",
			path: "/etc/lazywasm.yaml",
			env: map[string]string{
				"LAZYWASM_MAX_CALL_DEPTH":            "128",
				"LAZYWASM_MAX_INTERPRETED_RUN_COUNT": "-1",
			},
			check: func(t *testing.T, c Config) {
				if c.MaxCallDepth.Int64 != 128 {
					t.Errorf("MaxCallDepth = %d, want 128", c.MaxCallDepth.Int64)
				}
				if c.MaxInterpretedRunCount.Int64 != -1 {
					t.Errorf("MaxInterpretedRunCount = %d, want -1", c.MaxInterpretedRunCount.Int64)
				}
				if !c.ForceNative.Bool {
					t.Error("file value lost")
				}
			},
		},
		{
			name: "flags over env",
			env:  map[string]string{"LAZYWASM_LOG_LEVEL": "error"},
			args: []string{"--log-level", "debug", "--max-interpreted-runs", "3"},
			check: func(t *testing.T, c Config) {
				if c.LogLevel.String != "debug" || c.MaxInterpretedRunCount.Int64 != 3 {
					t.Errorf("flags not applied: %+v", c)
				}
			},
		},
		{
			name: "unset flags keep env",
			env:  map[string]string{"LAZYWASM_NATIVE_ENABLED": "false"},
			args: []string{},
			check: func(t *testing.T, c Config) {
				if c.NativeEnabled.Bool {
					t.Error("default flag value overrode env")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := FlagSet()
			if err := flags.Parse(tt.args); err != nil {
				t.Fatal(err)
			}
			c, err := Load(fs, tt.path, envLookup(tt.env), flags)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			tt.check(t, c)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/bad.yaml", []byte("maxCallDepth: [1, 2"), 0o644)
	_ = afero.WriteFile(fs, "/wrongtype.yaml", []byte("maxCallDepth: lots\n"), 0o644)

	tests := []struct {
		name    string
		path    string
		env     map[string]string
		wantErr string
	}{
		{name: "malformed yaml", path: "/bad.yaml", wantErr: "parse config"},
		{name: "wrong type", path: "/wrongtype.yaml", wantErr: "parse config"},
		{name: "bad env", env: map[string]string{"LAZYWASM_MAX_CALL_DEPTH": "x"}, wantErr: "environment"},
		{name: "zero depth", env: map[string]string{"LAZYWASM_MAX_CALL_DEPTH": "0"}, wantErr: "maxCallDepth"},
		{name: "run count", env: map[string]string{"LAZYWASM_MAX_INTERPRETED_RUN_COUNT": "-2"}, wantErr: "maxInterpretedRunCount"},
		{name: "pages", env: map[string]string{"LAZYWASM_MEMORY_LIMIT_PAGES": "70000"}, wantErr: "memoryLimitPages"},
		{name: "level", env: map[string]string{"LAZYWASM_LOG_LEVEL": "loud"}, wantErr: "logLevel"},
		{name: "format", env: map[string]string{"LAZYWASM_LOG_FORMAT": "xml"}, wantErr: "logFormat"},
		{
			name:    "force without native",
			env:     map[string]string{"LAZYWASM_FORCE_NATIVE": "true", "LAZYWASM_NATIVE_ENABLED": "false"},
			wantErr: "forceNative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(fs, tt.path, envLookup(tt.env), nil)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestEngineConfig(t *testing.T) {
	c := Default().Apply(Config{MemoryLimitPages: null.IntFrom(16), ForceNative: null.BoolFrom(true)})
	ec := c.EngineConfig()
	if ec.MemoryLimitPages != 16 || !ec.ForceNative || !ec.NativeEnabled {
		t.Errorf("EngineConfig = %+v", ec)
	}
	if ec.MaxCallDepth != DefaultMaxCallDepth || ec.MaxInterpretedRunCount != DefaultMaxInterpretedRunCount {
		t.Errorf("EngineConfig = %+v", ec)
	}
}
