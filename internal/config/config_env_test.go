package config

import (
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"SOCKMUX_SOCKET":           "/env/mux.sock",
				"SOCKMUX_MAX_CLIENTS":      "7",
				"SOCKMUX_BUFFER_SIZE":      "512",
				"SOCKMUX_BACKLOG":          "16",
				"SOCKMUX_POLL_INTERVAL":    "15ms",
				"SOCKMUX_SERVICE_INTERVAL": "1s",
				"SOCKMUX_NOTIFY":           "1",
				"SOCKMUX_WATCH_PATH":       "false",
				"SOCKMUX_LOG_LEVEL":        "warn",
				"SOCKMUX_LOG_FORMAT":       "json",
			},
			changed: map[string]bool{},
			initial: Config{WatchPath: true},
			expected: Config{
				SocketPath:      "/env/mux.sock",
				MaxClients:      7,
				BufferSize:      512,
				Backlog:         16,
				PollInterval:    15 * time.Millisecond,
				ServiceInterval: time.Second,
				Notify:          true,
				WatchPath:       false,
				LogLevel:        "warn",
				LogFormat:       "json",
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"SOCKMUX_MAX_CLIENTS": "7",
				"SOCKMUX_SOCKET":      "/env/mux.sock",
			},
			changed:  map[string]bool{"max-clients": true},
			initial:  Config{MaxClients: 2},
			expected: Config{MaxClients: 2, SocketPath: "/env/mux.sock"},
		},
		{
			name:     "non-positive int ignored",
			envVars:  map[string]string{"SOCKMUX_MAX_CLIENTS": "0"},
			changed:  map[string]bool{},
			initial:  Config{MaxClients: 10},
			expected: Config{MaxClients: 10},
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"SOCKMUX_MAX_CLIENTS": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"SOCKMUX_POLL_INTERVAL": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ApplyEnvConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
