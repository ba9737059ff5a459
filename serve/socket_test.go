package main

import (
	"fmt"
	"os"
	"testing"
)

func TestResolveSocketPath(t *testing.T) {
	tests := []struct {
		name     string
		envSetup func(t *testing.T)
		expected string
	}{
		{
			name: "CODELET_SOCKET",
			envSetup: func(t *testing.T) {
				t.Setenv("CODELET_SOCKET", "/custom/codelet.sock")
			},
			expected: "/custom/codelet.sock",
		},
		{
			name: "XDG_RUNTIME_DIR",
			envSetup: func(t *testing.T) {
				t.Setenv("CODELET_SOCKET", "")
				t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
			},
			expected: "/run/user/1000/codelet.sock",
		},
		{
			name: "fallback",
			envSetup: func(t *testing.T) {
				t.Setenv("CODELET_SOCKET", "")
				t.Setenv("XDG_RUNTIME_DIR", "")
			},
			expected: fmt.Sprintf("/tmp/codelet-%d.sock", os.Getuid()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.envSetup(t)
			if got := resolveSocketPath(); got != tt.expected {
				t.Errorf("resolveSocketPath() = %s, expected %s", got, tt.expected)
			}
		})
	}
}
