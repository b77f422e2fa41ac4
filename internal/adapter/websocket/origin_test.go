package websocket

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCheckOrigin(t *testing.T) {
	allowed := "https://dash.example.com, https://backup.example.com/"

	tests := []struct {
		name          string
		origin        string
		isDevelopment bool
		want          bool
	}{
		{"empty origin", "", false, true},
		{"listed origin", "https://dash.example.com", false, true},
		{"listed with trailing slash", "https://backup.example.com", false, true},
		{"same host as request", "http://svx.local:8090", false, true},

		{"different host", "https://evil.com", false, false},
		{"different scheme", "http://dash.example.com", false, false},
		{"subdomain", "https://sub.dash.example.com", false, false},

		{"localhost dev", "http://localhost:8080", true, true},
		{"127.0.0.1 dev", "http://127.0.0.1:3000", true, true},
		{"localhost prod rejected", "http://localhost:8080", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewCheckOrigin(allowed, tt.isDevelopment)
			r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://svx.local:8090/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checker(r))
		})
	}
}

func TestNewCheckOrigin_Wildcard(t *testing.T) {
	checker := NewCheckOrigin("*", false)
	r, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://anything.example")
	assert.True(t, checker(r))
}
