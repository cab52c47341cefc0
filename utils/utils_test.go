package utils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayTime(t *testing.T) {
	ts := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-02 00:30:00", DisplayTime(ts))
	assert.Equal(t, "", DisplayTime(time.Time{}))
	assert.Equal(t, "", DisplayTimePtr(nil))
	assert.Equal(t, "2024-01-02 00:30:00", DisplayTimePtr(&ts))
}

func TestParseSendTime(t *testing.T) {
	want := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01 10:00:00", want},
		{"2024-01-01T10:00:00", want},
		{"2024-01-01 10:00", want},
		{"2024-01-01T10:00:00+09:00", want},
		{"2024-01-01T01:00:00Z", want},
		{"2024-01-01T03:00:00+02:00", want},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSendTime(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	for _, bad := range []string{"", "tomorrow", "01/02/2024", "2024-13-01 10:00:00"} {
		_, err := ParseSendTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "198.51.100.4", "X-Real-IP": "198.51.100.5"}, "198.51.100.4"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.5"}, "198.51.100.5"},
		{"forwarded skips private", map[string]string{"X-Forwarded-For": "198.51.100.6, 10.0.0.1"}, "198.51.100.6"},
		{"garbage header", map[string]string{"X-Real-IP": "not-an-ip"}, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/track", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientIP(r))
		})
	}
}

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		ua                   string
		device, browser, os string
	}{
		{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			"Desktop", "Chrome", "Windows",
		},
		{
			"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1",
			"Mobile", "Safari", "iOS",
		},
		{
			"Mozilla/5.0 (Windows NT 5.1; rv:11.0) Gecko Firefox/11.0 (via ggpht.com GoogleImageProxy)",
			"Proxy", "GoogleImageProxy", "Unknown",
		},
		{"", "Desktop", "Unknown", "Unknown"},
	}

	for _, tt := range tests {
		info := ParseUserAgent(tt.ua)
		assert.Equal(t, tt.device, info.DeviceType, tt.ua)
		assert.Equal(t, tt.browser, info.Browser, tt.ua)
		assert.Equal(t, tt.os, info.OS, tt.ua)
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a***e@example.com", MaskEmail("alice@example.com"))
	assert.Equal(t, "al@example.com", MaskEmail("al@example.com"))
	assert.Equal(t, "n***", MaskEmail("nobody"))
	assert.Equal(t, "x", MaskEmail("x"))
}
