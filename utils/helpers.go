package utils

import (
	"net"
	"net/http"
	"strings"
)

type DeviceInfo struct {
	DeviceType string
	Browser    string
	OS         string
}

func GetClientIP(r *http.Request) string {
	// Cloudflare and some CDNs
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		if ip := net.ParseIP(strings.TrimSpace(cf)); ip != nil {
			return ip.String()
		}
	}

	if real := r.Header.Get("X-Real-IP"); real != "" {
		if ip := net.ParseIP(strings.TrimSpace(real)); ip != nil {
			return ip.String()
		}
	}

	// X-Forwarded-For: rightmost public address
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		for i := len(parts) - 1; i >= 0; i-- {
			ipStr := strings.TrimSpace(parts[i])
			if ip := net.ParseIP(ipStr); ip != nil {
				if !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsMulticast() {
					return ipStr
				}
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

func ParseUserAgent(userAgent string) *DeviceInfo {
	info := &DeviceInfo{
		DeviceType: "Desktop",
		Browser:    "Unknown",
		OS:         "Unknown",
	}

	ua := strings.ToLower(userAgent)

	switch {
	case strings.Contains(ua, "googleimageproxy"):
		// Gmail fetches images through its own proxy
		info.DeviceType = "Proxy"
		info.Browser = "GoogleImageProxy"
		return info
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		info.DeviceType = "Tablet"
	case strings.Contains(ua, "mobile"):
		info.DeviceType = "Mobile"
	}

	switch {
	case strings.Contains(ua, "edg"):
		info.Browser = "Edge"
	case strings.Contains(ua, "chrome"):
		info.Browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		info.Browser = "Firefox"
	case strings.Contains(ua, "safari"):
		info.Browser = "Safari"
	case strings.Contains(ua, "thunderbird"):
		info.Browser = "Thunderbird"
	case strings.Contains(ua, "outlook"):
		info.Browser = "Outlook"
	}

	switch {
	case strings.Contains(ua, "windows"):
		info.OS = "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad"):
		info.OS = "iOS"
	case strings.Contains(ua, "mac os"):
		info.OS = "macOS"
	case strings.Contains(ua, "android"):
		info.OS = "Android"
	case strings.Contains(ua, "linux"):
		info.OS = "Linux"
	}

	return info
}

// MaskEmail hides most of the local part so addresses can be logged.
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		if len(email) <= 2 {
			return email
		}
		return string(email[0]) + "***"
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 2 {
		return string(username[0]) + "***" + string(username[len(username)-1]) + "@" + domain
	}

	return username + "@" + domain
}
