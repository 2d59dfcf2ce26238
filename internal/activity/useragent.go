package activity

import (
	"net"
	"strings"
)

// deriveClient extracts coarse device/browser/os labels from a raw
// user-agent string by substring matching. Unknown stays "unknown".
func deriveClient(userAgent string) (device, browser, os string) {
	ua := strings.ToLower(userAgent)

	device = "desktop"
	switch {
	case strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad"):
		device = "tablet"
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		device = "mobile"
	}

	browser = "unknown"
	switch {
	// Edge ships a Chrome token, so it must win the tie
	case strings.Contains(ua, "edg"):
		browser = "edge"
	case strings.Contains(ua, "chrome"):
		browser = "chrome"
	case strings.Contains(ua, "firefox"):
		browser = "firefox"
	case strings.Contains(ua, "safari"):
		browser = "safari"
	}

	os = "unknown"
	switch {
	case strings.Contains(ua, "windows"):
		os = "windows"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macos"):
		os = "macos"
	case strings.Contains(ua, "android"):
		os = "android"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		os = "ios"
	case strings.Contains(ua, "linux"):
		os = "linux"
	}

	if userAgent == "" {
		device = "unknown"
	}
	return device, browser, os
}

// deriveLocation maps a network origin to a coarse location label. A
// geo-IP collaborator can replace this; the core only distinguishes
// loopback traffic.
func deriveLocation(ip string) string {
	if ip == "" {
		return "Unknown"
	}
	if ip == "localhost" {
		return "Local"
	}
	if parsed := net.ParseIP(ip); parsed != nil && parsed.IsLoopback() {
		return "Local"
	}
	return "Unknown"
}
