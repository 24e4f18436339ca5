package config

import (
	"strconv"
	"strings"
)

// ImageExtensions is the fixed allow-list used for directory discovery.
// Matching is always done against the lowercased extension.
var ImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
	".webp": true,
}

// VideoExtensions lists the accepted video container extensions.
var VideoExtensions = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
	".wmv": true,
	".flv": true,
}

const (
	// File size limits in MB.
	MaxImageSizeMB = 100
	MaxVideoSizeMB = 1000

	// MemoryMultiplier estimates peak memory as a multiple of input size.
	MemoryMultiplier = 3.0

	// DefaultFilenameFormat names single-image outputs.
	DefaultFilenameFormat = "{name}_no_bg.png"

	// MaxFPS bounds user-supplied extraction and output frame rates.
	MaxFPS = 120
)

// ClampColorValue parses a color channel string and clamps it to 0-255.
// Decimal inputs are truncated. Unparseable values yield 0 for every
// channel.
func ClampColorValue(s string) int {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	v := int(f)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// ParseRGB validates three channel strings into an RGB triple.
func ParseRGB(r, g, b string) [3]int {
	return [3]int{
		ClampColorValue(r),
		ClampColorValue(g),
		ClampColorValue(b),
	}
}

// ValidateFPS parses a target frame rate. Empty input means native rate and
// is reported as valid with fps 0.
func ValidateFPS(s string) (bool, float64) {
	s = strings.TrimSpace(s)
	if s == "" {
		return true, 0
	}

	fps, err := strconv.ParseFloat(s, 64)
	if err != nil || fps <= 0 || fps > MaxFPS {
		return false, 0
	}
	return true, fps
}
