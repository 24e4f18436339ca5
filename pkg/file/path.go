package file

import (
	"os"
	"path/filepath"
	"strings"
)

// Stem returns the final path element without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// OutputName renders a filename template against an input path. Recognized
// placeholders are {name} (the input stem) and {ext} (the input extension,
// dot included). The rendered name is sanitized and joined onto outputDir.
func OutputName(inputPath, outputDir, template string) string {
	name := template
	name = strings.ReplaceAll(name, "{name}", Stem(inputPath))
	name = strings.ReplaceAll(name, "{ext}", filepath.Ext(inputPath))
	return filepath.Join(outputDir, SafeName(name))
}

// InsertSuffix inserts suffix between the stem and extension of the final
// path element, e.g. InsertSuffix("a/photo.png", "_no_bg") -> "a/photo_no_bg.png".
func InsertSuffix(path, suffix string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	return filepath.Join(dir, Stem(path)+suffix+ext)
}

// SafeName strips characters that are unsafe in filenames on common
// platforms and control characters. Empty results become "untitled".
func SafeName(name string) string {
	const unsafe = `<>:"/\|?*`

	var b strings.Builder
	for _, r := range name {
		if r < 32 {
			continue
		}
		if strings.ContainsRune(unsafe, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}

	cleaned := strings.Trim(b.String(), " .")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

// EnsureDir creates dir (and parents) if needed.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// SizeMB returns the file size in megabytes, or 0 when the file cannot be
// statted.
func SizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / (1 << 20)
}
