package processor

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"

	"github.com/MimeLyc/rembg-studio/pkg/file"
	"github.com/MimeLyc/rembg-studio/pkg/log"

	// Decoders for every extension in the discovery allow-list.
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ApplyBackground composites a transparent image onto an opaque background
// of the given color and writes the result as opaque PNG. Sources without an
// alpha channel are handled, they just cover the background entirely.
// Unreadable or corrupt sources yield false.
func (p *Processor) ApplyBackground(src, dst string, rgb [3]int) bool {
	return p.CompositeFrame(src, dst, rgb, 0, 0)
}

// CompositeFrame is ApplyBackground with an optional target size: when
// targetW and targetH are both positive and the composited image differs,
// it is resized to exactly that size. Video reassembly uses this to force
// every frame to the output dimensions.
func (p *Processor) CompositeFrame(src, dst string, rgb [3]int, targetW, targetH int) bool {
	f, err := os.Open(src)
	if err != nil {
		log.Error("Failed to open %s: %v", src, err)
		return false
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		log.Error("Failed to decode %s: %v", src, err)
		return false
	}

	bounds := img.Bounds()
	background := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	bg := color.RGBA{uint8(rgb[0]), uint8(rgb[1]), uint8(rgb[2]), 255}
	draw.Draw(background, background.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	draw.Draw(background, background.Bounds(), img, bounds.Min, draw.Over)

	var result image.Image = background
	if targetW > 0 && targetH > 0 && (bounds.Dx() != targetW || bounds.Dy() != targetH) {
		result = resize.Resize(uint(targetW), uint(targetH), background, resize.Lanczos3)
	}

	if err := file.EnsureDir(filepath.Dir(dst)); err != nil {
		log.Error("Failed to create directory for %s: %v", dst, err)
		return false
	}
	out, err := os.Create(dst)
	if err != nil {
		log.Error("Failed to create %s: %v", dst, err)
		return false
	}
	defer out.Close()

	if err := png.Encode(out, result); err != nil {
		log.Error("Failed to encode %s: %v", dst, err)
		return false
	}
	return true
}
