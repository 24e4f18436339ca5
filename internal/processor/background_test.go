package processor

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

// transparentWithDot builds a fully transparent image with one opaque red
// pixel at (1,1).
func transparentWithDot(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(1, 1, color.NRGBA{R: 255, A: 255})
	return img
}

func TestApplyBackground_FillsTransparentPixels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "dst.png")
	writePNG(t, src, transparentWithDot(4, 4))

	proc, _ := newTestProcessor(t, &stubEngine{})
	require.True(t, proc.ApplyBackground(src, dst, [3]int{0, 128, 255}))

	out := readPNG(t, dst)
	assert.Equal(t, 4, out.Bounds().Dx())
	assert.Equal(t, 4, out.Bounds().Dy())

	// A transparent corner takes the background color.
	r, g, b, a := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r>>8)
	assert.Equal(t, uint32(128), g>>8)
	assert.Equal(t, uint32(255), b>>8)
	assert.Equal(t, uint32(255), a>>8)

	// The opaque dot survives.
	r, _, _, _ = out.At(1, 1).RGBA()
	assert.Equal(t, uint32(255), r>>8)
}

func TestApplyBackground_DefaultBlack(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "dst.png")
	writePNG(t, src, transparentWithDot(2, 2))

	proc, _ := newTestProcessor(t, &stubEngine{})
	require.True(t, proc.ApplyBackground(src, dst, [3]int{}))

	out := readPNG(t, dst)
	r, g, b, _ := out.At(0, 0).RGBA()
	assert.Equal(t, uint32(0), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0), b)
}

func TestCompositeFrame_ResizesToTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	dst := filepath.Join(dir, "dst.png")
	writePNG(t, src, transparentWithDot(4, 4))

	proc, _ := newTestProcessor(t, &stubEngine{})
	require.True(t, proc.CompositeFrame(src, dst, [3]int{255, 255, 255}, 8, 6))

	out := readPNG(t, dst)
	assert.Equal(t, 8, out.Bounds().Dx())
	assert.Equal(t, 6, out.Bounds().Dy())
}

func TestCompositeFrame_BadSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	notImage := filepath.Join(dir, "not.png")
	require.NoError(t, os.WriteFile(notImage, []byte("not a png"), 0o644))

	proc, _ := newTestProcessor(t, &stubEngine{})
	assert.False(t, proc.CompositeFrame(notImage, filepath.Join(dir, "out.png"), [3]int{}, 0, 0))
	assert.False(t, proc.CompositeFrame(filepath.Join(dir, "missing.png"), filepath.Join(dir, "out.png"), [3]int{}, 0, 0))
}
