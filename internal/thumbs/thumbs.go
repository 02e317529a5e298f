// Package thumbs reads image dimensions and renders square PNG thumbnails
// into the connector's thumbnail store.
package thumbs

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/fruitsalade/elfinder/internal/metrics"
)

// Renderer reads source images from disk and writes thumbnails with the
// configured file mode.
type Renderer struct {
	fileMode os.FileMode
}

// NewRenderer creates a Renderer. A zero mode falls back to 0644.
func NewRenderer(fileMode os.FileMode) *Renderer {
	if fileMode == 0 {
		fileMode = 0644
	}
	return &Renderer{fileMode: fileMode}
}

// Dimensions decodes just enough of the image at path to report its size.
func (r *Renderer) Dimensions(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode config %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}

// Thumbnail renders src as a size x size PNG at dst, cropping to the
// center and honoring EXIF orientation. The file appears atomically.
func (r *Renderer) Thumbnail(src, dst string, size int) (err error) {
	defer func() { metrics.RecordThumbnail(err == nil) }()

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	orientation := readOrientation(f)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("seek %s: %w", src, err)
	}

	img, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}
	img = applyOrientation(img, orientation)
	thumb := imaging.Fill(img, size, size, imaging.Center, imaging.Lanczos)

	// Write to temp file then rename so readers never see a partial PNG
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".thumb-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", dst, err)
	}
	tmpName := tmp.Name()

	if err := png.Encode(tmp, thumb); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("encode %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", dst, err)
	}
	if err := os.Chmod(tmpName, r.fileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", dst, err)
	}
	return nil
}

// readOrientation returns the EXIF orientation (1-8), 1 when absent.
func readOrientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		return 1
	}
	return v
}

// applyOrientation transforms an image according to EXIF orientation value.
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
