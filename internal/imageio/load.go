package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// SupportedExtensions lists the file extensions LoadImage accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff", ".webp"}

// MinDimension is the smallest side length worth running detection on.
const MinDimension = 16

// ProcessingError wraps failures while loading or converting images.
type ProcessingError struct {
	Operation string
	Err       error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// Metadata captures lightweight file and pixel information.
type Metadata struct {
	Path      string `json:"path,omitempty"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// IsSupported reports whether the path has a supported image extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// LoadImage opens and decodes an image file.
func LoadImage(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &ProcessingError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return nil, Metadata{}, &ProcessingError{
			Operation: "load",
			Err:       fmt.Errorf("unsupported format: %s", filepath.Ext(path)),
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: user-provided image path
	if err != nil {
		return nil, Metadata{}, &ProcessingError{Operation: "load", Err: err}
	}
	img, meta, err := Decode(bytes.NewReader(data))
	if err != nil {
		return nil, Metadata{}, err
	}
	meta.Path = path
	meta.SizeBytes = int64(len(data))
	return img, meta, nil
}

// Decode decodes an image from r using the registered codecs.
func Decode(r io.Reader) (image.Image, Metadata, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, Metadata{}, &ProcessingError{Operation: "decode", Err: err}
	}
	b := img.Bounds()
	return img, Metadata{Format: format, Width: b.Dx(), Height: b.Dy()}, nil
}

// Validate rejects nil images and images too small to hold a descriptor patch.
func Validate(img image.Image) error {
	if img == nil {
		return &ProcessingError{Operation: "validate", Err: errors.New("input image is nil")}
	}
	b := img.Bounds()
	if b.Dx() < MinDimension || b.Dy() < MinDimension {
		return &ProcessingError{
			Operation: "validate",
			Err:       fmt.Errorf("image too small: %dx%d < %dx%d", b.Dx(), b.Dy(), MinDimension, MinDimension),
		}
	}
	return nil
}
