package photo

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

var ErrUnsupportedFormat = errors.New("unsupported output format")

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"

	DefaultJPEGQuality = 95
)

// ParseFormat 为空时默认 JPEG
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

func (f Format) MIME() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

func (f Format) FileName() string {
	if f == FormatPNG {
		return "professional_headshot.png"
	}
	return "professional_headshot.jpg"
}

// Encode JPEG 不支持透明，先铺白底；PNG 使用最高压缩
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	var err error
	switch f {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		if !isOpaque(img) {
			img = Flatten(img)
		}
		err = imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		err = imaging.Encode(w, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", f, err)
	}
	return nil
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
