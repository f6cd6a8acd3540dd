package photo

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposite(t *testing.T) {
	t.Parallel()

	fg := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	fg.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	fg.SetNRGBA(1, 0, color.NRGBA{R: 255, A: 0})
	fg.SetNRGBA(2, 0, color.NRGBA{R: 255, A: 128})

	bg := color.NRGBA{R: 45, G: 45, B: 48, A: 255}
	out := Composite(fg, bg)

	assert.Equal(t, fg.Bounds(), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, bg, out.NRGBAAt(1, 0))

	half := out.NRGBAAt(2, 0)
	assert.Equal(t, uint8(255), half.A)
	assert.InDelta(t, (255+45)/2, int(half.R), 2)
	assert.InDelta(t, 45/2, int(half.G), 2)
}

func TestComposite_IgnoresBackgroundAlpha(t *testing.T) {
	t.Parallel()

	fg := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	out := Composite(fg, color.NRGBA{R: 10, G: 20, B: 30})
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, out.NRGBAAt(1, 1))
}

func TestFlatten(t *testing.T) {
	t.Parallel()

	src := uniform(4, 4, color.NRGBA{})
	src.SetNRGBA(0, 0, color.NRGBA{B: 255, A: 255})

	out := Flatten(src)
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, out.NRGBAAt(0, 0))
	assert.Equal(t, white, out.NRGBAAt(3, 3))
}
