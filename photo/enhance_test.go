package photo

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnhance_Disabled(t *testing.T) {
	t.Parallel()

	src := uniform(8, 8, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	src.SetNRGBA(3, 3, color.NRGBA{R: 200, A: 128})

	out := Enhance(src, Enhancement{Enabled: false, Brightness: 1.5, Contrast: 1.5})
	assert.Equal(t, src.Pix, out.Pix)

	out.SetNRGBA(0, 0, color.NRGBA{})
	assert.Equal(t, uint8(10), src.Pix[0], "disabled enhancement must not alias the input")
}

func TestEnhance_Brightness(t *testing.T) {
	t.Parallel()

	src := uniform(16, 16, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	e := Disabled()
	e.Enabled = true
	e.Brightness = 1.5

	out := Enhance(src, e)
	c := out.NRGBAAt(8, 8)
	assert.InDelta(t, 150, int(c.R), 1)
	assert.InDelta(t, 150, int(c.G), 1)
	assert.Equal(t, uint8(255), c.A)

	e.Brightness = 0.7
	c = Enhance(src, e).NRGBAAt(8, 8)
	assert.InDelta(t, 70, int(c.R), 1)
}

func TestEnhance_Contrast(t *testing.T) {
	t.Parallel()

	e := Disabled()
	e.Enabled = true
	e.Contrast = 1.5

	dark := Enhance(uniform(16, 16, color.NRGBA{R: 100, G: 100, B: 100, A: 255}), e).NRGBAAt(8, 8)
	light := Enhance(uniform(16, 16, color.NRGBA{R: 200, G: 200, B: 200, A: 255}), e).NRGBAAt(8, 8)
	assert.Less(t, dark.R, uint8(100))
	assert.Greater(t, light.R, uint8(200))
}

func TestEnhance_Saturation(t *testing.T) {
	t.Parallel()

	src := uniform(16, 16, color.NRGBA{R: 200, G: 100, B: 100, A: 255})
	e := Disabled()
	e.Enabled = true

	e.Saturation = 1.5
	more := Enhance(src, e).NRGBAAt(8, 8)
	e.Saturation = 0.5
	less := Enhance(src, e).NRGBAAt(8, 8)

	assert.Greater(t, int(more.R)-int(more.G), 100)
	assert.Less(t, int(less.R)-int(less.G), 100)
}

func TestEnhance_KeepsTransparency(t *testing.T) {
	t.Parallel()

	src := uniform(20, 20, color.NRGBA{R: 120, G: 110, B: 100, A: 255})
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			src.SetNRGBA(x, y, color.NRGBA{})
		}
	}

	for _, sharp := range []float64{0.7, 1.0, 1.5} {
		e := DefaultEnhancement()
		e.Sharpness = sharp
		out := Enhance(src, e)

		assert.Equal(t, image.Rect(0, 0, 20, 20), out.Bounds())
		assert.Equal(t, uint8(0), out.NRGBAAt(10, 0).A, "sharpness %.1f", sharp)
		assert.Equal(t, uint8(255), out.NRGBAAt(10, 19).A, "sharpness %.1f", sharp)
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 20, percent(1.2), 1e-9)
	assert.InDelta(t, -30, percent(0.7), 1e-9)
	assert.InDelta(t, 0, percent(1), 1e-9)
}

// edgeContrast 阶跃边缘两侧像素的差值
func edgeContrast(img *image.NRGBA) int {
	return int(img.NRGBAAt(10, 2).R) - int(img.NRGBAAt(9, 2).R)
}

func TestEnhance_SharpnessAndSmoothing(t *testing.T) {
	t.Parallel()

	src := uniform(20, 4, color.NRGBA{R: 100, G: 100, B: 100, A: 255})
	for y := 0; y < 4; y++ {
		for x := 10; x < 20; x++ {
			src.SetNRGBA(x, y, color.NRGBA{R: 160, G: 160, B: 160, A: 255})
		}
	}

	contrastAt := func(sharpness float64) int {
		e := Disabled()
		e.Enabled = true
		e.Sharpness = sharpness
		return edgeContrast(Enhance(src, e))
	}

	blurred := contrastAt(0.7)
	neutral := contrastAt(1.0)
	sharpened := contrastAt(1.5)

	assert.Equal(t, 60, edgeContrast(Enhance(src, Disabled())), "disabled enhancement keeps the edge")
	assert.Less(t, neutral, 60, "smoothing softens the edge when enabled")
	assert.Greater(t, sharpened, neutral)
	assert.Less(t, blurred, neutral)
}
