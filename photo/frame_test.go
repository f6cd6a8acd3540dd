package photo

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// subjectCutout 100x60 透明底，中间一块 20x20 的主体
func subjectCutout() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 100, 60))
	for y := 10; y < 30; y++ {
		for x := 40; x < 60; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 180, G: 140, B: 120, A: 255})
		}
	}
	return img
}

func TestFramer_Frame(t *testing.T) {
	t.Parallel()

	framer, err := NewFramer(nil)
	require.NoError(t, err)
	assert.False(t, framer.FaceDetection())

	ctx := context.Background()
	cut := subjectCutout()

	t.Run("none", func(t *testing.T) {
		got, err := framer.Frame(ctx, cut, nil, FramingNone)
		require.NoError(t, err)
		assert.Same(t, cut, got)
	})

	t.Run("subject", func(t *testing.T) {
		got, err := framer.Frame(ctx, cut, nil, FramingSubject)
		require.NoError(t, err)
		// bbox (40,10)-(60,30)，放大 10% 后边长 22
		assert.Equal(t, image.Pt(22, 22), got.Bounds().Size())
		assert.Equal(t, uint8(255), got.NRGBAAt(11, 11).A)
		assert.Equal(t, uint8(0), got.NRGBAAt(0, 0).A)
	})

	t.Run("face falls back to subject", func(t *testing.T) {
		got, err := framer.Frame(ctx, cut, cut, FramingFace)
		require.NoError(t, err)
		assert.Equal(t, image.Pt(22, 22), got.Bounds().Size())
	})

	t.Run("no foreground", func(t *testing.T) {
		_, err := framer.Frame(ctx, image.NewNRGBA(image.Rect(0, 0, 10, 10)), nil, FramingSubject)
		assert.ErrorIs(t, err, ErrNoForeground)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := framer.Frame(ctx, cut, nil, Framing("zoom"))
		assert.Error(t, err)
	})
}

func TestFramer_Smart(t *testing.T) {
	t.Parallel()

	framer, err := NewFramer(nil)
	require.NoError(t, err)

	img := uniform(200, 120, color.NRGBA{R: 90, G: 120, B: 160, A: 255})
	for y := 30; y < 90; y++ {
		for x := 120; x < 160; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 230, G: 180, B: 150, A: 255})
		}
	}

	got, err := framer.Frame(context.Background(), img, nil, FramingSmart)
	require.NoError(t, err)

	size := got.Bounds().Size()
	assert.LessOrEqual(t, size.Y, 120)
	assert.InDelta(t, float64(smartRatioW)/smartRatioH, float64(size.X)/float64(size.Y), 0.05)
}

func TestFramer_SmartCanceled(t *testing.T) {
	t.Parallel()

	framer, err := NewFramer(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// 取消后可能已经算完，只要返回的不是别的错误即可
	_, err = framer.Frame(ctx, uniform(64, 64, white), nil, FramingSmart)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestLoadFramer(t *testing.T) {
	t.Parallel()

	f, err := LoadFramer("")
	require.NoError(t, err)
	assert.False(t, f.FaceDetection())

	_, err = LoadFramer(filepath.Join(t.TempDir(), "facefinder"))
	assert.ErrorContains(t, err, "read face detection model")
}
