package photo

import (
	"context"
	"image"
	"image/color"
	"sync/atomic"
)

func uniform(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// fakeRemover 左半边当作背景，alpha 置 0
type fakeRemover struct {
	calls int32
	err   error
	// resize 非零时返回该尺寸的图片，模拟改变尺寸的模型
	resize image.Point
}

func (f *fakeRemover) Remove(ctx context.Context, img image.Image) (image.Image, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}

	out := toNRGBA(img)
	if f.resize != (image.Point{}) {
		out = toNRGBA(resizeTo(out, f.resize.X, f.resize.Y))
	}
	cut := image.NewNRGBA(out.Bounds())
	copy(cut.Pix, out.Pix)
	w := cut.Bounds().Dx()
	for y := 0; y < cut.Bounds().Dy(); y++ {
		for x := 0; x < w/2; x++ {
			cut.Pix[y*cut.Stride+x*4+3] = 0
		}
	}
	return cut, nil
}

func (f *fakeRemover) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}
