package photo

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

var white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Composite 按 alpha 把前景叠到同尺寸的纯色背景上
func Composite(fg image.Image, bg color.NRGBA) *image.NRGBA {
	bg.A = 255
	b := fg.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, imaging.Clone(fg), image.Pt(0, 0), 1.0)
}

// Flatten 去掉透明度，透明部分变白
func Flatten(img image.Image) *image.NRGBA {
	return Composite(img, white)
}
