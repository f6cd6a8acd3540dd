package server

import (
	"image"

	"golang.org/x/image/draw"
)

// thumbnail 按宽度等比缩小，width 为 0 或不小于原宽时返回原图
func thumbnail(img *image.NRGBA, width int) image.Image {
	b := img.Bounds()
	if width <= 0 || width >= b.Dx() {
		return img
	}

	height := max(1, b.Dy()*width/b.Dx())
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
