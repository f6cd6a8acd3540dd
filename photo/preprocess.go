package photo

import (
	"errors"
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// ErrNoForeground 抠图结果里没有任何主体像素
var ErrNoForeground = errors.New("no foreground detected")

// toNRGBA 转为原点在 (0,0) 的 NRGBA，方便统一处理
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if nrgba, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return nrgba
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// hasUsefulAlpha 检查 alpha 通道是否真的包含透明信息
// 只要存在非 255（非完全不透明），就认为“已有抠图”
func hasUsefulAlpha(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return true
		}
	}
	return false
}

// resizeWithinMax 缩放（最长边 <= maxSize）
func resizeWithinMax(img *image.NRGBA, maxSize int) *image.NRGBA {
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	longest := max(w, h)

	if maxSize <= 0 || longest <= maxSize {
		return img
	}

	scale := float64(maxSize) / float64(longest)
	newW := max(1, int(float64(w)*scale))
	newH := max(1, int(float64(h)*scale))

	resized := resize.Resize(uint(newW), uint(newH), img, resize.Lanczos3)
	return toNRGBA(resized)
}

// alphaBBox 从 alpha 通道计算主体 bounding box
// 把 alpha > threshold * 255 的像素当作“主体”
func alphaBBox(img *image.NRGBA, threshold float64) (image.Rectangle, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	th := uint8(threshold * 255)

	minX, minY := w, h
	maxX, maxY := 0, 0
	found := false

	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			if img.Pix[row+x*4+3] <= th {
				continue
			}
			found = true
			minX = min(minX, x)
			minY = min(minY, y)
			maxX = max(maxX, x)
			maxY = max(maxY, y)
		}
	}

	if !found {
		return image.Rectangle{}, ErrNoForeground
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), nil
}

// squareAround 以 center 为中心、边长 size 的正方形
// 超出图片时先平移，仍放不下再缩小到图片短边
func squareAround(center image.Point, size int, bounds image.Rectangle) image.Rectangle {
	size = min(size, bounds.Dx(), bounds.Dy())
	size = max(size, 1)

	x0 := center.X - size/2
	y0 := center.Y - size/2
	x0 = min(max(x0, bounds.Min.X), bounds.Max.X-size)
	y0 = min(max(y0, bounds.Min.Y), bounds.Max.Y-size)

	return image.Rect(x0, y0, x0+size, y0+size)
}

func crop(img *image.NRGBA, rect image.Rectangle) *image.NRGBA {
	rect = rect.Intersect(img.Bounds())
	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst
}

// grayscale 转灰度图（透明像素按黑色处理），用于人脸检测
func grayscale(img *image.NRGBA) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			val := uint8((0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 256)
			gray.SetGray(x, y, color.Gray{Y: val})
		}
	}
	return gray
}

func resizeTo(img image.Image, w, h int) image.Image {
	return resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
}
