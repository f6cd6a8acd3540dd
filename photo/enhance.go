package photo

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// sharpnessSigma 锐度系数每偏离 1.0 一个单位对应的高斯 sigma
const sharpnessSigma = 3.0

// smoothMore 5x5 降噪平滑核
var smoothMore = [25]float64{
	1, 1, 1, 1, 1,
	1, 5, 5, 5, 1,
	1, 5, 44, 5, 1,
	1, 5, 5, 5, 1,
	1, 1, 1, 1, 1,
}

// Enhance 依次调整亮度、对比度、锐度、饱和度，最后做一次轻度平滑
// 未启用时原样复制
func Enhance(img image.Image, e Enhancement) *image.NRGBA {
	if !e.Enabled {
		return imaging.Clone(img)
	}

	out := adjustBrightness(img, e.Brightness)
	out = imaging.AdjustContrast(out, percent(e.Contrast))
	out = adjustSharpness(out, e.Sharpness)
	out = imaging.AdjustSaturation(out, percent(e.Saturation))
	return imaging.Convolve5x5(out, smoothMore, &imaging.ConvolveOptions{Normalize: true})
}

// adjustBrightness 按系数缩放颜色通道，alpha 不变
func adjustBrightness(img image.Image, factor float64) *image.NRGBA {
	if factor == 1 {
		return imaging.Clone(img)
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: scaleChannel(c.R, factor),
			G: scaleChannel(c.G, factor),
			B: scaleChannel(c.B, factor),
			A: c.A,
		}
	})
}

func adjustSharpness(img *image.NRGBA, factor float64) *image.NRGBA {
	switch {
	case factor > 1:
		return imaging.Sharpen(img, (factor-1)*sharpnessSigma)
	case factor < 1:
		return imaging.Blur(img, (1-factor)*sharpnessSigma)
	default:
		return img
	}
}

func scaleChannel(v uint8, factor float64) uint8 {
	return uint8(math.Min(255, math.Round(float64(v)*factor)))
}

// percent 把系数换成 imaging 使用的百分比，1.2 -> 20
func percent(factor float64) float64 {
	return (factor - 1) * 100
}
