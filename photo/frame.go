package photo

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/muesli/smartcrop"
	"github.com/rs/zerolog"
)

const (
	// subjectThreshold alpha 超过 50% 才算主体
	subjectThreshold = 0.5
	subjectPadding   = 1.1
	// faceScale 人脸框放大倍数，把头发和肩膀也框进来
	faceScale = 2.2
	// faceMinQuality pigo 检测分数阈值
	faceMinQuality = 5.0

	smartRatioW, smartRatioH = 4, 5
)

// Framer 头像构图：主体居中、人脸居中或 smartcrop
type Framer struct {
	classifier *pigo.Pigo
	resizer    *resizer
}

// NewFramer cascade 为空时不做人脸检测，face 模式回退到 subject
func NewFramer(cascade []byte) (*Framer, error) {
	f := &Framer{resizer: &resizer{resampler: imaging.Lanczos}}
	if len(cascade) == 0 {
		return f, nil
	}

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face detection model: %w", err)
	}
	f.classifier = classifier
	return f, nil
}

// LoadFramer 从文件加载 pigo 的 facefinder 模型，path 为空时不启用人脸检测
func LoadFramer(path string) (*Framer, error) {
	if path == "" {
		return NewFramer(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read face detection model: %w", err)
	}
	return NewFramer(data)
}

func (f *Framer) FaceDetection() bool {
	return f.classifier != nil
}

// Frame 对抠好的图构图，reference 是抠图前的原图（用于人脸检测，可为 nil）
func (f *Framer) Frame(ctx context.Context, cut, reference *image.NRGBA, mode Framing) (*image.NRGBA, error) {
	switch mode {
	case "", FramingNone:
		return cut, nil
	case FramingSubject:
		return f.frameSubject(cut)
	case FramingFace:
		rect, ok := f.faceRect(cut, reference)
		if !ok {
			zerolog.Ctx(ctx).Debug().Msg("no face found, framing on subject")
			return f.frameSubject(cut)
		}
		return crop(cut, rect), nil
	case FramingSmart:
		return f.frameSmart(ctx, cut)
	default:
		return nil, fmt.Errorf("unknown framing %q", mode)
	}
}

// frameSubject 主体 bounding box 居中的正方形，四周留 10%
func (f *Framer) frameSubject(cut *image.NRGBA) (*image.NRGBA, error) {
	bbox, err := alphaBBox(cut, subjectThreshold)
	if err != nil {
		return nil, err
	}

	center := image.Pt((bbox.Min.X+bbox.Max.X)/2, (bbox.Min.Y+bbox.Max.Y)/2)
	size := int(float64(max(bbox.Dx(), bbox.Dy())) * subjectPadding)
	return crop(cut, squareAround(center, size, cut.Bounds())), nil
}

func (f *Framer) faceRect(cut, reference *image.NRGBA) (image.Rectangle, bool) {
	if f.classifier == nil {
		return image.Rectangle{}, false
	}

	src := cut
	if reference != nil && reference.Bounds() == cut.Bounds() {
		src = reference
	}

	gray := grayscale(src)
	cols, rows := gray.Bounds().Dx(), gray.Bounds().Dy()
	params := pigo.CascadeParams{
		MinSize:     max(20, min(cols, rows)/10),
		MaxSize:     max(cols, rows),
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		ImageParams: pigo.ImageParams{
			Pixels: gray.Pix,
			Rows:   rows,
			Cols:   cols,
			Dim:    gray.Stride,
		},
	}

	dets := f.classifier.RunCascade(params, 0.0)
	dets = f.classifier.ClusterDetections(dets, 0.2)

	best := -1
	for i, d := range dets {
		if d.Q < faceMinQuality {
			continue
		}
		if best < 0 || d.Scale > dets[best].Scale {
			best = i
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}

	d := dets[best]
	size := int(float64(d.Scale) * faceScale)
	return squareAround(image.Pt(d.Col, d.Row), size, cut.Bounds()), true
}

// frameSmart 交给 smartcrop 选 4:5 的竖版区域
func (f *Framer) frameSmart(ctx context.Context, cut *image.NRGBA) (*image.NRGBA, error) {
	analyzer := smartcrop.NewAnalyzer(f.resizer)

	type cropResult struct {
		rect image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)
	go func() {
		// 在白底上分析，透明区域不会被当成暗部
		rect, err := analyzer.FindBestCrop(Flatten(cut), smartRatioW, smartRatioH)
		resultChan <- cropResult{rect: rect, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return nil, fmt.Errorf("finding best crop: %w", result.err)
		}
		return crop(cut, result.rect), nil
	}
}

// resizer 实现 smartcrop 需要的 Resizer 接口
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}
