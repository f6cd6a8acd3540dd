// Package photo 头像处理流水线：抠图、构图、增强、换背景、导出
package photo

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/chaos-io/prophoto/photo/rembg"
)

// ErrSegmentation 抠图后端调用失败
var ErrSegmentation = errors.New("background removal failed")

const defaultMaxSide = 2048

type Processor struct {
	remover rembg.Remover
	framer  *Framer
	maxSide int
	// 限制同时调用模型的请求数
	sem *semaphore.Weighted
}

type ProcessorOption func(p *Processor)

func WithMaxSide(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxSide = n
		}
	}
}

func WithConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithFramer(f *Framer) ProcessorOption {
	return func(p *Processor) {
		if f != nil {
			p.framer = f
		}
	}
}

func NewProcessor(remover rembg.Remover, opts ...ProcessorOption) *Processor {
	framer, _ := NewFramer(nil)
	p := &Processor{
		remover: remover,
		framer:  framer,
		maxSide: defaultMaxSide,
		sem:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Result struct {
	Image             *image.NRGBA
	Cutout            *image.NRGBA
	BackgroundRemoved bool
	Elapsed           time.Duration
}

// Process 缩放 -> 抠图（已透明则跳过）-> 构图 -> 增强 -> 合成背景
func (p *Processor) Process(ctx context.Context, img image.Image, opts Options) (*Result, error) {
	start := time.Now()
	logger := zerolog.Ctx(ctx)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	bg, err := ResolveBackground(opts.Background, opts.CustomColor)
	if err != nil {
		return nil, err
	}

	src := resizeWithinMax(toNRGBA(img), p.maxSide)

	res := &Result{}
	cut := src
	switch {
	case hasUsefulAlpha(src):
		logger.Debug().Msg("image already transparent, skip background removal")
	case p.passthrough():
		logger.Debug().Msg("no segmentation backend configured, keep image as is")
	default:
		cut, err = p.removeBackground(ctx, src)
		if err != nil {
			return nil, err
		}
		res.BackgroundRemoved = true
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	framed, err := p.framer.Frame(ctx, cut, src, opts.Framing)
	if err != nil {
		return nil, fmt.Errorf("framing: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enhanced := Enhance(framed, opts.Enhancement)
	res.Cutout = framed
	res.Image = Composite(enhanced, bg)
	res.Elapsed = time.Since(start)

	logger.Info().
		Int("width", res.Image.Bounds().Dx()).
		Int("height", res.Image.Bounds().Dy()).
		Bool("background_removed", res.BackgroundRemoved).
		Str("background", opts.Background).
		Str("framing", string(opts.Framing)).
		Dur("elapsed", res.Elapsed).
		Msg("photo processed")
	return res, nil
}

// passthrough 后端不做抠图，不算作已去背景
func (p *Processor) passthrough() bool {
	_, ok := p.remover.(*rembg.Passthrough)
	return ok
}

func (p *Processor) removeBackground(ctx context.Context, src *image.NRGBA) (*image.NRGBA, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	out, err := p.remover.Remove(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrSegmentation, err)
	}

	cut := toNRGBA(out)
	if cut.Bounds().Size() != src.Bounds().Size() {
		// 个别模型会改变尺寸，拉回原尺寸保证和原图对齐
		cut = toNRGBA(resizeTo(cut, src.Bounds().Dx(), src.Bounds().Dy()))
	}
	return cut, nil
}
