package photo

import (
	"errors"
	"fmt"
)

type Framing string

const (
	FramingNone    Framing = "none"
	FramingSubject Framing = "subject"
	FramingFace    Framing = "face"
	FramingSmart   Framing = "smart"
)

func ParseFraming(s string) (Framing, error) {
	switch f := Framing(s); f {
	case "":
		return FramingNone, nil
	case FramingNone, FramingSubject, FramingFace, FramingSmart:
		return f, nil
	default:
		return "", fmt.Errorf("unknown framing %q", s)
	}
}

// Range 滑块的取值范围
type Range struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Default float64 `json:"default"`
	Step    float64 `json:"step"`
}

func (r Range) contains(v float64) bool {
	// 浮点滑块值允许微小误差
	const eps = 1e-9
	return v >= r.Min-eps && v <= r.Max+eps
}

var (
	BrightnessRange = Range{Min: 0.7, Max: 1.5, Default: 1.1, Step: 0.1}
	ContrastRange   = Range{Min: 0.7, Max: 1.5, Default: 1.2, Step: 0.1}
	SharpnessRange  = Range{Min: 0.7, Max: 1.5, Default: 1.3, Step: 0.1}
	SaturationRange = Range{Min: 0.5, Max: 1.5, Default: 1.0, Step: 0.1}
)

// Enhancement 各项系数，1.0 表示不变
type Enhancement struct {
	Enabled    bool    `json:"enabled"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Sharpness  float64 `json:"sharpness"`
	Saturation float64 `json:"saturation"`
}

func DefaultEnhancement() Enhancement {
	return Enhancement{
		Enabled:    true,
		Brightness: BrightnessRange.Default,
		Contrast:   ContrastRange.Default,
		Sharpness:  SharpnessRange.Default,
		Saturation: SaturationRange.Default,
	}
}

// Disabled 关闭增强时所有系数都是 1.0
func Disabled() Enhancement {
	return Enhancement{Brightness: 1, Contrast: 1, Sharpness: 1, Saturation: 1}
}

func (e Enhancement) Validate() error {
	if !e.Enabled {
		return nil
	}

	var errs []error
	for _, p := range []struct {
		name string
		v    float64
		r    Range
	}{
		{"brightness", e.Brightness, BrightnessRange},
		{"contrast", e.Contrast, ContrastRange},
		{"sharpness", e.Sharpness, SharpnessRange},
		{"saturation", e.Saturation, SaturationRange},
	} {
		if !p.r.contains(p.v) {
			errs = append(errs, fmt.Errorf("%s %.2f out of range [%.1f, %.1f]", p.name, p.v, p.r.Min, p.r.Max))
		}
	}
	return errors.Join(errs...)
}

// Options 一次处理的全部用户设置
type Options struct {
	Background  string      `json:"background"`
	CustomColor string      `json:"custom_color,omitempty"`
	Enhancement Enhancement `json:"enhancement"`
	Framing     Framing     `json:"framing"`
}

func DefaultOptions() Options {
	return Options{
		Background:  PresetCleanWhite,
		Enhancement: DefaultEnhancement(),
		Framing:     FramingNone,
	}
}

func (o Options) Validate() error {
	if _, err := ResolveBackground(o.Background, o.CustomColor); err != nil {
		return err
	}
	if _, err := ParseFraming(string(o.Framing)); err != nil {
		return err
	}
	return o.Enhancement.Validate()
}
