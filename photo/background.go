package photo

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	PresetCleanWhite     = "clean_white"
	PresetCorporateGray  = "corporate_gray"
	PresetLinkedInBlue   = "linkedin_blue"
	PresetExecutiveBlack = "executive_black"
	PresetCustom         = "custom"

	DefaultCustomColor = "#FFFFFF"
)

type Preset struct {
	Key   string      `json:"key"`
	Name  string      `json:"name"`
	Color color.NRGBA `json:"-"`
	Hex   string      `json:"hex"`
}

// Presets 按界面展示顺序排列，custom 排最后
var Presets = []Preset{
	newPreset(PresetCleanWhite, "Clean White", 255, 255, 255),
	newPreset(PresetCorporateGray, "Corporate Gray", 245, 245, 248),
	newPreset(PresetLinkedInBlue, "LinkedIn Blue", 235, 242, 251),
	newPreset(PresetExecutiveBlack, "Executive Black", 45, 45, 48),
	{Key: PresetCustom, Name: "Custom", Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}, Hex: DefaultCustomColor},
}

func newPreset(key, name string, r, g, b uint8) Preset {
	c := color.NRGBA{R: r, G: g, B: b, A: 255}
	return Preset{Key: key, Name: name, Color: c, Hex: fmt.Sprintf("#%02X%02X%02X", r, g, b)}
}

func lookupPreset(key string) (Preset, bool) {
	for _, p := range Presets {
		if strings.EqualFold(p.Key, key) || strings.EqualFold(p.Name, key) {
			return p, true
		}
	}
	return Preset{}, false
}

// ResolveBackground 预设 key 或名称都可以
// custom 没给颜色、或者未知 key，都回退到 Clean White；颜色格式错误才报错
func ResolveBackground(key, customColor string) (color.NRGBA, error) {
	white := Presets[0].Color

	p, ok := lookupPreset(key)
	if !ok {
		return white, nil
	}
	if p.Key != PresetCustom {
		return p.Color, nil
	}
	if customColor == "" {
		return white, nil
	}
	return ParseHexColor(customColor)
}

func ParseHexColor(s string) (color.NRGBA, error) {
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	// colorful.Hex 不检查多余或缺失的字符
	if len(s) != 4 && len(s) != 7 {
		return color.NRGBA{}, fmt.Errorf("invalid custom color %q: want #RGB or #RRGGBB", s)
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid custom color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}
