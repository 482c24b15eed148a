package carve

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gopkg.in/go-playground/colors.v1"
)

// ApplyMask 将掩码作为 alpha 通道合成到图片上, 返回带透明背景的新图片
//
// # Params:
//
//	img: 原图 (任意颜色模式, 会先转为 RGB)
//	mask: 与原图尺寸一致的单通道掩码, 255 表示前景, 彩色掩码返回 ErrColorMode
func ApplyMask(img image.Image, mask image.Image) (*image.NRGBA, error) {
	if !IsGray(mask) {
		return nil, fmt.Errorf("%w: 掩码类型 %T", ErrColorMode, mask)
	}
	ib, mb := img.Bounds(), mask.Bounds()
	if ib.Dx() != mb.Dx() || ib.Dy() != mb.Dy() {
		return nil, fmt.Errorf("%w: 图片 %dx%d, 掩码 %dx%d", ErrSizeMismatch, ib.Dx(), ib.Dy(), mb.Dx(), mb.Dy())
	}

	out := ToRGB(img)
	alpha := ToGray(mask)
	w, h := ib.Dx(), ib.Dy()
	for y := 0; y < h; y++ {
		row := out.Pix[y*out.Stride:]
		arow := alpha.Pix[y*alpha.Stride:]
		for x := 0; x < w; x++ {
			row[x*4+3] = arow[x]
		}
	}
	return out, nil
}

// Flatten 将透明图片铺到纯色背景上
func Flatten(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	return imaging.Overlay(imaging.New(b.Dx(), b.Dy(), bg), img, image.Pt(0, 0), 1.0)
}

// ParseColor 解析背景颜色, 支持 #rrggbb, rgb(...), rgba(...) 等格式
func ParseColor(s string) (color.Color, error) {
	c, err := colors.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("解析颜色 %q 失败: %w", s, err)
	}
	rgba := c.ToRGBA()
	return color.NRGBA{R: rgba.R, G: rgba.G, B: rgba.B, A: uint8(rgba.A*255 + 0.5)}, nil
}
