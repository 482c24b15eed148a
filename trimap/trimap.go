// Package trimap 根据分割掩码生成 trimap (背景 / 未知 / 前景 三值图)
package trimap

import (
	"fmt"
	"image"

	"github.com/getcharzp/go-carve"
)

// trimap 中的三种像素值
const (
	Background uint8 = 0
	Unknown    uint8 = 128
	Foreground uint8 = 255
)

// CVGenerator 基于腐蚀与膨胀的 trimap 生成器
//
// 掩码先做 ErosionIters 次 3x3 腐蚀, 再以 (2*KernelSize+1) 的方形核膨胀,
// 膨胀区域与腐蚀区域之间的环带为未知区域, 腐蚀区域为前景
type CVGenerator struct {
	KernelSize   int // 未知区域向外扩展的像素数
	ErosionIters int // 形成未知区域前对掩码的腐蚀次数
}

// Generate 生成 trimap, mask 中非零像素视为前景
func (g CVGenerator) Generate(img image.Image, mask *image.Gray) (*image.Gray, error) {
	if err := checkSize(img, mask); err != nil {
		return nil, err
	}
	m := carve.ToGray(mask)
	w, h := m.Rect.Dx(), m.Rect.Dy()

	binary := make([]bool, len(m.Pix))
	for i, v := range m.Pix {
		binary[i] = v > 0
	}
	return g.generate(binary, w, h)
}

func (g CVGenerator) generate(binary []bool, w, h int) (*image.Gray, error) {
	eroded, err := erode(binary, w, h, g.ErosionIters)
	if err != nil {
		return nil, err
	}
	dilated, err := dilate(eroded, w, h, g.KernelSize)
	if err != nil {
		return nil, err
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for i := range out.Pix {
		switch {
		case eroded[i]:
			out.Pix[i] = Foreground
		case dilated[i]:
			out.Pix[i] = Unknown
		default:
			out.Pix[i] = Background
		}
	}
	return out, nil
}

// Generator 带概率过滤的 trimap 生成器
//
// 基础生成器的腐蚀次数固定为 0, ErosionIters 只用于最后一步对前景的腐蚀,
// 两次腐蚀分别作用在概率未知区域引入之前和之后
type Generator struct {
	ProbThreshold   int // 概率阈值, 大于该值的像素视为前景 (默认 231)
	KernelSize      int // 未知区域向外扩展的像素数 (默认 30)
	ErosionIters    int // 最后对前景的腐蚀次数 (默认 5)
	FilterThreshold int // 低于该值的像素置零, 小于 0 时不过滤 (默认 -1)
}

// DefaultGenerator 默认参数的生成器
func DefaultGenerator() Generator {
	return Generator{
		ProbThreshold:   231,
		KernelSize:      30,
		ErosionIters:    5,
		FilterThreshold: -1,
	}
}

// Generate 生成 trimap
//
// # Params:
//
//	img: 原图, 只用于校验尺寸
//	mask: 预测的前景概率掩码 (0-255)
func (g Generator) Generate(img image.Image, mask *image.Gray) (*image.Gray, error) {
	if err := checkSize(img, mask); err != nil {
		return nil, err
	}
	m := carve.ToGray(mask)
	w, h := m.Rect.Dx(), m.Rect.Dy()

	// 过滤低概率噪声
	probs := m.Pix
	if g.FilterThreshold >= 0 {
		probs = make([]uint8, len(m.Pix))
		for i, v := range m.Pix {
			if int(v) >= g.FilterThreshold {
				probs[i] = v
			}
		}
	}

	binary := make([]bool, len(probs))
	for i, v := range probs {
		binary[i] = int(v) > g.ProbThreshold
	}
	out, err := CVGenerator{KernelSize: g.KernelSize}.generate(binary, w, h)
	if err != nil {
		return nil, err
	}

	// 概率不确定的像素标记为未知
	for i, v := range probs {
		if v > 0 && int(v) <= g.ProbThreshold {
			out.Pix[i] = Unknown
		}
	}

	if err := postErosion(out, g.ErosionIters); err != nil {
		return nil, err
	}
	return out, nil
}

// postErosion 腐蚀前景区域, 被腐蚀掉的前景像素变为未知
func postErosion(t *image.Gray, iters int) error {
	if iters <= 0 {
		return nil
	}
	w, h := t.Rect.Dx(), t.Rect.Dy()
	fg := make([]bool, len(t.Pix))
	for i, v := range t.Pix {
		fg[i] = v == Foreground
	}
	eroded, err := erode(fg, w, h, iters)
	if err != nil {
		return err
	}
	for i := range t.Pix {
		if fg[i] && !eroded[i] {
			t.Pix[i] = Unknown
		}
	}
	return nil
}

func checkSize(img image.Image, mask *image.Gray) error {
	if mask == nil {
		return fmt.Errorf("%w: 掩码为空", carve.ErrSizeMismatch)
	}
	if img == nil {
		return nil
	}
	ib, mb := img.Bounds(), mask.Bounds()
	if ib.Dx() != mb.Dx() || ib.Dy() != mb.Dy() {
		return fmt.Errorf("%w: 图片 %dx%d, 掩码 %dx%d", carve.ErrSizeMismatch, ib.Dx(), ib.Dy(), mb.Dx(), mb.Dy())
	}
	return nil
}
