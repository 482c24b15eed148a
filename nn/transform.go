package nn

import (
	"fmt"
	"image"
	"math"

	"github.com/getcharzp/go-carve"
	"github.com/nfnt/resize"
	"gocv.io/x/gocv"
	xdraw "golang.org/x/image/draw"
)

// ImageNet 均值与方差
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// FitForBatch 按批大小调整图片尺寸
//
// batchSize 为 1 时保持宽高比缩小到 size 以内 (不放大),
// 否则强制缩放为 size x size, 保证同一批次形状一致
func FitForBatch(img image.Image, batchSize, size int) image.Image {
	if batchSize == 1 {
		return resize.Thumbnail(uint(size), uint(size), img, resize.Bicubic)
	}
	return resize.Resize(uint(size), uint(size), img, resize.Bicubic)
}

// PadToStride 使用 Lanczos 插值将宽高放大到 stride 的整数倍
func PadToStride(img image.Image, stride int) image.Image {
	b := img.Bounds()
	w := ceilTo(b.Dx(), stride)
	h := ceilTo(b.Dy(), stride)
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	return resize.Resize(uint(w), uint(h), img, resize.Lanczos3)
}

func ceilTo(v, stride int) int {
	if stride <= 1 {
		return v
	}
	return (v + stride - 1) / stride * stride
}

// RGBOptions 三通道图片编码参数
type RGBOptions struct {
	Reverse bool       // 通道反转 (RGB -> BGR)
	Mean    [3]float32 // 归一化均值, 与 Std 同时为零值时不做归一化
	Std     [3]float32
}

// RGBTensor 将图片编码为 [1, 3, H, W] 的张量, 像素先缩放到 [0, 1]
func RGBTensor(img image.Image, opts RGBOptions) *Tensor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	t := Zeros(1, 3, int64(h), int64(w))
	area := w * h
	normalize := opts.Std != [3]float32{}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			px := [3]float32{float32(r>>8) / 255, float32(g>>8) / 255, float32(bl>>8) / 255}
			if opts.Reverse {
				px[0], px[2] = px[2], px[0]
			}
			i := y*w + x
			for c := 0; c < 3; c++ {
				v := px[c]
				if normalize {
					v = (v - opts.Mean[c]) / opts.Std[c]
				}
				t.Data[c*area+i] = v
			}
		}
	}
	return t
}

// GrayTensor 将单通道图片编码为 [1, 1, H, W] 的张量, 像素缩放到 [0, 1]
func GrayTensor(g *image.Gray) *Tensor {
	return PlanesTensor(g)
}

// PlanesTensor 将多张同尺寸单通道图片编码为 [1, len(planes), H, W] 的张量
func PlanesTensor(planes ...*image.Gray) *Tensor {
	b := planes[0].Bounds()
	w, h := b.Dx(), b.Dy()
	t := Zeros(1, int64(len(planes)), int64(h), int64(w))
	area := w * h
	for c, p := range planes {
		pb := p.Bounds()
		for y := 0; y < h; y++ {
			row := p.Pix[p.PixOffset(pb.Min.X, pb.Min.Y+y):]
			for x := 0; x < w; x++ {
				t.Data[c*area+y*w+x] = float32(row[x]) / 255
			}
		}
	}
	return t
}

// OneHotPlanes 将 trimap 拆分为背景平面 (值为 0 的像素) 与前景平面 (值为 255 的像素)
func OneHotPlanes(trimap *image.Gray) (bg, fg *image.Gray) {
	trimap = carve.ToGray(trimap)
	bg = image.NewGray(trimap.Rect)
	fg = image.NewGray(trimap.Rect)
	for i, v := range trimap.Pix {
		switch v {
		case 0:
			bg.Pix[i] = 255
		case 255:
			fg.Pix[i] = 255
		}
	}
	return bg, fg
}

// PlaneOptions 输出平面解码参数
type PlaneOptions struct {
	Sigmoid bool // 先做 sigmoid
	MinMax  bool // 再做 min-max 归一化
}

// PlaneToGray 将输出张量的第 c 个通道解码为单通道图片, 数值截断到 [0, 1] 后乘以 255
func PlaneToGray(t *Tensor, c int, opts PlaneOptions) (*image.Gray, error) {
	plane, w, h, err := t.Plane(c)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(plane))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range plane {
		f := float64(v)
		if opts.Sigmoid {
			f = 1 / (1 + math.Exp(-f))
		}
		values[i] = f
		lo = math.Min(lo, f)
		hi = math.Max(hi, f)
	}

	g := image.NewGray(image.Rect(0, 0, w, h))
	for i, f := range values {
		if opts.MinMax {
			if hi > lo {
				f = (f - lo) / (hi - lo)
			} else {
				f = 0
			}
		}
		g.Pix[i] = toByte(f)
	}
	return g, nil
}

func toByte(f float64) uint8 {
	if f <= 0 || math.IsNaN(f) {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(f*255 + 0.5)
}

// ScaleGray 使用 Catmull-Rom 插值缩放到指定尺寸
func ScaleGray(g *image.Gray, w, h int) *image.Gray {
	if g.Rect.Dx() == w && g.Rect.Dy() == h && g.Rect.Min == (image.Point{}) {
		return g
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), g, g.Bounds(), xdraw.Src, nil)
	return dst
}

// ZeroWhereBackground 将 trimap 中确定为背景的区域置零, 返回新图片
func ZeroWhereBackground(mask, trimap *image.Gray) (*image.Gray, error) {
	mask = carve.ToGray(mask)
	trimap = carve.ToGray(trimap)
	if mask.Rect != trimap.Rect {
		return nil, carve.ErrSizeMismatch
	}
	out := image.NewGray(mask.Rect)
	for i, v := range mask.Pix {
		if trimap.Pix[i] != 0 {
			out.Pix[i] = v
		}
	}
	return out, nil
}

// Threshold 将低于 limit 的像素置零, 返回新图片
func Threshold(g *image.Gray, limit uint8) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v >= limit {
			out.Pix[i] = v
		}
	}
	return out
}

// TrimapTransform 根据 trimap 前景/背景平面的距离变换生成 6 通道的 [1, 6, H, W] 编码
func TrimapTransform(bg, fg *image.Gray) (*Tensor, error) {
	w, h := bg.Rect.Dx(), bg.Rect.Dy()
	t := Zeros(1, 6, int64(h), int64(w))
	area := w * h
	const l = 320.0
	scales := [3]float64{0.02, 0.08, 0.16}

	for k, plane := range []*image.Gray{bg, fg} {
		dist, ok, err := squaredDistance(plane)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for s, scale := range scales {
			den := 2 * (scale * l) * (scale * l)
			out := t.Data[(3*k+s)*area : (3*k+s+1)*area]
			for i, d := range dist {
				out[i] = float32(math.Exp(-d / den))
			}
		}
	}
	return t, nil
}

// squaredDistance 每个像素到平面中最近的置位像素 (值 > 127) 的欧氏距离平方, 平面为空时 ok 为 false
func squaredDistance(plane *image.Gray) (dist []float64, ok bool, err error) {
	w, h := plane.Rect.Dx(), plane.Rect.Dy()
	// 置位像素为 0, 其余为 255, 距离变换求到最近零值像素的距离
	src := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := plane.Pix[plane.PixOffset(plane.Rect.Min.X, plane.Rect.Min.Y+y):]
		for x := 0; x < w; x++ {
			if row[x] > 127 {
				ok = true
			} else {
				src[y*w+x] = 255
			}
		}
	}
	if !ok {
		return nil, false, nil
	}

	m, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, src)
	if err != nil {
		return nil, false, fmt.Errorf("创建 Mat 失败: %w", err)
	}
	defer m.Close()
	out := gocv.NewMat()
	defer out.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	if err := gocv.DistanceTransform(m, &out, &labels, gocv.DistL2, gocv.DistanceMaskPrecise, gocv.DistanceLabelCComp); err != nil {
		return nil, false, fmt.Errorf("距离变换失败: %w", err)
	}

	dist = make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := float64(out.GetFloatAt(y, x))
			dist[y*w+x] = d * d
		}
	}
	return dist, true, nil
}
