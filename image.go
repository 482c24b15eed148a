package carve

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Source 图片来源, 支持以下类型:
//
//	string: 本地文件路径
//	[]byte: 编码后的图片数据
//	io.Reader: 编码后的图片数据流
//	image.Image: 已解码的图片
type Source any

// LoadImage 将图片来源解码为 image.Image, 文件路径与字节数据会按 EXIF 方向自动旋转
func LoadImage(src Source) (image.Image, error) {
	switch v := src.(type) {
	case image.Image:
		if v == nil {
			return nil, ErrUnsupportedSource
		}
		return v, nil
	case string:
		img, err := imaging.Open(v, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("打开图片 %s 失败: %w", v, err)
		}
		return img, nil
	case []byte:
		img, err := imaging.Decode(bytes.NewReader(v), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("解码图片失败: %w", err)
		}
		return img, nil
	case io.Reader:
		img, err := imaging.Decode(v, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("解码图片失败: %w", err)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, src)
	}
}

// LoadImages 并发加载所有图片, 返回顺序与输入一致
func LoadImages(ctx context.Context, sources []Source, workers int) ([]image.Image, error) {
	return ParallelMap(ctx, sources, workers, func(_ context.Context, _ int, src Source) (image.Image, error) {
		return LoadImage(src)
	})
}

// ToRGB 转为不透明的 NRGBA 图片 (三通道语义): 保留原 RGB 数值并丢弃 alpha, 原图不会被修改
func ToRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// ToGray 转为单通道灰度图, 原图不会被修改
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return dst
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// IsGray 判断图片是否为单通道
func IsGray(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Alpha, *image.Alpha16:
		return true
	}
	return false
}
