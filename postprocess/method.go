// Package postprocess 后处理方法: 根据分割掩码生成 trimap, 再用抠图网络得到精细的 alpha
package postprocess

import (
	"context"
	"fmt"
	"image"

	"github.com/getcharzp/go-carve"
)

// Matting 抠图阶段, 参考 matting.Engine
type Matting interface {
	Matte(ctx context.Context, images []image.Image, trimaps []*image.Gray) ([]*image.Gray, error)
}

// Refiner 掩码细化阶段, 参考 refine.Engine
type Refiner interface {
	Refine(ctx context.Context, images []image.Image, masks []*image.Gray) ([]*image.Gray, error)
}

// TrimapGenerator trimap 生成器, 参考 trimap.Generator 与 trimap.CVGenerator
type TrimapGenerator interface {
	Generate(img image.Image, mask *image.Gray) (*image.Gray, error)
}

// MattingMethod 分割掩码 -> trimap -> 抠图 -> 合成
type MattingMethod struct {
	Matting Matting
	Trimap  TrimapGenerator
	Workers int // 生成 trimap 与合成的并发数, 小于等于 0 时使用 carve.DefaultWorkers
}

// Postprocess 实现 carve.Postprocessor
func (m *MattingMethod) Postprocess(ctx context.Context, images []image.Image, masks []*image.Gray) ([]image.Image, error) {
	return run(ctx, nil, m.Matting, m.Trimap, m.Workers, images, masks)
}

// CasMattingMethod 先用 CascadePSP 细化分割掩码, 再执行 MattingMethod 的流程
type CasMattingMethod struct {
	Refiner Refiner
	Matting Matting
	Trimap  TrimapGenerator
	Workers int
}

// Postprocess 实现 carve.Postprocessor
func (m *CasMattingMethod) Postprocess(ctx context.Context, images []image.Image, masks []*image.Gray) ([]image.Image, error) {
	if m.Refiner == nil {
		return nil, fmt.Errorf("%w: 未指定细化网络", carve.ErrInvalidConfig)
	}
	return run(ctx, m.Refiner, m.Matting, m.Trimap, m.Workers, images, masks)
}

func run(ctx context.Context, refiner Refiner, matting Matting, gen TrimapGenerator, workers int,
	images []image.Image, masks []*image.Gray) ([]image.Image, error) {
	if len(images) != len(masks) {
		return nil, fmt.Errorf("%w: 图片 %d 张, 掩码 %d 张", carve.ErrLengthMismatch, len(images), len(masks))
	}
	if matting == nil || gen == nil {
		return nil, fmt.Errorf("%w: 未指定抠图网络或 trimap 生成器", carve.ErrInvalidConfig)
	}
	if workers <= 0 {
		workers = carve.DefaultWorkers
	}

	// 统一颜色模式
	rgb, err := carve.ParallelMap(ctx, images, workers, func(_ context.Context, _ int, img image.Image) (image.Image, error) {
		return carve.ToRGB(img), nil
	})
	if err != nil {
		return nil, err
	}
	gray, err := carve.ParallelMap(ctx, masks, workers, func(_ context.Context, _ int, m *image.Gray) (*image.Gray, error) {
		return carve.ToGray(m), nil
	})
	if err != nil {
		return nil, err
	}

	if refiner != nil {
		gray, err = refiner.Refine(ctx, rgb, gray)
		if err != nil {
			return nil, fmt.Errorf("细化掩码失败: %w", err)
		}
		if len(gray) != len(rgb) {
			return nil, fmt.Errorf("%w: 图片 %d 张, 细化掩码 %d 张", carve.ErrLengthMismatch, len(rgb), len(gray))
		}
	}

	trimaps, err := carve.ParallelMap(ctx, gray, workers, func(_ context.Context, i int, m *image.Gray) (*image.Gray, error) {
		return gen.Generate(rgb[i], m)
	})
	if err != nil {
		return nil, fmt.Errorf("生成 trimap 失败: %w", err)
	}

	alphas, err := matting.Matte(ctx, rgb, trimaps)
	if err != nil {
		return nil, fmt.Errorf("抠图失败: %w", err)
	}
	if len(alphas) != len(rgb) {
		return nil, fmt.Errorf("%w: 图片 %d 张, alpha %d 张", carve.ErrLengthMismatch, len(rgb), len(alphas))
	}

	return carve.ParallelMap(ctx, rgb, workers, func(_ context.Context, i int, img image.Image) (image.Image, error) {
		out, err := carve.ApplyMask(img, alphas[i])
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}
