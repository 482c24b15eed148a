package carve

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"
)

// Segmenter 分割阶段, 每张图片输出一张与原图尺寸一致的掩码
type Segmenter interface {
	Segment(ctx context.Context, images []image.Image) ([]*image.Gray, error)
}

// Preprocessor 预处理阶段, 可以通过 iface.Segment 调用分割网络
type Preprocessor interface {
	Preprocess(ctx context.Context, iface *Interface, images []image.Image) ([]*image.Gray, error)
}

// Postprocessor 后处理阶段, 根据图片和掩码生成去除背景后的图片
type Postprocessor interface {
	Postprocess(ctx context.Context, images []image.Image, masks []*image.Gray) ([]image.Image, error)
}

// Interface 背景去除的统一入口: 加载 -> (预处理 | 分割) -> 后处理 -> 合成
type Interface struct {
	seg     Segmenter
	pre     Preprocessor
	post    Postprocessor
	workers int
	logger  *zap.Logger
}

// InterfaceOption Interface 的可选参数
type InterfaceOption func(*Interface)

// WithPreprocessing 设置预处理阶段
func WithPreprocessing(pre Preprocessor) InterfaceOption {
	return func(i *Interface) { i.pre = pre }
}

// WithPostprocessing 设置后处理阶段
func WithPostprocessing(post Postprocessor) InterfaceOption {
	return func(i *Interface) { i.post = post }
}

// WithWorkers 设置加载与合成的并发数
func WithWorkers(n int) InterfaceOption {
	return func(i *Interface) { i.workers = n }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) InterfaceOption {
	return func(i *Interface) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// NewInterface 创建 Interface, seg 为 nil 时调用 Remove 会返回 ErrNoSegmentation
func NewInterface(seg Segmenter, opts ...InterfaceOption) *Interface {
	i := &Interface{
		seg:     seg,
		workers: DefaultWorkers,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Segment 直接调用分割网络
func (i *Interface) Segment(ctx context.Context, images []image.Image) ([]*image.Gray, error) {
	if i.seg == nil {
		return nil, ErrNoSegmentation
	}
	masks, err := i.seg.Segment(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("分割失败: %w", err)
	}
	if len(masks) != len(images) {
		return nil, fmt.Errorf("%w: 图片 %d, 掩码 %d", ErrLengthMismatch, len(images), len(masks))
	}
	return masks, nil
}

// Remove 去除图片背景, 返回顺序与输入顺序一致
//
// # Params:
//
//	sources: 图片来源列表, 参考 Source
func (i *Interface) Remove(ctx context.Context, sources []Source) ([]image.Image, error) {
	if i.seg == nil {
		return nil, ErrNoSegmentation
	}
	if len(sources) == 0 {
		return nil, ErrEmptyInput
	}

	images, err := LoadImages(ctx, sources, i.workers)
	if err != nil {
		return nil, fmt.Errorf("加载图片失败: %w", err)
	}
	i.logger.Debug("图片加载完成", zap.Int("count", len(images)))

	var masks []*image.Gray
	if i.pre != nil {
		masks, err = i.pre.Preprocess(ctx, i, images)
		if err != nil {
			return nil, fmt.Errorf("预处理失败: %w", err)
		}
		if len(masks) != len(images) {
			return nil, fmt.Errorf("%w: 图片 %d, 掩码 %d", ErrLengthMismatch, len(images), len(masks))
		}
	} else {
		masks, err = i.Segment(ctx, images)
		if err != nil {
			return nil, err
		}
	}

	if i.post != nil {
		out, err := i.post.Postprocess(ctx, images, masks)
		if err != nil {
			return nil, fmt.Errorf("后处理失败: %w", err)
		}
		if len(out) != len(images) {
			return nil, fmt.Errorf("%w: 图片 %d, 后处理结果 %d", ErrLengthMismatch, len(images), len(out))
		}
		return out, nil
	}

	return ParallelMap(ctx, images, i.workers, func(_ context.Context, idx int, img image.Image) (image.Image, error) {
		out, err := ApplyMask(img, masks[idx])
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}
