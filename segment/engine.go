// Package segment 显著性/语义分割网络, 输出与原图尺寸一致的前景概率掩码
package segment

import (
	"context"
	"fmt"
	"image"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/download"
	"github.com/getcharzp/go-carve/nn"
	"github.com/up-zero/gotool/convertutil"
	"go.uber.org/zap"
)

// Engine 分割引擎, 实现 carve.Segmenter
type Engine struct {
	runner *nn.Runner
	config Config
}

// NewEngine 使用已加载的网络创建分割引擎
func NewEngine(net nn.Network, cfg Config, logger *zap.Logger) (*Engine, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: 未指定分割网络", carve.ErrInvalidConfig)
	}
	if cfg.InputSize <= 0 {
		return nil, fmt.Errorf("%w: 输入尺寸必须大于 0", carve.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		runner: &nn.Runner{
			Network:   net,
			BatchSize: cfg.BatchSize,
			Workers:   cfg.Workers,
			Device:    cfg.Device,
			FP16:      cfg.FP16,
			Logger:    logger.With(zap.String("stage", "segmentation"), zap.String("network", string(cfg.Network))),
		},
		config: cfg,
	}, nil
}

// Open 通过下载器获取模型并创建分割引擎
//
// # Params:
//
//	d: 模型下载器
//	load: 模型加载方式, 为 nil 时使用 ONNX Runtime
func Open(ctx context.Context, d download.Downloader, load nn.Loader, cfg Config, logger *zap.Logger) (*Engine, error) {
	spec := new(nn.ModelSpec)
	if err := convertutil.CopyProperties(cfg, spec); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	net, err := nn.Open(ctx, d, load, *spec)
	if err != nil {
		return nil, err
	}
	e, err := NewEngine(net, cfg, logger)
	if err != nil {
		nn.Destroy(net)
		return nil, err
	}
	return e, nil
}

// Config 引擎配置
func (e *Engine) Config() Config {
	return e.config
}

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	return nn.Destroy(e.runner.Network)
}

// Segment 批量分割, 返回的掩码与 images 一一对应, 尺寸与原图一致
func (e *Engine) Segment(ctx context.Context, images []image.Image) ([]*image.Gray, error) {
	masks := make([]*image.Gray, len(images))
	err := e.runner.Run(ctx, len(images),
		func(_ context.Context, i int) ([]*nn.Tensor, error) {
			return []*nn.Tensor{e.preprocess(images[i])}, nil
		},
		func(_ context.Context, i int, outputs []*nn.Tensor) error {
			mask, err := e.postprocess(outputs[0], images[i].Bounds())
			if err != nil {
				return err
			}
			masks[i] = mask
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("分割失败: %w", err)
	}
	return masks, nil
}

// Predict 分割单张图片
func (e *Engine) Predict(ctx context.Context, img image.Image) (*image.Gray, error) {
	masks, err := e.Segment(ctx, []image.Image{img})
	if err != nil {
		return nil, err
	}
	return masks[0], nil
}

// preprocess 预处理
func (e *Engine) preprocess(img image.Image) *nn.Tensor {
	resized := nn.FitForBatch(carve.ToRGB(img), e.config.BatchSize, e.config.InputSize)
	return nn.RGBTensor(resized, nn.RGBOptions{Mean: e.config.Mean, Std: e.config.Std})
}

// postprocess 解码输出并缩放回原图尺寸
func (e *Engine) postprocess(output *nn.Tensor, bounds image.Rectangle) (*image.Gray, error) {
	var (
		mask *image.Gray
		err  error
	)
	if e.config.ClassIndex >= 0 {
		mask, err = argMaxMask(output, e.config.ClassIndex)
	} else {
		mask, err = nn.PlaneToGray(output, 0, nn.PlaneOptions{Sigmoid: e.config.Sigmoid, MinMax: e.config.MinMax})
	}
	if err != nil {
		return nil, fmt.Errorf("解码输出失败: %w", err)
	}
	return nn.ScaleGray(mask, bounds.Dx(), bounds.Dy()), nil
}

// argMaxMask 取每个像素得分最高的类别, 等于 class 的像素为 255
func argMaxMask(output *nn.Tensor, class int) (*image.Gray, error) {
	if len(output.Shape) != 4 || int64(class) >= output.Shape[1] {
		return nil, fmt.Errorf("类别 %d 超出输出形状 %v", class, output.Shape)
	}
	target, w, h, err := output.Plane(class)
	if err != nil {
		return nil, err
	}
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for i := range mask.Pix {
		mask.Pix[i] = 255
	}
	for c := 0; c < int(output.Shape[1]); c++ {
		if c == class {
			continue
		}
		plane, _, _, err := output.Plane(c)
		if err != nil {
			return nil, err
		}
		for i, v := range plane {
			// 并列时取较小的类别编号
			if v > target[i] || (v == target[i] && c < class) {
				mask.Pix[i] = 0
			}
		}
	}
	return mask, nil
}
