// Package matting FBA 抠图, 在 trimap 的未知区域内估计精细的 alpha 通道
package matting

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

// noiseLimit alpha 低于 0.3 的像素视为噪声
const noiseLimit = 77

// Engine FBA 抠图引擎
type Engine struct {
	runner *nn.Runner
	config Config
}

// NewEngine 使用已加载的网络创建抠图引擎
func NewEngine(net nn.Network, cfg Config, logger *zap.Logger) (*Engine, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: 未指定抠图网络", carve.ErrInvalidConfig)
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
			Logger:    logger.With(zap.String("stage", "matting")),
		},
		config: cfg,
	}, nil
}

// Open 通过下载器获取模型并创建抠图引擎
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

// Destroy 释放相关资源
func (e *Engine) Destroy() error {
	return nn.Destroy(e.runner.Network)
}

// Matte 估计 alpha 通道
//
// # Params:
//
//	images: 原图
//	trimaps: 与 images 等长且尺寸一致的 trimap
func (e *Engine) Matte(ctx context.Context, images []image.Image, trimaps []*image.Gray) ([]*image.Gray, error) {
	if len(images) != len(trimaps) {
		return nil, fmt.Errorf("%w: 图片 %d 张, trimap %d 张", carve.ErrLengthMismatch, len(images), len(trimaps))
	}
	for i := range images {
		if images[i].Bounds().Size() != trimaps[i].Bounds().Size() {
			return nil, fmt.Errorf("%w: 第 %d 张", carve.ErrSizeMismatch, i)
		}
	}

	alphas := make([]*image.Gray, len(images))
	err := e.runner.Run(ctx, len(images),
		func(_ context.Context, i int) ([]*nn.Tensor, error) {
			return e.preprocess(images[i], trimaps[i])
		},
		func(_ context.Context, i int, outputs []*nn.Tensor) error {
			alpha, err := e.postprocess(outputs[0], trimaps[i])
			if err != nil {
				return err
			}
			alphas[i] = alpha
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("抠图失败: %w", err)
	}
	return alphas, nil
}

// preprocess 生成网络的四个输入
func (e *Engine) preprocess(img image.Image, trimap *image.Gray) ([]*nn.Tensor, error) {
	resized := nn.FitForBatch(carve.ToRGB(img), e.config.BatchSize, e.config.InputSize)
	padded := nn.PadToStride(resized, e.config.Stride)

	// trimap 与图片同样缩放后再拆分为前景/背景平面
	t := carve.ToGray(nn.FitForBatch(trimap, e.config.BatchSize, e.config.InputSize))
	bg, fg := nn.OneHotPlanes(t)
	bg = carve.ToGray(nn.PadToStride(bg, e.config.Stride))
	fg = carve.ToGray(nn.PadToStride(fg, e.config.Stride))

	transformed, err := nn.TrimapTransform(bg, fg)
	if err != nil {
		return nil, fmt.Errorf("trimap 距离变换失败: %w", err)
	}
	return []*nn.Tensor{
		nn.RGBTensor(padded, nn.RGBOptions{Reverse: true}),
		nn.PlanesTensor(bg, fg),
		nn.RGBTensor(padded, nn.RGBOptions{Reverse: true, Mean: e.config.Mean, Std: e.config.Std}),
		transformed,
	}, nil
}

// postprocess 缩放回 trimap 尺寸, 清除确定背景区域与噪声
func (e *Engine) postprocess(output *nn.Tensor, trimap *image.Gray) (*image.Gray, error) {
	alpha, err := nn.PlaneToGray(output, 0, nn.PlaneOptions{})
	if err != nil {
		return nil, fmt.Errorf("解码输出失败: %w", err)
	}
	b := trimap.Bounds()
	alpha, err = nn.ZeroWhereBackground(nn.ScaleGray(alpha, b.Dx(), b.Dy()), trimap)
	if err != nil {
		return nil, err
	}
	if !e.config.DisableNoiseFilter {
		alpha = nn.Threshold(alpha, noiseLimit)
	}
	return alpha, nil
}
