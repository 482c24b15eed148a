// Package refine CascadePSP 掩码细化, 根据原图修正分割掩码的边缘
package refine

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

// Engine 掩码细化引擎
type Engine struct {
	runner *nn.Runner
	config Config
}

// NewEngine 使用已加载的网络创建细化引擎
func NewEngine(net nn.Network, cfg Config, logger *zap.Logger) (*Engine, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: 未指定细化网络", carve.ErrInvalidConfig)
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
			Logger:    logger.With(zap.String("stage", "refine")),
		},
		config: cfg,
	}, nil
}

// Open 通过下载器获取模型并创建细化引擎
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

// Refine 细化掩码, 返回的掩码与输入一一对应, 尺寸与原图一致
//
// # Params:
//
//	images: 原图
//	masks: 分割掩码, 与 images 等长且尺寸一致
func (e *Engine) Refine(ctx context.Context, images []image.Image, masks []*image.Gray) ([]*image.Gray, error) {
	if len(images) != len(masks) {
		return nil, fmt.Errorf("%w: 图片 %d 张, 掩码 %d 张", carve.ErrLengthMismatch, len(images), len(masks))
	}
	for i := range images {
		ib, mb := images[i].Bounds(), masks[i].Bounds()
		if ib.Size() != mb.Size() {
			return nil, fmt.Errorf("%w: 第 %d 张", carve.ErrSizeMismatch, i)
		}
	}

	refined := make([]*image.Gray, len(images))
	err := e.runner.Run(ctx, len(images),
		func(_ context.Context, i int) ([]*nn.Tensor, error) {
			return e.preprocess(images[i], masks[i]), nil
		},
		func(_ context.Context, i int, outputs []*nn.Tensor) error {
			mask, err := nn.PlaneToGray(outputs[0], 0, nn.PlaneOptions{})
			if err != nil {
				return fmt.Errorf("解码输出失败: %w", err)
			}
			b := images[i].Bounds()
			refined[i] = nn.ScaleGray(mask, b.Dx(), b.Dy())
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("细化失败: %w", err)
	}
	return refined, nil
}

// preprocess 图片按 ImageNet 归一化, 掩码归一化到 [-1, 1]
func (e *Engine) preprocess(img image.Image, mask *image.Gray) []*nn.Tensor {
	resized := nn.FitForBatch(carve.ToRGB(img), e.config.BatchSize, e.config.InputSize)
	size := resized.Bounds().Size()
	m := nn.ScaleGray(carve.ToGray(mask), size.X, size.Y)

	maskTensor := nn.GrayTensor(m)
	for i, v := range maskTensor.Data {
		maskTensor.Data[i] = (v - 0.5) / 0.5
	}
	return []*nn.Tensor{
		nn.RGBTensor(resized, nn.RGBOptions{Mean: e.config.Mean, Std: e.config.Std}),
		maskTensor,
	}
}
