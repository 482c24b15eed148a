// Package scene 场景分类, 以及根据场景选择分割网络的预处理方法
package scene

import (
	"context"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/download"
	"github.com/getcharzp/go-carve/nn"
	"github.com/up-zero/gotool/convertutil"
	"github.com/up-zero/gotool/imageutil"
	"go.uber.org/zap"
)

// Classifier 场景分类引擎
type Classifier struct {
	runner *nn.Runner
	config Config
}

// NewClassifier 使用已加载的网络创建分类引擎
func NewClassifier(net nn.Network, cfg Config, logger *zap.Logger) (*Classifier, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: 未指定分类网络", carve.ErrInvalidConfig)
	}
	if cfg.InputSize <= 0 || len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("%w: 输入尺寸或类别无效", carve.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		runner: &nn.Runner{
			Network:   net,
			BatchSize: cfg.BatchSize,
			Workers:   cfg.Workers,
			Device:    cfg.Device,
			FP16:      cfg.FP16,
			Logger:    logger.With(zap.String("stage", "scene")),
		},
		config: cfg,
	}, nil
}

// OpenClassifier 通过下载器获取模型并创建分类引擎
func OpenClassifier(ctx context.Context, d download.Downloader, load nn.Loader, cfg Config, logger *zap.Logger) (*Classifier, error) {
	spec := new(nn.ModelSpec)
	if err := convertutil.CopyProperties(cfg, spec); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	net, err := nn.Open(ctx, d, load, *spec)
	if err != nil {
		return nil, err
	}
	c, err := NewClassifier(net, cfg, logger)
	if err != nil {
		nn.Destroy(net)
		return nil, err
	}
	return c, nil
}

// Destroy 释放相关资源
func (c *Classifier) Destroy() error {
	return nn.Destroy(c.runner.Network)
}

// Classify 批量分类, 每张图片的结果按概率从高到低排列
func (c *Classifier) Classify(ctx context.Context, images []image.Image) ([][]ClassResult, error) {
	results := make([][]ClassResult, len(images))
	err := c.runner.Run(ctx, len(images),
		func(_ context.Context, i int) ([]*nn.Tensor, error) {
			resized := imageutil.Resize(carve.ToRGB(images[i]), c.config.InputSize, c.config.InputSize)
			return []*nn.Tensor{nn.RGBTensor(resized, nn.RGBOptions{Mean: c.config.Mean, Std: c.config.Std})}, nil
		},
		func(_ context.Context, i int, outputs []*nn.Tensor) error {
			r, err := c.postprocess(outputs[0])
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("场景分类失败: %w", err)
	}
	return results, nil
}

// postprocess 对 logits 做 softmax 并排序
func (c *Classifier) postprocess(output *nn.Tensor) ([]ClassResult, error) {
	logits := output.Data
	if len(logits) != len(c.config.Classes) {
		return nil, fmt.Errorf("%w: 输出 %d 个类别, 期望 %d", carve.ErrLengthMismatch, len(logits), len(c.config.Classes))
	}

	maxLogit := math.Inf(-1)
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, float64(v))
	}
	var sum float64
	probs := make([]float64, len(logits))
	for i, v := range logits {
		probs[i] = math.Exp(float64(v) - maxLogit)
		sum += probs[i]
	}

	results := make([]ClassResult, len(logits))
	for i, p := range probs {
		results[i] = ClassResult{
			Scene: c.config.Classes[i],
			Score: float32(p / sum),
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}
