// Package detect YOLOv4 物体检测, 为自动预处理提供图片中的物体类别
package detect

import (
	"context"
	"fmt"
	"image"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/download"
	"github.com/getcharzp/go-carve/nn"
	"github.com/up-zero/gotool/convertutil"
	"github.com/up-zero/gotool/imageutil"
	"go.uber.org/zap"
)

// Detection 检测结果, Box 为原图坐标
type Detection struct {
	ClassID int
	Class   string
	Score   float32
	Box     image.Rectangle
}

// Engine 物体检测引擎
type Engine struct {
	runner  *nn.Runner
	config  Config
	groupOf map[string]Group
}

// NewEngine 使用已加载的网络创建检测引擎
func NewEngine(net nn.Network, cfg Config, logger *zap.Logger) (*Engine, error) {
	if net == nil {
		return nil, fmt.Errorf("%w: 未指定检测网络", carve.ErrInvalidConfig)
	}
	if cfg.InputSize <= 0 || len(cfg.Classes) == 0 {
		return nil, fmt.Errorf("%w: 输入尺寸或类别无效", carve.ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	groupOf := make(map[string]Group)
	for g, classes := range cfg.Groups {
		for _, c := range classes {
			groupOf[c] = g
		}
	}
	return &Engine{
		runner: &nn.Runner{
			Network:   net,
			BatchSize: cfg.BatchSize,
			Workers:   cfg.Workers,
			Device:    cfg.Device,
			FP16:      cfg.FP16,
			Logger:    logger.With(zap.String("stage", "detect")),
		},
		config:  cfg,
		groupOf: groupOf,
	}, nil
}

// Open 通过下载器获取模型并创建检测引擎
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

// Detect 批量检测, 每张图片的结果按置信度从高到低排列
func (e *Engine) Detect(ctx context.Context, images []image.Image) ([][]Detection, error) {
	results := make([][]Detection, len(images))
	err := e.runner.Run(ctx, len(images),
		func(_ context.Context, i int) ([]*nn.Tensor, error) {
			resized := imageutil.Resize(carve.ToRGB(images[i]), e.config.InputSize, e.config.InputSize)
			return []*nn.Tensor{nn.RGBTensor(resized, nn.RGBOptions{})}, nil
		},
		func(_ context.Context, i int, outputs []*nn.Tensor) error {
			if len(outputs) < 2 {
				return fmt.Errorf("%w: 输出 %d 个, 期望 2 个", carve.ErrLengthMismatch, len(outputs))
			}
			d, err := e.postprocess(outputs[0], outputs[1], images[i].Bounds().Size())
			if err != nil {
				return err
			}
			results[i] = d
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("物体检测失败: %w", err)
	}
	return results, nil
}

// Objects 每张图片中检测到的物体分组, 每个检测框一项, 不属于任何分组的类别被忽略
func (e *Engine) Objects(ctx context.Context, images []image.Image) ([][]Group, error) {
	detections, err := e.Detect(ctx, images)
	if err != nil {
		return nil, err
	}
	out := make([][]Group, len(detections))
	for i, ds := range detections {
		out[i] = []Group{}
		for _, d := range ds {
			if g, ok := e.groupOf[d.Class]; ok {
				out[i] = append(out[i], g)
			}
		}
	}
	return out, nil
}

// postprocess 解析检测框与置信度, 坐标为相对输入的 [0, 1] 比例 (x1, y1, x2, y2)
func (e *Engine) postprocess(boxes, confs *nn.Tensor, size image.Point) ([]Detection, error) {
	numClasses := len(e.config.Classes)
	n := len(boxes.Data) / 4
	if len(boxes.Data) != n*4 || len(confs.Data) != n*numClasses {
		return nil, fmt.Errorf("%w: 检测框 %v 与置信度 %v 形状不匹配", carve.ErrLengthMismatch, boxes.Shape, confs.Shape)
	}

	bounds := image.Rectangle{Max: size}
	var cands []candidate
	for k := 0; k < n; k++ {
		scores := confs.Data[k*numClasses : (k+1)*numClasses]
		classID, best := 0, scores[0]
		for c, s := range scores {
			if s > best {
				classID, best = c, s
			}
		}
		if best <= e.config.ConfThreshold {
			continue
		}
		b := boxes.Data[k*4 : k*4+4]
		box := image.Rect(
			int(b[0]*float32(size.X)), int(b[1]*float32(size.Y)),
			int(b[2]*float32(size.X)), int(b[3]*float32(size.Y)),
		).Intersect(bounds)
		if box.Empty() {
			continue
		}
		cands = append(cands, candidate{classID: classID, score: best, box: box})
	}

	kept := nms(cands, e.config.IOUThreshold)
	out := make([]Detection, len(kept))
	for i, c := range kept {
		out[i] = Detection{ClassID: c.classID, Class: e.config.Classes[c.classID], Score: c.score, Box: c.box}
	}
	return out, nil
}
