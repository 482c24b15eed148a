// Package pipeline 根据 carve.PipelineConfig 组装完整的背景去除流水线
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/detect"
	"github.com/getcharzp/go-carve/download"
	"github.com/getcharzp/go-carve/matting"
	"github.com/getcharzp/go-carve/postprocess"
	"github.com/getcharzp/go-carve/refine"
	"github.com/getcharzp/go-carve/scene"
	"github.com/getcharzp/go-carve/segment"
	"github.com/getcharzp/go-carve/trimap"
	"go.uber.org/zap"
)

// 各场景使用的分割网络
var sceneNetworks = map[scene.Scene]carve.SegNetwork{
	scene.SceneHard:    carve.NetTracerB7,
	scene.SceneSoft:    carve.NetU2Net,
	scene.SceneDigital: carve.NetTracerB7,
}

type destroyer interface {
	Destroy() error
}

// Pipeline 组装好的流水线, 使用完毕后需要调用 Destroy
type Pipeline struct {
	*carve.Interface

	config    carve.PipelineConfig
	resources []destroyer
}

// Config 构造流水线时使用的配置
func (p *Pipeline) Config() carve.PipelineConfig {
	return p.config
}

// Destroy 释放所有网络
func (p *Pipeline) Destroy() error {
	var errs []error
	for _, r := range p.resources {
		if err := r.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	p.resources = nil
	return errors.Join(errs...)
}

// builder 构造过程中的状态, 同一个分割网络只加载一次
type builder struct {
	cfg      carve.PipelineConfig
	opts     options
	p        *Pipeline
	segments map[carve.SegNetwork]*segment.Engine
}

// Build 根据配置组装流水线, 每个模型只通过下载器获取一次
//
// # Params:
//
//	cfg: 流水线配置, 会先经过 Validate 校验
//	opts: 下载器、加载方式与日志等可选参数
func Build(ctx context.Context, cfg carve.PipelineConfig, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.downloader == nil {
		o.downloader = download.DefaultDownloader(download.ResolveCacheDir(cfg.CheckpointsDir), o.logger)
	}

	b := &builder{
		cfg:      cfg,
		opts:     o,
		p:        &Pipeline{config: cfg},
		segments: make(map[carve.SegNetwork]*segment.Engine),
	}
	if err := b.build(ctx); err != nil {
		b.p.Destroy()
		return nil, err
	}
	o.logger.Info("流水线已就绪",
		zap.String("segmentation", string(cfg.SegmentationNetwork)),
		zap.String("preprocessing", string(cfg.PreprocessingMethod)),
		zap.String("postprocessing", string(cfg.PostprocessingMethod)),
		zap.String("device", string(cfg.Device)),
	)
	return b.p, nil
}

func (b *builder) build(ctx context.Context) error {
	seg, err := b.segmenter(ctx, b.cfg.SegmentationNetwork, true)
	if err != nil {
		return err
	}
	pre, err := b.preprocessor(ctx)
	if err != nil {
		return err
	}
	post, err := b.postprocessor(ctx)
	if err != nil {
		return err
	}

	ifaceOpts := []carve.InterfaceOption{
		carve.WithWorkers(b.cfg.Workers),
		carve.WithLogger(b.opts.logger),
	}
	if pre != nil {
		ifaceOpts = append(ifaceOpts, carve.WithPreprocessing(pre))
	}
	if post != nil {
		ifaceOpts = append(ifaceOpts, carve.WithPostprocessing(post))
	}
	b.p.Interface = carve.NewInterface(seg, ifaceOpts...)
	return nil
}

// segmenter 加载分割网络, primary 表示流水线的主分割网络, 使用配置中的尺寸与批大小
func (b *builder) segmenter(ctx context.Context, network carve.SegNetwork, primary bool) (*segment.Engine, error) {
	if e, ok := b.segments[network]; ok {
		return e, nil
	}
	segCfg, err := segment.ConfigFor(network)
	if err != nil {
		return nil, err
	}
	if primary {
		segCfg.InputSize = b.cfg.SegMaskSize
	}
	segCfg.BatchSize = b.cfg.BatchSizeSeg
	segCfg.Device = b.cfg.Device
	segCfg.FP16 = b.cfg.FP16
	segCfg.Workers = b.cfg.Workers
	b.runtime(&segCfg.OnnxRuntimeLibPath, &segCfg.NumThreads)

	e, err := segment.Open(ctx, b.opts.downloader, b.opts.loader, segCfg, b.opts.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化分割网络 %s 失败: %w", network, err)
	}
	b.p.resources = append(b.p.resources, e)
	b.segments[network] = e
	return e, nil
}

func (b *builder) preprocessor(ctx context.Context) (carve.Preprocessor, error) {
	if b.cfg.PreprocessingMethod == carve.PreNone {
		return nil, nil
	}

	sceneCfg := scene.DefaultConfig()
	sceneCfg.BatchSize = b.cfg.BatchSizePre
	sceneCfg.Device = b.cfg.Device
	sceneCfg.FP16 = b.cfg.FP16
	sceneCfg.Workers = b.cfg.Workers
	b.runtime(&sceneCfg.OnnxRuntimeLibPath, &sceneCfg.NumThreads)
	classifier, err := scene.OpenClassifier(ctx, b.opts.downloader, b.opts.loader, sceneCfg, b.opts.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化场景分类网络失败: %w", err)
	}
	b.p.resources = append(b.p.resources, classifier)

	if b.cfg.PreprocessingMethod == carve.PreAuto {
		return b.autoPreprocessor(ctx, classifier)
	}

	networks := make(map[scene.Scene]carve.Segmenter, len(sceneNetworks))
	for s, network := range sceneNetworks {
		e, err := b.segmenter(ctx, network, false)
		if err != nil {
			return nil, err
		}
		networks[s] = e
	}
	return &scene.AutoScene{Classifier: classifier, Networks: networks, Logger: b.opts.logger}, nil
}

// autoPreprocessor 加载物体检测网络, 与场景分类一起为每张图片选择分割网络
func (b *builder) autoPreprocessor(ctx context.Context, classifier *scene.Classifier) (carve.Preprocessor, error) {
	detectCfg := detect.DefaultConfig()
	detectCfg.BatchSize = b.cfg.BatchSizePre
	detectCfg.Device = b.cfg.Device
	detectCfg.FP16 = b.cfg.FP16
	detectCfg.Workers = b.cfg.Workers
	b.runtime(&detectCfg.OnnxRuntimeLibPath, &detectCfg.NumThreads)
	detector, err := detect.Open(ctx, b.opts.downloader, b.opts.loader, detectCfg, b.opts.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化物体检测网络失败: %w", err)
	}
	b.p.resources = append(b.p.resources, detector)

	networks := make(map[carve.SegNetwork]carve.Segmenter, 2)
	for _, network := range []carve.SegNetwork{carve.NetTracerB7, carve.NetU2Net} {
		e, err := b.segmenter(ctx, network, false)
		if err != nil {
			return nil, err
		}
		networks[network] = e
	}
	return &scene.Auto{
		Classifier: classifier,
		Objects:    detector,
		Networks:   networks,
		Logger:     b.opts.logger,
	}, nil
}

func (b *builder) postprocessor(ctx context.Context) (carve.Postprocessor, error) {
	if b.cfg.PostprocessingMethod == carve.PostNone {
		return nil, nil
	}

	mattingCfg := matting.DefaultConfig()
	mattingCfg.InputSize = b.cfg.MattingMaskSize
	mattingCfg.BatchSize = b.cfg.BatchSizeMatting
	mattingCfg.Device = b.cfg.Device
	mattingCfg.FP16 = b.cfg.FP16
	mattingCfg.Workers = b.cfg.Workers
	b.runtime(&mattingCfg.OnnxRuntimeLibPath, &mattingCfg.NumThreads)
	fba, err := matting.Open(ctx, b.opts.downloader, b.opts.loader, mattingCfg, b.opts.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化抠图网络失败: %w", err)
	}
	b.p.resources = append(b.p.resources, fba)

	gen := trimap.Generator{
		ProbThreshold:   b.cfg.TrimapProbThreshold,
		KernelSize:      b.cfg.TrimapDilation,
		ErosionIters:    b.cfg.TrimapErosion,
		FilterThreshold: -1,
	}
	if b.cfg.PostprocessingMethod == carve.PostFBA {
		return &postprocess.MattingMethod{Matting: fba, Trimap: gen, Workers: b.cfg.Workers}, nil
	}

	refineCfg := refine.DefaultConfig()
	refineCfg.InputSize = b.cfg.RefineMaskSize
	refineCfg.BatchSize = b.cfg.BatchSizeRefine
	refineCfg.Device = b.cfg.Device
	refineCfg.FP16 = b.cfg.FP16
	refineCfg.Workers = b.cfg.Workers
	b.runtime(&refineCfg.OnnxRuntimeLibPath, &refineCfg.NumThreads)
	psp, err := refine.Open(ctx, b.opts.downloader, b.opts.loader, refineCfg, b.opts.logger)
	if err != nil {
		return nil, fmt.Errorf("初始化细化网络失败: %w", err)
	}
	b.p.resources = append(b.p.resources, psp)

	return &postprocess.CasMattingMethod{Refiner: psp, Matting: fba, Trimap: gen, Workers: b.cfg.Workers}, nil
}

// runtime 使用配置中的 ONNX Runtime 参数覆盖默认值
func (b *builder) runtime(libPath *string, threads *int) {
	if b.cfg.OnnxRuntimeLibPath != "" {
		*libPath = b.cfg.OnnxRuntimeLibPath
	}
	if b.cfg.NumThreads > 0 {
		*threads = b.cfg.NumThreads
	}
}
