package main

import (
	"fmt"

	"github.com/getcharzp/go-carve"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// app 子命令共享的状态
type app struct {
	configPath string
	verbose    bool
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	cmd := &cobra.Command{
		Use:   "carve",
		Short: "图片背景去除",
		Long:  "基于分割、细化与抠图网络的图片背景去除工具",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var (
				logger *zap.Logger
				err    error
			)
			if a.verbose {
				logger, err = zap.NewDevelopment()
			} else {
				logger, err = zap.NewProduction()
			}
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML 配置文件, 命令行参数优先")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "输出调试日志")

	cmd.AddCommand(removeBgCmd(a))
	cmd.AddCommand(downloadCmd(a))
	cmd.AddCommand(serveCmd(a))
	return cmd
}

// configFlags 与 carve.PipelineConfig 对应的命令行参数
type configFlags struct {
	net, pre, post, device string
	fp16                   bool

	batchSizePre, batchSizeSeg, batchSizeMat, batchSizeRefine int
	segMaskSize, mattingMaskSize, refineMaskSize              int
	trimapDilation, trimapErosion, trimapProbThreshold        int

	checkpointsDir string
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	def := carve.DefaultPipelineConfig()
	fs.StringVar(&f.net, "net", string(def.SegmentationNetwork), "分割网络: u2net, deeplabv3, basnet, tracer_b7, isnet")
	fs.StringVar(&f.pre, "pre", string(def.PreprocessingMethod), "预处理方法: none, autoscene, auto")
	fs.StringVar(&f.post, "post", string(def.PostprocessingMethod), "后处理方法: none, fba, cascade_fba")
	fs.StringVar(&f.device, "device", string(def.Device), "计算设备")
	fs.BoolVar(&f.fp16, "fp16", def.FP16, "尝试使用半精度")
	fs.IntVar(&f.batchSizePre, "batch_size_pre", def.BatchSizePre, "预处理网络的批大小")
	fs.IntVar(&f.batchSizeSeg, "batch_size_seg", def.BatchSizeSeg, "分割网络的批大小")
	fs.IntVar(&f.batchSizeMat, "batch_size_mat", def.BatchSizeMatting, "抠图网络的批大小")
	fs.IntVar(&f.batchSizeRefine, "batch_size_refine", def.BatchSizeRefine, "细化网络的批大小")
	fs.IntVar(&f.segMaskSize, "seg_mask_size", def.SegMaskSize, "分割网络的输入尺寸")
	fs.IntVar(&f.mattingMaskSize, "matting_mask_size", def.MattingMaskSize, "抠图网络的输入尺寸")
	fs.IntVar(&f.refineMaskSize, "refine_mask_size", def.RefineMaskSize, "细化网络的输入尺寸")
	fs.IntVar(&f.trimapDilation, "trimap_dilation", def.TrimapDilation, "未知区域向外扩展的像素数")
	fs.IntVar(&f.trimapErosion, "trimap_erosion", def.TrimapErosion, "形成未知区域前对掩码的腐蚀次数")
	fs.IntVar(&f.trimapProbThreshold, "trimap_prob_threshold", def.TrimapProbThreshold, "前景概率阈值")
	fs.StringVar(&f.checkpointsDir, "checkpoints_dir", "", "模型缓存目录")
}

// resolve 依次应用默认值、配置文件与显式指定的命令行参数
func (f *configFlags) resolve(fs *pflag.FlagSet, configPath string) (carve.PipelineConfig, error) {
	cfg := carve.DefaultPipelineConfig()
	if configPath != "" {
		var err error
		if cfg, err = carve.LoadConfig(configPath); err != nil {
			return cfg, err
		}
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("net", func() { cfg.SegmentationNetwork = carve.SegNetwork(f.net) })
	set("pre", func() { cfg.PreprocessingMethod = carve.PreMethod(f.pre) })
	set("post", func() { cfg.PostprocessingMethod = carve.PostMethod(f.post) })
	set("device", func() { cfg.Device = carve.Device(f.device) })
	set("fp16", func() { cfg.FP16 = f.fp16 })
	set("batch_size_pre", func() { cfg.BatchSizePre = f.batchSizePre })
	set("batch_size_seg", func() { cfg.BatchSizeSeg = f.batchSizeSeg })
	set("batch_size_mat", func() { cfg.BatchSizeMatting = f.batchSizeMat })
	set("batch_size_refine", func() { cfg.BatchSizeRefine = f.batchSizeRefine })
	set("seg_mask_size", func() { cfg.SegMaskSize = f.segMaskSize })
	set("matting_mask_size", func() { cfg.MattingMaskSize = f.mattingMaskSize })
	set("refine_mask_size", func() { cfg.RefineMaskSize = f.refineMaskSize })
	set("trimap_dilation", func() { cfg.TrimapDilation = f.trimapDilation })
	set("trimap_erosion", func() { cfg.TrimapErosion = f.trimapErosion })
	set("trimap_prob_threshold", func() { cfg.TrimapProbThreshold = f.trimapProbThreshold })
	set("checkpoints_dir", func() { cfg.CheckpointsDir = f.checkpointsDir })

	return cfg, cfg.Validate()
}
