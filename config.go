package carve

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SegNetwork 分割网络
type SegNetwork string

const (
	NetU2Net    SegNetwork = "u2net"
	NetDeepLab  SegNetwork = "deeplabv3"
	NetBASNet   SegNetwork = "basnet"
	NetTracerB7 SegNetwork = "tracer_b7"
	NetISNet    SegNetwork = "isnet"
)

// PreMethod 预处理方法
type PreMethod string

const (
	PreNone      PreMethod = "none"
	PreAutoScene PreMethod = "autoscene"
	PreAuto      PreMethod = "auto"
)

// PostMethod 后处理方法
type PostMethod string

const (
	PostNone       PostMethod = "none"
	PostFBA        PostMethod = "fba"
	PostCascadeFBA PostMethod = "cascade_fba"
)

// Device 计算设备, 例如 cpu, cuda, cuda:1
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// IsCUDA 是否为 CUDA 设备
func (d Device) IsCUDA() bool {
	return strings.HasPrefix(string(d), string(DeviceCUDA))
}

// CUDAIndex CUDA 设备编号, cuda 对应 "0", cuda:1 对应 "1", 非 CUDA 设备返回空字符串
func (d Device) CUDAIndex() string {
	if !d.IsCUDA() {
		return ""
	}
	if _, idx, ok := strings.Cut(string(d), ":"); ok && idx != "" {
		return idx
	}
	return "0"
}

// PipelineConfig 整条流水线的配置, 构造后不再修改
type PipelineConfig struct {
	SegmentationNetwork  SegNetwork `yaml:"segmentation_network"`
	PreprocessingMethod  PreMethod  `yaml:"preprocessing_method"`
	PostprocessingMethod PostMethod `yaml:"postprocessing_method"`
	Device               Device     `yaml:"device"`
	FP16                 bool       `yaml:"fp16"`

	// 批大小
	BatchSizeSeg     int `yaml:"batch_size_seg"`
	BatchSizePre     int `yaml:"batch_size_pre"`
	BatchSizeMatting int `yaml:"batch_size_matting"`
	BatchSizeRefine  int `yaml:"batch_size_refine"`

	// 各阶段输入尺寸
	SegMaskSize     int `yaml:"seg_mask_size"`
	MattingMaskSize int `yaml:"matting_mask_size"`
	RefineMaskSize  int `yaml:"refine_mask_size"`

	// trimap 参数
	TrimapDilation      int `yaml:"trimap_dilation"`
	TrimapErosion       int `yaml:"trimap_erosion"`
	TrimapProbThreshold int `yaml:"trimap_prob_threshold"`

	// 可选参数
	Workers            int    `yaml:"workers"`              // (可选) 单阶段内并发处理的协程数
	CheckpointsDir     string `yaml:"checkpoints_dir"`      // (可选) 模型缓存目录
	OnnxRuntimeLibPath string `yaml:"onnxruntime_lib_path"` // (可选) ONNX Runtime 动态库路径
	NumThreads         int    `yaml:"num_threads"`          // (可选) ONNX 线程数
}

// DefaultPipelineConfig 默认配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SegmentationNetwork:  NetTracerB7,
		PreprocessingMethod:  PreAutoScene,
		PostprocessingMethod: PostCascadeFBA,
		Device:               DeviceCPU,
		BatchSizeSeg:         5,
		BatchSizePre:         5,
		BatchSizeMatting:     1,
		BatchSizeRefine:      1,
		SegMaskSize:          960,
		MattingMaskSize:      2048,
		RefineMaskSize:       900,
		TrimapDilation:       30,
		TrimapErosion:        5,
		TrimapProbThreshold:  231,
		Workers:              DefaultWorkers,
		OnnxRuntimeLibPath:   DefaultLibraryPath(),
	}
}

// Validate 校验配置
func (c PipelineConfig) Validate() error {
	switch c.SegmentationNetwork {
	case NetU2Net, NetDeepLab, NetBASNet, NetTracerB7, NetISNet:
	default:
		return fmt.Errorf("%w: 未知的分割网络 %q", ErrInvalidConfig, c.SegmentationNetwork)
	}
	switch c.PreprocessingMethod {
	case PreNone, PreAutoScene, PreAuto:
	default:
		return fmt.Errorf("%w: 未知的预处理方法 %q", ErrInvalidConfig, c.PreprocessingMethod)
	}
	switch c.PostprocessingMethod {
	case PostNone, PostFBA, PostCascadeFBA:
	default:
		return fmt.Errorf("%w: 未知的后处理方法 %q", ErrInvalidConfig, c.PostprocessingMethod)
	}
	if c.Device == "" {
		return fmt.Errorf("%w: 未指定计算设备", ErrInvalidConfig)
	}

	positive := []struct {
		name  string
		value int
	}{
		{"batch_size_seg", c.BatchSizeSeg},
		{"batch_size_pre", c.BatchSizePre},
		{"batch_size_matting", c.BatchSizeMatting},
		{"batch_size_refine", c.BatchSizeRefine},
		{"seg_mask_size", c.SegMaskSize},
		{"matting_mask_size", c.MattingMaskSize},
		{"refine_mask_size", c.RefineMaskSize},
	}
	for _, f := range positive {
		if f.value <= 0 {
			return fmt.Errorf("%w: %s 必须大于 0", ErrInvalidConfig, f.name)
		}
	}
	if c.TrimapDilation < 0 || c.TrimapErosion < 0 {
		return fmt.Errorf("%w: trimap 参数不能为负数", ErrInvalidConfig)
	}
	if c.TrimapProbThreshold < 0 || c.TrimapProbThreshold > 255 {
		return fmt.Errorf("%w: trimap_prob_threshold 必须在 [0, 255] 内", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig 从 YAML 文件读取配置, 未出现的字段保持默认值
func LoadConfig(path string) (PipelineConfig, error) {
	cfg := DefaultPipelineConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, cfg.Validate()
}
