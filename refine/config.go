package refine

import (
	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/nn"
)

// Config 掩码细化引擎的初始化参数
type Config struct {
	Artifact    string   // 模型名称, 参考 download.DefaultRegistry
	InputNames  []string // 输入节点名称: 图片, 掩码
	OutputNames []string // 输出节点名称

	// 模型参数
	InputSize int        // 网络输入尺寸 (默认 900)
	Mean      [3]float32 // 图片归一化均值
	Std       [3]float32 // 图片归一化方差

	// 推理参数
	BatchSize int          // 批大小 (默认 1)
	Device    carve.Device // 计算设备
	FP16      bool         // 是否尝试半精度

	// 可选参数
	Workers            int    // (可选) 预处理与后处理的并发数
	OnnxRuntimeLibPath string // (可选) ONNX Runtime 动态库路径
	NumThreads         int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig CascadePSP 的默认配置
func DefaultConfig() Config {
	return Config{
		Artifact:           "cascadepsp.pth",
		InputNames:         []string{"image", "mask"},
		OutputNames:        []string{"output"},
		InputSize:          900,
		Mean:               nn.ImageNetMean,
		Std:                nn.ImageNetStd,
		BatchSize:          1,
		Device:             carve.DeviceCPU,
		Workers:            carve.DefaultWorkers,
		OnnxRuntimeLibPath: carve.DefaultLibraryPath(),
	}
}

// DefaultFinetunedConfig 在 CarveSet 上微调的 CascadePSP
func DefaultFinetunedConfig() Config {
	cfg := DefaultConfig()
	cfg.Artifact = "cascadepsp_finetuned_carveset.pth"
	return cfg
}
