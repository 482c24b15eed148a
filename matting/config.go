package matting

import (
	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/nn"
)

// Config FBA 抠图引擎的初始化参数
type Config struct {
	Artifact    string   // 模型名称, 参考 download.DefaultRegistry
	InputNames  []string // 输入节点名称: 图片, 二通道 trimap, 归一化图片, trimap 距离编码
	OutputNames []string // 输出节点名称, 第 0 个通道为 alpha

	// 模型参数
	InputSize int        // 网络输入尺寸 (默认 2048)
	Stride    int        // 输入宽高需为该值的整数倍 (默认 8)
	Mean      [3]float32 // 图片归一化均值
	Std       [3]float32 // 图片归一化方差

	// 推理参数
	BatchSize          int          // 批大小 (默认 2)
	Device             carve.Device // 计算设备
	FP16               bool         // 是否尝试半精度
	DisableNoiseFilter bool         // 关闭 alpha < 0.3 置零的噪声过滤

	// 可选参数
	Workers            int    // (可选) 预处理与后处理的并发数
	OnnxRuntimeLibPath string // (可选) ONNX Runtime 动态库路径
	NumThreads         int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig FBA Matting 的默认配置
func DefaultConfig() Config {
	return Config{
		Artifact:           "fba_matting.pth",
		InputNames:         []string{"image", "two_chan_trimap", "image_n", "trimap_transformed"},
		OutputNames:        []string{"output"},
		InputSize:          2048,
		Stride:             8,
		Mean:               nn.ImageNetMean,
		Std:                nn.ImageNetStd,
		BatchSize:          2,
		Device:             carve.DeviceCPU,
		Workers:            carve.DefaultWorkers,
		OnnxRuntimeLibPath: carve.DefaultLibraryPath(),
	}
}
