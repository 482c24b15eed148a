package segment

import (
	"fmt"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/nn"
)

// Config 分割引擎的初始化参数
type Config struct {
	Network     carve.SegNetwork // 网络类型
	Artifact    string           // 模型名称, 参考 download.DefaultRegistry
	InputNames  []string         // 输入节点名称
	OutputNames []string         // 输出节点名称

	// 模型参数
	InputSize int        // 网络输入尺寸
	Mean      [3]float32 // 归一化均值
	Std       [3]float32 // 归一化方差
	Sigmoid   bool       // 输出是否需要 sigmoid
	MinMax    bool       // 输出是否需要 min-max 归一化

	// 大于等于 0 时输出为各类别的 logits, 掩码取 argmax 等于该类别的像素, 例如:
	//	15: person (PASCAL VOC)
	ClassIndex int

	// 推理参数
	BatchSize int          // 批大小 (默认 5)
	Device    carve.Device // 计算设备
	FP16      bool         // 是否尝试半精度

	// 可选参数
	Workers            int    // (可选) 预处理与后处理的并发数
	OnnxRuntimeLibPath string // (可选) ONNX Runtime 动态库路径
	NumThreads         int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig 各网络共用的默认配置
func DefaultConfig() Config {
	return Config{
		InputNames:         []string{"input"},
		OutputNames:        []string{"output"},
		Mean:               nn.ImageNetMean,
		Std:                nn.ImageNetStd,
		ClassIndex:         -1,
		BatchSize:          5,
		Device:             carve.DeviceCPU,
		Workers:            carve.DefaultWorkers,
		OnnxRuntimeLibPath: carve.DefaultLibraryPath(),
	}
}

// DefaultU2NetConfig U2-Net 的默认配置
func DefaultU2NetConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = carve.NetU2Net
	cfg.Artifact = "u2net.pth"
	cfg.InputSize = 320
	cfg.MinMax = true
	return cfg
}

// DefaultBASNetConfig BASNet 的默认配置
func DefaultBASNetConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = carve.NetBASNet
	cfg.Artifact = "basnet.pth"
	cfg.InputSize = 320
	cfg.MinMax = true
	return cfg
}

// DefaultDeepLabConfig DeepLabV3 的默认配置
func DefaultDeepLabConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = carve.NetDeepLab
	cfg.Artifact = "deeplab.pth"
	cfg.InputSize = 1024
	cfg.ClassIndex = 15
	return cfg
}

// DefaultTracerB7Config Tracer-B7 的默认配置, 输出已经过 sigmoid
func DefaultTracerB7Config() Config {
	cfg := DefaultConfig()
	cfg.Network = carve.NetTracerB7
	cfg.Artifact = "tracer_b7.pth"
	cfg.InputSize = 640
	return cfg
}

// DefaultISNetConfig IS-Net 的默认配置
func DefaultISNetConfig() Config {
	cfg := DefaultConfig()
	cfg.Network = carve.NetISNet
	cfg.Artifact = "isnet-97-carveset.pth"
	cfg.InputSize = 1024
	cfg.Mean = [3]float32{0.5, 0.5, 0.5}
	cfg.Std = [3]float32{1, 1, 1}
	cfg.MinMax = true
	return cfg
}

// ConfigFor 返回指定网络的默认配置
func ConfigFor(network carve.SegNetwork) (Config, error) {
	switch network {
	case carve.NetU2Net:
		return DefaultU2NetConfig(), nil
	case carve.NetBASNet:
		return DefaultBASNetConfig(), nil
	case carve.NetDeepLab:
		return DefaultDeepLabConfig(), nil
	case carve.NetTracerB7:
		return DefaultTracerB7Config(), nil
	case carve.NetISNet:
		return DefaultISNetConfig(), nil
	}
	return Config{}, fmt.Errorf("%w: 未知的分割网络 %q", carve.ErrInvalidConfig, network)
}
