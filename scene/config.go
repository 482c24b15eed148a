package scene

import (
	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/nn"
)

// Scene 图片场景
type Scene string

const (
	SceneHard    Scene = "hard"    // 边缘清晰的物体, 例如商品
	SceneSoft    Scene = "soft"    // 边缘柔和的物体, 例如人像、动物毛发
	SceneDigital Scene = "digital" // 数字图像, 例如截图、插画
)

// Config 场景分类引擎的初始化参数
type Config struct {
	Artifact    string   // 模型名称, 参考 download.DefaultRegistry
	InputNames  []string // 输入节点名称
	OutputNames []string // 输出节点名称, 输出为各类别的 logits

	// 模型参数
	InputSize int        // 网络输入尺寸 (默认 224)
	Classes   []Scene    // 输出通道对应的场景
	Mean      [3]float32 // 归一化均值
	Std       [3]float32 // 归一化方差

	// 推理参数
	BatchSize int          // 批大小 (默认 5)
	Device    carve.Device // 计算设备
	FP16      bool         // 是否尝试半精度

	// 可选参数
	Workers            int    // (可选) 预处理与后处理的并发数
	OnnxRuntimeLibPath string // (可选) ONNX Runtime 动态库路径
	NumThreads         int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig 场景分类的默认配置
func DefaultConfig() Config {
	return Config{
		Artifact:           "scene_classifier.pth",
		InputNames:         []string{"input"},
		OutputNames:        []string{"output"},
		InputSize:          224,
		Classes:            []Scene{SceneHard, SceneSoft, SceneDigital},
		Mean:               nn.ImageNetMean,
		Std:                nn.ImageNetStd,
		BatchSize:          5,
		Device:             carve.DeviceCPU,
		Workers:            carve.DefaultWorkers,
		OnnxRuntimeLibPath: carve.DefaultLibraryPath(),
	}
}

// ClassResult 分类结果
type ClassResult struct {
	Scene Scene
	Score float32 // softmax 概率
}
