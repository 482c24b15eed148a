package detect

import (
	"github.com/getcharzp/go-carve"
)

// Group 物体类别分组, 用于选择分割网络
type Group string

const (
	GroupHuman   Group = "human"
	GroupAnimals Group = "animals"
	GroupCars    Group = "cars"
)

// COCOClasses COCO 数据集的 80 个类别
var COCOClasses = []string{
	"person", "bicycle", "car", "motorbike", "aeroplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard", "tennis racket", "bottle",
	"wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "sofa", "pottedplant", "bed",
	"diningtable", "toilet", "tvmonitor", "laptop", "mouse", "remote", "keyboard", "cell phone", "microwave", "oven",
	"toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// DefaultGroups 分组包含的 COCO 类别
func DefaultGroups() map[Group][]string {
	return map[Group][]string{
		GroupHuman:   {"person"},
		GroupAnimals: {"bird", "cat", "dog", "horse", "sheep", "cow", "elephant", "bear", "zebra", "giraffe"},
		GroupCars:    {"car", "motorbike", "bus", "truck"},
	}
}

// Config 物体检测引擎的初始化参数
type Config struct {
	Artifact    string   // 模型名称, 参考 download.DefaultRegistry
	InputNames  []string // 输入节点名称
	OutputNames []string // 输出节点名称: 检测框 [B, N, 1, 4] 与类别置信度 [B, N, C]

	// 模型参数
	InputSize int                // 网络输入尺寸 (默认 608)
	Classes   []string           // 类别名称, 顺序与置信度通道一致
	Groups    map[Group][]string // 参与网络选择的类别分组

	// 推理参数
	ConfThreshold float32      // 置信度阈值 (默认 0.4)
	IOUThreshold  float32      // NMS IOU 阈值 (默认 0.6)
	BatchSize     int          // 批大小 (默认 5)
	Device        carve.Device // 计算设备
	FP16          bool         // 是否尝试半精度

	// 可选参数
	Workers            int    // (可选) 预处理与后处理的并发数
	OnnxRuntimeLibPath string // (可选) ONNX Runtime 动态库路径
	NumThreads         int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// DefaultConfig YOLOv4 (COCO) 的默认配置
func DefaultConfig() Config {
	return Config{
		Artifact:           "yolov4_coco_with_classes.pth",
		InputNames:         []string{"input"},
		OutputNames:        []string{"boxes", "confs"},
		InputSize:          608,
		Classes:            COCOClasses,
		Groups:             DefaultGroups(),
		ConfThreshold:      0.4,
		IOUThreshold:       0.6,
		BatchSize:          5,
		Device:             carve.DeviceCPU,
		Workers:            carve.DefaultWorkers,
		OnnxRuntimeLibPath: carve.DefaultLibraryPath(),
	}
}
