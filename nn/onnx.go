package nn

import (
	"context"
	"fmt"

	"github.com/getcharzp/go-carve"
	"github.com/up-zero/gotool/convertutil"
	ort "github.com/yalue/onnxruntime_go"
)

// OnnxConfig ONNX 网络的初始化参数
type OnnxConfig struct {
	ModelPath          string   // ONNX 模型路径
	OnnxRuntimeLibPath string   // ONNX Runtime 动态库路径
	InputNames         []string // 输入节点名称, 顺序与 Compute 的 inputs 一致
	OutputNames        []string // 输出节点名称

	// 可选参数
	UseCuda      bool   // (可选) 是否启用 CUDA
	CudaDeviceID string // (可选) CUDA 设备编号
	NumThreads   int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

// OnnxNetwork 基于 ONNX Runtime 的 Network 实现
type OnnxNetwork struct {
	session *ort.DynamicAdvancedSession
	config  OnnxConfig
}

// NewOnnxNetwork 初始化 ONNX 网络
func NewOnnxNetwork(cfg OnnxConfig) (*OnnxNetwork, error) {
	if len(cfg.InputNames) == 0 || len(cfg.OutputNames) == 0 {
		return nil, fmt.Errorf("%w: 未指定输入或输出节点", carve.ErrInvalidConfig)
	}
	oc := new(carve.OnnxConfig)
	if err := convertutil.CopyProperties(cfg, oc); err != nil {
		return nil, fmt.Errorf("复制参数失败: %w", err)
	}
	// 初始化 ONNX
	if err := oc.New(); err != nil {
		return nil, err
	}
	defer oc.Destroy()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, cfg.InputNames, cfg.OutputNames, oc.SessionOptions)
	if err != nil {
		return nil, fmt.Errorf("创建 ONNX 会话失败: %w", err)
	}

	return &OnnxNetwork{
		session: session,
		config:  cfg,
	}, nil
}

// Compute 执行一次推理, ONNX 模型不支持半精度, 忽略 ctx 中的精度设置
func (n *OnnxNetwork) Compute(_ context.Context, inputs []*Tensor) ([]*Tensor, error) {
	if len(inputs) != len(n.config.InputNames) {
		return nil, fmt.Errorf("%w: 输入数 %d, 期望 %d", carve.ErrLengthMismatch, len(inputs), len(n.config.InputNames))
	}

	inputValues := make([]ort.Value, len(inputs))
	for i, in := range inputs {
		t, err := ort.NewTensor(ort.NewShape(in.Shape...), in.Data)
		if err != nil {
			destroyValues(inputValues)
			return nil, fmt.Errorf("创建 Input Tensor %s 失败: %w", n.config.InputNames[i], err)
		}
		inputValues[i] = t
	}
	defer destroyValues(inputValues)

	// 输出由 onnxruntime 自动分配
	outputValues := make([]ort.Value, len(n.config.OutputNames))
	if err := n.session.Run(inputValues, outputValues); err != nil {
		return nil, fmt.Errorf("推理失败: %w", err)
	}
	defer destroyValues(outputValues)

	outputs := make([]*Tensor, len(outputValues))
	for i, v := range outputValues {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, fmt.Errorf("输出 %s 不是 float32 张量", n.config.OutputNames[i])
		}
		data := t.GetData()
		outputs[i] = &Tensor{
			Shape: []int64(t.GetShape()),
			Data:  append([]float32(nil), data...),
		}
	}
	return outputs, nil
}

// Destroy 释放相关资源
func (n *OnnxNetwork) Destroy() error {
	if n.session != nil {
		if err := n.session.Destroy(); err != nil {
			return fmt.Errorf("销毁 ONNX 会话失败: %w", err)
		}
		n.session = nil
	}
	return nil
}

func destroyValues(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
