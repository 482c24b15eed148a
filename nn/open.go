package nn

import (
	"context"
	"fmt"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/download"
)

// ModelSpec 描述一个需要从模型缓存中加载的网络
type ModelSpec struct {
	Artifact    string   // 模型名称, 参考 download.DefaultRegistry
	InputNames  []string // 输入节点名称
	OutputNames []string // 输出节点名称

	Device             carve.Device
	OnnxRuntimeLibPath string
	NumThreads         int
}

// Loader 根据本地模型文件创建网络
type Loader func(path string, spec ModelSpec) (Network, error)

// LoadOnnx 默认的 Loader, 使用 ONNX Runtime 加载模型
func LoadOnnx(path string, spec ModelSpec) (Network, error) {
	return NewOnnxNetwork(OnnxConfig{
		ModelPath:          path,
		OnnxRuntimeLibPath: spec.OnnxRuntimeLibPath,
		InputNames:         spec.InputNames,
		OutputNames:        spec.OutputNames,
		UseCuda:            spec.Device.IsCUDA(),
		CudaDeviceID:       spec.Device.CUDAIndex(),
		NumThreads:         spec.NumThreads,
	})
}

// Open 通过 d 获取模型文件, 再通过 load 创建网络, load 为 nil 时使用 LoadOnnx
func Open(ctx context.Context, d download.Downloader, load Loader, spec ModelSpec) (Network, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: 未指定模型下载器", carve.ErrInvalidConfig)
	}
	if load == nil {
		load = LoadOnnx
	}
	path, err := d.DownloadModel(ctx, spec.Artifact)
	if err != nil {
		return nil, fmt.Errorf("获取模型 %s 失败: %w", spec.Artifact, err)
	}
	net, err := load(path, spec)
	if err != nil {
		return nil, fmt.Errorf("加载模型 %s 失败: %w", spec.Artifact, err)
	}
	return net, nil
}
