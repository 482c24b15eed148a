package carve

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxRuntimeLibEnv 指定 ONNX Runtime 动态库路径的环境变量, 优先于内置的默认路径
const OnnxRuntimeLibEnv = "CARVE_ONNXRUNTIME_LIB"

// OnnxConfig ONNX Runtime 环境与会话选项
//
// 同一进程内 ONNX Runtime 只能用一个动态库初始化一次, 之后传入不同路径会返回错误
type OnnxConfig struct {
	SessionOptions *ort.SessionOptions

	OnnxRuntimeLibPath string // onnxruntime.dll (或 .so, .dylib) 的路径

	// 可选参数
	UseCuda      bool   // (可选) 是否启用 CUDA
	CudaDeviceID string // (可选) CUDA 设备编号, 默认 "0"
	NumThreads   int    // (可选) ONNX 线程数, 默认由CPU核心数决定
}

var env struct {
	once    sync.Once
	libPath string
	err     error
}

// New 初始化 ONNX 环境 (仅第一次) 并创建会话选项
func (cfg *OnnxConfig) New() error {
	if cfg.OnnxRuntimeLibPath == "" {
		return fmt.Errorf("%w: OnnxRuntimeLibPath 不能为空", ErrInvalidConfig)
	}
	env.once.Do(func() {
		env.libPath = cfg.OnnxRuntimeLibPath
		ort.SetSharedLibraryPath(cfg.OnnxRuntimeLibPath)
		env.err = ort.InitializeEnvironment()
	})
	if env.err != nil {
		return fmt.Errorf("初始化 ONNX Runtime 环境失败: %w", env.err)
	}
	if env.libPath != cfg.OnnxRuntimeLibPath {
		return fmt.Errorf("%w: ONNX Runtime 已使用 %s 初始化", ErrInvalidConfig, env.libPath)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return fmt.Errorf("创建会话选项失败: %w", err)
	}
	if err := cfg.configure(options); err != nil {
		options.Destroy()
		return err
	}
	cfg.SessionOptions = options
	return nil
}

func (cfg *OnnxConfig) configure(options *ort.SessionOptions) error {
	if cfg.NumThreads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return fmt.Errorf("设置线程数失败: %w", err)
		}
	}
	if !cfg.UseCuda {
		return nil
	}

	cudaOptions, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("创建 CUDAProviderOptions 失败: %w", err)
	}
	defer cudaOptions.Destroy()
	deviceID := cfg.CudaDeviceID
	if deviceID == "" {
		deviceID = "0"
	}
	if err := cudaOptions.Update(map[string]string{"device_id": deviceID}); err != nil {
		return fmt.Errorf("设置 CUDA 设备 %s 失败: %w", deviceID, err)
	}
	if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
		return fmt.Errorf("添加 CUDA 执行提供者失败: %w", err)
	}
	return nil
}

// Destroy 释放会话选项, 会话创建完成后即可调用
func (cfg *OnnxConfig) Destroy() {
	if cfg.SessionOptions != nil {
		cfg.SessionOptions.Destroy()
		cfg.SessionOptions = nil
	}
}

// DefaultLibraryPath ONNX Runtime 动态库路径
//
// 优先使用环境变量 CARVE_ONNXRUNTIME_LIB, 否则按平台返回 ./lib/ 下的文件名,
// 例如 ./lib/onnxruntime_amd64.so, ./lib/onnxruntime_arm64.dylib, ./lib/onnxruntime.dll
func DefaultLibraryPath() string {
	if p := os.Getenv(OnnxRuntimeLibEnv); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "./lib/onnxruntime.dll"
	case "darwin":
		return fmt.Sprintf("./lib/onnxruntime_%s.dylib", runtime.GOARCH)
	case "linux":
		return fmt.Sprintf("./lib/onnxruntime_%s.so", runtime.GOARCH)
	}
	return "./lib/onnxruntime_amd64.so"
}
