package nn

import (
	"context"
	"sync"

	"github.com/getcharzp/go-carve"
)

// Network 不透明的神经网络计算, inputs 与 outputs 的第 0 维均为 batch
type Network interface {
	Compute(ctx context.Context, inputs []*Tensor) ([]*Tensor, error)
}

// NetworkFunc 将普通函数适配为 Network
type NetworkFunc func(ctx context.Context, inputs []*Tensor) ([]*Tensor, error)

// Compute 调用 f
func (f NetworkFunc) Compute(ctx context.Context, inputs []*Tensor) ([]*Tensor, error) {
	return f(ctx, inputs)
}

// HalfPrecisionSupporter 支持半精度计算的网络
type HalfPrecisionSupporter interface {
	SupportsHalf() bool
}

// Destroyer 持有需要手动释放资源的网络
type Destroyer interface {
	Destroy() error
}

// Destroy 释放网络资源 (如果有)
func Destroy(net Network) error {
	if d, ok := net.(Destroyer); ok {
		return d.Destroy()
	}
	return nil
}

// Precision 计算精度
type Precision int

const (
	Full Precision = iota
	Half
)

func (p Precision) String() string {
	if p == Half {
		return "fp16"
	}
	return "fp32"
}

type precisionKey struct{}

// WithPrecision 返回携带计算精度的 ctx, 只在 Compute 调用期间有效
func WithPrecision(ctx context.Context, p Precision) context.Context {
	return context.WithValue(ctx, precisionKey{}, p)
}

// PrecisionFromContext 读取计算精度, 未设置时为 Full
func PrecisionFromContext(ctx context.Context) Precision {
	if p, ok := ctx.Value(precisionKey{}).(Precision); ok {
		return p
	}
	return Full
}

// ResolvePrecision 只有 CUDA 设备且网络支持半精度时才返回 Half, 否则静默退回 Full
func ResolvePrecision(device carve.Device, fp16 bool, net Network) Precision {
	if !fp16 || !device.IsCUDA() {
		return Full
	}
	if hp, ok := net.(HalfPrecisionSupporter); ok && hp.SupportsHalf() {
		return Half
	}
	return Full
}

var deviceLocks sync.Map

// DeviceLock 返回设备对应的计算锁, 同一设备同一时刻只允许一次计算, cuda 与 cuda:0 共用一把锁
func DeviceLock(device carve.Device) *sync.Mutex {
	key := string(device)
	if device.IsCUDA() {
		key = string(carve.DeviceCUDA) + ":" + device.CUDAIndex()
	}
	mu, _ := deviceLocks.LoadOrStore(key, new(sync.Mutex))
	return mu.(*sync.Mutex)
}
