package nn

import (
	"context"
	"fmt"
	"time"

	"github.com/getcharzp/go-carve"
	"go.uber.org/zap"
)

// PrepareFunc 将第 i 个元素编码为网络输入, 每个输入槽位一个 batch 为 1 的张量
type PrepareFunc func(ctx context.Context, i int) ([]*Tensor, error)

// FinishFunc 处理第 i 个元素的网络输出, outputs 中每个张量的 batch 为 1
type FinishFunc func(ctx context.Context, i int, outputs []*Tensor) error

// Runner 分批执行网络推理
//
// 批次之间严格串行, 批次内的预处理与后处理在协程池中并发执行,
// 网络计算在设备锁内进行
type Runner struct {
	Network   Network
	BatchSize int
	Workers   int
	Device    carve.Device
	FP16      bool
	Logger    *zap.Logger
}

// Precision 实际使用的计算精度
func (r *Runner) Precision() Precision {
	return ResolvePrecision(r.Device, r.FP16, r.Network)
}

// Run 对 n 个元素执行推理
//
// # Params:
//
//	n: 元素个数, 必须大于 0
//	prepare: 单个元素的预处理
//	finish: 单个元素的后处理
func (r *Runner) Run(ctx context.Context, n int, prepare PrepareFunc, finish FinishFunc) error {
	if n <= 0 {
		return carve.ErrEmptyInput
	}
	if r.Network == nil {
		return fmt.Errorf("未初始化网络")
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	precision := r.Precision()
	if r.FP16 && precision == Full {
		logger.Debug("设备或网络不支持半精度, 使用 fp32", zap.String("device", string(r.Device)))
	}

	for _, batch := range carve.Batches(n, r.BatchSize) {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		indexes := make([]int, batch.Len())
		for k := range indexes {
			indexes[k] = batch.Start + k
		}

		// 预处理
		samples, err := carve.ParallelMap(ctx, indexes, r.Workers, func(ctx context.Context, _ int, i int) ([]*Tensor, error) {
			return prepare(ctx, i)
		})
		if err != nil {
			return fmt.Errorf("预处理失败: %w", err)
		}
		inputs, err := stackSlots(samples)
		if err != nil {
			return err
		}

		// 推理
		outputs, err := r.compute(ctx, inputs, precision)
		if err != nil {
			return fmt.Errorf("推理失败: %w", err)
		}
		perItem, err := unstackSlots(outputs, batch.Len())
		if err != nil {
			return err
		}

		// 后处理
		if _, err := carve.ParallelMap(ctx, indexes, r.Workers, func(ctx context.Context, k int, i int) (struct{}, error) {
			return struct{}{}, finish(ctx, i, perItem[k])
		}); err != nil {
			return fmt.Errorf("后处理失败: %w", err)
		}

		logger.Debug("批次完成",
			zap.Int("start", batch.Start),
			zap.Int("size", batch.Len()),
			zap.Stringer("precision", precision),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return nil
}

func (r *Runner) compute(ctx context.Context, inputs []*Tensor, precision Precision) ([]*Tensor, error) {
	mu := DeviceLock(r.Device)
	mu.Lock()
	defer mu.Unlock()
	return r.Network.Compute(WithPrecision(ctx, precision), inputs)
}

// stackSlots 将每个元素同一槽位的张量拼接为一个批次
func stackSlots(samples [][]*Tensor) ([]*Tensor, error) {
	slots := len(samples[0])
	for i, s := range samples {
		if len(s) != slots {
			return nil, fmt.Errorf("%w: 第 %d 个元素输入数 %d, 期望 %d", carve.ErrLengthMismatch, i, len(s), slots)
		}
	}
	inputs := make([]*Tensor, slots)
	for slot := range inputs {
		column := make([]*Tensor, len(samples))
		for i, s := range samples {
			column[i] = s[slot]
		}
		t, err := Stack(column)
		if err != nil {
			return nil, fmt.Errorf("拼接第 %d 个输入失败: %w", slot, err)
		}
		inputs[slot] = t
	}
	return inputs, nil
}

// unstackSlots 将批次输出拆分为每个元素的输出
func unstackSlots(outputs []*Tensor, n int) ([][]*Tensor, error) {
	perItem := make([][]*Tensor, n)
	for i := range perItem {
		perItem[i] = make([]*Tensor, len(outputs))
	}
	for slot, out := range outputs {
		parts, err := Unstack(out)
		if err != nil {
			return nil, fmt.Errorf("拆分第 %d 个输出失败: %w", slot, err)
		}
		if len(parts) != n {
			return nil, fmt.Errorf("%w: 第 %d 个输出 batch 为 %d, 期望 %d", carve.ErrLengthMismatch, slot, len(parts), n)
		}
		for i, p := range parts {
			perItem[i][slot] = p
		}
	}
	return perItem, nil
}
