package carve

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers 单阶段默认并发数
var DefaultWorkers = runtime.NumCPU()

// ParallelMap 在有限协程池中对 items 逐个执行 fn, 结果顺序与输入顺序一致.
// 任一元素出错都会取消其余任务并返回首个错误, 不返回部分结果.
//
// # Params:
//
//	workers: 最大并发数, <= 0 时使用 DefaultWorkers
//	fn: 处理函数, 第二个参数为元素下标
func ParallelMap[T, R any](ctx context.Context, items []T, workers int, fn func(context.Context, int, T) (R, error)) ([]R, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	out := make([]R, len(items))
	errGrp, gCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(workers)
	for i := range items {
		errGrp.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			r, err := fn(gCtx, i, items[i])
			if err != nil {
				return errors.Wrapf(err, "item %d", i)
			}
			out[i] = r
			return nil
		})
	}
	if err := errGrp.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Batch 批次在原序列中的下标区间 [Start, End)
type Batch struct {
	Start, End int
}

// Len 批次大小
func (b Batch) Len() int {
	return b.End - b.Start
}

// Batches 将长度为 n 的序列按 size 切分, 最后一批可能不足 size
func Batches(n, size int) []Batch {
	if size <= 0 {
		size = 1
	}
	batches := make([]Batch, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		batches = append(batches, Batch{Start: start, End: min(start+size, n)})
	}
	return batches
}
