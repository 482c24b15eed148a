package nn

import (
	"fmt"
	"slices"
)

// Tensor 按行优先存储的 float32 张量, Shape 第 0 维为 batch
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor 创建张量, 数据长度必须与形状一致
func NewTensor(shape []int64, data []float32) (*Tensor, error) {
	t := &Tensor{Shape: slices.Clone(shape), Data: data}
	if int64(len(data)) != t.Size() {
		return nil, fmt.Errorf("张量数据长度 %d 与形状 %v 不匹配", len(data), shape)
	}
	return t, nil
}

// Zeros 创建全零张量
func Zeros(shape ...int64) *Tensor {
	t := &Tensor{Shape: slices.Clone(shape)}
	t.Data = make([]float32, t.Size())
	return t
}

// Size 元素个数
func (t *Tensor) Size() int64 {
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Stack 沿第 0 维拼接张量, 除第 0 维外形状必须一致
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("没有可拼接的张量")
	}
	first := ts[0]
	if len(first.Shape) == 0 {
		return nil, fmt.Errorf("标量无法拼接")
	}
	shape := slices.Clone(first.Shape)
	size := 0
	for i, t := range ts {
		if len(t.Shape) != len(shape) || !slices.Equal(t.Shape[1:], shape[1:]) {
			return nil, fmt.Errorf("第 %d 个张量形状 %v 与 %v 不一致", i, t.Shape, first.Shape)
		}
		size += len(t.Data)
	}
	shape[0] = 0
	data := make([]float32, 0, size)
	for _, t := range ts {
		shape[0] += t.Shape[0]
		data = append(data, t.Data...)
	}
	return &Tensor{Shape: shape, Data: data}, nil
}

// Unstack 沿第 0 维拆分为 Shape[0] 个 batch 为 1 的张量
func Unstack(t *Tensor) ([]*Tensor, error) {
	if len(t.Shape) == 0 || t.Shape[0] <= 0 {
		return nil, fmt.Errorf("张量形状 %v 无法拆分", t.Shape)
	}
	n := int(t.Shape[0])
	if len(t.Data)%n != 0 {
		return nil, fmt.Errorf("张量数据长度 %d 无法按 %d 拆分", len(t.Data), n)
	}
	step := len(t.Data) / n
	shape := slices.Clone(t.Shape)
	shape[0] = 1
	out := make([]*Tensor, n)
	for i := range out {
		out[i] = &Tensor{Shape: slices.Clone(shape), Data: t.Data[i*step : (i+1)*step : (i+1)*step]}
	}
	return out, nil
}

// Plane 返回第 0 个样本的第 c 个通道, 要求形状为 [1, C, H, W]
func (t *Tensor) Plane(c int) ([]float32, int, int, error) {
	if len(t.Shape) != 4 || t.Shape[0] != 1 {
		return nil, 0, 0, fmt.Errorf("张量形状 %v 不是 [1, C, H, W]", t.Shape)
	}
	if c < 0 || int64(c) >= t.Shape[1] {
		return nil, 0, 0, fmt.Errorf("通道 %d 超出范围 %d", c, t.Shape[1])
	}
	h, w := int(t.Shape[2]), int(t.Shape[3])
	return t.Data[c*h*w : (c+1)*h*w], w, h, nil
}
