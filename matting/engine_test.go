package matting

import (
	"context"
	"fmt"
	"image"
	"sync"
	"testing"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constAlpha 校验四个输入的形状并输出恒定的 alpha
type constAlpha struct {
	alpha float32

	mu     sync.Mutex
	shapes [][]int64
}

func (n *constAlpha) Compute(_ context.Context, inputs []*nn.Tensor) ([]*nn.Tensor, error) {
	if len(inputs) != 4 {
		return nil, fmt.Errorf("输入数 %d", len(inputs))
	}
	b, h, w := inputs[0].Shape[0], inputs[0].Shape[2], inputs[0].Shape[3]
	for i, channels := range []int64{3, 2, 3, 6} {
		want := []int64{b, channels, h, w}
		if fmt.Sprint(inputs[i].Shape) != fmt.Sprint(want) {
			return nil, fmt.Errorf("第 %d 个输入形状 %v, 期望 %v", i, inputs[i].Shape, want)
		}
	}
	n.mu.Lock()
	for _, in := range inputs {
		n.shapes = append(n.shapes, in.Shape)
	}
	n.mu.Unlock()

	out := nn.Zeros(b, 7, h, w)
	area := h * w
	for k := int64(0); k < b; k++ {
		for i := int64(0); i < area; i++ {
			out.Data[k*7*area+i] = n.alpha
		}
	}
	return []*nn.Tensor{out}, nil
}

// halfTrimap 左半边为背景, 右半边为前景
func halfTrimap(w, h int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			g.Pix[y*g.Stride+x] = 255
		}
	}
	return g
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputSize = 16
	cfg.BatchSize = 1
	cfg.Workers = 2
	return cfg
}

func TestEngine_Matte(t *testing.T) {
	net := &constAlpha{alpha: 0.5}
	e, err := NewEngine(net, testConfig(), nil)
	require.NoError(t, err)

	images := []image.Image{image.NewNRGBA(image.Rect(0, 0, 10, 10)), image.NewNRGBA(image.Rect(0, 0, 30, 12))}
	trimaps := []*image.Gray{halfTrimap(10, 10), halfTrimap(30, 12)}
	alphas, err := e.Matte(context.Background(), images, trimaps)
	require.NoError(t, err)
	require.Len(t, alphas, 2)

	assert.Equal(t, image.Pt(10, 10), alphas[0].Bounds().Size())
	assert.Equal(t, image.Pt(30, 12), alphas[1].Bounds().Size())
	assert.Equal(t, uint8(0), alphas[0].GrayAt(1, 5).Y)
	assert.InDelta(t, 128, alphas[0].GrayAt(8, 5).Y, 1)
	assert.Equal(t, uint8(0), alphas[1].GrayAt(3, 3).Y)
	assert.InDelta(t, 128, alphas[1].GrayAt(25, 3).Y, 1)

	for _, shape := range net.shapes {
		assert.Zero(t, shape[2]%8)
		assert.Zero(t, shape[3]%8)
	}
}

func TestEngine_NoiseFilter(t *testing.T) {
	images := []image.Image{image.NewNRGBA(image.Rect(0, 0, 8, 8))}
	trimaps := []*image.Gray{halfTrimap(8, 8)}

	e, err := NewEngine(&constAlpha{alpha: 0.2}, testConfig(), nil)
	require.NoError(t, err)
	alphas, err := e.Matte(context.Background(), images, trimaps)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), alphas[0].GrayAt(6, 4).Y)

	cfg := testConfig()
	cfg.DisableNoiseFilter = true
	e, err = NewEngine(&constAlpha{alpha: 0.2}, cfg, nil)
	require.NoError(t, err)
	alphas, err = e.Matte(context.Background(), images, trimaps)
	require.NoError(t, err)
	assert.InDelta(t, 51, alphas[0].GrayAt(6, 4).Y, 1)
	assert.Equal(t, uint8(0), alphas[0].GrayAt(1, 4).Y)
}

func TestEngine_MatteBatched(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 2
	net := &constAlpha{alpha: 1}
	e, err := NewEngine(net, cfg, nil)
	require.NoError(t, err)

	images := []image.Image{image.NewNRGBA(image.Rect(0, 0, 5, 9)), image.NewNRGBA(image.Rect(0, 0, 40, 20))}
	trimaps := []*image.Gray{halfTrimap(5, 9), halfTrimap(40, 20)}
	alphas, err := e.Matte(context.Background(), images, trimaps)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), alphas[1].GrayAt(39, 19).Y)
	assert.Equal(t, []int64{2, 3, 16, 16}, net.shapes[0])
}

func TestEngine_MatteErrors(t *testing.T) {
	e, err := NewEngine(&constAlpha{}, testConfig(), nil)
	require.NoError(t, err)

	_, err = e.Matte(context.Background(), []image.Image{image.NewNRGBA(image.Rect(0, 0, 2, 2))}, nil)
	assert.ErrorIs(t, err, carve.ErrLengthMismatch)

	_, err = e.Matte(context.Background(),
		[]image.Image{image.NewNRGBA(image.Rect(0, 0, 2, 2))},
		[]*image.Gray{image.NewGray(image.Rect(0, 0, 4, 4))})
	assert.ErrorIs(t, err, carve.ErrSizeMismatch)
}
