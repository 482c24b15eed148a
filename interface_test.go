package carve

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSegmenter struct {
	calls atomic.Int32
	value uint8
}

func (s *fakeSegmenter) Segment(_ context.Context, images []image.Image) ([]*image.Gray, error) {
	s.calls.Add(1)
	masks := make([]*image.Gray, len(images))
	for i, img := range images {
		b := img.Bounds()
		m := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for p := range m.Pix {
			m.Pix[p] = s.value
		}
		masks[i] = m
	}
	return masks, nil
}

type constPreprocessor struct {
	value uint8
}

func (p constPreprocessor) Preprocess(_ context.Context, _ *Interface, images []image.Image) ([]*image.Gray, error) {
	masks := make([]*image.Gray, len(images))
	for i, img := range images {
		m := image.NewGray(img.Bounds())
		for j := range m.Pix {
			m.Pix[j] = p.value
		}
		masks[i] = m
	}
	return masks, nil
}

// delegatingPreprocessor 通过 Interface 调用分割网络
type delegatingPreprocessor struct{}

func (delegatingPreprocessor) Preprocess(ctx context.Context, iface *Interface, images []image.Image) ([]*image.Gray, error) {
	return iface.Segment(ctx, images)
}

type shortPostprocessor struct{}

func (shortPostprocessor) Postprocess(_ context.Context, images []image.Image, _ []*image.Gray) ([]image.Image, error) {
	return images[:len(images)-1], nil
}

func solid(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestInterface_NoSegmentation(t *testing.T) {
	iface := NewInterface(nil)
	// 路径不存在, 若先加载图片会得到其它错误
	_, err := iface.Remove(context.Background(), []Source{"./testdata/not-exist.png"})
	require.ErrorIs(t, err, ErrNoSegmentation)
}

func TestInterface_EmptyInput(t *testing.T) {
	iface := NewInterface(&fakeSegmenter{value: 255})
	_, err := iface.Remove(context.Background(), nil)
	require.ErrorIs(t, err, ErrEmptyInput)
}

func TestInterface_SegmentAndApplyMask(t *testing.T) {
	seg := &fakeSegmenter{value: 200}
	iface := NewInterface(seg, WithWorkers(2))

	sources := []Source{
		solid(4, 3, color.RGBA{R: 255, A: 255}),
		solid(2, 5, color.RGBA{G: 255, A: 255}),
		solid(6, 1, color.RGBA{B: 255, A: 255}),
	}
	out, err := iface.Remove(context.Background(), sources)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.EqualValues(t, 1, seg.calls.Load())

	for i, src := range sources {
		assert.Equal(t, src.(image.Image).Bounds().Size(), out[i].Bounds().Size())
		c := color.NRGBAModel.Convert(out[i].At(0, 0)).(color.NRGBA)
		assert.EqualValues(t, 200, c.A)
	}
	assert.EqualValues(t, 255, color.NRGBAModel.Convert(out[0].At(0, 0)).(color.NRGBA).R)
	assert.EqualValues(t, 255, color.NRGBAModel.Convert(out[1].At(0, 0)).(color.NRGBA).G)
	assert.EqualValues(t, 255, color.NRGBAModel.Convert(out[2].At(0, 0)).(color.NRGBA).B)
}

func TestInterface_PreprocessingReplacesSegmentation(t *testing.T) {
	seg := &fakeSegmenter{value: 255}
	iface := NewInterface(seg, WithPreprocessing(constPreprocessor{value: 10}))

	out, err := iface.Remove(context.Background(), []Source{solid(3, 3, color.White)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.EqualValues(t, 0, seg.calls.Load())
	assert.EqualValues(t, 10, color.NRGBAModel.Convert(out[0].At(1, 1)).(color.NRGBA).A)
}

func TestInterface_PreprocessingCanSegment(t *testing.T) {
	seg := &fakeSegmenter{value: 255}
	iface := NewInterface(seg, WithPreprocessing(delegatingPreprocessor{}))

	_, err := iface.Remove(context.Background(), []Source{solid(3, 3, color.White), solid(2, 2, color.Black)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, seg.calls.Load())
}

func TestInterface_PostprocessingLengthMismatch(t *testing.T) {
	iface := NewInterface(&fakeSegmenter{value: 255}, WithPostprocessing(shortPostprocessor{}))
	_, err := iface.Remove(context.Background(), []Source{solid(1, 1, color.White), solid(1, 1, color.White)})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestInterface_LoadError(t *testing.T) {
	iface := NewInterface(&fakeSegmenter{value: 255})
	_, err := iface.Remove(context.Background(), []Source{solid(1, 1, color.White), 42})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedSource))
}
