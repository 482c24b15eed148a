package carve

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyMask(t *testing.T) {
	img := solid(2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	mask.SetGray(1, 0, color.Gray{Y: 255})
	mask.SetGray(0, 1, color.Gray{Y: 128})

	out, err := ApplyMask(img, mask)
	require.NoError(t, err)

	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 0}, out.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, out.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 128}, out.NRGBAAt(0, 1))

	// 原图不变
	assert.EqualValues(t, 255, img.NRGBAAt(0, 0).A)
}

func TestApplyMask_OffsetBounds(t *testing.T) {
	img := solid(4, 4, color.White).SubImage(image.Rect(1, 1, 3, 3))
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	mask.Pix[3] = 255

	out, err := ApplyMask(img, mask)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.EqualValues(t, 255, out.NRGBAAt(1, 1).A)
	assert.EqualValues(t, 0, out.NRGBAAt(0, 0).A)
}

func TestApplyMask_KeepsTranslucentColour(t *testing.T) {
	img := solid(1, 1, color.NRGBA{R: 200, G: 40, B: 10, A: 128})
	mask := image.NewGray(image.Rect(0, 0, 1, 1))
	mask.Pix[0] = 255

	out, err := ApplyMask(img, mask)
	require.NoError(t, err)
	assert.Equal(t, color.NRGBA{R: 200, G: 40, B: 10, A: 255}, out.NRGBAAt(0, 0))
}

func TestApplyMask_ColorMask(t *testing.T) {
	_, err := ApplyMask(solid(2, 2, color.White), solid(2, 2, color.White))
	require.ErrorIs(t, err, ErrColorMode)
}

func TestApplyMask_SizeMismatch(t *testing.T) {
	_, err := ApplyMask(solid(2, 2, color.White), image.NewGray(image.Rect(0, 0, 3, 2)))
	require.ErrorIs(t, err, ErrSizeMismatch)
}

func TestFlatten(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	bg, err := ParseColor("#00ff00")
	require.NoError(t, err)

	out := Flatten(img, bg)
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, out.NRGBAAt(0, 0))

	// 不透明像素覆盖背景, 偏移的 bounds 从原点开始
	fg := solid(3, 3, color.NRGBA{R: 255, A: 255}).SubImage(image.Rect(1, 1, 3, 3))
	out = Flatten(fg, bg)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, out.NRGBAAt(1, 1))

	_, err = ParseColor("not-a-colour")
	require.Error(t, err)
}
