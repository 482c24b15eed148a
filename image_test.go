package carve

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadImage_Sources(t *testing.T) {
	src := solid(3, 2, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	path := filepath.Join(t.TempDir(), "red.png")
	require.NoError(t, imaging.Save(src, path))

	for name, s := range map[string]Source{
		"image":  src,
		"bytes":  buf.Bytes(),
		"reader": bytes.NewReader(buf.Bytes()),
		"path":   path,
	} {
		t.Run(name, func(t *testing.T) {
			img, err := LoadImage(s)
			require.NoError(t, err)
			assert.Equal(t, image.Pt(3, 2), img.Bounds().Size())
			r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
			assert.EqualValues(t, 0xffff, r)
		})
	}
}

func TestLoadImage_Errors(t *testing.T) {
	_, err := LoadImage(3.14)
	require.ErrorIs(t, err, ErrUnsupportedSource)

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadImage([]byte("not an image"))
	require.Error(t, err)
}

func TestLoadImages_Order(t *testing.T) {
	sources := []Source{solid(1, 1, color.White), solid(2, 2, color.White), solid(3, 3, color.White)}
	images, err := LoadImages(context.Background(), sources, 2)
	require.NoError(t, err)
	for i, img := range images {
		assert.Equal(t, i+1, img.Bounds().Dx())
	}
}

func TestToRGBAndGray(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 0})
	rgb := ToRGB(img)
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, rgb.NRGBAAt(0, 0))

	g := image.NewGray(image.Rect(5, 5, 7, 7))
	g.SetGray(6, 6, color.Gray{Y: 99})
	out := ToGray(g)
	assert.Equal(t, image.Rect(0, 0, 2, 2), out.Bounds())
	assert.EqualValues(t, 99, out.GrayAt(1, 1).Y)
	assert.True(t, IsGray(out))
	assert.False(t, IsGray(rgb))
}
