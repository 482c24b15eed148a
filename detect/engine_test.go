package detect

import (
	"context"
	"image"
	"testing"

	"github.com/getcharzp/go-carve"
	"github.com/getcharzp/go-carve/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBox struct {
	box   [4]float32
	class int
	conf  float32
}

// fixedBoxes 每张图片都输出相同的检测框, numClasses 为置信度通道数
func fixedBoxes(boxes []fixedBox, numClasses int) nn.Network {
	return nn.NetworkFunc(func(_ context.Context, inputs []*nn.Tensor) ([]*nn.Tensor, error) {
		b, n := inputs[0].Shape[0], int64(len(boxes))
		outBoxes := nn.Zeros(b, n, 1, 4)
		outConfs := nn.Zeros(b, n, int64(numClasses))
		for k := int64(0); k < b; k++ {
			for i, fb := range boxes {
				copy(outBoxes.Data[(k*n+int64(i))*4:], fb.box[:])
				if fb.class < numClasses {
					outConfs.Data[(k*n+int64(i))*int64(numClasses)+int64(fb.class)] = fb.conf
				}
			}
		}
		return []*nn.Tensor{outBoxes, outConfs}, nil
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.InputSize = 8
	cfg.BatchSize = 2
	cfg.Classes = []string{"person", "dog", "chair"}
	cfg.Groups = map[Group][]string{
		GroupHuman:   {"person"},
		GroupAnimals: {"dog"},
	}
	return cfg
}

var sampleBoxes = []fixedBox{
	{box: [4]float32{0.1, 0.1, 0.5, 0.5}, class: 0, conf: 0.9},
	{box: [4]float32{0.12, 0.1, 0.5, 0.5}, class: 0, conf: 0.8},
	{box: [4]float32{0.5, 0.5, 1, 1}, class: 1, conf: 0.7},
	{box: [4]float32{0, 0, 1, 1}, class: 0, conf: 0.3},
	{box: [4]float32{0.5, 0, 0.75, 0.5}, class: 2, conf: 0.95},
}

func TestEngine_Detect(t *testing.T) {
	e, err := NewEngine(fixedBoxes(sampleBoxes, 3), testConfig(), nil)
	require.NoError(t, err)

	images := []image.Image{
		image.NewNRGBA(image.Rect(0, 0, 100, 50)),
		image.NewNRGBA(image.Rect(0, 0, 100, 50)),
		image.NewNRGBA(image.Rect(0, 0, 100, 50)),
	}
	results, err := e.Detect(context.Background(), images)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, ds := range results {
		require.Len(t, ds, 3)
		assert.Equal(t, "chair", ds[0].Class)
		assert.Equal(t, image.Rect(50, 0, 75, 25), ds[0].Box)

		assert.Equal(t, "person", ds[1].Class)
		assert.Equal(t, float32(0.9), ds[1].Score)
		assert.Equal(t, image.Rect(10, 5, 50, 25), ds[1].Box)

		assert.Equal(t, "dog", ds[2].Class)
		assert.Equal(t, 1, ds[2].ClassID)
		assert.Equal(t, image.Rect(50, 25, 100, 50), ds[2].Box)
	}
}

func TestEngine_Objects(t *testing.T) {
	e, err := NewEngine(fixedBoxes(sampleBoxes, 3), testConfig(), nil)
	require.NoError(t, err)

	objects, err := e.Objects(context.Background(), []image.Image{image.NewNRGBA(image.Rect(0, 0, 100, 50))})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, []Group{GroupHuman, GroupAnimals}, objects[0])

	e, err = NewEngine(fixedBoxes(nil, 3), testConfig(), nil)
	require.NoError(t, err)
	objects, err = e.Objects(context.Background(), []image.Image{image.NewNRGBA(image.Rect(0, 0, 4, 4))})
	require.NoError(t, err)
	assert.NotNil(t, objects[0])
	assert.Empty(t, objects[0])
}

func TestEngine_ShapeMismatch(t *testing.T) {
	e, err := NewEngine(fixedBoxes(sampleBoxes, 2), testConfig(), nil)
	require.NoError(t, err)
	_, err = e.Detect(context.Background(), []image.Image{image.NewNRGBA(image.Rect(0, 0, 4, 4))})
	assert.ErrorIs(t, err, carve.ErrLengthMismatch)

	_, err = NewEngine(nil, testConfig(), nil)
	assert.ErrorIs(t, err, carve.ErrInvalidConfig)
}

func TestNMS_KeepsOtherClasses(t *testing.T) {
	box := image.Rect(0, 0, 10, 10)
	kept := nms([]candidate{
		{classID: 0, score: 0.5, box: box},
		{classID: 1, score: 0.6, box: box},
		{classID: 0, score: 0.7, box: box},
	}, 0.5)
	require.Len(t, kept, 2)
	assert.Equal(t, 0, kept[0].classID)
	assert.Equal(t, float32(0.7), kept[0].score)
	assert.Equal(t, 1, kept[1].classID)
}
