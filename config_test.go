package carve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, NetTracerB7, cfg.SegmentationNetwork)
	assert.Equal(t, PreAutoScene, cfg.PreprocessingMethod)
	assert.Equal(t, PostCascadeFBA, cfg.PostprocessingMethod)
	assert.Equal(t, 231, cfg.TrimapProbThreshold)
	assert.Equal(t, 30, cfg.TrimapDilation)
	assert.Equal(t, 5, cfg.TrimapErosion)
}

func TestPipelineConfig_Validate(t *testing.T) {
	cases := map[string]func(*PipelineConfig){
		"network":   func(c *PipelineConfig) { c.SegmentationNetwork = "resnet" },
		"pre":       func(c *PipelineConfig) { c.PreprocessingMethod = "magic" },
		"post":      func(c *PipelineConfig) { c.PostprocessingMethod = "blur" },
		"device":    func(c *PipelineConfig) { c.Device = "" },
		"batch":     func(c *PipelineConfig) { c.BatchSizeMatting = 0 },
		"mask size": func(c *PipelineConfig) { c.SegMaskSize = -1 },
		"erosion":   func(c *PipelineConfig) { c.TrimapErosion = -1 },
		"threshold": func(c *PipelineConfig) { c.TrimapProbThreshold = 300 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestPipelineConfig_ValidateReportsFirstField(t *testing.T) {
	cfg := DefaultPipelineConfig()
	cfg.BatchSizeSeg = 0
	cfg.BatchSizeRefine = 0
	cfg.RefineMaskSize = 0
	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), "batch_size_seg")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carve.yaml")
	data := []byte("segmentation_network: isnet\npostprocessing_method: fba\ndevice: cuda:1\nbatch_size_seg: 2\n")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, NetISNet, cfg.SegmentationNetwork)
	assert.Equal(t, PostFBA, cfg.PostprocessingMethod)
	assert.True(t, cfg.Device.IsCUDA())
	assert.Equal(t, "1", cfg.Device.CUDAIndex())
	assert.Equal(t, "0", DeviceCUDA.CUDAIndex())
	assert.Empty(t, DeviceCPU.CUDAIndex())
	assert.Equal(t, 2, cfg.BatchSizeSeg)
	// 未出现的字段保持默认
	assert.Equal(t, PreAutoScene, cfg.PreprocessingMethod)
	assert.Equal(t, 960, cfg.SegMaskSize)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
