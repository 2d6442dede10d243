package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "image-classifier", cfg.AppName)
	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, "models/model.onnx", cfg.ModelPath)
	assert.Equal(t, "models/labels.txt", cfg.LabelsPath)
	assert.Equal(t, 1, cfg.NumThreads)
	assert.Equal(t, 224, cfg.InputSize)
	assert.Equal(t, LayoutNHWC, cfg.TensorLayout)
	assert.Equal(t, runtime.NumCPU(), cfg.WorkerCount)
	assert.Equal(t, 30*time.Second, cfg.ClassifyTimeout)
	assert.Equal(t, []int64{1, 224, 224, 3}, cfg.InputShape())
}

func TestLoad_Environment(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("MODEL_PATH", "/srv/flowers.onnx")
	t.Setenv("LABELS_PATH", "/srv/flowers.txt")
	t.Setenv("MODEL_NUM_THREADS", "4")
	t.Setenv("MODEL_TENSOR_LAYOUT", "NCHW")
	t.Setenv("CLASSIFY_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/flowers.onnx", cfg.ModelPath)
	assert.Equal(t, "/srv/flowers.txt", cfg.LabelsPath)
	assert.Equal(t, 4, cfg.NumThreads)
	assert.Equal(t, LayoutNCHW, cfg.TensorLayout)
	assert.Equal(t, 2*time.Second, cfg.ClassifyTimeout)
	assert.Equal(t, []int64{1, 3, 224, 224}, cfg.InputShape())
}

func TestLoad_ConfigFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	path := filepath.Join(t.TempDir(), "classifier.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model_path: /data/m.onnx\nworker_count: 3\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("WORKER_COUNT", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/data/m.onnx", cfg.ModelPath)
	assert.Equal(t, 5, cfg.WorkerCount, "environment overrides the file")
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"MODEL_NUM_THREADS":   "0",
		"MODEL_INPUT_SIZE":    "-1",
		"MODEL_TENSOR_LAYOUT": "chwn",
		"WORKER_COUNT":        "0",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			t.Setenv(key, value)

			_, err := Load()
			assert.ErrorContains(t, err, key)
		})
	}
}
