// Package config loads startup settings from the environment and an optional
// config file.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

type Config struct {
	AppName            string        `mapstructure:"app_name"`
	AppEnv             string        `mapstructure:"app_env"`
	AppLogLevel        string        `mapstructure:"app_log_level"`
	AppPort            int           `mapstructure:"app_port"`
	MetricSamplingRate float64       `mapstructure:"app_metric_sampling_rate"`
	StatsdAddress      string        `mapstructure:"metric_statsd_address"`
	ModelPath          string        `mapstructure:"model_path"`
	LabelsPath         string        `mapstructure:"labels_path"`
	NumThreads         int           `mapstructure:"model_num_threads"`
	InputSize          int           `mapstructure:"model_input_size"`
	InputName          string        `mapstructure:"model_input_name"`
	OutputName         string        `mapstructure:"model_output_name"`
	TensorLayout       string        `mapstructure:"model_tensor_layout"`
	OrtLibraryPath     string        `mapstructure:"ort_library_path"`
	WorkerCount        int           `mapstructure:"worker_count"`
	WorkerQueueSize    int           `mapstructure:"worker_queue_size"`
	ClassifyTimeout    time.Duration `mapstructure:"classify_timeout"`
}

// Load reads configuration from the global viper instance. Values come from,
// in increasing priority: defaults, the file named by CONFIG_FILE, the
// environment, and any flags bound by the caller.
func Load() (*Config, error) {
	setDefaults()
	bindEnvVars()

	if file := viper.GetString("config_file"); file != "" {
		viper.SetConfigFile(file)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.TensorLayout = strings.ToLower(strings.TrimSpace(cfg.TensorLayout))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app_name", "image-classifier")
	viper.SetDefault("app_env", "local")
	viper.SetDefault("app_log_level", "INFO")
	viper.SetDefault("app_port", 8080)
	viper.SetDefault("app_metric_sampling_rate", 1.0)
	viper.SetDefault("model_path", "models/model.onnx")
	viper.SetDefault("labels_path", "models/labels.txt")
	viper.SetDefault("model_num_threads", 1)
	viper.SetDefault("model_input_size", 224)
	viper.SetDefault("model_tensor_layout", LayoutNHWC)
	viper.SetDefault("worker_count", runtime.NumCPU())
	viper.SetDefault("worker_queue_size", 64)
	viper.SetDefault("classify_timeout", "30s")
}

func bindEnvVars() {
	viper.BindEnv("config_file", "CONFIG_FILE")

	// App configuration
	viper.BindEnv("app_name", "APP_NAME")
	viper.BindEnv("app_env", "APP_ENV")
	viper.BindEnv("app_log_level", "APP_LOG_LEVEL")
	viper.BindEnv("app_port", "APP_PORT")
	viper.BindEnv("app_metric_sampling_rate", "APP_METRIC_SAMPLING_RATE")
	viper.BindEnv("metric_statsd_address", "METRIC_STATSD_ADDRESS")

	// Model configuration
	viper.BindEnv("model_path", "MODEL_PATH")
	viper.BindEnv("labels_path", "LABELS_PATH")
	viper.BindEnv("model_num_threads", "MODEL_NUM_THREADS")
	viper.BindEnv("model_input_size", "MODEL_INPUT_SIZE")
	viper.BindEnv("model_input_name", "MODEL_INPUT_NAME")
	viper.BindEnv("model_output_name", "MODEL_OUTPUT_NAME")
	viper.BindEnv("model_tensor_layout", "MODEL_TENSOR_LAYOUT")
	viper.BindEnv("ort_library_path", "ORT_LIBRARY_PATH")

	// Worker configuration
	viper.BindEnv("worker_count", "WORKER_COUNT")
	viper.BindEnv("worker_queue_size", "WORKER_QUEUE_SIZE")
	viper.BindEnv("classify_timeout", "CLASSIFY_TIMEOUT")
}

// Validate checks values that cannot be defaulted away.
func (c *Config) Validate() error {
	switch {
	case c.ModelPath == "":
		return fmt.Errorf("invalid MODEL_PATH: must be set")
	case c.LabelsPath == "":
		return fmt.Errorf("invalid LABELS_PATH: must be set")
	case c.NumThreads <= 0:
		return fmt.Errorf("invalid MODEL_NUM_THREADS: %d", c.NumThreads)
	case c.InputSize <= 0:
		return fmt.Errorf("invalid MODEL_INPUT_SIZE: %d", c.InputSize)
	case c.TensorLayout != LayoutNHWC && c.TensorLayout != LayoutNCHW:
		return fmt.Errorf("invalid MODEL_TENSOR_LAYOUT: %q", c.TensorLayout)
	case c.WorkerCount <= 0:
		return fmt.Errorf("invalid WORKER_COUNT: %d", c.WorkerCount)
	case c.WorkerQueueSize < 0:
		return fmt.Errorf("invalid WORKER_QUEUE_SIZE: %d", c.WorkerQueueSize)
	case c.AppPort <= 0:
		return fmt.Errorf("invalid APP_PORT: %d", c.AppPort)
	}
	return nil
}

// InputShape is the model input shape implied by the size and layout.
func (c *Config) InputShape() []int64 {
	s := int64(c.InputSize)
	if c.TensorLayout == LayoutNCHW {
		return []int64{1, 3, s, s}
	}
	return []int64{1, s, s, 3}
}
