package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Brownie44l1/image-classifier/internal/config"
	"github.com/Brownie44l1/image-classifier/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "classify",
	Short:         "Classify still images with a local ONNX model",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("model", "", "path to the ONNX model (MODEL_PATH)")
	flags.String("labels", "", "path to the label file (LABELS_PATH)")
	flags.Int("threads", 0, "intra-op threads for inference (MODEL_NUM_THREADS)")
	flags.Int("size", 0, "model input edge in pixels (MODEL_INPUT_SIZE)")
	flags.String("layout", "", "input tensor layout, nhwc or nchw (MODEL_TENSOR_LAYOUT)")
	flags.String("ort-lib", "", "path to the ONNX Runtime shared library (ORT_LIBRARY_PATH)")
	flags.String("log-level", "", "log level (APP_LOG_LEVEL)")

	bindFlag("model_path", "model")
	bindFlag("labels_path", "labels")
	bindFlag("model_num_threads", "threads")
	bindFlag("model_input_size", "size")
	bindFlag("model_tensor_layout", "layout")
	bindFlag("ort_library_path", "ort-lib")
	bindFlag("app_log_level", "log-level")
}

// bindFlag lets a flag override the environment only when it was set.
func bindFlag(key, name string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(name)); err != nil {
		panic(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init("classify", cfg.AppLogLevel)
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
