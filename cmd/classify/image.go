package main

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/image-classifier/internal/imageproc"
	"github.com/Brownie44l1/image-classifier/internal/pipeline"
)

var (
	topK int
	jobs int
)

var imageCmd = &cobra.Command{
	Use:   "image [file...]",
	Short: "Print the top labels for each image",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImage,
}

func init() {
	imageCmd.Flags().IntVarP(&topK, "top", "k", 1, "number of labels to print per image")
	imageCmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "images classified in parallel (default WORKER_COUNT)")
	rootCmd.AddCommand(imageCmd)
}

func runImage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if jobs > 0 {
		cfg.WorkerCount = jobs
	}

	p, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	dispatcher := pipeline.NewDispatcher(p, cfg.WorkerCount, len(args))
	defer dispatcher.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	outcomes := make([]pipeline.Outcome, len(args))
	var wg sync.WaitGroup
	for i, path := range args {
		raw, err := readImage(path)
		if err != nil {
			outcomes[i] = pipeline.Outcome{Status: pipeline.StatusFailed, Err: err}
			continue
		}

		wg.Add(1)
		err = dispatcher.SubmitFunc(ctx, pipeline.Request{Image: raw, TopK: topK}, func(o pipeline.Outcome) {
			outcomes[i] = o
			wg.Done()
		})
		if err != nil {
			wg.Done()
			outcomes[i] = pipeline.Outcome{Status: pipeline.StatusNotAttempted, Err: err}
		}
	}
	wg.Wait()

	failed := 0
	out := cmd.OutOrStdout()
	for i, path := range args {
		o := outcomes[i]
		if o.Status != pipeline.StatusSucceeded {
			failed++
			fmt.Fprintf(out, "%s\t%s\t%v\n", path, o.Status, o.Err)
			continue
		}
		for _, c := range o.Ranked {
			fmt.Fprintf(out, "%s\t%s\t%.4f\n", path, c.Label, c.Confidence)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d images could not be classified", failed, len(args))
	}
	return nil
}

func readImage(path string) (imageproc.RawImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return imageproc.RawImage{}, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return imageproc.RawImage{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return imageproc.FromImage(img)
}
