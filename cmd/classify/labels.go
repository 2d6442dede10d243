package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/image-classifier/internal/labels"
)

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "List the label file with output indices",
	Args:  cobra.NoArgs,
	RunE:  runLabels,
}

func init() {
	rootCmd.AddCommand(labelsCmd)
}

func runLabels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	set, err := labels.Load(cfg.LabelsPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, label := range set {
		fmt.Fprintf(out, "%d\t%s\n", i, label)
	}
	return nil
}
