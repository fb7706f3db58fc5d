package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"milprep/internal/config"
	"milprep/internal/features"
)

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var dataset string

	cmd := &cobra.Command{
		Use:         "inspect <archive>",
		Short:       "Show the shape of a feature archive",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			name := strings.TrimSpace(dataset)
			if name == "" {
				name = features.DefaultDataset
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("stat archive: %w", err)
			}
			bag, err := features.ReadFile(path, name)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Archive: %s (%s)\n", path, humanize.Bytes(uint64(info.Size())))
			fmt.Fprintf(out, "Table: %s\n", name)
			fmt.Fprintf(out, "Instances: %d\n", bag.Rows)
			fmt.Fprintf(out, "Feature width: %d\n", bag.Dim)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataset, "dataset", "", "Table name inside the archive (default \"feats\")")
	return cmd
}
