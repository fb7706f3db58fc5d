package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"milprep/internal/manifest"
)

func newCategoriesCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Show the category order and weights recorded for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := manifest.Open(cfg)
			if err != nil {
				return fmt.Errorf("open manifest: %w", err)
			}
			defer store.Close()

			id := strings.TrimSpace(runID)
			if id == "" {
				latest, err := store.LatestRun(cmd.Context())
				if errors.Is(err, manifest.ErrRunNotFound) {
					return errors.New("no runs recorded yet; run `milprep plan` first")
				}
				if err != nil {
					return err
				}
				id = latest.ID
			}
			categories, err := store.Categories(cmd.Context(), id)
			if err != nil {
				return err
			}

			if asJSON {
				payload := make([]categoryOutput, 0, len(categories))
				for _, c := range categories {
					payload = append(payload, categoryOutput{Name: c.Name, Count: c.Count, Weight: c.Weight})
				}
				return writeJSON(cmd, payload)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", id)
			fmt.Fprintln(out, renderCategories(out, categories))
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Run identifier (defaults to the most recent run)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderCategories(out io.Writer, categories []manifest.Category) string {
	rows := make([][]string, 0, len(categories))
	for i, c := range categories {
		rows = append(rows, []string{
			strconv.Itoa(i),
			c.Name,
			strconv.Itoa(c.Count),
			strconv.FormatFloat(c.Weight, 'f', 4, 64),
		})
	}
	return renderTable(out, []string{"Index", "Category", "Patients", "Weight"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignRight})
}
