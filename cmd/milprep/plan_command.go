package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"milprep/internal/config"
	"milprep/internal/features"
	"milprep/internal/manifest"
	"milprep/internal/pipeline"
)

type planOutput struct {
	RunID         string           `json:"run_id"`
	Mode          string           `json:"mode"`
	TrainPatients int              `json:"train_patients"`
	ValidPatients int              `json:"valid_patients"`
	Folds         int              `json:"folds"`
	DimFeatures   int              `json:"dim_features"`
	TrainBatches  int              `json:"train_batches"`
	Categories    []categoryOutput `json:"categories"`
	Manifest      string           `json:"manifest,omitempty"`
}

type categoryOutput struct {
	Name   string  `json:"name"`
	Count  int     `json:"count"`
	Weight float64 `json:"weight"`
}

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var noManifest bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Plan a training run: reconcile, split, gate categories and record the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			plan, err := pipeline.Prepare(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			run, err := plan.ManifestRun(cfg)
			if err != nil {
				return err
			}

			manifestPath := ""
			if cfg.Manifest.Enabled && !noManifest {
				store, err := manifest.Open(cfg)
				if err != nil {
					return fmt.Errorf("open manifest: %w", err)
				}
				defer store.Close()
				if err := store.RecordRun(cmd.Context(), run); err != nil {
					return fmt.Errorf("record run: %w", err)
				}
				manifestPath = store.Path()
			}

			payload := planOutput{
				RunID:         plan.RunID,
				Mode:          run.Mode,
				TrainPatients: len(plan.Train),
				ValidPatients: len(plan.Valid),
				Folds:         len(plan.Folds),
				DimFeatures:   plan.DimFeatures,
				TrainBatches:  plan.TrainLoader.NumBatches(),
				Manifest:      manifestPath,
			}
			for _, c := range run.Categories {
				payload.Categories = append(payload.Categories, categoryOutput{Name: c.Name, Count: c.Count, Weight: c.Weight})
			}
			if asJSON {
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s (%s)\n", payload.RunID, payload.Mode)
			fmt.Fprintf(out, "Train patients: %d, validation patients: %d\n", payload.TrainPatients, payload.ValidPatients)
			fmt.Fprintf(out, "Feature width: %d, training batches: %d\n", payload.DimFeatures, payload.TrainBatches)
			fmt.Fprintln(out, renderCategories(out, run.Categories))
			if manifestPath != "" {
				fmt.Fprintf(out, "Recorded in %s\n", manifestPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	cmd.Flags().BoolVar(&noManifest, "no-manifest", false, "Do not record the run in the manifest database")
	return cmd
}

func featureStore(cfg *config.Config) features.FileStore {
	return features.FileStore{Dataset: cfg.Features.Dataset}
}
