package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"milprep/internal/manifest"
	"milprep/internal/pipeline"
)

type deployOutput struct {
	RunID              string   `json:"run_id"`
	TrainingRun        string   `json:"training_run,omitempty"`
	Categories         []string `json:"categories"`
	Patients           int      `json:"patients"`
	Unknown            int      `json:"unknown_ground_truth"`
	Instances          int      `json:"instances"`
	DimFeatures        int      `json:"dim_features"`
	MissingFeatures    int      `json:"missing_features"`
	WithoutGroundTruth int      `json:"patients_without_ground_truth"`
}

func newDeployCommand(ctx *commandContext) *cobra.Command {
	var runID string
	var categories []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Prepare an evaluation pass with the category order of a recorded run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			order := trimAll(categories)
			trainingRun := ""
			if len(order) == 0 {
				trainingRun, order, err = recordedCategories(cmd, ctx, strings.TrimSpace(runID))
				if err != nil {
					return err
				}
			}

			deployment, err := pipeline.PrepareDeployment(cmd.Context(), cfg, order, logger)
			if err != nil {
				return err
			}

			payload := deployOutput{
				RunID:              deployment.RunID,
				TrainingRun:        trainingRun,
				Categories:         deployment.Categories,
				Patients:           deployment.Loader.Len(),
				MissingFeatures:    len(deployment.Diagnostics.MissingFeatures),
				WithoutGroundTruth: len(deployment.Diagnostics.PatientsWithoutGroundTruth),
			}
			for _, rec := range deployment.Loader.Records() {
				if !rec.GroundTruth.IsKnown() {
					payload.Unknown++
				}
			}
			for batch, err := range deployment.Loader.Batches(cmd.Context()) {
				if err != nil {
					return err
				}
				for i, bag := range batch.Bags {
					payload.Instances += batch.Counts[i]
					payload.DimFeatures = bag.Dim
				}
			}

			if asJSON {
				return writeJSON(cmd, payload)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", payload.RunID)
			if trainingRun != "" {
				fmt.Fprintf(out, "Categories from run: %s\n", trainingRun)
			}
			fmt.Fprintf(out, "Categories: %s\n", strings.Join(payload.Categories, ", "))
			fmt.Fprintf(out, "Patients: %d (%d without ground truth)\n", payload.Patients, payload.Unknown)
			fmt.Fprintf(out, "Instances: %d, feature width: %d\n", payload.Instances, payload.DimFeatures)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "Training run whose category order is reused (defaults to the most recent run)")
	cmd.Flags().StringSliceVar(&categories, "categories", nil, "Explicit category order instead of a recorded run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func recordedCategories(cmd *cobra.Command, ctx *commandContext, runID string) (string, []string, error) {
	store, err := manifest.Open(ctx.configValue())
	if err != nil {
		return "", nil, fmt.Errorf("open manifest: %w", err)
	}
	defer store.Close()

	if runID == "" {
		latest, err := store.LatestRun(cmd.Context())
		if errors.Is(err, manifest.ErrRunNotFound) {
			return "", nil, errors.New("no runs recorded yet; run `milprep plan` first or pass --categories")
		}
		if err != nil {
			return "", nil, err
		}
		runID = latest.ID
	}
	recorded, err := store.Categories(cmd.Context(), runID)
	if err != nil {
		return "", nil, err
	}
	order := make([]string, len(recorded))
	for i, c := range recorded {
		order[i] = c.Name
	}
	return runID, order, nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
