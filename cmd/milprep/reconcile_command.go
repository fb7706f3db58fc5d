package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"milprep/internal/cohort"
	"milprep/internal/pipeline"
	"milprep/internal/report"
)

type reconcileOutput struct {
	Patients                   int            `json:"patients"`
	Slides                     int            `json:"slides"`
	Unknown                    int            `json:"unknown_ground_truth"`
	Labels                     map[string]int `json:"labels"`
	ArchiveBytes               int64          `json:"archive_bytes"`
	BagSizes                   *bagSizeOutput `json:"bag_sizes,omitempty"`
	PatientsWithoutSlides      []string       `json:"patients_without_slides"`
	PatientsWithoutGroundTruth []string       `json:"patients_without_ground_truth"`
	MissingFeatures            []string       `json:"missing_features"`
}

type bagSizeOutput struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var keepMissing bool
	var bagSizes bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Join the source tables with the feature directory and report the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			drop := cfg.Dataset.DropMissingGroundTruth && !keepMissing
			sources, err := pipeline.LoadCorpus(cmd.Context(), cfg, drop, logger)
			if err != nil {
				return err
			}

			var perPatient map[cohort.PatientID]int
			if bagSizes {
				perPatient, err = report.BagSizes(cmd.Context(), featureStore(cfg), sources.Corpus, cfg.Dataset.NumWorkers)
				if err != nil {
					return err
				}
			}
			summary, err := report.Summarize(sources.Corpus, perPatient)
			if err != nil {
				return err
			}

			diag := sources.Diagnostics
			if asJSON {
				payload := reconcileOutput{
					Patients:                   summary.Patients,
					Slides:                     summary.Slides,
					Unknown:                    summary.Unknown,
					Labels:                     map[string]int{},
					ArchiveBytes:               summary.ArchiveBytes,
					PatientsWithoutSlides:      stringList(diag.PatientsWithoutSlides),
					PatientsWithoutGroundTruth: stringList(diag.PatientsWithoutGroundTruth),
					MissingFeatures:            stringList(diag.MissingFeatures),
				}
				for _, lc := range summary.Labels {
					payload.Labels[lc.Label] = lc.Count
				}
				if summary.BagSizes != nil {
					payload.BagSizes = &bagSizeOutput{
						Min:    summary.BagSizes.Min,
						Max:    summary.BagSizes.Max,
						Mean:   summary.BagSizes.Mean,
						Median: summary.BagSizes.Median,
						P90:    summary.BagSizes.P90,
					}
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Patients: %d (%d without ground truth)\n", summary.Patients, summary.Unknown)
			fmt.Fprintf(out, "Slides: %d (%s on disk)\n", summary.Slides, summary.HumanArchiveBytes())
			rows := make([][]string, 0, len(summary.Labels))
			for _, lc := range summary.Labels {
				rows = append(rows, []string{lc.Label, strconv.Itoa(lc.Count)})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable(out, []string{"Label", "Patients"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			if s := summary.BagSizes; s != nil {
				fmt.Fprintf(out, "Instances per patient: min %.0f, median %.0f, mean %.1f, p90 %.0f, max %.0f\n",
					s.Min, s.Median, s.Mean, s.P90, s.Max)
			}
			if diag.Empty() {
				fmt.Fprintln(out, "No reconciliation issues")
				return nil
			}
			fmt.Fprintf(out, "Patients without slides: %d\n", len(diag.PatientsWithoutSlides))
			fmt.Fprintf(out, "Patients without ground truth: %d\n", len(diag.PatientsWithoutGroundTruth))
			fmt.Fprintf(out, "Missing feature archives: %d\n", len(diag.MissingFeatures))
			return nil
		},
	}

	cmd.Flags().BoolVar(&keepMissing, "keep-missing", false, "Keep slide-only patients even when drop_missing_ground_truth is set")
	cmd.Flags().BoolVar(&bagSizes, "bag-sizes", false, "Read every archive and report the instance count distribution")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func stringList[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}
