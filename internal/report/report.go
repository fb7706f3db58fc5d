package report

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"milprep/internal/cohort"
	"milprep/internal/features"
)

// BagSizeStats describes the distribution of instances per patient.
type BagSizeStats struct {
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	P90    float64
}

// LabelCount is the number of patients carrying one label.
type LabelCount struct {
	Label string
	Count int
}

// Summary describes a reconciled corpus.
type Summary struct {
	Patients     int
	Slides       int
	Unknown      int
	Labels       []LabelCount
	ArchiveBytes int64
	BagSizes     *BagSizeStats
}

// HumanArchiveBytes renders ArchiveBytes for people.
func (s Summary) HumanArchiveBytes() string {
	return humanize.Bytes(uint64(max(s.ArchiveBytes, 0)))
}

// Summarize counts patients, slides and labels of corpus and totals archive
// sizes on disk. bagSizes may be nil, in which case no distribution is computed.
func Summarize(corpus cohort.Corpus, bagSizes map[cohort.PatientID]int) (Summary, error) {
	summary := Summary{Patients: len(corpus), Slides: corpus.Slides()}

	perLabel := map[string]int{}
	for _, rec := range corpus {
		for _, path := range rec.FeatureFiles {
			if info, err := os.Stat(string(path)); err == nil {
				summary.ArchiveBytes += info.Size()
			}
		}
		if label, ok := rec.GroundTruth.Label(); ok {
			perLabel[label]++
		} else {
			summary.Unknown++
		}
	}
	for label, n := range perLabel {
		summary.Labels = append(summary.Labels, LabelCount{Label: label, Count: n})
	}
	sort.Slice(summary.Labels, func(i, j int) bool { return summary.Labels[i].Label < summary.Labels[j].Label })

	if len(bagSizes) > 0 {
		dist, err := distribution(bagSizes)
		if err != nil {
			return Summary{}, err
		}
		summary.BagSizes = &dist
	}
	return summary, nil
}

func distribution(bagSizes map[cohort.PatientID]int) (BagSizeStats, error) {
	data := make(stats.Float64Data, 0, len(bagSizes))
	for _, n := range bagSizes {
		data = append(data, float64(n))
	}
	var (
		out BagSizeStats
		err error
	)
	if out.Min, err = stats.Min(data); err != nil {
		return BagSizeStats{}, fmt.Errorf("bag size min: %w", err)
	}
	if out.Max, err = stats.Max(data); err != nil {
		return BagSizeStats{}, fmt.Errorf("bag size max: %w", err)
	}
	if out.Mean, err = stats.Mean(data); err != nil {
		return BagSizeStats{}, fmt.Errorf("bag size mean: %w", err)
	}
	if out.Median, err = stats.Median(data); err != nil {
		return BagSizeStats{}, fmt.Errorf("bag size median: %w", err)
	}
	if out.P90, err = stats.Percentile(data, 90); err != nil {
		return BagSizeStats{}, fmt.Errorf("bag size p90: %w", err)
	}
	return out, nil
}

// BagSizes reads every patient's full bag and returns its instance count.
// Reads run on at most workers goroutines.
func BagSizes(ctx context.Context, store features.Reader, corpus cohort.Corpus, workers int) (map[cohort.PatientID]int, error) {
	ids := corpus.Patients()
	sizes := make([]int, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for i, id := range ids {
		g.Go(func() error {
			bag, err := features.Assemble(gctx, store, corpus[id].FeatureFiles)
			if err != nil {
				return fmt.Errorf("patient %s: %w", id, err)
			}
			sizes[i] = bag.Rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[cohort.PatientID]int, len(ids))
	for i, id := range ids {
		out[id] = sizes[i]
	}
	return out, nil
}
