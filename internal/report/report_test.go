package report_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"milprep/internal/cohort"
	"milprep/internal/features"
	"milprep/internal/report"
	"milprep/internal/testsupport"
)

func corpusOnDisk(t *testing.T) cohort.Corpus {
	t.Helper()
	dir := t.TempDir()
	paths := map[string]int{"a1": 4, "a2": 6, "b1": 10, "u1": 2}
	for name, rows := range paths {
		testsupport.WriteArchive(t, filepath.Join(dir, name+".mpk"), rows, 3, 0)
	}
	p := func(name string) cohort.FeaturePath { return cohort.FeaturePath(filepath.Join(dir, name+".mpk")) }
	return cohort.Corpus{
		"PA": {ID: "PA", GroundTruth: cohort.Known("A"), FeatureFiles: []cohort.FeaturePath{p("a1"), p("a2")}},
		"PB": {ID: "PB", GroundTruth: cohort.Known("B"), FeatureFiles: []cohort.FeaturePath{p("b1")}},
		"PU": {ID: "PU", GroundTruth: cohort.Unknown(), FeatureFiles: []cohort.FeaturePath{p("u1")}},
	}
}

func TestSummarizeCounts(t *testing.T) {
	corpus := corpusOnDisk(t)

	summary, err := report.Summarize(corpus, nil)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Patients)
	require.Equal(t, 4, summary.Slides)
	require.Equal(t, 1, summary.Unknown)
	require.Equal(t, []report.LabelCount{{Label: "A", Count: 1}, {Label: "B", Count: 1}}, summary.Labels)
	require.Nil(t, summary.BagSizes)

	var total int64
	for _, rec := range corpus {
		for _, path := range rec.FeatureFiles {
			info, err := os.Stat(string(path))
			require.NoError(t, err)
			total += info.Size()
		}
	}
	require.Equal(t, total, summary.ArchiveBytes)
	require.NotEmpty(t, summary.HumanArchiveBytes())
}

func TestBagSizesFeedDistribution(t *testing.T) {
	corpus := corpusOnDisk(t)

	sizes, err := report.BagSizes(context.Background(), features.FileStore{}, corpus, 2)
	require.NoError(t, err)
	require.Equal(t, map[cohort.PatientID]int{"PA": 10, "PB": 10, "PU": 2}, sizes)

	summary, err := report.Summarize(corpus, sizes)
	require.NoError(t, err)
	require.NotNil(t, summary.BagSizes)
	require.Equal(t, 2.0, summary.BagSizes.Min)
	require.Equal(t, 10.0, summary.BagSizes.Max)
	require.Equal(t, 10.0, summary.BagSizes.Median)
	require.InDelta(t, 22.0/3.0, summary.BagSizes.Mean, 1e-9)
}

func TestBagSizesSurfacesReadErrors(t *testing.T) {
	corpus := cohort.Corpus{
		"P1": {ID: "P1", GroundTruth: cohort.Known("A"), FeatureFiles: []cohort.FeaturePath{"/nonexistent/x.mpk"}},
	}
	_, err := report.BagSizes(context.Background(), features.FileStore{}, corpus, 1)
	var readErr *features.StorageReadError
	require.ErrorAs(t, err, &readErr)
}
