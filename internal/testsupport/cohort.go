package testsupport

import (
	"fmt"
	"path/filepath"
	"testing"

	"milprep/internal/config"
)

// Cohort describes a synthetic study: patients per label, slides per patient
// and instances per slide.
type Cohort struct {
	Labels    map[string]int
	Slides    int
	Instances int
	Dim       int
}

// WriteCohort materializes c as clinical and slide tables plus archives at the
// locations cfg points to. Patients are named <label>-<n>.
func WriteCohort(t testing.TB, cfg *config.Config, c Cohort) {
	t.Helper()

	slides := max(c.Slides, 1)
	instances := max(c.Instances, 1)
	dim := max(c.Dim, 1)

	var (
		clini  [][]string
		slideT [][]string
		offset float32
	)
	for label, n := range c.Labels {
		for i := 0; i < n; i++ {
			patient := fmt.Sprintf("%s-%03d", label, i)
			clini = append(clini, []string{patient, label})
			for s := 0; s < slides; s++ {
				name := fmt.Sprintf("%s-slide%d", patient, s)
				slideT = append(slideT, []string{patient, name})
				WriteArchive(t, filepath.Join(cfg.Paths.FeatureDir, name+cfg.Features.Extension), instances, dim, offset)
				offset += float32(instances * dim)
			}
		}
	}
	WriteTable(t, cfg.Paths.CliniTable, []string{cfg.Columns.Patient, cfg.Columns.GroundTruth}, clini...)
	WriteTable(t, cfg.Paths.SlideTable, []string{cfg.Columns.Patient, cfg.Columns.Filename}, slideT...)
}
