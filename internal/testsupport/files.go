package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gocarina/gocsv"

	"milprep/internal/features"
)

// WriteTable writes a CSV file with the given header and rows.
func WriteTable(t testing.TB, path string, header []string, rows ...[]string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := gocsv.DefaultCSVWriter(f)
	for _, record := range append([][]string{header}, rows...) {
		if err := w.Write(record); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush %s: %v", path, err)
	}
}

// WriteArchive writes a feature archive with rows instances of width dim.
// Values start at offset and increase by one, so every instance is distinct.
func WriteArchive(t testing.TB, path string, rows, dim int, offset float32) {
	t.Helper()

	data := make([]float32, rows*dim)
	for i := range data {
		data[i] = offset + float32(i)
	}
	bag := features.Bag{Rows: rows, Dim: dim, Data: data}
	if err := features.WriteFile(path, features.DefaultDataset, bag); err != nil {
		t.Fatalf("write archive %s: %v", path, err)
	}
}
