package cohort

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
)

// ErrUnsupportedTable indicates a table file that is neither CSV nor XLSX.
var ErrUnsupportedTable = errors.New("table has to be a csv (*.csv) or excel (*.xlsx) file")

// missingMarkers are cell values treated as an absent ground truth.
var missingMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"None": {},
	"#N/A": {},
	"<NA>": {},
}

// Table is a parsed source table with trimmed string cells. Every row has
// exactly len(Columns) cells.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// ReadTable parses a CSV or the first sheet of an XLSX workbook.
func ReadTable(path string) (*Table, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("read %s: %w", path, ErrUnsupportedTable)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return newTable(path, records), nil
}

// ParseCSV reads a CSV table from r. name is used in error messages.
func ParseCSV(name string, r io.Reader) (*Table, error) {
	records, err := gocsv.LazyCSVReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return newTable(name, records), nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return gocsv.LazyCSVReader(file).ReadAll()
}

func readXLSX(path string) ([][]string, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer book.Close()
	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return book.GetRows(sheets[0])
}

func newTable(name string, records [][]string) *Table {
	table := &Table{Name: name}
	if len(records) == 0 {
		return table
	}
	header := records[0]
	table.Columns = make([]string, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		table.Columns[i] = strings.TrimSpace(col)
	}
	for _, record := range records[1:] {
		row := make([]string, len(table.Columns))
		blank := true
		for i := range row {
			if i < len(record) {
				row[i] = strings.TrimSpace(record[i])
			}
			if row[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// Column resolves name to a column index, preferring an exact match over a
// case-folded one.
func (t *Table) Column(name string) (int, error) {
	if idx := slices.Index(t.Columns, name); idx >= 0 {
		return idx, nil
	}
	fold := cases.Fold()
	want := fold.String(name)
	for i, col := range t.Columns {
		if fold.String(col) == want {
			return i, nil
		}
	}
	return -1, &SchemaError{Table: t.Name, Column: name, Available: slices.Clone(t.Columns)}
}

// PatientGroundTruth maps each patient of a clinical table to its ground truth.
// Empty and NA-style cells become Unknown.
func PatientGroundTruth(table *Table, patientCol, truthCol string) (map[PatientID]GroundTruth, error) {
	pIdx, err := table.Column(patientCol)
	if err != nil {
		return nil, err
	}
	tIdx, err := table.Column(truthCol)
	if err != nil {
		return nil, err
	}

	truths := make(map[PatientID]GroundTruth, len(table.Rows))
	var dupes []string
	for _, row := range table.Rows {
		id := PatientID(row[pIdx])
		if id == "" {
			continue
		}
		if _, seen := truths[id]; seen {
			dupes = append(dupes, string(id))
			continue
		}
		truths[id] = parseGroundTruth(row[tIdx])
	}
	if len(dupes) > 0 {
		return nil, &DuplicateKeyError{Table: table.Name, Column: table.Columns[pIdx], Keys: uniqueSorted(dupes)}
	}
	return truths, nil
}

func parseGroundTruth(cell string) GroundTruth {
	if _, missing := missingMarkers[cell]; missing {
		return Unknown()
	}
	return Known(cell)
}

// SlidePatients maps every slide of a slide table to the archive path under
// featureDir and its patient. ext is appended to filenames that carry no
// extension of their own. Ownership goes through GroupSlideRows; any filename
// listed twice is a DuplicateKeyError on the filename column.
func SlidePatients(table *Table, featureDir, filenameCol, patientCol, ext string) (map[FeaturePath]PatientID, error) {
	rows, err := SlideRows(table, featureDir, filenameCol, patientCol, ext)
	if err != nil {
		return nil, err
	}
	fIdx, _ := table.Column(filenameCol)
	column := table.Columns[fIdx]
	if _, err := GroupSlideRows(rows); err != nil {
		var dup *DuplicateKeyError
		if errors.As(err, &dup) {
			dup.Table = table.Name
			dup.Column = column
		}
		return nil, err
	}

	slides := make(map[FeaturePath]PatientID, len(rows))
	var repeats []string
	for _, row := range rows {
		if _, seen := slides[row.Path]; seen {
			repeats = append(repeats, row.Key)
			continue
		}
		slides[row.Path] = row.Patient
	}
	if len(repeats) > 0 {
		return nil, &DuplicateKeyError{Table: table.Name, Column: column, Keys: uniqueSorted(repeats)}
	}
	return slides, nil
}

// SlideRows reads the slide table as a flat association list. Rows with an
// empty filename or patient are skipped.
func SlideRows(table *Table, featureDir, filenameCol, patientCol, ext string) ([]SlideRow, error) {
	fIdx, err := table.Column(filenameCol)
	if err != nil {
		return nil, err
	}
	pIdx, err := table.Column(patientCol)
	if err != nil {
		return nil, err
	}

	rows := make([]SlideRow, 0, len(table.Rows))
	for _, row := range table.Rows {
		name := row[fIdx]
		if name == "" || row[pIdx] == "" {
			continue
		}
		file := name
		if filepath.Ext(file) == "" {
			file += ext
		}
		rows = append(rows, SlideRow{
			Path:    FeaturePath(filepath.Join(featureDir, file)),
			Patient: PatientID(row[pIdx]),
			Key:     name,
		})
	}
	return rows, nil
}

func uniqueSorted(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
