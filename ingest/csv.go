/*
Package ingest reads the trial CSV into typed rows.

PURPOSE:
  Turns the flat cell-count file into []trial.Row, applying only type
  coercion: integers for age and the five counts, an optional integer for
  time_from_treatment_start. Domain sentinels (treatment "none") are left
  untouched for the trial package to interpret.

INPUT:
  UTF-8 text, optionally BOM-prefixed, comma separated, header row first.
  Header names are trimmed and NFC-normalized. Values are only trimmed of
  surrounding whitespace; their code points are kept as written, so keys
  that differ in Unicode normalization stay distinct. Extra columns are
  ignored.

POLICY:
  Strict. The first malformed row aborts parsing with *trial.ValidationError
  naming the 1-based data row and the field.

SEE ALSO:
  - source.go: Opens local files and S3 objects
  - trial/row.go: The Row type produced here
*/
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/warp/trialdb/trial"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Column names expected in the header row.
const (
	ColProject                = "project"
	ColSubject                = "subject"
	ColCondition              = "condition"
	ColAge                    = "age"
	ColSex                    = "sex"
	ColTreatment              = "treatment"
	ColSample                 = "sample"
	ColSampleType             = "sample_type"
	ColTimeFromTreatmentStart = "time_from_treatment_start"
	ColResponse               = "response"
	ColBCell                  = "b_cell"
	ColCD8TCell               = "cd8_t_cell"
	ColCD4TCell               = "cd4_t_cell"
	ColNKCell                 = "nk_cell"
	ColMonocyte               = "monocyte"
)

// Columns lists every required header column.
var Columns = []string{
	ColProject, ColSubject, ColCondition, ColAge, ColSex, ColTreatment,
	ColSample, ColSampleType, ColTimeFromTreatmentStart, ColResponse,
	ColBCell, ColCD8TCell, ColCD4TCell, ColNKCell, ColMonocyte,
}

var requiredValues = []string{
	ColProject, ColSubject, ColCondition, ColSex, ColSample,
	ColBCell, ColCD8TCell, ColCD4TCell, ColNKCell, ColMonocyte,
}

// ParseFile parses the CSV file at path.
// A missing file is reported as a ConfigurationError.
func ParseFile(path string) ([]trial.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &trial.ConfigurationError{Op: "open input", Err: err}
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads all rows from r. Input order is preserved.
func Parse(r io.Reader) ([]trial.Row, error) {
	// BOMOverride drops a leading UTF-8 BOM and passes other input through.
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	reader := csv.NewReader(decoded)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, &trial.ValidationError{Row: dataRow(pe.Line), Reason: pe.Err.Error()}
		}
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, &trial.ValidationError{Row: 0, Field: ColProject, Reason: "missing (empty input)"}
	}

	idx, err := headerIndex(records[0])
	if err != nil {
		return nil, err
	}

	rows := make([]trial.Row, 0, len(records)-1)
	for i, rec := range records[1:] {
		row, err := parseRecord(i+1, rec, idx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// dataRow converts a 1-based file line to a 1-based data row index.
func dataRow(line int) int {
	if line <= 1 {
		return 0
	}
	return line - 1
}

func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[headerName(h)] = i
	}
	for _, col := range Columns {
		if _, ok := idx[col]; !ok {
			return nil, &trial.ValidationError{Row: 0, Field: col, Reason: "column missing"}
		}
	}
	return idx, nil
}

func headerName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

type record struct {
	index  int
	values []string
	cols   map[string]int
}

func (r record) get(col string) string {
	return strings.TrimSpace(r.values[r.cols[col]])
}

func (r record) invalid(col, value, reason string) error {
	return &trial.ValidationError{Row: r.index, Field: col, Value: value, Reason: reason}
}

func (r record) int64(col string) (int64, error) {
	v := r.get(col)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, r.invalid(col, v, "not an integer")
	}
	return n, nil
}

func parseRecord(index int, values []string, cols map[string]int) (trial.Row, error) {
	rec := record{index: index, values: values, cols: cols}

	for _, col := range requiredValues {
		if rec.get(col) == "" {
			return trial.Row{}, rec.invalid(col, "", "required value is empty")
		}
	}

	age, err := rec.int64(ColAge)
	if err != nil {
		return trial.Row{}, err
	}

	row := trial.Row{
		Index:      index,
		Project:    rec.get(ColProject),
		Subject:    rec.get(ColSubject),
		Condition:  rec.get(ColCondition),
		Age:        int(age),
		Sex:        rec.get(ColSex),
		Treatment:  rec.get(ColTreatment),
		Sample:     rec.get(ColSample),
		SampleType: rec.get(ColSampleType),
		Response:   rec.get(ColResponse),
	}

	if v := rec.get(ColTimeFromTreatmentStart); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return trial.Row{}, rec.invalid(ColTimeFromTreatmentStart, v, "not an integer")
		}
		row.TimeFromTreatmentStart = &n
	}

	counts := []struct {
		col string
		dst *int64
	}{
		{ColBCell, &row.BCell},
		{ColCD8TCell, &row.CD8TCell},
		{ColCD4TCell, &row.CD4TCell},
		{ColNKCell, &row.NKCell},
		{ColMonocyte, &row.Monocyte},
	}
	for _, c := range counts {
		n, err := rec.int64(c.col)
		if err != nil {
			return trial.Row{}, err
		}
		*c.dst = n
	}

	return row, nil
}
