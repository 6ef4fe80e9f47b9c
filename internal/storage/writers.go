package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// FormatFloat prints integral values without decimals, moderate values
// with six decimals and everything else in exponent form so small
// spectra survive the round trip.
func FormatFloat(v float64) string {
	a := math.Abs(v)
	switch {
	case math.IsNaN(v):
		return "NaN"
	case v == math.Trunc(v) && a < 1e15:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case a >= 1e-3 && a < 1e9:
		return strconv.FormatFloat(v, 'f', 6, 64)
	default:
		return strconv.FormatFloat(v, 'e', 6, 64)
	}
}

// WriteRecords writes a header plus string rows.
func (r *Run) WriteRecords(rel string, header []string, rows [][]string) error {
	f, err := r.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// WriteWith creates rel and hands it to fn, for encoders that own their
// format.
func (r *Run) WriteWith(rel string, fn func(w io.Writer) error) error {
	f, err := r.create(rel)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return f.Close()
}

// WriteTable writes a numeric table as CSV.
func (r *Run) WriteTable(rel string, t *dynamo.Table) error {
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = FormatFloat(v)
		}
		rows[i] = rec
	}
	return r.WriteRecords(rel, t.Columns, rows)
}

// WriteField stores a 2-D field as a float64 NPY matrix.
func (r *Run) WriteField(rel string, field dynamo.Field) error {
	rows, cols := field.Dims()
	m := mat.NewDense(rows, cols, field.Flat())
	f, err := r.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := npyio.Write(f, m); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

// WriteVector stores a 1-D float64 NPY array.
func (r *Run) WriteVector(rel string, v []float64) error {
	f, err := r.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := npyio.Write(f, v); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	return nil
}

func (r *Run) WriteJSON(rel string, v any) error {
	f, err := r.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (r *Run) WriteYAML(rel string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	f, err := r.create(rel)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// ReadField loads a 2-D NPY matrix.
func ReadField(path string) (dynamo.Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	rows, cols := m.Dims()
	out := dynamo.NewField(rows, cols)
	for i := range out {
		mat.Row(out[i], i, &m)
	}
	return out, nil
}

// ReadVector loads a 1-D NPY array.
func ReadVector(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var v []float64
	if err := npyio.Read(f, &v); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return v, nil
}

// ReadTable parses a numeric CSV with a header row. Unparseable cells
// become NaN.
func ReadTable(path string) (*dynamo.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read %s: %w", path, dynamo.ErrEmptyInput)
	}

	t := dynamo.NewTable(records[0]...)
	for _, rec := range records[1:] {
		if len(rec) == 0 {
			continue
		}
		row := make([]float64, len(t.Columns))
		for j := range row {
			row[j] = math.NaN()
			if j < len(rec) {
				if v, err := strconv.ParseFloat(rec[j], 64); err == nil {
					row[j] = v
				}
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
