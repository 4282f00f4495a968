// Package tsv reads and writes the tab-separated tables and JSON multisets
// exchanged between pipeline stages.
package tsv

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/famsim/pkg/errors"
)

// record is one parsed data row with header-based column access.
type record struct {
	path   string
	line   int
	fields []string
	cols   map[string]int
}

func (r record) has(col string) bool {
	i, ok := r.cols[col]
	return ok && i < len(r.fields)
}

func (r record) str(col string) string {
	if !r.has(col) {
		return ""
	}
	return strings.TrimSpace(r.fields[r.cols[col]])
}

func (r record) parseErr(col, value string, cause error) error {
	return errors.Wrap(cause, errors.ErrCodeInputParse, "invalid value in table").
		WithDetailf("file=%s line=%d column=%s value=%q", r.path, r.line, col, value)
}

func (r record) int64(col string) (int64, error) {
	s := r.str(col)
	v, err := parseInt(s)
	if err != nil {
		return 0, r.parseErr(col, s, err)
	}
	return v, nil
}

func (r record) int(col string) (int, error) {
	v, err := r.int64(col)
	return int(v), err
}

// nullableInt64 treats "", "null", "NA", "None" and "nan" as missing.
func (r record) nullableInt64(col string) (*int64, error) {
	s := r.str(col)
	if isNull(s) {
		return nil, nil
	}
	v, err := parseInt(s)
	if err != nil {
		return nil, r.parseErr(col, s, err)
	}
	return &v, nil
}

func isNull(s string) bool {
	switch strings.ToLower(s) {
	case "", "null", "na", "none", "nan":
		return true
	}
	return false
}

// parseInt accepts integral floats such as "12.0", which dataframe tools
// emit for integer columns that contain nulls.
func parseInt(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return v, nil
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, err
	}
	return int64(f), nil
}

// readTable opens path, checks that every required column is present in the
// header and calls fn for each data row.
func readTable(path string, required []string, fn func(record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInputParse, "failed to open table").WithDetailf("file=%s", path)
	}
	defer f.Close()
	return scanTable(f, path, required, fn)
}

func scanTable(r io.Reader, name string, required []string, fn func(record) error) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return errors.New(errors.ErrCodeInputParse, "table has no header").WithDetailf("file=%s", name)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInputParse, "failed to read table header").WithDetailf("file=%s", name)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return errors.New(errors.ErrCodeInputParse, "table is missing a required column").
				WithDetailf("file=%s column=%s", name, c)
		}
	}

	for line := 2; ; line++ {
		fields, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInputParse, "failed to read table row").
				WithDetailf("file=%s line=%d", name, line)
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		if err := fn(record{path: name, line: line, fields: fields, cols: cols}); err != nil {
			return err
		}
	}
}

// FormatFloat renders v the way every output table does: shortest round-trip
// form, with "inf", "-inf" and "nan" for non-finite values.
func FormatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// tableWriter wraps csv.Writer with tab separation.
type tableWriter struct {
	w *csv.Writer
}

func newTableWriter(w io.Writer, header ...string) (*tableWriter, error) {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	tw := &tableWriter{w: cw}
	return tw, tw.row(header...)
}

func (t *tableWriter) row(fields ...string) error {
	if err := t.w.Write(fields); err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to write table row")
	}
	return nil
}

func (t *tableWriter) flush() error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to flush table")
	}
	return nil
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
