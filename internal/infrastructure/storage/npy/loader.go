// Package npy loads a packed similarity space and its companion id list
// from disk.
package npy

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sbinet/npyio"

	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/pkg/errors"
)

// LoadSpace reads the id list, checks it against the compound limit, then
// reads the similarity array and validates its length before building the
// space. The array file is .npy (1-D float64 or float32) or raw
// little-endian float64 for any other extension.
func LoadSpace(valuesPath, idsPath string, maxCompounds int) (*similarity.Space, error) {
	ids, err := ReadIDs(idsPath)
	if err != nil {
		return nil, err
	}
	if maxCompounds > 0 && len(ids) > maxCompounds {
		return nil, errors.New(errors.ErrCodeTooManyCompounds, "similarity id list exceeds compound limit").
			WithDetailf("file=%s ids=%d limit=%d", idsPath, len(ids), maxCompounds)
	}
	values, err := ReadValues(valuesPath, similarity.PairCount(len(ids)))
	if err != nil {
		return nil, err
	}
	return similarity.NewSpace(values, ids, similarity.WithMaxCompounds(maxCompounds))
}

// ReadValues reads the packed array. want is the expected length; a negative
// want skips the check.
func ReadValues(path string, want int) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to open similarity array").WithDetailf("file=%s", path)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".npy") {
		return readNpy(f, path, want)
	}
	return readRaw(f, path, want)
}

func readNpy(r io.Reader, path string, want int) ([]float64, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "invalid .npy header").WithDetailf("file=%s", path)
	}
	shape := nr.Header.Descr.Shape
	if len(shape) != 1 {
		return nil, errors.New(errors.ErrCodeInputParse, "similarity array must be one-dimensional").
			WithDetailf("file=%s shape=%v", path, shape)
	}
	if want >= 0 && shape[0] != want {
		return nil, errors.New(errors.ErrCodeSizeMismatch, "similarity array length does not match id count").
			WithDetailf("file=%s expected=%d actual=%d", path, want, shape[0])
	}

	switch nr.Header.Descr.Type {
	case "<f8", "f8", "float64":
		var out []float64
		if err := nr.Read(&out); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to read .npy data").WithDetailf("file=%s", path)
		}
		return out, nil
	case "<f4", "f4", "float32":
		var raw []float32
		if err := nr.Read(&raw); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to read .npy data").WithDetailf("file=%s", path)
		}
		out := make([]float64, len(raw))
		for i, v := range raw {
			out[i] = float64(v)
		}
		return out, nil
	default:
		return nil, errors.New(errors.ErrCodeInputParse, "unsupported .npy dtype").
			WithDetailf("file=%s dtype=%s", path, nr.Header.Descr.Type)
	}
}

func readRaw(f *os.File, path string, want int) ([]float64, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to stat similarity array").WithDetailf("file=%s", path)
	}
	if st.Size()%8 != 0 {
		return nil, errors.New(errors.ErrCodeInputParse, "raw similarity array is not a whole number of float64 values").
			WithDetailf("file=%s bytes=%d", path, st.Size())
	}
	n := int(st.Size() / 8)
	if want >= 0 && n != want {
		return nil, errors.New(errors.ErrCodeSizeMismatch, "similarity array length does not match id count").
			WithDetailf("file=%s expected=%d actual=%d", path, want, n)
	}
	out := make([]float64, n)
	if err := binary.Read(bufio.NewReader(f), binary.LittleEndian, out); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to read raw similarity array").WithDetailf("file=%s", path)
	}
	return out, nil
}

// ReadIDs reads the ordered entity ids. A .npy file must hold a 1-D integer
// array; anything else is read as text with one id per line, where a
// non-numeric first line is treated as a header.
func ReadIDs(path string) ([]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to open id list").WithDetailf("file=%s", path)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".npy") {
		var ids []int64
		if err := npyio.Read(f, &ids); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to read .npy id list").WithDetailf("file=%s", path)
		}
		return ids, nil
	}

	var ids []int64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, errors.Wrap(err, errors.ErrCodeInputParse, "invalid id in id list").
				WithDetailf("file=%s line=%d value=%q", path, line, s)
		}
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to read id list").WithDetailf("file=%s", path)
	}
	return ids, nil
}

// WriteValues stores values as a 1-D float64 .npy file.
func WriteValues(path string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to create .npy file").WithDetailf("file=%s", path)
	}
	if err := npyio.Write(f, values); err != nil {
		f.Close()
		return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to write .npy file").WithDetailf("file=%s", path)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to close .npy file").WithDetailf("file=%s", path)
	}
	return nil
}

// WriteRaw stores values as raw little-endian float64.
func WriteRaw(w io.Writer, values []float64) error {
	for _, v := range values {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		if _, err := w.Write(b[:]); err != nil {
			return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to write raw similarity array")
		}
	}
	return nil
}
