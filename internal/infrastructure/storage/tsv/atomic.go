package tsv

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/turtacn/famsim/pkg/errors"
)

// File is one output produced by WriteFiles.
type File struct {
	Path  string
	Write func(w io.Writer) error
}

// WriteFiles writes every file to a temporary sibling and renames them into
// place only after all of them were written. If any step fails the
// temporaries are removed and files already renamed in this call are deleted,
// so a caller sees either the whole set or none of it.
func WriteFiles(files ...File) error {
	temps := make([]string, len(files))
	defer func() {
		for _, t := range temps {
			if t != "" {
				_ = os.Remove(t)
			}
		}
	}()

	for i, f := range files {
		dir := filepath.Dir(f.Path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to create output directory").
				WithDetailf("dir=%s", dir)
		}
		tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*.tmp")
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to create temporary file").
				WithDetailf("file=%s", f.Path)
		}
		temps[i] = tmp.Name()

		bw := bufio.NewWriter(tmp)
		werr := f.Write(bw)
		if werr == nil {
			werr = bw.Flush()
		}
		if werr == nil {
			werr = tmp.Sync()
		}
		cerr := tmp.Close()
		if werr == nil {
			werr = cerr
		}
		if werr != nil {
			return errors.Wrap(werr, errors.ErrCodeOutputWrite, "failed to write output file").
				WithDetailf("file=%s", f.Path)
		}
	}

	var renamed []string
	for i, f := range files {
		if err := os.Rename(temps[i], f.Path); err != nil {
			for _, p := range renamed {
				_ = os.Remove(p)
			}
			return errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to move output file into place").
				WithDetailf("file=%s", f.Path)
		}
		temps[i] = ""
		renamed = append(renamed, f.Path)
	}
	return nil
}

// Paths returns the sorted destination paths of files.
func Paths(files []File) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	sort.Strings(out)
	return out
}
