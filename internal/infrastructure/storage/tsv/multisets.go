package tsv

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/pkg/errors"
)

// WriteMultisets encodes ms as a JSON object keyed by decimal group id.
// encoding/json sorts map keys, so output is deterministic.
func WriteMultisets(w io.Writer, ms group.Multisets) error {
	doc := make(map[string][]float64, len(ms))
	for g, values := range ms {
		if values == nil {
			values = []float64{}
		}
		doc[strconv.FormatInt(g, 10)] = values
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode similarity multisets")
	}
	return nil
}

// ReadMultisets decodes a file written by WriteMultisets.
func ReadMultisets(path string) (group.Multisets, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to open multisets").WithDetailf("file=%s", path)
	}
	defer f.Close()

	var doc map[string][]float64
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInputParse, "failed to decode multisets").WithDetailf("file=%s", path)
	}
	out := make(group.Multisets, len(doc))
	for k, values := range doc {
		g, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputParse, "invalid group id in multisets").
				WithDetailf("file=%s key=%q", path, k)
		}
		if values == nil {
			values = []float64{}
		}
		out[g] = values
	}
	return out, nil
}
