// Package fingerprint holds raw ligand bit-vector fingerprints supplied out
// of band and recomputes pair similarities from them. It is only used to
// cross-check stored similarity values; fingerprints are never generated here.
package fingerprint

import (
	"encoding/hex"
	"math"
	"math/bits"
	"strings"

	"github.com/turtacn/famsim/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fingerprint
// ─────────────────────────────────────────────────────────────────────────────

// Fingerprint is a packed bit vector. Bit i lives in byte i/8 at position i%8.
type Fingerprint struct {
	Bits      []byte
	NumBits   int
	NumOnBits int
}

// New wraps packed bits of the given length.
func New(data []byte, numBits int) *Fingerprint {
	on := 0
	for _, b := range data {
		on += bits.OnesCount8(b)
	}
	return &Fingerprint{Bits: data, NumBits: numBits, NumOnBits: on}
}

// Encoding selects the textual form of a fingerprint column.
type Encoding string

const (
	// EncodingHex is a hex dump of the packed bytes.
	EncodingHex Encoding = "hex"
	// EncodingBitString is one '0' or '1' character per bit, bit 0 first.
	EncodingBitString Encoding = "bits"
)

// Parse decodes s according to enc.
func Parse(s string, enc Encoding) (*Fingerprint, error) {
	s = strings.TrimSpace(s)
	switch enc {
	case EncodingHex, "":
		data, err := hex.DecodeString(s)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInputParse, "invalid hex fingerprint")
		}
		return New(data, len(data)*8), nil
	case EncodingBitString:
		data := make([]byte, (len(s)+7)/8)
		for i, ch := range s {
			switch ch {
			case '1':
				data[i/8] |= 1 << uint(i%8)
			case '0':
			default:
				return nil, errors.New(errors.ErrCodeInputParse, "invalid bit-string fingerprint").
					WithDetailf("position=%d char=%q", i, ch)
			}
		}
		return New(data, len(s)), nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported fingerprint encoding").
			WithDetail(string(enc))
	}
}

// GetBit reports whether bit i is set.
func (fp *Fingerprint) GetBit(i int) bool {
	if i < 0 || i >= fp.NumBits {
		return false
	}
	return fp.Bits[i/8]&(1<<uint(i%8)) != 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics
// ─────────────────────────────────────────────────────────────────────────────

// Metric names a bit-vector similarity coefficient.
type Metric string

const (
	MetricTanimoto Metric = "tanimoto"
	MetricDice     Metric = "dice"
)

// IsValid reports whether m is supported.
func (m Metric) IsValid() bool {
	return m == MetricTanimoto || m == MetricDice
}

// Similarity computes the coefficient named by m. Two empty fingerprints
// have similarity 0.
func Similarity(m Metric, a, b *Fingerprint) (float64, error) {
	if a.NumBits != b.NumBits {
		return 0, errors.New(errors.ErrCodeValidation, "fingerprints differ in length").
			WithDetailf("a=%d b=%d", a.NumBits, b.NumBits)
	}
	inter := 0
	for i := range a.Bits {
		inter += bits.OnesCount8(a.Bits[i] & b.Bits[i])
	}
	switch m {
	case MetricTanimoto, "":
		union := a.NumOnBits + b.NumOnBits - inter
		if union == 0 {
			return 0, nil
		}
		return float64(inter) / float64(union), nil
	case MetricDice:
		denom := a.NumOnBits + b.NumOnBits
		if denom == 0 {
			return 0, nil
		}
		return 2 * float64(inter) / float64(denom), nil
	default:
		return 0, errors.New(errors.ErrCodeValidation, "unsupported similarity metric").WithDetail(string(m))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Validator
// ─────────────────────────────────────────────────────────────────────────────

// DefaultTolerance is the absolute difference allowed between a stored and a
// recomputed similarity.
const DefaultTolerance = 1e-6

// Validator recomputes similarities from a fingerprint table. It satisfies
// group.Validator and is safe for concurrent use once built.
type Validator struct {
	prints    map[int64]*Fingerprint
	metric    Metric
	tolerance float64
}

// NewValidator returns a Validator over prints. A non-positive tolerance
// selects DefaultTolerance.
func NewValidator(prints map[int64]*Fingerprint, metric Metric, tolerance float64) (*Validator, error) {
	if metric == "" {
		metric = MetricTanimoto
	}
	if !metric.IsValid() {
		return nil, errors.New(errors.ErrCodeValidation, "unsupported similarity metric").WithDetail(string(metric))
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Validator{prints: prints, metric: metric, tolerance: tolerance}, nil
}

// Check fails with ErrCodeSimilarityValidationFailed when stored differs from
// the recomputed value by more than the tolerance.
func (v *Validator) Check(a, b int64, stored float64) error {
	fa, ok := v.prints[a]
	if !ok {
		return errors.New(errors.ErrCodeUnknownEntity, "no fingerprint for ligand").WithDetailf("id=%d", a)
	}
	fb, ok := v.prints[b]
	if !ok {
		return errors.New(errors.ErrCodeUnknownEntity, "no fingerprint for ligand").WithDetailf("id=%d", b)
	}
	want, err := Similarity(v.metric, fa, fb)
	if err != nil {
		return errors.Wrap(err, errors.CodeUnknown, "failed to recompute similarity").
			WithDetailf("a=%d b=%d", a, b)
	}
	if math.Abs(want-stored) > v.tolerance || math.IsNaN(stored) {
		return errors.New(errors.ErrCodeSimilarityValidationFailed, "stored similarity disagrees with fingerprints").
			WithDetailf("a=%d b=%d stored=%g recomputed=%g tolerance=%g", a, b, stored, want, v.tolerance)
	}
	return nil
}
