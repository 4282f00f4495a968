package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/internal/domain/stats"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/infrastructure/storage/npy"
	"github.com/turtacn/famsim/internal/infrastructure/storage/tsv"
	"github.com/turtacn/famsim/pkg/errors"
)

func newSpaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "space",
		Short: "Inspect, query and convert packed similarity arrays",
	}
	cmd.AddCommand(newSpaceInspectCmd(), newSpaceLookupCmd(), newSpaceConvertCmd())
	return cmd
}

// SpaceReport describes a loaded similarity space.
type SpaceReport struct {
	Entities int             `json:"entities"`
	Pairs    int             `json:"pairs"`
	Values   stats.Summary   `json:"values"`
	Above    []ThresholdHits `json:"above"`
}

// ThresholdHits counts stored values strictly above a threshold.
type ThresholdHits struct {
	Threshold float64 `json:"threshold"`
	Count     int     `json:"count"`
}

func (r *SpaceReport) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "entities=%d pairs=%d\n", r.Entities, r.Pairs)
	fmt.Fprintf(&sb, "mean=%s median=%s std=%s min=%s max=%s",
		tsv.FormatFloat(r.Values.Mean), tsv.FormatFloat(r.Values.Median), tsv.FormatFloat(r.Values.StdDev),
		tsv.FormatFloat(r.Values.Min), tsv.FormatFloat(r.Values.Max))
	for _, h := range r.Above {
		fmt.Fprintf(&sb, "\n> %s: %d", tsv.FormatFloat(h.Threshold), h.Count)
	}
	return sb.String()
}

// TableHeaders implements the table output format.
func (r *SpaceReport) TableHeaders() []string { return []string{"THRESHOLD", "PAIRS_ABOVE", "FRACTION"} }

// TableRows implements the table output format.
func (r *SpaceReport) TableRows() [][]string {
	rows := make([][]string, len(r.Above))
	for i, h := range r.Above {
		frac := 0.0
		if r.Pairs > 0 {
			frac = float64(h.Count) / float64(r.Pairs)
		}
		rows[i] = []string{tsv.FormatFloat(h.Threshold), strconv.Itoa(h.Count), tsv.FormatFloat(frac)}
	}
	return rows
}

func loadSpace(cmd *cobra.Command) (*similarity.Space, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, err
	}
	in := cliCtx.Config.Input
	if in.SimilarityFile == "" || in.SimilarityIDFile == "" {
		return nil, errors.New(errors.ErrCodeValidation, "--similarity and --similarity-ids are required")
	}
	space, err := npy.LoadSpace(in.SimilarityFile, in.SimilarityIDFile, cliCtx.Config.Similarity.MaxCompounds)
	if err != nil {
		return nil, err
	}
	cliCtx.Logger.Debug("similarity space loaded",
		logging.String("file", in.SimilarityFile),
		logging.Int("entities", space.N()))
	return space, nil
}

func newSpaceInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the values of a similarity space",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			space, err := loadSpace(cmd)
			if err != nil {
				return err
			}
			cliCtx, _ := GetCLIContext(cmd)
			report := &SpaceReport{
				Entities: space.N(),
				Pairs:    space.Len(),
				Values:   stats.Summarize(0, space.Values()),
			}
			for _, th := range cliCtx.Config.Probability.Thresholds {
				report.Above = append(report.Above, ThresholdHits{Threshold: th, Count: space.CountAbove(th)})
			}
			return PrintResult(cmd, report)
		},
	}
	cmd.Flags().Float64Slice("thresholds", nil, "count values above these thresholds")
	return cmd
}

func newSpaceLookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <id> <id>",
		Short: "Print the stored similarity of two entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 2)
			for i, a := range args {
				id, err := strconv.ParseInt(a, 10, 64)
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeValidation, "entity id must be an integer").WithDetail(a)
				}
				ids[i] = id
			}
			space, err := loadSpace(cmd)
			if err != nil {
				return err
			}
			v, err := space.Lookup(ids[0], ids[1])
			if err != nil {
				return err
			}
			return PrintResult(cmd, tsv.FormatFloat(v))
		},
	}
	return cmd
}

func newSpaceConvertCmd() *cobra.Command {
	var (
		out string
		to  string
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Rewrite a similarity array as .npy or raw little-endian float64",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return errors.New(errors.ErrCodeValidation, "--out is required")
			}
			space, err := loadSpace(cmd)
			if err != nil {
				return err
			}
			switch to {
			case "npy":
				err = npy.WriteValues(out, space.Values())
			case "raw":
				err = tsv.WriteFiles(tsv.File{Path: out, Write: func(w io.Writer) error { return npy.WriteRaw(w, space.Values()) }})
			default:
				return errors.New(errors.ErrCodeValidation, "--to must be npy or raw").WithDetail(to)
			}
			if err != nil {
				return err
			}
			return PrintResult(cmd, fmt.Sprintf("wrote %d values to %s", space.Len(), out))
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "destination file")
	cmd.Flags().StringVar(&to, "to", "npy", "destination format (npy, raw)")
	return cmd
}
