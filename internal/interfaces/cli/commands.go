package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/turtacn/famsim/internal/application/analysis"
	"github.com/turtacn/famsim/internal/config"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/famsim/internal/infrastructure/storage/minio"
	"github.com/turtacn/famsim/pkg/errors"
)

// Flag groups. Each subcommand registers only the groups it reads;
// applyInputFlags copies whichever of them were set onto the config. Input
// paths are persistent on the root so that one set of flags drives every
// stage invocation.
const (
	flagsAssign = 1 << iota
	flagsMembership
	flagsAggregation
	flagsProbability
	flagsPublish
)

func addInputFlags(f *pflag.FlagSet) {
	f.String("family", "", "protein family hierarchy TSV")
	f.String("targets", "", "target classification TSV")
	f.String("ligand-targets", "", "ligand to target TSV")
	f.String("activities", "", "ligand to assay TSV")
	f.String("assays", "", "assay to target TSV, joined with --activities when --ligand-targets is absent")
	f.String("similarity", "", "packed similarity array (.npy or raw float64)")
	f.String("similarity-ids", "", "ordered id list for the similarity array")
	f.Int("max-compounds", 0, "refuse similarity spaces with more ids than this (0 keeps the configured limit)")
	f.String("fingerprints", "", "fingerprint TSV used by --validate")
	f.String("fingerprint-encoding", "", "fingerprint column encoding (hex, bits)")
}

func addStageFlags(cmd *cobra.Command, groups int) {
	f := cmd.Flags()
	if groups&flagsAssign != 0 {
		f.Bool("write-ligand-targets", false, "also write ligand2target.tsv")
	}
	if groups&flagsAggregation != 0 {
		f.Bool("validate", false, "recompute every similarity from fingerprints")
	}
	if groups&(flagsAggregation|flagsProbability) != 0 {
		f.Bool("by-target", false, "also group ligands by target")
		f.Bool("by-assay", false, "also group ligands by assay")
	}
	if groups&flagsMembership != 0 {
		f.Bool("skip-missing", false, "drop ligands absent from the similarity space instead of failing")
	}
	if groups&flagsProbability != 0 {
		f.Float64Slice("thresholds", nil, "similarity thresholds, comma separated")
		f.Float64("sweep-start", 0, "first threshold of an evenly spaced sweep")
		f.Float64("sweep-stop", 0, "last threshold of an evenly spaced sweep")
		f.Int("sweep-num", 0, "number of thresholds in the sweep (0 disables it)")
	}
	if groups&flagsPublish != 0 {
		f.Bool("publish", false, "upload outputs to object storage after the run")
		f.String("metrics-textfile", "", "write pipeline metrics in textfile format to this path")
	}
}

// applyInputFlags copies explicitly set stage flags onto cfg.
func applyInputFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	strs := map[string]*string{
		"family":               &cfg.Input.FamilyFile,
		"targets":              &cfg.Input.TargetFile,
		"ligand-targets":       &cfg.Input.LigandTargetFile,
		"activities":           &cfg.Input.ActivityFile,
		"assays":               &cfg.Input.AssayFile,
		"similarity":           &cfg.Input.SimilarityFile,
		"similarity-ids":       &cfg.Input.SimilarityIDFile,
		"fingerprints":         &cfg.Input.FingerprintFile,
		"fingerprint-encoding": &cfg.Input.FingerprintEncoding,
		"metrics-textfile":     &cfg.Metrics.Textfile,
	}
	bools := map[string]*bool{
		"write-ligand-targets": &cfg.Output.LigandTargets,
		"validate":             &cfg.Aggregation.Validate,
		"by-target":            &cfg.Aggregation.ByTarget,
		"by-assay":             &cfg.Aggregation.ByAssay,
		"skip-missing":         &cfg.Aggregation.SkipMissing,
		"publish":              &cfg.MinIO.Enabled,
	}

	var firstErr error
	f.Visit(func(fl *pflag.Flag) {
		if firstErr != nil {
			return
		}
		var err error
		switch {
		case strs[fl.Name] != nil:
			*strs[fl.Name] = fl.Value.String()
		case bools[fl.Name] != nil:
			*bools[fl.Name], err = strconv.ParseBool(fl.Value.String())
		case fl.Name == "max-compounds":
			cfg.Similarity.MaxCompounds, err = f.GetInt(fl.Name)
		case fl.Name == "thresholds":
			cfg.Probability.Thresholds, err = f.GetFloat64Slice(fl.Name)
		case fl.Name == "sweep-start":
			cfg.Probability.Sweep.Start, err = f.GetFloat64(fl.Name)
		case fl.Name == "sweep-stop":
			cfg.Probability.Sweep.Stop, err = f.GetFloat64(fl.Name)
		case fl.Name == "sweep-num":
			cfg.Probability.Sweep.Num, err = f.GetInt(fl.Name)
		}
		if err != nil {
			firstErr = errors.Wrap(err, errors.ErrCodeValidation, "invalid flag value").WithDetailf("flag=--%s", fl.Name)
		}
	})
	return firstErr
}

// RunSummary is printed after a stage command finishes.
type RunSummary struct {
	RunID    string          `json:"run_id"`
	Stages   []string        `json:"stages"`
	Depths   []int           `json:"depths"`
	Files    []string        `json:"files"`
	Duration string          `json:"duration"`
	Manifest *minio.Manifest `json:"manifest,omitempty"`
}

func newRunSummary(res *analysis.Result) *RunSummary {
	s := &RunSummary{
		RunID:    res.RunID,
		Depths:   res.Depths,
		Files:    res.Files,
		Duration: res.Duration.Round(time.Millisecond).String(),
		Manifest: res.Manifest,
	}
	for _, st := range res.Stages {
		s.Stages = append(s.Stages, string(st))
	}
	return s
}

func (s *RunSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "run %s finished in %s: stages=%s depths=%v\n",
		s.RunID, s.Duration, strings.Join(s.Stages, ","), s.Depths)
	for _, f := range s.Files {
		fmt.Fprintf(&sb, "  %s\n", f)
	}
	if s.Manifest != nil {
		fmt.Fprintf(&sb, "published %d objects to s3://%s/%s", len(s.Manifest.Objects), s.Manifest.Bucket, s.Manifest.Prefix)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// TableHeaders implements the table output format.
func (s *RunSummary) TableHeaders() []string { return []string{"RUN", "FILE"} }

// TableRows implements the table output format.
func (s *RunSummary) TableRows() [][]string {
	rows := make([][]string, len(s.Files))
	for i, f := range s.Files {
		rows[i] = []string{s.RunID, f}
	}
	return rows
}

// runStages builds a pipeline from the command's context and executes
// stages. full selects Pipeline.Run, which also publishes when object
// storage is enabled.
func runStages(cmd *cobra.Command, full bool, stages ...analysis.Stage) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()
	cfg := cliCtx.Config
	log := cliCtx.Logger

	opts := []analysis.Option{analysis.WithLogger(log)}

	var collector prometheus.MetricsCollector
	if cfg.Metrics.Enabled || cfg.Metrics.Textfile != "" {
		collector, err = prometheus.NewMetricsCollector(cfg.Metrics.Collector, log)
		if err != nil {
			return err
		}
		opts = append(opts, analysis.WithMetrics(prometheus.NewPipelineMetrics(collector)))
	}

	if full && cfg.MinIO.Enabled {
		client, err := minio.NewMinIOClient(ctx, &cfg.MinIO, log)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodePublish, "object storage unavailable")
		}
		opts = append(opts, analysis.WithPublisher(minio.NewPublisher(client, log)))
	}

	p, err := analysis.NewPipeline(cfg, opts...)
	if err != nil {
		return err
	}

	var res *analysis.Result
	if full {
		res, err = p.Run(ctx)
	} else {
		res, err = p.Execute(ctx, stages...)
	}

	if collector != nil && cfg.Metrics.Textfile != "" {
		if werr := collector.WriteToTextfile(cfg.Metrics.Textfile); werr != nil {
			log.Warn("failed to write metrics textfile", logging.Err(werr))
		}
	}
	if err != nil {
		return err
	}
	return PrintResult(cmd, newRunSummary(res))
}

func newClusterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Assign ligands and targets to family clusters at each depth",
		Long: "Resolve every target's ancestor at each hierarchy depth, number the distinct\n" +
			"ancestors 1..K in ascending id order, and write ligand2cluster and\n" +
			"target2cluster tables per depth.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, false, analysis.StageAssign)
		},
	}
	addStageFlags(cmd, flagsAssign)
	return cmd
}

func newGatherCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gather",
		Short: "Collect intra-group similarity values per cluster, target or assay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, false, analysis.StageGather)
		},
	}
	addStageFlags(cmd, flagsMembership|flagsAggregation)
	return cmd
}

func newCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Test each cluster's similarities against the rest (Mann-Whitney U, one-sided)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, false, analysis.StageCompare)
		},
	}
	addStageFlags(cmd, flagsMembership)
	return cmd
}

func newProbabilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probability",
		Short: "Sweep similarity thresholds for conditional probability and enrichment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, false, analysis.StageProbability)
		},
	}
	addStageFlags(cmd, flagsMembership|flagsProbability)
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every stage over the configured depth range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStages(cmd, true, analysis.AllStages...)
		},
	}
	addStageFlags(cmd, flagsAssign|flagsMembership|flagsAggregation|flagsProbability|flagsPublish)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "famsim %s (commit: %s, built: %s)\n", Version, GitCommit, BuildDate)
			return nil
		},
	}
}
