// Package analysis orchestrates the clustering, aggregation, comparison and
// probability stages over the configured depth range and writes their
// output tables.
package analysis

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/famsim/internal/config"
	"github.com/turtacn/famsim/internal/domain/cluster"
	"github.com/turtacn/famsim/internal/domain/family"
	"github.com/turtacn/famsim/internal/domain/probability"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/famsim/internal/infrastructure/storage/minio"
	"github.com/turtacn/famsim/internal/infrastructure/storage/tsv"
	"github.com/turtacn/famsim/pkg/errors"
)

// Stage names one step of the pipeline.
type Stage string

const (
	StageAssign      Stage = "assign"
	StageGather      Stage = "gather"
	StageCompare     Stage = "compare"
	StageProbability Stage = "probability"
)

// AllStages lists the stages in execution order.
var AllStages = []Stage{StageAssign, StageGather, StageCompare, StageProbability}

// Publisher uploads a finished output directory.
type Publisher interface {
	PublishDir(ctx context.Context, dir, runID string) (*minio.Manifest, error)
}

// Result describes a finished run.
type Result struct {
	RunID    string
	Stages   []Stage
	Depths   []int
	Files    []string
	Duration time.Duration
	Manifest *minio.Manifest
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records stage metrics.
func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPublisher publishes the output directory after a successful Run.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		if id != "" {
			p.runID = id
		}
	}
}

// Pipeline runs stages against one configuration. Inputs are loaded once and
// shared between the depth tasks.
type Pipeline struct {
	cfg        *config.Config
	in         *inputs
	logger     logging.Logger
	metrics    *prometheus.PipelineMetrics
	publisher  Publisher
	runID      string
	thresholds []float64
	now        func() time.Time

	mu    sync.Mutex
	files []string
}

// NewPipeline validates cfg and returns a Pipeline.
func NewPipeline(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrCodeValidation, "pipeline configuration is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:    cfg,
		in:     newInputs(cfg),
		logger: logging.Default(),
		runID:  uuid.New().String(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.thresholds = cfg.Probability.Thresholds
	if sw := cfg.Probability.Sweep; sw.Num > 0 {
		ths, err := probability.Linspace(sw.Start, sw.Stop, sw.Num)
		if err != nil {
			return nil, err
		}
		p.thresholds = ths
	}
	p.logger = p.logger.Named("pipeline").With(logging.String("run_id", p.runID))
	return p, nil
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string { return p.runID }

// AssignClusters writes the ligand and target cluster tables for every depth.
func (p *Pipeline) AssignClusters(ctx context.Context) (*Result, error) {
	return p.Execute(ctx, StageAssign)
}

// GatherSimilarities writes the intra-group similarity multisets.
func (p *Pipeline) GatherSimilarities(ctx context.Context) (*Result, error) {
	return p.Execute(ctx, StageGather)
}

// CompareDistributions writes the rank-sum comparison and summary tables.
func (p *Pipeline) CompareDistributions(ctx context.Context) (*Result, error) {
	return p.Execute(ctx, StageCompare)
}

// AnalyzeProbabilities writes the threshold-swept probability tables.
func (p *Pipeline) AnalyzeProbabilities(ctx context.Context) (*Result, error) {
	return p.Execute(ctx, StageProbability)
}

// Run executes every stage and then publishes the output directory when a
// publisher is configured.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res, err := p.Execute(ctx, AllStages...)
	if err != nil {
		return nil, err
	}
	if p.publisher != nil {
		start := p.now()
		m, err := p.publisher.PublishDir(ctx, p.cfg.Output.Dir, p.runID)
		p.observe("publish", -1, p.now().Sub(start), err)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodePublish, "failed to publish run outputs")
		}
		res.Manifest = m
	}
	if p.metrics != nil {
		p.metrics.MarkSuccess(p.now())
	}
	return res, nil
}

// Execute runs the given stages in pipeline order. Each depth is an
// independent task; tasks run concurrently up to worker.concurrency and the
// first failure cancels the rest. Stages missing from the in-memory chain
// read the previous stage's files from the output directory.
func (p *Pipeline) Execute(ctx context.Context, stages ...Stage) (*Result, error) {
	stages = ordered(stages)
	if len(stages) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no stages selected")
	}
	start := p.now()
	depths := p.cfg.Depths()
	p.logger.Info("run started",
		logging.Any("stages", stages),
		logging.Int("min_depth", p.cfg.Clustering.MinDepth),
		logging.Int("max_depth", p.cfg.Clustering.MaxDepth),
		logging.Int("concurrency", p.cfg.Worker.Concurrency))

	if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOutputWrite, "failed to create output directory").
			WithDetailf("dir=%s", p.cfg.Output.Dir)
	}
	if err := p.prepare(stages); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Worker.Concurrency)
	for _, d := range depths {
		d := d
		g.Go(func() error { return p.runDepth(gctx, d, stages) })
	}
	for _, kind := range p.kinds() {
		kind := kind
		g.Go(func() error { return p.runKind(gctx, kind, stages) })
	}
	if err := g.Wait(); err != nil {
		p.logger.Error("run failed", logging.Err(err), logging.Duration("elapsed", p.now().Sub(start)))
		return nil, err
	}

	res := &Result{
		RunID:    p.runID,
		Stages:   stages,
		Depths:   depths,
		Files:    p.writtenFiles(),
		Duration: p.now().Sub(start),
	}
	p.logger.Info("run finished", logging.Int("files", len(res.Files)), logging.Duration("elapsed", res.Duration))
	return res, nil
}

// prepare loads the shared inputs up front so that a bad input fails the run
// before any depth writes output, and writes the ligand→target table once.
func (p *Pipeline) prepare(stages []Stage) error {
	if has(stages, StageAssign) {
		tree, err := p.in.Tree()
		if err != nil {
			return err
		}
		targets, err := p.in.Targets()
		if err != nil {
			return err
		}
		if err := checkClassPaths(tree, targets); err != nil {
			return err
		}
		lts, err := p.in.LigandTargets()
		if err != nil {
			return err
		}
		if p.cfg.Output.LigandTargets {
			path := LigandTargetPath(p.cfg.Output.Dir)
			if err := p.write(tsv.File{Path: path, Write: func(w io.Writer) error { return tsv.WriteLigandTargets(w, lts) }}); err != nil {
				return err
			}
			p.countRows("ligand2target", len(lts))
		}
	}
	if has(stages, StageGather) || has(stages, StageCompare) || has(stages, StageProbability) {
		space, err := p.in.Space()
		if err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.ObserveSpace(space.N(), space.Len())
		}
		p.logger.Info("similarity space loaded", logging.Int("entities", space.N()), logging.Int("pairs", space.Len()))
	}
	if has(stages, StageGather) {
		if _, err := p.in.Validator(); err != nil {
			return err
		}
	}
	return nil
}

// checkClassPaths verifies that every target's class node reaches a root.
func checkClassPaths(tree *family.Tree, targets []cluster.TargetClass) error {
	seen := make(map[int64]struct{}, len(targets))
	for _, tc := range targets {
		if _, ok := seen[tc.ClassNodeID]; ok {
			continue
		}
		seen[tc.ClassNodeID] = struct{}{}
		if _, err := tree.PathToRoot(tc.ClassNodeID); err != nil {
			return errors.Wrap(err, errors.CodeUnknown, "target classification has no root path").
				WithDetailf("tid=%d", tc.TargetID)
		}
	}
	return nil
}

func (p *Pipeline) runDepth(ctx context.Context, depth int, stages []Stage) error {
	st := &depthState{depth: depth}
	log := p.logger.With(logging.Int("depth", depth))
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeCanceled, "run canceled").WithDetailf("depth=%d", depth)
		}
		start := p.now()
		var err error
		switch s {
		case StageAssign:
			err = p.assignDepth(st, log)
		case StageGather:
			err = p.gatherDepth(st, log)
		case StageCompare:
			err = p.compareDepth(st, log)
		case StageProbability:
			err = p.probabilityDepth(st, log)
		}
		elapsed := p.now().Sub(start)
		p.observe(string(s), depth, elapsed, err)
		if err != nil {
			log.Error("stage failed", logging.String("stage", string(s)), logging.Err(err))
			return err
		}
		log.Debug("stage finished", logging.String("stage", string(s)), logging.Duration("elapsed", elapsed))
	}
	return nil
}

func (p *Pipeline) observe(stage string, depth int, d time.Duration, err error) {
	if p.metrics != nil {
		p.metrics.ObserveStage(stage, depth, d, err)
	}
}

// write writes files as one atomic set and records their paths.
func (p *Pipeline) write(files ...tsv.File) error {
	if err := tsv.WriteFiles(files...); err != nil {
		return err
	}
	p.mu.Lock()
	p.files = append(p.files, tsv.Paths(files)...)
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) countRows(table string, n int) {
	if p.metrics != nil {
		p.metrics.RowsWrittenTotal.WithLabelValues(table).Add(float64(n))
	}
}

func (p *Pipeline) writtenFiles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := append([]string(nil), p.files...)
	sort.Strings(out)
	return out
}

func ordered(stages []Stage) []Stage {
	var out []Stage
	for _, s := range AllStages {
		if has(stages, s) {
			out = append(out, s)
		}
	}
	return out
}

func has(stages []Stage, s Stage) bool {
	for _, x := range stages {
		if x == s {
			return true
		}
	}
	return false
}
