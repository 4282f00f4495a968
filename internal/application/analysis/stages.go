package analysis

import (
	"context"
	"io"

	"github.com/turtacn/famsim/internal/domain/cluster"
	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/domain/probability"
	"github.com/turtacn/famsim/internal/domain/stats"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/infrastructure/storage/tsv"
	"github.com/turtacn/famsim/pkg/errors"
)

// depthState carries one depth's intermediate results between stages.
type depthState struct {
	depth int

	ligands       []cluster.LigandCluster
	ligandsLoaded bool
	membership    group.Membership
	multisets     group.Multisets
}

func (p *Pipeline) assignDepth(st *depthState, log logging.Logger) error {
	tree, err := p.in.Tree()
	if err != nil {
		return err
	}
	targets, err := p.in.Targets()
	if err != nil {
		return err
	}
	lts, err := p.in.LigandTargets()
	if err != nil {
		return err
	}

	asg, err := cluster.NewAssigner(tree).AssignDepth(st.depth, targets, lts)
	if err != nil {
		return err
	}

	dir := p.cfg.Output.Dir
	err = p.write(
		tsv.File{Path: LigandClusterPath(dir, st.depth), Write: func(w io.Writer) error { return tsv.WriteLigandClusters(w, asg.Ligands) }},
		tsv.File{Path: TargetClusterPath(dir, st.depth), Write: func(w io.Writer) error { return tsv.WriteTargetClusters(w, asg.Targets) }},
	)
	if err != nil {
		return err
	}
	p.countRows("ligand2cluster", len(asg.Ligands))
	p.countRows("target2cluster", len(asg.Targets))
	if p.metrics != nil {
		p.metrics.GroupsTotal.WithLabelValues(string(StageAssign), string(group.KindCluster)).Add(float64(asg.Len()))
	}

	st.ligands, st.ligandsLoaded = asg.Ligands, true
	log.Info("clusters assigned",
		logging.Int("clusters", asg.Len()),
		logging.Int("targets", len(asg.Targets)),
		logging.Int("ligand_rows", len(asg.Ligands)))
	return nil
}

func (p *Pipeline) loadLigands(st *depthState) error {
	if st.ligandsLoaded {
		return nil
	}
	rows, err := tsv.ReadLigandClusters(LigandClusterPath(p.cfg.Output.Dir, st.depth))
	if err != nil {
		return err
	}
	st.ligands, st.ligandsLoaded = rows, true
	return nil
}

// loadMembership groups the depth's ligands by cluster and checks them
// against the similarity space.
func (p *Pipeline) loadMembership(st *depthState, log logging.Logger) error {
	if st.membership != nil {
		return nil
	}
	if err := p.loadLigands(st); err != nil {
		return err
	}
	m, err := p.restrict(group.FromLigandClusters(st.ligands), group.KindCluster, log)
	if err != nil {
		return err
	}
	st.membership = m
	return nil
}

// restrict fails with SIM_002 when a grouped ligand has no row in the
// similarity space, unless aggregation.skip_missing is set, in which case
// those ligands are dropped with a warning.
func (p *Pipeline) restrict(m group.Membership, kind group.Kind, log logging.Logger) (group.Membership, error) {
	space, err := p.in.Space()
	if err != nil {
		return nil, err
	}
	if !p.cfg.Aggregation.SkipMissing {
		if missing := m.Missing(space.Index()); len(missing) > 0 {
			return nil, errors.New(errors.ErrCodeUnknownEntity, "grouped ligands are missing from the similarity space").
				WithDetailf("kind=%s missing=%d first=%v", kind, len(missing), missing[:min(len(missing), 10)])
		}
		return m, nil
	}
	kept, dropped := m.Restrict(space.Index())
	if dropped > 0 {
		log.Warn("ligands missing from similarity space were skipped",
			logging.String("kind", string(kind)),
			logging.Int("dropped_memberships", dropped),
			logging.Int("groups", len(kept)))
	}
	return kept, nil
}

func (p *Pipeline) aggregate(m group.Membership, kind group.Kind) (group.Multisets, error) {
	space, err := p.in.Space()
	if err != nil {
		return nil, err
	}
	v, err := p.in.Validator()
	if err != nil {
		return nil, err
	}
	ms, err := group.NewAggregator(v).Aggregate(m, space)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.GroupsTotal.WithLabelValues(string(StageGather), string(kind)).Add(float64(len(ms)))
		p.metrics.PairsTotal.WithLabelValues(string(kind)).Add(float64(ms.PairCount()))
	}
	return ms, nil
}

func (p *Pipeline) gatherDepth(st *depthState, log logging.Logger) error {
	if err := p.loadMembership(st, log); err != nil {
		return err
	}
	ms, err := p.aggregate(st.membership, group.KindCluster)
	if err != nil {
		return err
	}
	path := ClusterSimPath(p.cfg.Output.Dir, st.depth)
	if err := p.write(tsv.File{Path: path, Write: func(w io.Writer) error { return tsv.WriteMultisets(w, ms) }}); err != nil {
		return err
	}
	st.multisets = ms
	log.Info("similarities gathered", logging.Int("groups", len(ms)), logging.Int("pairs", ms.PairCount()))
	return nil
}

func (p *Pipeline) loadMultisets(st *depthState) error {
	if st.multisets != nil {
		return nil
	}
	ms, err := tsv.ReadMultisets(ClusterSimPath(p.cfg.Output.Dir, st.depth))
	if err != nil {
		return err
	}
	st.multisets = ms
	return nil
}

// clusterNames maps cluster ids to the display name of their class node.
// It returns nil when no hierarchy is configured.
func (p *Pipeline) clusterNames(rows []cluster.LigandCluster) (map[int64]string, error) {
	if p.cfg.Input.FamilyFile == "" {
		return nil, nil
	}
	tree, err := p.in.Tree()
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string)
	for _, r := range rows {
		c := int64(r.ClusterID)
		if _, ok := names[c]; ok {
			continue
		}
		n, ok := tree.Node(r.ClassNodeID)
		if !ok {
			return nil, errors.New(errors.ErrCodeUnknownClassNode, "cluster table references a class node missing from the hierarchy").
				WithDetailf("cluster=%d protein_class_id=%d", c, r.ClassNodeID)
		}
		names[c] = n.DisplayName()
	}
	return names, nil
}

func (p *Pipeline) compareDepth(st *depthState, log logging.Logger) error {
	if err := p.loadMembership(st, log); err != nil {
		return err
	}
	if err := p.loadMultisets(st); err != nil {
		return err
	}
	space, err := p.in.Space()
	if err != nil {
		return err
	}
	names, err := p.clusterNames(st.ligands)
	if err != nil {
		return err
	}

	rows, err := stats.NewComparator().Compare(st.membership, st.multisets, space, names)
	if err != nil {
		return err
	}
	summaries := stats.SummarizeAll(st.multisets)

	dir := p.cfg.Output.Dir
	err = p.write(
		tsv.File{Path: ComparisonPath(dir, st.depth), Write: func(w io.Writer) error { return tsv.WriteComparison(w, rows) }},
		tsv.File{Path: SummaryPath(dir, st.depth), Write: func(w io.Writer) error { return tsv.WriteSummaries(w, summaries) }},
	)
	if err != nil {
		return err
	}
	p.countRows("mann_whitney_utest", len(rows))
	p.countRows("summary", len(summaries))
	if p.metrics != nil {
		p.metrics.GroupsTotal.WithLabelValues(string(StageCompare), string(group.KindCluster)).Add(float64(len(rows)))
	}

	significant := 0
	for _, r := range rows {
		if r.CorrectedPValue < 0.05 {
			significant++
		}
	}
	log.Info("distributions compared", logging.Int("clusters", len(rows)), logging.Int("significant", significant))
	return nil
}

func (p *Pipeline) probabilityDepth(st *depthState, log logging.Logger) error {
	if err := p.loadMembership(st, log); err != nil {
		return err
	}
	if err := p.loadMultisets(st); err != nil {
		return err
	}
	path := ProbabilityPath(p.cfg.Output.Dir, st.depth)
	n, err := p.analyze(st.membership, st.multisets, group.KindCluster, path)
	if err != nil {
		return err
	}
	log.Info("probabilities analyzed", logging.Int("rows", n))
	return nil
}

func (p *Pipeline) analyze(m group.Membership, ms group.Multisets, kind group.Kind, path string) (int, error) {
	space, err := p.in.Space()
	if err != nil {
		return 0, err
	}
	if err := stats.CheckConsistency(m, ms); err != nil {
		return 0, err
	}
	rows, err := probability.NewAnalyzer().Analyze(m, ms, space, p.thresholds)
	if err != nil {
		return 0, err
	}
	if err := p.write(tsv.File{Path: path, Write: func(w io.Writer) error { return tsv.WriteProbability(w, rows) }}); err != nil {
		return 0, err
	}
	p.countRows("probability_"+string(kind), len(rows))
	if p.metrics != nil {
		p.metrics.GroupsTotal.WithLabelValues(string(StageProbability), string(kind)).Add(float64(len(m)))
	}
	return len(rows), nil
}

// kinds lists the depth-independent groupings enabled in the configuration.
func (p *Pipeline) kinds() []group.Kind {
	var out []group.Kind
	if p.cfg.Aggregation.ByTarget {
		out = append(out, group.KindTarget)
	}
	if p.cfg.Aggregation.ByAssay {
		out = append(out, group.KindAssay)
	}
	return out
}

func (p *Pipeline) kindMembership(kind group.Kind) (group.Membership, error) {
	switch kind {
	case group.KindTarget:
		lts, err := p.in.LigandTargets()
		if err != nil {
			return nil, err
		}
		return group.FromLigandTargets(lts), nil
	case group.KindAssay:
		acts, err := p.in.Activities()
		if err != nil {
			return nil, err
		}
		return group.FromActivities(acts), nil
	}
	return nil, errors.New(errors.ErrCodeInternal, "unsupported group kind").WithDetail(string(kind))
}

// runKind handles the gather and probability stages for target or assay
// groups. Assignment and comparison are cluster-only.
func (p *Pipeline) runKind(ctx context.Context, kind group.Kind, stages []Stage) error {
	if !has(stages, StageGather) && !has(stages, StageProbability) {
		return nil
	}
	log := p.logger.With(logging.String("kind", string(kind)))
	var (
		m  group.Membership
		ms group.Multisets
	)
	for _, s := range stages {
		if s != StageGather && s != StageProbability {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, errors.ErrCodeCanceled, "run canceled").WithDetailf("kind=%s", kind)
		}
		start := p.now()
		err := p.runKindStage(s, kind, &m, &ms, log)
		p.observe(string(s)+"_"+string(kind), -1, p.now().Sub(start), err)
		if err != nil {
			log.Error("stage failed", logging.String("stage", string(s)), logging.Err(err))
			return err
		}
	}
	return nil
}

func (p *Pipeline) runKindStage(s Stage, kind group.Kind, m *group.Membership, ms *group.Multisets, log logging.Logger) error {
	if *m == nil {
		raw, err := p.kindMembership(kind)
		if err != nil {
			return err
		}
		if *m, err = p.restrict(raw, kind, log); err != nil {
			return err
		}
	}
	dir := p.cfg.Output.Dir
	switch s {
	case StageGather:
		out, err := p.aggregate(*m, kind)
		if err != nil {
			return err
		}
		path := KindSimPath(dir, kind)
		if err := p.write(tsv.File{Path: path, Write: func(w io.Writer) error { return tsv.WriteMultisets(w, out) }}); err != nil {
			return err
		}
		*ms = out
		log.Info("similarities gathered", logging.Int("groups", len(out)), logging.Int("pairs", out.PairCount()))
	case StageProbability:
		if *ms == nil {
			loaded, err := tsv.ReadMultisets(KindSimPath(dir, kind))
			if err != nil {
				return err
			}
			*ms = loaded
		}
		n, err := p.analyze(*m, *ms, kind, KindProbabilityPath(dir, kind))
		if err != nil {
			return err
		}
		log.Info("probabilities analyzed", logging.Int("rows", n))
	}
	return nil
}
