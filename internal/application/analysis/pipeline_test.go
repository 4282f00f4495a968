package analysis

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/famsim/internal/config"
	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/famsim/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/famsim/internal/infrastructure/storage/minio"
	"github.com/turtacn/famsim/internal/infrastructure/storage/npy"
	"github.com/turtacn/famsim/internal/infrastructure/storage/tsv"
	"github.com/turtacn/famsim/internal/testutil"
	"github.com/turtacn/famsim/pkg/errors"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishDir(ctx context.Context, dir, runID string) (*minio.Manifest, error) {
	args := m.Called(ctx, dir, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*minio.Manifest), args.Error(1)
}

// fixture lays out the example hierarchy
//
//	1 Enzyme ── 2 Kinase ── 4 TK
//	         └─ 3 Protease
//
// with target 10 under TK and target 20 under Protease. Ligands 101-103 hit
// target 10 and 104-106 hit target 20. Pairs within a target score 0.9, all
// other pairs 0.1.
func fixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}

	cfg := config.NewDefaultConfig()
	cfg.Input.FamilyFile = write("family.tsv",
		"protein_class_id\tparent_id\tclass_level\tpref_name\tshort_name\n"+
			"1\t\t0\tEnzyme\tEnzyme\n"+
			"2\t1\t1\tKinase\tKinase\n"+
			"3\t1\t1\tProtease\tProtease\n"+
			"4\t2\t2\tTyrosine kinase\tTK\n")
	cfg.Input.TargetFile = write("targets.tsv", "tid\tprotein_class_id\n10\t4\n20\t3\n")
	cfg.Input.LigandTargetFile = write("ligand_targets.tsv",
		"molregno\ttid\n101\t10\n102\t10\n103\t10\n104\t20\n105\t20\n106\t20\n")
	cfg.Input.ActivityFile = write("activities.tsv",
		"molregno\tassay_id\n101\t7\n102\t7\n104\t8\n105\t8\n106\t8\n")
	cfg.Input.SimilarityIDFile = write("ids.txt", "molregno\n101\n102\n103\n104\n105\n106\n")

	ids := []int64{101, 102, 103, 104, 105, 106}
	var values []float64
	for row := 1; row < len(ids); row++ {
		for col := 0; col < row; col++ {
			if (row < 3) == (col < 3) {
				values = append(values, 0.9)
			} else {
				values = append(values, 0.1)
			}
		}
	}
	cfg.Input.SimilarityFile = filepath.Join(dir, "similarity.npy")
	require.NoError(t, npy.WriteValues(cfg.Input.SimilarityFile, values))

	cfg.Output.Dir = filepath.Join(dir, "out")
	cfg.Clustering.MinDepth, cfg.Clustering.MaxDepth = 1, 2
	cfg.Probability.Thresholds = []float64{0.85}
	cfg.Worker.Concurrency = 2
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, opts ...Option) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg, append([]Option{WithLogger(logging.NewNopLogger())}, opts...)...)
	require.NoError(t, err)
	return p
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(body), "\n"), "\n")
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))

	cfg := config.NewDefaultConfig()
	cfg.Worker.Concurrency = 0
	_, err = NewPipeline(cfg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestNewPipeline_SweepThresholds(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Probability.Sweep = config.SweepConfig{Start: 0.5, Stop: 1, Num: 3}
	p := newPipeline(t, cfg, WithRunID("fixed"))
	assert.Equal(t, []float64{0.5, 0.75, 1}, p.thresholds)
	assert.Equal(t, "fixed", p.RunID())
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := fixture(t)
	cfg.Output.LigandTargets = true
	p := newPipeline(t, cfg)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Depths)
	assert.Equal(t, AllStages, res.Stages)
	assert.Nil(t, res.Manifest)

	out := cfg.Output.Dir
	for _, path := range []string{
		LigandTargetPath(out),
		LigandClusterPath(out, 1), TargetClusterPath(out, 1), ClusterSimPath(out, 1),
		ComparisonPath(out, 1), SummaryPath(out, 1), ProbabilityPath(out, 1),
		LigandClusterPath(out, 2), ComparisonPath(out, 2),
	} {
		assert.Contains(t, res.Files, path)
		assert.FileExists(t, path)
	}

	assert.Equal(t, []string{
		"tid\tprotein_class_id\tcluster",
		"10\t2\t1",
		"20\t3\t2",
	}, readLines(t, TargetClusterPath(out, 1)))

	// Depth 2 only classifies target 10.
	assert.Equal(t, []string{
		"tid\tprotein_class_id\tcluster",
		"10\t4\t1",
	}, readLines(t, TargetClusterPath(out, 2)))

	ms, err := tsv.ReadMultisets(ClusterSimPath(out, 1))
	require.NoError(t, err)
	assert.Equal(t, group.Multisets{1: {0.9, 0.9, 0.9}, 2: {0.9, 0.9, 0.9}}, ms)

	cmp := readLines(t, ComparisonPath(out, 1))
	require.Len(t, cmp, 3)
	assert.True(t, strings.HasPrefix(cmp[1], "1\tKinase\t3\t3\t"), cmp[1])
	assert.True(t, strings.HasPrefix(cmp[2], "2\tProtease\t3\t3\t"), cmp[2])

	prob := readLines(t, ProbabilityPath(out, 1))
	require.Len(t, prob, 3)
	assert.True(t, strings.HasPrefix(prob[1], "1\t0.85\t0.5\t0.2\t3\t"), prob[1])
}

func TestStagesChainThroughFiles(t *testing.T) {
	cfg := fixture(t)
	ctx := context.Background()

	_, err := newPipeline(t, cfg).AssignClusters(ctx)
	require.NoError(t, err)
	_, err = newPipeline(t, cfg).GatherSimilarities(ctx)
	require.NoError(t, err)
	_, err = newPipeline(t, cfg).CompareDistributions(ctx)
	require.NoError(t, err)
	res, err := newPipeline(t, cfg).AnalyzeProbabilities(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{ProbabilityPath(cfg.Output.Dir, 1), ProbabilityPath(cfg.Output.Dir, 2)}, res.Files)
}

func TestCompare_InconsistentMultisetsWritesNothing(t *testing.T) {
	cfg := fixture(t)
	ctx := context.Background()
	_, err := newPipeline(t, cfg).Execute(ctx, StageAssign, StageGather)
	require.NoError(t, err)

	// Drop one value from cluster 1 at depth 1.
	path := ClusterSimPath(cfg.Output.Dir, 1)
	require.NoError(t, os.WriteFile(path, []byte(`{"1":[0.9,0.9],"2":[0.9,0.9,0.9]}`), 0o644))

	cfg.Worker.Concurrency = 1
	cfg.Clustering.MaxDepth = 1
	_, err = newPipeline(t, cfg).CompareDistributions(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAggregationConsistency), "got %v", err)
	assert.NoFileExists(t, ComparisonPath(cfg.Output.Dir, 1))
	assert.NoFileExists(t, SummaryPath(cfg.Output.Dir, 1))
}

func TestRun_MissingSimilarityFails(t *testing.T) {
	cfg := fixture(t)
	cfg.Input.SimilarityFile = filepath.Join(t.TempDir(), "missing.npy")

	_, err := newPipeline(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInputParse), "got %v", err)
	assert.NoFileExists(t, LigandClusterPath(cfg.Output.Dir, 1))
}

func TestRun_UnknownClassNodeFailsBeforeOutput(t *testing.T) {
	cfg := fixture(t)
	cfg.Output.LigandTargets = true
	require.NoError(t, os.WriteFile(cfg.Input.TargetFile, []byte("tid\tprotein_class_id\n10\t4\n20\t3\n30\t99\n"), 0o644))

	_, err := newPipeline(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownClassNode), "got %v", err)
	assert.Contains(t, err.Error(), "tid=30")
	assert.NoFileExists(t, LigandTargetPath(cfg.Output.Dir))
	for _, d := range []int{1, 2} {
		assert.NoFileExists(t, LigandClusterPath(cfg.Output.Dir, d))
		assert.NoFileExists(t, TargetClusterPath(cfg.Output.Dir, d))
	}
}

func TestRun_NoLigandTargetSource(t *testing.T) {
	cfg := fixture(t)
	cfg.Input.LigandTargetFile = ""

	_, err := newPipeline(t, cfg).AssignClusters(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestAssign_JoinsActivitiesWhenNoLigandTargetFile(t *testing.T) {
	cfg := fixture(t)
	cfg.Input.LigandTargetFile = ""
	cfg.Input.AssayFile = filepath.Join(t.TempDir(), "assays.tsv")
	require.NoError(t, os.WriteFile(cfg.Input.AssayFile, []byte("assay_id\ttid\n7\t10\n8\t20\n"), 0o644))
	cfg.Clustering.MaxDepth = 1

	_, err := newPipeline(t, cfg).AssignClusters(context.Background())
	require.NoError(t, err)

	rows, err := tsv.ReadLigandClusters(LigandClusterPath(cfg.Output.Dir, 1))
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestRun_TargetAndAssayGroups(t *testing.T) {
	cfg := fixture(t)
	cfg.Aggregation.ByTarget = true
	cfg.Aggregation.ByAssay = true

	_, err := newPipeline(t, cfg).Run(context.Background())
	require.NoError(t, err)

	out := cfg.Output.Dir
	targets, err := tsv.ReadMultisets(KindSimPath(out, group.KindTarget))
	require.NoError(t, err)
	assert.Equal(t, group.Multisets{10: {0.9, 0.9, 0.9}, 20: {0.9, 0.9, 0.9}}, targets)

	assays, err := tsv.ReadMultisets(KindSimPath(out, group.KindAssay))
	require.NoError(t, err)
	assert.Equal(t, group.Multisets{7: {0.9}, 8: {0.9, 0.9, 0.9}}, assays)

	assert.FileExists(t, KindProbabilityPath(out, group.KindTarget))
	assert.FileExists(t, KindProbabilityPath(out, group.KindAssay))
}

func withUnknownLigand(t *testing.T, cfg *config.Config) {
	t.Helper()
	require.NoError(t, os.WriteFile(cfg.Input.LigandTargetFile,
		[]byte("molregno\ttid\n101\t10\n102\t10\n103\t10\n999\t10\n104\t20\n105\t20\n106\t20\n"), 0o644))
	cfg.Clustering.MaxDepth = 1
}

func TestRun_LigandsOutsideSpaceFail(t *testing.T) {
	cfg := fixture(t)
	withUnknownLigand(t, cfg)

	_, err := newPipeline(t, cfg).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownEntity))
	assert.Contains(t, err.Error(), "999")
	assert.NoFileExists(t, ClusterSimPath(cfg.Output.Dir, 1))
}

func TestRun_LigandsOutsideSpaceAreSkipped(t *testing.T) {
	cfg := fixture(t)
	withUnknownLigand(t, cfg)
	cfg.Aggregation.SkipMissing = true

	log := testutil.NewMockLogger()
	_, err := newPipeline(t, cfg, WithLogger(log)).Run(context.Background())
	require.NoError(t, err)

	ms, err := tsv.ReadMultisets(ClusterSimPath(cfg.Output.Dir, 1))
	require.NoError(t, err)
	assert.Len(t, ms[1], 3)

	msg, ok := log.Find("warn", "ligands missing from similarity space were skipped")
	require.True(t, ok)
	assert.Equal(t, "pipeline", msg.Logger)
	dropped, _ := msg.Field("dropped_memberships")
	assert.Equal(t, 1, dropped)
	kind, _ := msg.Field("kind")
	assert.Equal(t, "cluster", kind)
}

func TestRun_Publishes(t *testing.T) {
	cfg := fixture(t)
	pub := new(mockPublisher)
	manifest := &minio.Manifest{RunID: "run-1", Bucket: "famsim-results"}
	pub.On("PublishDir", mock.Anything, cfg.Output.Dir, "run-1").Return(manifest, nil)

	res, err := newPipeline(t, cfg, WithPublisher(pub), WithRunID("run-1")).Run(context.Background())
	require.NoError(t, err)
	assert.Same(t, manifest, res.Manifest)
	pub.AssertExpectations(t)
}

func TestRun_PublishFailure(t *testing.T) {
	cfg := fixture(t)
	pub := new(mockPublisher)
	pub.On("PublishDir", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New(errors.ErrCodeExternalService, "unreachable"))

	_, err := newPipeline(t, cfg, WithPublisher(pub)).Run(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodePublish), "got %v", err)
}

func TestRun_Canceled(t *testing.T) {
	cfg := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newPipeline(t, cfg).Run(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled), "got %v", err)
}

func TestRun_RecordsMetrics(t *testing.T) {
	cfg := fixture(t)
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: "famsim"}, nil)
	require.NoError(t, err)
	m := prometheus.NewPipelineMetrics(collector)

	p := newPipeline(t, cfg, WithMetrics(m))
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	// Four stages at two depths, each with status ok.
	n, err := promtestutil.GatherAndCount(collector.Gatherer(), "famsim_stage_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	expected := `
# HELP famsim_similarity_space_entities Entities in the loaded similarity space.
# TYPE famsim_similarity_space_entities gauge
famsim_similarity_space_entities 6
# HELP famsim_last_success_timestamp_seconds Unix time of the last successful run.
# TYPE famsim_last_success_timestamp_seconds gauge
famsim_last_success_timestamp_seconds 1.7e+09
`
	assert.NoError(t, promtestutil.GatherAndCompare(collector.Gatherer(), strings.NewReader(expected),
		"famsim_similarity_space_entities", "famsim_last_success_timestamp_seconds"))
}

func TestExecute_NoStages(t *testing.T) {
	_, err := newPipeline(t, fixture(t)).Execute(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}
