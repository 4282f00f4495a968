package analysis

import (
	"sync"

	"github.com/turtacn/famsim/internal/config"
	"github.com/turtacn/famsim/internal/domain/cluster"
	"github.com/turtacn/famsim/internal/domain/family"
	"github.com/turtacn/famsim/internal/domain/fingerprint"
	"github.com/turtacn/famsim/internal/domain/group"
	"github.com/turtacn/famsim/internal/domain/similarity"
	"github.com/turtacn/famsim/internal/infrastructure/storage/npy"
	"github.com/turtacn/famsim/internal/infrastructure/storage/tsv"
	"github.com/turtacn/famsim/pkg/errors"
)

// lazy loads a value at most once and shares it between depth tasks.
type lazy[T any] struct {
	once sync.Once
	v    T
	err  error
}

func (l *lazy[T]) get(load func() (T, error)) (T, error) {
	l.once.Do(func() { l.v, l.err = load() })
	return l.v, l.err
}

// inputs holds the run's read-only inputs. Everything is loaded on first use
// and never mutated afterwards, so depth tasks share it without locking.
type inputs struct {
	cfg *config.InputConfig
	agg *config.AggregationConfig
	max int

	tree          lazy[*family.Tree]
	targets       lazy[[]cluster.TargetClass]
	ligandTargets lazy[[]cluster.LigandTarget]
	activities    lazy[[]cluster.Activity]
	space         lazy[*similarity.Space]
	validator     lazy[group.Validator]
}

func newInputs(cfg *config.Config) *inputs {
	return &inputs{cfg: &cfg.Input, agg: &cfg.Aggregation, max: cfg.Similarity.MaxCompounds}
}

func required(path, key string) error {
	if path == "" {
		return errors.New(errors.ErrCodeValidation, "required input is not configured").
			WithDetailf("key=input.%s", key)
	}
	return nil
}

func (in *inputs) Tree() (*family.Tree, error) {
	return in.tree.get(func() (*family.Tree, error) {
		if err := required(in.cfg.FamilyFile, "family_file"); err != nil {
			return nil, err
		}
		nodes, err := tsv.ReadHierarchy(in.cfg.FamilyFile)
		if err != nil {
			return nil, err
		}
		return family.Build(nodes)
	})
}

func (in *inputs) Targets() ([]cluster.TargetClass, error) {
	return in.targets.get(func() ([]cluster.TargetClass, error) {
		if err := required(in.cfg.TargetFile, "target_file"); err != nil {
			return nil, err
		}
		return tsv.ReadTargets(in.cfg.TargetFile)
	})
}

func (in *inputs) Activities() ([]cluster.Activity, error) {
	return in.activities.get(func() ([]cluster.Activity, error) {
		if err := required(in.cfg.ActivityFile, "activity_file"); err != nil {
			return nil, err
		}
		return tsv.ReadActivities(in.cfg.ActivityFile)
	})
}

// LigandTargets reads the direct ligand→target table when one is configured
// and otherwise joins activities onto assays.
func (in *inputs) LigandTargets() ([]cluster.LigandTarget, error) {
	return in.ligandTargets.get(func() ([]cluster.LigandTarget, error) {
		if in.cfg.LigandTargetFile != "" {
			return tsv.ReadLigandTargets(in.cfg.LigandTargetFile)
		}
		if in.cfg.ActivityFile == "" || in.cfg.AssayFile == "" {
			return nil, errors.New(errors.ErrCodeValidation, "no ligand-target source configured").
				WithDetail("set input.ligand_target_file, or both input.activity_file and input.assay_file")
		}
		activities, err := in.Activities()
		if err != nil {
			return nil, err
		}
		assays, err := tsv.ReadAssays(in.cfg.AssayFile)
		if err != nil {
			return nil, err
		}
		return cluster.JoinActivities(activities, assays), nil
	})
}

func (in *inputs) Space() (*similarity.Space, error) {
	return in.space.get(func() (*similarity.Space, error) {
		if err := required(in.cfg.SimilarityFile, "similarity_file"); err != nil {
			return nil, err
		}
		if err := required(in.cfg.SimilarityIDFile, "similarity_id_file"); err != nil {
			return nil, err
		}
		return npy.LoadSpace(in.cfg.SimilarityFile, in.cfg.SimilarityIDFile, in.max)
	})
}

// Validator returns nil when the fingerprint cross-check is disabled.
func (in *inputs) Validator() (group.Validator, error) {
	return in.validator.get(func() (group.Validator, error) {
		if !in.agg.Validate {
			return nil, nil
		}
		if err := required(in.cfg.FingerprintFile, "fingerprint_file"); err != nil {
			return nil, err
		}
		prints, err := tsv.ReadFingerprints(in.cfg.FingerprintFile, fingerprint.Encoding(in.cfg.FingerprintEncoding))
		if err != nil {
			return nil, err
		}
		v, err := fingerprint.NewValidator(prints, fingerprint.Metric(in.agg.Metric), in.agg.Tolerance)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}
