package analysis

import (
	"fmt"
	"path/filepath"

	"github.com/turtacn/famsim/internal/domain/group"
)

// Output file names, relative to the output directory.

func LigandClusterPath(dir string, depth int) string {
	return filepath.Join(dir, fmt.Sprintf("ligand2cluster-class_level=%d.tsv", depth))
}

func TargetClusterPath(dir string, depth int) string {
	return filepath.Join(dir, fmt.Sprintf("target2cluster-class_level=%d.tsv", depth))
}

func LigandTargetPath(dir string) string {
	return filepath.Join(dir, "ligand2target.tsv")
}

func ClusterSimPath(dir string, depth int) string {
	return filepath.Join(dir, fmt.Sprintf("cluster2sim_class_level=%d.json", depth))
}

func ComparisonPath(dir string, depth int) string {
	return filepath.Join(dir, fmt.Sprintf("mann_whitney_utest_class_level=%d.tsv", depth))
}

func SummaryPath(dir string, depth int) string {
	return filepath.Join(dir, fmt.Sprintf("summary_class_level=%d.tsv", depth))
}

func ProbabilityPath(dir string, depth int) string {
	return filepath.Join(dir, fmt.Sprintf("per_cluster_threshold_analysis_class_level=%d.tsv", depth))
}

// KindSimPath is the multiset file for a depth-independent grouping.
func KindSimPath(dir string, kind group.Kind) string {
	return filepath.Join(dir, fmt.Sprintf("%s2sim.json", kind))
}

// KindProbabilityPath is the probability table for a depth-independent grouping.
func KindProbabilityPath(dir string, kind group.Kind) string {
	return filepath.Join(dir, fmt.Sprintf("per_cluster_threshold_analysis_per_%s.tsv", kind))
}
