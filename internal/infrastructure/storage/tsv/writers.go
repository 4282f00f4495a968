package tsv

import (
	"io"
	"strconv"

	"github.com/turtacn/famsim/internal/domain/cluster"
	"github.com/turtacn/famsim/internal/domain/probability"
	"github.com/turtacn/famsim/internal/domain/stats"
)

// WriteTargetClusters writes tid, protein_class_id, cluster.
func WriteTargetClusters(w io.Writer, rows []cluster.TargetCluster) error {
	tw, err := newTableWriter(w, ColTargetID, ColClassID, ColCluster)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tw.row(itoa(r.TargetID), itoa(r.ClassNodeID), strconv.Itoa(r.ClusterID)); err != nil {
			return err
		}
	}
	return tw.flush()
}

// WriteLigandClusters writes molregno, protein_class_id, cluster.
func WriteLigandClusters(w io.Writer, rows []cluster.LigandCluster) error {
	tw, err := newTableWriter(w, ColLigandID, ColClassID, ColCluster)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tw.row(itoa(r.LigandID), itoa(r.ClassNodeID), strconv.Itoa(r.ClusterID)); err != nil {
			return err
		}
	}
	return tw.flush()
}

// WriteLigandTargets writes molregno, tid.
func WriteLigandTargets(w io.Writer, rows []cluster.LigandTarget) error {
	tw, err := newTableWriter(w, ColLigandID, ColTargetID)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tw.row(itoa(r.LigandID), itoa(r.TargetID)); err != nil {
			return err
		}
	}
	return tw.flush()
}

// WriteComparison writes the rank-sum comparison table.
func WriteComparison(w io.Writer, rows []stats.ComparisonRow) error {
	tw, err := newTableWriter(w,
		ColCluster, ColShortName, "cluster_size", "other_size", "cluster_median", "other_median",
		"U1", "U2", "p_val", "corrected_p_val")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tw.row(
			itoa(r.ClusterID),
			r.DisplayName,
			strconv.Itoa(r.ClusterSize),
			strconv.Itoa(r.OtherSize),
			FormatFloat(r.ClusterMedian),
			FormatFloat(r.OtherMedian),
			FormatFloat(r.U1),
			FormatFloat(r.U2),
			FormatFloat(r.PValue),
			FormatFloat(r.CorrectedPValue),
		); err != nil {
			return err
		}
	}
	return tw.flush()
}

// WriteSummaries writes per-group descriptive statistics.
func WriteSummaries(w io.Writer, rows []stats.Summary) error {
	tw, err := newTableWriter(w, "group", "count", "mean", "median", "std", "min", "max")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tw.row(
			itoa(r.GroupID),
			strconv.Itoa(r.Count),
			FormatFloat(r.Mean),
			FormatFloat(r.Median),
			FormatFloat(r.StdDev),
			FormatFloat(r.Min),
			FormatFloat(r.Max),
		); err != nil {
			return err
		}
	}
	return tw.flush()
}

// WriteProbability writes the threshold sweep table.
func WriteProbability(w io.Writer, rows []probability.Row) error {
	tw, err := newTableWriter(w,
		"cluster_id", "threshold", "conditional_probability", "baseline_probability",
		"high_sim_pairs", "enrichment_factor", "cluster_size")
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tw.row(
			itoa(r.GroupID),
			FormatFloat(r.Threshold),
			FormatFloat(r.ConditionalProbability),
			FormatFloat(r.BaselineProbability),
			strconv.Itoa(r.HighSimPairCount),
			FormatFloat(r.EnrichmentFactor),
			strconv.Itoa(r.GroupSize),
		); err != nil {
			return err
		}
	}
	return tw.flush()
}
