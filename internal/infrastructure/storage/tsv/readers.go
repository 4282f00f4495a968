package tsv

import (
	"github.com/turtacn/famsim/internal/domain/cluster"
	"github.com/turtacn/famsim/internal/domain/family"
	"github.com/turtacn/famsim/internal/domain/fingerprint"
)

// Column names shared by input and output tables.
const (
	ColClassID     = "protein_class_id"
	ColParentID    = "parent_id"
	ColClassLevel  = "class_level"
	ColPrefName    = "pref_name"
	ColShortName   = "short_name"
	ColTargetID    = "tid"
	ColLigandID    = "molregno"
	ColAssayID     = "assay_id"
	ColCluster     = "cluster"
	ColFingerprint = "fingerprint"
)

// ReadHierarchy loads the family classification table. pref_name and
// short_name are optional.
func ReadHierarchy(path string) ([]family.ClassNode, error) {
	var out []family.ClassNode
	err := readTable(path, []string{ColClassID, ColParentID, ColClassLevel}, func(r record) error {
		id, err := r.int64(ColClassID)
		if err != nil {
			return err
		}
		parent, err := r.nullableInt64(ColParentID)
		if err != nil {
			return err
		}
		level, err := r.int(ColClassLevel)
		if err != nil {
			return err
		}
		out = append(out, family.ClassNode{
			ID:        id,
			ParentID:  parent,
			Level:     level,
			PrefName:  r.str(ColPrefName),
			ShortName: r.str(ColShortName),
		})
		return nil
	})
	return out, err
}

// ReadTargets loads target classification rows.
func ReadTargets(path string) ([]cluster.TargetClass, error) {
	var out []cluster.TargetClass
	err := readTable(path, []string{ColTargetID, ColClassID}, func(r record) error {
		tid, err := r.int64(ColTargetID)
		if err != nil {
			return err
		}
		class, err := r.int64(ColClassID)
		if err != nil {
			return err
		}
		out = append(out, cluster.TargetClass{TargetID: tid, ClassNodeID: class})
		return nil
	})
	return out, err
}

// ReadLigandTargets loads (molregno, tid) rows.
func ReadLigandTargets(path string) ([]cluster.LigandTarget, error) {
	var out []cluster.LigandTarget
	err := readTable(path, []string{ColLigandID, ColTargetID}, func(r record) error {
		lig, err := r.int64(ColLigandID)
		if err != nil {
			return err
		}
		tid, err := r.int64(ColTargetID)
		if err != nil {
			return err
		}
		out = append(out, cluster.LigandTarget{LigandID: lig, TargetID: tid})
		return nil
	})
	return out, err
}

// ReadActivities loads (molregno, assay_id) rows.
func ReadActivities(path string) ([]cluster.Activity, error) {
	var out []cluster.Activity
	err := readTable(path, []string{ColLigandID, ColAssayID}, func(r record) error {
		lig, err := r.int64(ColLigandID)
		if err != nil {
			return err
		}
		assay, err := r.int64(ColAssayID)
		if err != nil {
			return err
		}
		out = append(out, cluster.Activity{LigandID: lig, AssayID: assay})
		return nil
	})
	return out, err
}

// ReadAssays loads (assay_id, tid) rows.
func ReadAssays(path string) ([]cluster.Assay, error) {
	var out []cluster.Assay
	err := readTable(path, []string{ColAssayID, ColTargetID}, func(r record) error {
		assay, err := r.int64(ColAssayID)
		if err != nil {
			return err
		}
		tid, err := r.int64(ColTargetID)
		if err != nil {
			return err
		}
		out = append(out, cluster.Assay{AssayID: assay, TargetID: tid})
		return nil
	})
	return out, err
}

// ReadLigandClusters loads a ligand→cluster table written by
// WriteLigandClusters.
func ReadLigandClusters(path string) ([]cluster.LigandCluster, error) {
	var out []cluster.LigandCluster
	err := readTable(path, []string{ColLigandID, ColClassID, ColCluster}, func(r record) error {
		lig, err := r.int64(ColLigandID)
		if err != nil {
			return err
		}
		class, err := r.int64(ColClassID)
		if err != nil {
			return err
		}
		c, err := r.int(ColCluster)
		if err != nil {
			return err
		}
		out = append(out, cluster.LigandCluster{LigandID: lig, ClassNodeID: class, ClusterID: c})
		return nil
	})
	return out, err
}

// ReadFingerprints loads (molregno, fingerprint) rows decoded with enc.
func ReadFingerprints(path string, enc fingerprint.Encoding) (map[int64]*fingerprint.Fingerprint, error) {
	out := make(map[int64]*fingerprint.Fingerprint)
	err := readTable(path, []string{ColLigandID, ColFingerprint}, func(r record) error {
		lig, err := r.int64(ColLigandID)
		if err != nil {
			return err
		}
		raw := r.str(ColFingerprint)
		fp, err := fingerprint.Parse(raw, enc)
		if err != nil {
			return r.parseErr(ColFingerprint, raw, err)
		}
		out[lig] = fp
		return nil
	})
	return out, err
}
