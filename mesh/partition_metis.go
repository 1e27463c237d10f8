//go:build metis

package mesh

import (
	"fmt"

	metis "github.com/notargets/go-metis"
)

// Imbalance is the load imbalance METIS may accept between parts
var Imbalance float32 = 1.05

// partition cuts the dual graph (elements joined by shared faces) into
// nParts parts, minimising the communication volume.
func (m *Mesh) partition(nParts int) ([]int, error) {
	xadj, adjncy, err := m.dualGraph()
	if err != nil {
		return nil, err
	}

	opts := make([]int32, metis.NoOptions)
	if err := metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	opts[metis.OptionObjType] = metis.ObjTypeVol

	part, _, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil,
		int32(nParts), nil, []float32{Imbalance}, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	if len(part) != m.NumElements() {
		return nil, fmt.Errorf("METIS returned %d parts for %d elements", len(part), m.NumElements())
	}

	EToP := make([]int, len(part))
	for e, p := range part {
		EToP[e] = int(p)
	}
	return EToP, nil
}

// dualGraph returns the face adjacency of the elements in CSR form
func (m *Mesh) dualGraph() (xadj, adjncy []int32, err error) {
	EToE, _, err := m.Connect()
	if err != nil {
		return nil, nil, err
	}
	xadj = make([]int32, len(EToE)+1)
	for e, nbs := range EToE {
		for _, n := range nbs {
			if n != e {
				adjncy = append(adjncy, int32(n))
			}
		}
		xadj[e+1] = int32(len(adjncy))
	}
	return xadj, adjncy, nil
}
