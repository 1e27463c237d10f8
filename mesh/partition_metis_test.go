//go:build metis

package mesh

import (
	"testing"

	"github.com/notargets/aderseis/element"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetisPartitionCutsFewFaces(t *testing.T) {
	const K = 16
	verts := make([][3]float64, K+1)
	EToV := make([][]int, K)
	for e := range EToV {
		verts[e+1][0] = float64(e + 1)
		EToV[e] = []int{e, e + 1}
	}
	m, err := New(element.Line, verts, EToV)
	require.NoError(t, err)

	xadj, adjncy, err := m.dualGraph()
	require.NoError(t, err)
	assert.Len(t, xadj, K+1)
	// interior faces counted from both sides
	assert.Len(t, adjncy, 2*(K-1))

	EToP, err := m.Partition(2)
	require.NoError(t, err)
	require.NoError(t, CheckPartition(EToP, 2))
	cut := 0
	for e := 1; e < K; e++ {
		if EToP[e] != EToP[e-1] {
			cut++
		}
	}
	assert.LessOrEqual(t, cut, 2)
}
