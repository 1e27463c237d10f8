//go:build !metis

package mesh

func (m *Mesh) partition(nParts int) ([]int, error) {
	return BlockPartition(m.NumElements(), nParts), nil
}
