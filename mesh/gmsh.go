package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/notargets/aderseis/element"
)

// WriteGmshView writes per-vertex values as a gmsh post-processing view
// (scalar triangles ST or scalar tetrahedra SS).
func WriteGmshView(w io.Writer, t element.Type, EToV [][]int, verts [][3]float64, values []float64) error {
	var open string
	switch t {
	case element.Tria:
		open = "ST("
	case element.Tet:
		open = "SS("
	default:
		return fmt.Errorf("gmsh views support tria3 and tet4, not %v", t)
	}
	if len(values) != len(verts) {
		return fmt.Errorf("%d values for %d vertices", len(values), len(verts))
	}

	bw := bufio.NewWriter(w)
	bw.WriteString("/******************************\n")
	bw.WriteString(" * EDGE-V generated Gmsh-view *\n")
	bw.WriteString(" ******************************/\n")
	bw.WriteString("View \"EDGE-V\" {\n")

	num := make([]byte, 0, 32)
	for e, ve := range EToV {
		if len(ve) != t.Vertices() {
			return fmt.Errorf("element %d has %d vertices, %v needs %d", e, len(ve), t, t.Vertices())
		}
		bw.WriteString(open)
		for i, v := range ve {
			if v < 0 || v >= len(verts) {
				return fmt.Errorf("element %d references vertex %d of %d", e, v, len(verts))
			}
			for d := 0; d < 3; d++ {
				if i > 0 || d > 0 {
					bw.WriteByte(',')
				}
				num = strconv.AppendFloat(num[:0], verts[v][d], 'g', -1, 64)
				bw.Write(num)
			}
		}
		bw.WriteString("){")
		for i, v := range ve {
			if i > 0 {
				bw.WriteByte(',')
			}
			num = strconv.AppendFloat(num[:0], values[v], 'g', -1, 64)
			bw.Write(num)
		}
		bw.WriteString("};\n")
	}
	bw.WriteString("};\n")
	return bw.Flush()
}

// WriteGmshViewFile writes the view of m to path
func (m *Mesh) WriteGmshViewFile(path string, values []float64) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteGmshView(f, m.Type, m.EToV, m.Vertices, values)
}
