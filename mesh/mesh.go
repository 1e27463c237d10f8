// Package mesh holds simplex meshes and the per-element data derived from a
// velocity model: materials, stable time steps and LTS time groups.
package mesh

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/notargets/aderseis/element"
	"github.com/notargets/aderseis/velocity"
	"github.com/notargets/gocfd/DG3D/mesh/readers"
)

// Mesh is a conforming simplex mesh of a single element type
type Mesh struct {
	Type     element.Type
	Vertices [][3]float64
	EToV     [][]int // element → vertex ids
}

// New validates the connectivity against the vertex list
func New(t element.Type, verts [][3]float64, EToV [][]int) (*Mesh, error) {
	if t > element.Tet {
		return nil, fmt.Errorf("unsupported element type %v", t)
	}
	nv := t.Vertices()
	for e, ve := range EToV {
		if len(ve) != nv {
			return nil, fmt.Errorf("element %d has %d vertices, %v needs %d", e, len(ve), t, nv)
		}
		for _, v := range ve {
			if v < 0 || v >= len(verts) {
				return nil, fmt.Errorf("element %d references vertex %d of %d", e, v, len(verts))
			}
		}
	}
	return &Mesh{Type: t, Vertices: verts, EToV: EToV}, nil
}

// Load reads a mesh file. Mixed meshes keep only the elements of the
// highest dimension, so boundary triangles of a tet mesh are dropped.
func Load(path string) (*Mesh, error) {
	msh, err := readers.ReadMeshFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading mesh %s: %w", path, err)
	}

	verts := make([][3]float64, len(msh.Vertices))
	for i, v := range msh.Vertices {
		verts[i] = [3]float64{v[0], v[1], v[2]}
	}

	maxVerts := 0
	for _, ve := range msh.EtoV {
		if n := len(ve); n <= 4 && n > maxVerts {
			maxVerts = n
		}
	}
	if maxVerts < 2 {
		return nil, fmt.Errorf("mesh %s has no simplex elements", path)
	}
	t := element.Type(maxVerts - 2)

	EToV := make([][]int, 0, len(msh.EtoV))
	for _, ve := range msh.EtoV {
		if len(ve) == maxVerts {
			EToV = append(EToV, append([]int(nil), ve...))
		}
	}
	return New(t, verts, EToV)
}

// NumElements returns the element count
func (m *Mesh) NumElements() int {
	return len(m.EToV)
}

// ElementVertices returns the vertex coordinates of element e
func (m *Mesh) ElementVertices(e int) [][]float64 {
	out := make([][]float64, len(m.EToV[e]))
	for i, v := range m.EToV[e] {
		c := m.Vertices[v]
		out[i] = c[:]
	}
	return out
}

// faceVertices lists the local vertices spanning each face
var faceVertices = map[element.Type][][]int{
	element.Line: {{0}, {1}},
	element.Tria: {{0, 1}, {1, 2}, {2, 0}},
	element.Tet:  {{0, 1, 2}, {0, 1, 3}, {1, 2, 3}, {0, 2, 3}},
}

// FaceVertices returns the local vertex ids of face f of a t element
func FaceVertices(t element.Type, f int) []int {
	return faceVertices[t][f]
}

// Connect builds the face neighbour tables. Boundary faces connect to their
// own element and face.
func (m *Mesh) Connect() (EToE, EToF [][]int, err error) {
	type faceKey [3]int
	type faceRef struct{ elem, face int }

	nf := m.Type.Faces()
	K := m.NumElements()
	EToE = make([][]int, K)
	EToF = make([][]int, K)
	for e := 0; e < K; e++ {
		EToE[e] = make([]int, nf)
		EToF[e] = make([]int, nf)
		for f := 0; f < nf; f++ {
			EToE[e][f] = e
			EToF[e][f] = f
		}
	}

	open := make(map[faceKey]faceRef)
	for e := 0; e < K; e++ {
		for f, lv := range faceVertices[m.Type] {
			key := faceKey{-1, -1, -1}
			for i, l := range lv {
				key[i] = m.EToV[e][l]
			}
			// canonical vertex order
			if key[0] > key[1] && key[1] >= 0 {
				key[0], key[1] = key[1], key[0]
			}
			if key[1] > key[2] && key[2] >= 0 {
				key[1], key[2] = key[2], key[1]
			}
			if key[0] > key[1] && key[1] >= 0 {
				key[0], key[1] = key[1], key[0]
			}

			other, found := open[key]
			if !found {
				open[key] = faceRef{e, f}
				continue
			}
			if other.elem < 0 {
				return nil, nil, fmt.Errorf("face %v is shared by more than two elements", key)
			}
			EToE[e][f], EToF[e][f] = other.elem, other.face
			EToE[other.elem][other.face], EToF[other.elem][other.face] = e, f
			open[key] = faceRef{-1, -1}
		}
	}
	return EToE, EToF, nil
}

// VertexSamples queries the model at every vertex
func (m *Mesh) VertexSamples(ctx context.Context, model velocity.Model, workers int) ([]velocity.Sample, error) {
	return velocity.QueryAll(ctx, model, m.Vertices, workers)
}

// ElementMaterials averages the Lame parameters and density of the element
// vertices.
func (m *Mesh) ElementMaterials(samples []velocity.Sample) ([]element.Material, error) {
	if len(samples) != len(m.Vertices) {
		return nil, fmt.Errorf("%d samples for %d vertices", len(samples), len(m.Vertices))
	}
	lams := make([]float64, len(samples))
	mus := make([]float64, len(samples))
	for v, s := range samples {
		lams[v], mus[v] = s.Lame()
	}

	mats := make([]element.Material, m.NumElements())
	for e, ve := range m.EToV {
		var mat element.Material
		for _, v := range ve {
			mat.Lambda += lams[v]
			mat.Mu += mus[v]
			mat.Rho += samples[v].Rho
		}
		sca := 1 / float64(len(ve))
		mat.Lambda *= sca
		mat.Mu *= sca
		mat.Rho *= sca
		if mat.Rho <= 0 || mat.Lambda+2*mat.Mu <= 0 {
			return nil, fmt.Errorf("element %d: non-physical material %+v", e, mat)
		}
		mats[e] = mat
	}
	return mats, nil
}

// CharacteristicLengths scales the vertex shear wave speeds to target mesh
// sizes resolving a wave with elmtsPerWave elements.
func CharacteristicLengths(samples []velocity.Sample, elmtsPerWave float64) ([]float64, error) {
	if elmtsPerWave <= 0 {
		return nil, fmt.Errorf("elements per wave %g must be positive", elmtsPerWave)
	}
	sca := 1 / elmtsPerWave
	cls := make([]float64, len(samples))
	for v, s := range samples {
		cls[v] = s.Vs * sca
	}
	return cls, nil
}

// faceMeasure returns the length/area of a face given its vertices
func faceMeasure(pts [][3]float64) float64 {
	switch len(pts) {
	case 1:
		return 1
	case 2:
		return dist(pts[0], pts[1])
	}
	a := sub(pts[1], pts[0])
	b := sub(pts[2], pts[0])
	c := [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
	return 0.5 * math.Sqrt(c[0]*c[0]+c[1]*c[1]+c[2]*c[2])
}

func sub(a, b [3]float64) [3]float64 {
	return [3]float64{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func dist(a, b [3]float64) float64 {
	d := sub(a, b)
	return math.Sqrt(d[0]*d[0] + d[1]*d[1] + d[2]*d[2])
}

// InRadius returns the radius of the inscribed sphere (circle, half length)
// of element e, d·V/ΣA over the faces.
func (m *Mesh) InRadius(e int) (float64, error) {
	_, det, err := element.AffineMap(m.Type, m.ElementVertices(e))
	if err != nil {
		return 0, fmt.Errorf("element %d: %w", e, err)
	}
	dims := m.Type.Dimensions()
	vol := math.Abs(det)
	for i := 2; i <= dims; i++ {
		vol /= float64(i)
	}

	var area float64
	for _, lv := range faceVertices[m.Type] {
		pts := make([][3]float64, len(lv))
		for i, l := range lv {
			pts[i] = m.Vertices[m.EToV[e][l]]
		}
		area += faceMeasure(pts)
	}
	return float64(dims) * vol / area, nil
}

// StarMatrices returns the star matrices of every element for its material
func (m *Mesh) StarMatrices(mats []element.Material) ([][][]float64, error) {
	if len(mats) != m.NumElements() {
		return nil, fmt.Errorf("%d materials for %d elements", len(mats), m.NumElements())
	}
	stars := make([][][]float64, len(mats))
	for e, mat := range mats {
		jacInv, _, err := element.AffineMap(m.Type, m.ElementVertices(e))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", e, err)
		}
		if stars[e], err = element.StarMatrices(m.Type, mat, jacInv); err != nil {
			return nil, fmt.Errorf("element %d: %w", e, err)
		}
	}
	return stars, nil
}

// TimeSteps returns the stable time step cfl·2r/vp of every element
func (m *Mesh) TimeSteps(mats []element.Material, cfl float64) ([]float64, error) {
	if len(mats) != m.NumElements() {
		return nil, fmt.Errorf("%d materials for %d elements", len(mats), m.NumElements())
	}
	if cfl <= 0 {
		return nil, fmt.Errorf("cfl %g must be positive", cfl)
	}
	dts := make([]float64, len(mats))
	for e, mat := range mats {
		r, err := m.InRadius(e)
		if err != nil {
			return nil, err
		}
		dts[e] = cfl * 2 * r / mat.VP()
	}
	return dts, nil
}

// TimeGroups bins time steps into nTgs groups with rate 2: group g holds the
// elements with dtMin·2^g <= dt < dtMin·2^(g+1), the last group everything
// above. Every element of group g advances with groupDts[g].
func TimeGroups(dts []float64, nTgs int) (tgs []uint16, groupDts []float64, err error) {
	if nTgs < 1 || nTgs > math.MaxUint16 {
		return nil, nil, fmt.Errorf("invalid number of time groups %d", nTgs)
	}
	if len(dts) == 0 {
		return nil, nil, errors.New("no time steps to bin")
	}
	dtMin := math.Inf(1)
	for e, dt := range dts {
		if !(dt > 0) || math.IsInf(dt, 1) {
			return nil, nil, fmt.Errorf("element %d: invalid time step %g", e, dt)
		}
		dtMin = min(dtMin, dt)
	}

	groupDts = make([]float64, nTgs)
	for g := range groupDts {
		groupDts[g] = dtMin * math.Ldexp(1, g)
	}
	tgs = make([]uint16, len(dts))
	for e, dt := range dts {
		g := int(math.Floor(math.Log2(dt / dtMin)))
		tgs[e] = uint16(max(0, min(g, nTgs-1)))
	}
	return tgs, groupDts, nil
}

// LimitTimeGroups lowers time groups until face neighbours differ by at
// most one group. Lowering only shrinks time steps, so stability holds.
func LimitTimeGroups(tgs []uint16, EToE [][]int) error {
	if len(tgs) != len(EToE) {
		return fmt.Errorf("%d time groups for %d elements", len(tgs), len(EToE))
	}
	for changed := true; changed; {
		changed = false
		for e, nbs := range EToE {
			for _, n := range nbs {
				if tgs[e] > tgs[n]+1 {
					tgs[e] = tgs[n] + 1
					changed = true
				}
			}
		}
	}
	return nil
}

// Partition assigns every element to one of nParts non-empty parts. Builds
// with the metis tag cut the face graph with METIS, others split the
// element order into contiguous blocks.
func (m *Mesh) Partition(nParts int) ([]int, error) {
	K := m.NumElements()
	if nParts < 1 || nParts > K {
		return nil, fmt.Errorf("cannot split %d elements into %d parts", K, nParts)
	}
	if nParts == 1 {
		return make([]int, K), nil
	}
	EToP, err := m.partition(nParts)
	if err != nil {
		return nil, err
	}
	if err := CheckPartition(EToP, nParts); err != nil {
		return nil, err
	}
	return EToP, nil
}

// BlockPartition splits K elements into nParts contiguous blocks of near
// equal size
func BlockPartition(K, nParts int) []int {
	EToP := make([]int, K)
	for e := range EToP {
		EToP[e] = e * nParts / K
	}
	return EToP
}

// CheckPartition verifies that every element lies in [0,nParts) and that
// no part is empty
func CheckPartition(EToP []int, nParts int) error {
	counts := make([]int, nParts)
	for e, p := range EToP {
		if p < 0 || p >= nParts {
			return fmt.Errorf("element %d in part %d, want [0,%d)", e, p, nParts)
		}
		counts[p]++
	}
	for p, n := range counts {
		if n == 0 {
			return fmt.Errorf("part %d of %d is empty", p, nParts)
		}
	}
	return nil
}
