package element

import (
	"fmt"
	"strings"
)

// Type identifies the shape of a simplex element
type Type uint8

const (
	Line Type = iota // 1D line segment
	Tria             // 2D triangle
	Tet              // 3D tetrahedron
)

// ParseType accepts the short names used in mesh and config files
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line", "line2":
		return Line, nil
	case "tria", "tria3", "tri":
		return Tria, nil
	case "tet", "tet4":
		return Tet, nil
	}
	return 0, fmt.Errorf("unknown element type %q", s)
}

func (t Type) String() string {
	switch t {
	case Line:
		return "line"
	case Tria:
		return "tria3"
	case Tet:
		return "tet4"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Dimensions returns the spatial dimension of the element
func (t Type) Dimensions() int {
	return int(t) + 1
}

// Vertices returns the number of vertices; for a simplex this equals the
// number of faces.
func (t Type) Vertices() int {
	return int(t) + 2
}

// Faces returns the number of faces of the element
func (t Type) Faces() int {
	return t.Vertices()
}

// Quantities returns the number of elastic quantities (stresses and
// particle velocities) of the velocity-stress formulation.
func (t Type) Quantities() int {
	switch t {
	case Line:
		return 2
	case Tria:
		return 5
	}
	return 9
}

// Modes returns the number of modal basis functions of the given order,
// where order is polynomial degree plus one.
func Modes(t Type, order int) int {
	if order <= 0 {
		return 0
	}
	switch t {
	case Line:
		return order
	case Tria:
		return order * (order + 1) / 2
	}
	return order * (order + 1) * (order + 2) / 6
}

// ModesCK returns the number of modes that are populated in time derivative
// `level` of the Cauchy–Kowalevski procedure. Every derivative reduces the
// polynomial degree by one.
func ModesCK(t Type, order, level int) int {
	if level < 0 {
		level = 0
	}
	return Modes(t, order-level)
}
