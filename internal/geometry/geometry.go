// SPDX-License-Identifier: MIT

// Package geometry provides the planar primitives of a listening area:
// points, the boundary polygon and its ray-casting containment test.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrDegeneratePolygon is returned when a boundary has fewer than three vertices.
var ErrDegeneratePolygon = errors.New("polygon needs at least 3 vertices")

// Point is a position in metres. It is comparable and used as a map key
// to identify microphones.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Pt is shorthand for Point{x, y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm2 returns the squared distance of p from the origin.
func (p Point) Norm2() float64 {
	return p.X*p.X + p.Y*p.Y
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

func (p Point) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", p.X, p.Y)
}

// Polygon is a simple closed shape; the last vertex connects back to the
// first.
type Polygon struct {
	vertices []Point
}

// NewPolygon copies vertices into a Polygon.
func NewPolygon(vertices []Point) (*Polygon, error) {
	if len(vertices) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrDegeneratePolygon, len(vertices))
	}
	v := make([]Point, len(vertices))
	copy(v, vertices)
	return &Polygon{vertices: v}, nil
}

// Vertices returns a copy of the boundary vertices.
func (pg *Polygon) Vertices() []Point {
	v := make([]Point, len(pg.vertices))
	copy(v, pg.vertices)
	return v
}

// boundaryTolerance is how far, in metres, a point may sit from an edge and
// still count as on it.
const boundaryTolerance = 1e-9

// Contains reports whether p lies inside the polygon or on its boundary.
// Boundary points are matched first; the rest use ray casting, where a
// horizontal ray from p toggles the parity for every edge it crosses to
// the left of p. Horizontal edges never cross the ray and are skipped,
// which also avoids the division by zero in the intersection.
func (pg *Polygon) Contains(p Point) bool {
	inside := false
	n := len(pg.vertices)
	for i := range n {
		a := pg.vertices[i]
		b := pg.vertices[(i+1)%n]
		if onSegment(p, a, b) {
			return true
		}
		if a.Y == b.Y {
			continue
		}
		if (p.Y < a.Y) == (p.Y < b.Y) {
			continue
		}
		xCross := a.X + (p.Y-a.Y)*(b.X-a.X)/(b.Y-a.Y)
		if p.X < xCross {
			inside = !inside
		}
	}
	return inside
}

// onSegment reports whether p lies on the closed segment ab.
func onSegment(p, a, b Point) bool {
	ab := b.Sub(a)
	ap := p.Sub(a)
	length := math.Sqrt(ab.Norm2())
	if length == 0 {
		return p.Distance(a) <= boundaryTolerance
	}
	if math.Abs(ab.X*ap.Y-ab.Y*ap.X)/length > boundaryTolerance {
		return false
	}
	t := (ap.X*ab.X + ap.Y*ab.Y) / ab.Norm2()
	slack := boundaryTolerance / length
	return t >= -slack && t <= 1+slack
}

// Bounds returns the axis-aligned bounding box as (min, max).
func (pg *Polygon) Bounds() (Point, Point) {
	lo, hi := pg.vertices[0], pg.vertices[0]
	for _, v := range pg.vertices[1:] {
		lo.X = math.Min(lo.X, v.X)
		lo.Y = math.Min(lo.Y, v.Y)
		hi.X = math.Max(hi.X, v.X)
		hi.Y = math.Max(hi.Y, v.Y)
	}
	return lo, hi
}

// Diagonal returns the length of the bounding box diagonal, a natural
// scale for position error tolerances.
func (pg *Polygon) Diagonal() float64 {
	lo, hi := pg.Bounds()
	return lo.Distance(hi)
}

// MaxPairDistance returns the largest distance between any two points, 0
// when fewer than two are given.
func MaxPairDistance(points []Point) float64 {
	var best float64
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			if d := points[i].Distance(points[j]); d > best {
				best = d
			}
		}
	}
	return best
}
