// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package orientation holds the quaternion math used to derive headings and
// the Euler pose helpers shared by the sample producers.
//
// Quaternions are laid out as (w, x, y, z) everywhere in this module,
// including the wire encoding of imu.Sample.Orientation.
package orientation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// degenerateNorm is the norm below which an averaged quaternion cannot be
// normalised.
const degenerateNorm = 1e-9

// forward is the device axis whose horizontal direction defines the heading
// (device +X, as a pure quaternion).
var forward = quat.Number{Imag: 1}

// Quaternion is a rotation in (w, x, y, z) order. q and -q represent the
// same rotation.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Identity is the no-rotation quaternion.
var Identity = Quaternion{W: 1}

// DegenerateInputError reports quaternion input whose average has no
// direction.
type DegenerateInputError struct {
	Count int
	Norm  float64
}

func (e *DegenerateInputError) Error() string {
	if e.Count == 0 {
		return "orientation: cannot average an empty quaternion set"
	}
	return fmt.Sprintf("orientation: average of %d quaternions is degenerate (norm %.3g)", e.Count, e.Norm)
}

// FromFloat32 converts a wire-order [w, x, y, z] array.
func FromFloat32(v [4]float32) Quaternion {
	return Quaternion{W: float64(v[0]), X: float64(v[1]), Y: float64(v[2]), Z: float64(v[3])}
}

// Float32 returns the quaternion in wire order [w, x, y, z].
func (q Quaternion) Float32() [4]float32 {
	return [4]float32{float32(q.W), float32(q.X), float32(q.Y), float32(q.Z)}
}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{W: n.Real, X: n.Imag, Y: n.Jmag, Z: n.Kmag}
}

// Norm returns the Euclidean length of the quaternion.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// Normalize returns q scaled to unit length. The zero quaternion is
// returned unchanged.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n == 0 {
		return q
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Neg returns -q, the antipodal representation of the same rotation.
func (q Quaternion) Neg() Quaternion {
	return fromNumber(quat.Scale(-1, q.number()))
}

// Scale multiplies every component by f.
func (q Quaternion) Scale(f float64) Quaternion {
	return fromNumber(quat.Scale(f, q.number()))
}

// Conj returns the conjugate, the inverse rotation of a unit quaternion.
func (q Quaternion) Conj() Quaternion {
	return fromNumber(quat.Conj(q.number()))
}

// Dot returns the 4D dot product of a and b.
func Dot(a, b Quaternion) float64 {
	return a.W*b.W + a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// Rotate applies the sandwich product q ⊗ v ⊗ q* to the pure quaternion v.
// The conjugate stands in for the inverse, so q is expected to be unit
// length; a non-unit q scales the result by |q|².
func (q Quaternion) Rotate(v Quaternion) Quaternion {
	n := q.number()
	return fromNumber(quat.Mul(quat.Mul(n, v.number()), quat.Conj(n)))
}

// GlobalHeading returns the heading of the device forward axis in degrees,
// in (-180, 180]. It depends only on the rotation: scaling q by any
// non-zero factor leaves it unchanged.
func GlobalHeading(q Quaternion) float64 {
	r := q.Rotate(fromNumber(forward))
	return WrapDegrees(degrees(math.Atan2(r.Y, r.X)))
}

// Average returns the normalised mean of qs. Every quaternion is first
// moved into the hemisphere of qs[0] so that q and -q reinforce instead of
// cancelling.
func Average(qs []Quaternion) (Quaternion, error) {
	if len(qs) == 0 {
		return Quaternion{}, &DegenerateInputError{}
	}

	weight := 1 / float64(len(qs))
	first := qs[0].number()
	sum := quat.Scale(weight, first)

	for _, q := range qs[1:] {
		n := q.number()
		if Dot(q, qs[0]) < 0 {
			n = quat.Scale(-1, n)
		}
		sum = quat.Add(sum, quat.Scale(weight, n))
	}

	norm := quat.Abs(sum)
	if norm < degenerateNorm || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return Quaternion{}, &DegenerateInputError{Count: len(qs), Norm: norm}
	}
	return fromNumber(quat.Scale(1/norm, sum)), nil
}

// WrapDegrees maps an angle into (-180, 180].
func WrapDegrees(deg float64) float64 {
	r := math.Mod(deg, 360)
	if r <= -180 {
		r += 360
	} else if r > 180 {
		r -= 360
	}
	return r
}

// AngularDistance returns the smallest angle between two headings, in
// [0, 180].
func AngularDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 360)
	if d > 180 {
		d = 360 - d
	}
	return d
}
