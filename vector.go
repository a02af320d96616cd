// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import (
	"fmt"
	"math"
)

// Vector is a 4 lane register value. One Vector holds one attribute of one
// instance.
type Vector [ElementsPerVector]float32

// Splat returns a Vector with v in every lane.
func Splat(v float32) Vector {
	return Vector{v, v, v, v}
}

// Vec returns a Vector from its lanes.
func Vec(x, y, z, w float32) Vector {
	return Vector{x, y, z, w}
}

func (v Vector) String() string {
	return fmt.Sprintf("(%g, %g, %g, %g)", v[0], v[1], v[2], v[3])
}

// NewBuffer returns a zeroed buffer of n vectors.
func NewBuffer(n int) []Vector {
	return make([]Vector, n)
}

// Lanes flattens vectors into their float lanes.
func Lanes(buf []Vector) []float32 {
	out := make([]float32, 0, len(buf)*ElementsPerVector)
	for i := range buf {
		out = append(out, buf[i][:]...)
	}
	return out
}

func mapVec(a Vector, fn func(float32) float32) Vector {
	return Vector{fn(a[0]), fn(a[1]), fn(a[2]), fn(a[3])}
}

func mapVec64(a Vector, fn func(float64) float64) Vector {
	return Vector{
		float32(fn(float64(a[0]))),
		float32(fn(float64(a[1]))),
		float32(fn(float64(a[2]))),
		float32(fn(float64(a[3]))),
	}
}

func zipVec64(a, b Vector, fn func(x, y float64) float64) Vector {
	return Vector{
		float32(fn(float64(a[0]), float64(b[0]))),
		float32(fn(float64(a[1]), float64(b[1]))),
		float32(fn(float64(a[2]), float64(b[2]))),
		float32(fn(float64(a[3]), float64(b[3]))),
	}
}

func vadd(a, b Vector) Vector {
	return Vector{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]}
}

func vsub(a, b Vector) Vector {
	return Vector{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]}
}

func vmul(a, b Vector) Vector {
	return Vector{a[0] * b[0], a[1] * b[1], a[2] * b[2], a[3] * b[3]}
}

func vdiv(a, b Vector) Vector {
	return Vector{a[0] / b[0], a[1] / b[1], a[2] / b[2], a[3] / b[3]}
}

func vmad(a, b, c Vector) Vector {
	return Vector{
		a[0]*b[0] + c[0],
		a[1]*b[1] + c[1],
		a[2]*b[2] + c[2],
		a[3]*b[3] + c[3],
	}
}

func vmin(a, b Vector) Vector {
	return Vector{fmin(a[0], b[0]), fmin(a[1], b[1]), fmin(a[2], b[2]), fmin(a[3], b[3])}
}

func vmax(a, b Vector) Vector {
	return Vector{fmax(a[0], b[0]), fmax(a[1], b[1]), fmax(a[2], b[2]), fmax(a[3], b[3])}
}

func vdot4(a, b Vector) float32 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] + a[3]*b[3]
}

func vtrunc(a Vector) Vector {
	return mapVec64(a, math.Trunc)
}

func fmin(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func fmax(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
