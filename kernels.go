// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import "math"

// Kernels compute one destination vector from their sources. They are
// applied to every instance of a chunk by the loops in dispatch.go.
type (
	unaryKernel      func(a Vector) Vector
	binaryKernel     func(a, b Vector) Vector
	ternaryKernel    func(a, b, c Vector) Vector
	quaternaryKernel func(a, b, c, d Vector) Vector
)

// Angles are in turns: one turn is 2π radians.
const turn = 2 * math.Pi

func kernelAdd(a, b Vector) Vector { return vadd(a, b) }
func kernelSub(a, b Vector) Vector { return vsub(a, b) }
func kernelMul(a, b Vector) Vector { return vmul(a, b) }
func kernelDiv(a, b Vector) Vector { return vdiv(a, b) }
func kernelMin(a, b Vector) Vector { return vmin(a, b) }
func kernelMax(a, b Vector) Vector { return vmax(a, b) }

func kernelMad(a, b, c Vector) Vector { return vmad(a, b, c) }

func kernelLerp(a, b, alpha Vector) Vector {
	return vmad(b, alpha, vmul(a, vsub(Splat(1), alpha)))
}

func kernelRcp(a Vector) Vector { return vdiv(Splat(1), a) }

func kernelRsq(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return 1 / math.Sqrt(x) })
}

func kernelSqrt(a Vector) Vector { return mapVec64(a, math.Sqrt) }

func kernelNeg(a Vector) Vector { return Vector{-a[0], -a[1], -a[2], -a[3]} }

func kernelAbs(a Vector) Vector { return mapVec64(a, math.Abs) }
func kernelExp(a Vector) Vector { return mapVec64(a, math.Exp) }
func kernelExp2(a Vector) Vector { return mapVec64(a, math.Exp2) }
func kernelLog(a Vector) Vector { return mapVec64(a, math.Log) }
func kernelLog2(a Vector) Vector { return mapVec64(a, math.Log2) }

func kernelClamp(a, lo, hi Vector) Vector { return vmin(vmax(a, lo), hi) }

func kernelSin(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return math.Sin(x * turn) })
}

func kernelCos(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return math.Cos(x * turn) })
}

func kernelTan(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return math.Tan(x * turn) })
}

func kernelASin(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return math.Asin(x) / turn })
}

func kernelACos(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return math.Acos(x) / turn })
}

func kernelATan(a Vector) Vector {
	return mapVec64(a, func(x float64) float64 { return math.Atan(x) / turn })
}

func kernelATan2(a, b Vector) Vector {
	return zipVec64(a, b, func(y, x float64) float64 { return math.Atan2(y, x) / turn })
}

func kernelCeil(a Vector) Vector  { return mapVec64(a, math.Ceil) }
func kernelFloor(a Vector) Vector { return mapVec64(a, math.Floor) }
func kernelTrunc(a Vector) Vector { return vtrunc(a) }

// kernelFmod is the truncated remainder; the result takes the sign of a.
func kernelFmod(a, b Vector) Vector { return zipVec64(a, b, math.Mod) }

func kernelFrac(a Vector) Vector { return vsub(a, vtrunc(a)) }

func kernelPow(a, b Vector) Vector { return zipVec64(a, b, math.Pow) }

func kernelSign(a Vector) Vector {
	return mapVec(a, func(x float32) float32 {
		if x >= 0 {
			return 1
		}
		return -1
	})
}

func kernelStep(a Vector) Vector {
	return mapVec(a, func(x float32) float32 {
		if x >= 0 {
			return 1
		}
		return 0
	})
}

func kernelDot(a, b Vector) Vector { return Splat(vdot4(a, b)) }

func kernelCross(a, b Vector) Vector {
	return Vector{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
		0,
	}
}

func kernelLength(a Vector) Vector {
	return Splat(float32(math.Sqrt(float64(vdot4(a, a)))))
}

func kernelNormalize(a Vector) Vector {
	return vmul(a, Splat(float32(1/math.Sqrt(float64(vdot4(a, a))))))
}

// kernelLessThan saturates (b-a)*BigNumber*BigNumber into [0, 1], giving
// exactly 1 when a < b and exactly 0 otherwise. Scaling twice lifts
// subnormal differences past one; a NaN difference is 0.
func kernelLessThan(a, b Vector) Vector {
	t := vmul(vmul(vsub(b, a), Splat(BigNumber)), Splat(BigNumber))
	for i, x := range t {
		if x != x {
			t[i] = 0
		}
	}
	return vmax(vmin(t, Splat(1)), Splat(0))
}

func kernelSelect(mask, a, b Vector) Vector {
	var r Vector
	for i := range r {
		if mask[i] > 0 {
			r[i] = a[i]
		} else {
			r[i] = b[i]
		}
	}
	return r
}

// kernelEaseIn is the smootherstep of x between a and b, evaluated per lane.
func kernelEaseIn(a, b, x Vector) Vector {
	t := vmax(vmin(vdiv(vsub(x, a), vsub(b, a)), Splat(1)), Splat(0))
	t3 := vmul(vmul(t, t), t)
	p := vsub(vmul(t, Splat(6)), Splat(15))
	p = vadd(vmul(t, p), Splat(10))
	return vmul(t3, p)
}

// kernelEaseInOut runs smoothly 0 -> 1 -> 0 as x goes 0 -> 0.5 -> 1.
func kernelEaseInOut(a Vector) Vector {
	t := vsub(vmul(a, Splat(2)), Splat(1))
	t2 := vmul(t, t)
	r := vsub(vmul(t2, Splat(0.9604)), Splat(1.96))
	return vadd(vmul(r, t2), Splat(1))
}

func kernelOutput(a Vector) Vector { return a }

func splatKernel(component int) unaryKernel {
	return func(a Vector) Vector { return Splat(a[component]) }
}

func composeKernel(c0, c1, c2, c3 int) quaternaryKernel {
	return func(a, b, c, d Vector) Vector {
		return Vector{a[c0], b[c1], c[c2], d[c3]}
	}
}

var (
	kernelSplatX = splatKernel(0)
	kernelSplatY = splatKernel(1)
	kernelSplatZ = splatKernel(2)
	kernelSplatW = splatKernel(3)

	kernelCompose  = composeKernel(0, 1, 2, 3)
	kernelComposeX = composeKernel(0, 0, 0, 0)
	kernelComposeY = composeKernel(1, 1, 1, 1)
	kernelComposeZ = composeKernel(2, 2, 2, 2)
	kernelComposeW = composeKernel(3, 3, 3, 3)
)
