package vecvm_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/vecvm/tests"

	. "github.com/ozanh/vecvm"
)

// runKernel runs op over one instance with every source read from the
// constant table and returns the destination.
func runKernel(t *testing.T, op Opcode, srcs ...Vector) Vector {
	t.Helper()
	operands := make([]Operand, len(srcs))
	for i := range srcs {
		operands[i] = Const(i)
	}
	b := NewBuilder(OpcodeNames[op])
	b.Emit(op, Temp(3), operands...).
		Emit(OpOutput, b.Output("result"), Temp(3)).
		Done()
	p, err := b.Program()
	require.NoError(t, err)

	out := NewBuffer(1)
	require.NoError(t, Exec(p.Code, ExecArgs{
		Outputs:      [][]Vector{out},
		Constants:    srcs,
		NumInstances: 1,
	}))
	return out[0]
}

func TestKernels(t *testing.T) {
	a := Vec(1, -2, 3, 0.5)
	b := Vec(4, 5, -6, 2)
	c := Vec(0.5, 0.5, 0.5, 0.5)

	testCases := []struct {
		op   Opcode
		srcs []Vector
		want Vector
	}{
		{OpAdd, []Vector{a, b}, Vec(5, 3, -3, 2.5)},
		{OpSub, []Vector{a, b}, Vec(-3, -7, 9, -1.5)},
		{OpMul, []Vector{a, b}, Vec(4, -10, -18, 1)},
		{OpDiv, []Vector{a, b}, Vec(0.25, -0.4, -0.5, 0.25)},
		{OpMin, []Vector{a, b}, Vec(1, -2, -6, 0.5)},
		{OpMax, []Vector{a, b}, Vec(4, 5, 3, 2)},
		{OpPow, []Vector{Vec(2, 9, 4, 1), Vec(3, 0.5, -1, 7)}, Vec(8, 3, 0.25, 1)},
		{OpMad, []Vector{a, b, c}, Vec(4.5, -9.5, -17.5, 1.5)},
		{OpLerp, []Vector{Vec(0, 10, -4, 1), Vec(4, 20, 4, 1), Vec(0.25, 0.5, 1, 0)},
			Vec(1, 15, 4, 1)},
		{OpClamp, []Vector{Vec(-5, 0.5, 5, 1), Splat(0), Splat(1)}, Vec(0, 0.5, 1, 1)},
		{OpDot, []Vector{Vec(1, 2, 3, 4), Vec(5, 6, 7, 8)}, Splat(70)},
		{OpCross, []Vector{Vec(1, 0, 0, 9), Vec(0, 1, 0, 9)}, Vec(0, 0, 1, 0)},
		{OpCross, []Vector{Vec(1, 2, 3, 0), Vec(4, 5, 6, 0)}, Vec(-3, 6, -3, 0)},
		{OpNormalize, []Vector{Vec(3, 4, 0, 0)}, Vec(0.6, 0.8, 0, 0)},
		{OpLength, []Vector{Vec(3, 4, 0, 0)}, Splat(5)},
		{OpSelect, []Vector{Vec(1, -1, 0, 0.5), Vec(1, 2, 3, 4), Vec(5, 6, 7, 8)},
			Vec(1, 6, 7, 4)},
		{OpRcp, []Vector{Vec(4, -2, 0.5, 1)}, Vec(0.25, -0.5, 2, 1)},
		{OpRsq, []Vector{Vec(4, 16, 0.25, 1)}, Vec(0.5, 0.25, 2, 1)},
		{OpSqrt, []Vector{Vec(9, 16, 0.25, 0)}, Vec(3, 4, 0.5, 0)},
		{OpNeg, []Vector{a}, Vec(-1, 2, -3, -0.5)},
		{OpAbs, []Vector{a}, Vec(1, 2, 3, 0.5)},
		{OpExp, []Vector{Vec(0, 1, -1, 2)},
			Vec(1, float32(math.E), float32(1/math.E), float32(math.E*math.E))},
		{OpExp2, []Vector{Vec(0, 3, -1, 0.5)}, Vec(1, 8, 0.5, float32(math.Sqrt2))},
		{OpLog, []Vector{Vec(1, float32(math.E), 10, 0.5)},
			Vec(0, 1, float32(math.Log(10)), float32(math.Log(0.5)))},
		{OpLog2, []Vector{Vec(1, 8, 0.25, 1024)}, Vec(0, 3, -2, 10)},
		{OpCeil, []Vector{Vec(1.2, -1.2, 3, -0.5)}, Vec(2, -1, 3, 0)},
		{OpFloor, []Vector{Vec(1.2, -1.2, 3, -0.5)}, Vec(1, -2, 3, -1)},
		{OpTrunc, []Vector{Vec(1.7, -1.7, 3, -0.5)}, Vec(1, -1, 3, 0)},
		{OpFrac, []Vector{Vec(1.25, -1.25, 3, 0.5)}, Vec(0.25, -0.25, 0, 0.5)},
		{OpFmod, []Vector{Vec(5.5, -5.5, 7, 1), Vec(2, 2, -3, 4)}, Vec(1.5, -1.5, 1, 1)},
		{OpSign, []Vector{Vec(2, -2, 0, -0.001)}, Vec(1, -1, 1, -1)},
		{OpStep, []Vector{Vec(2, -2, 0, -0.001)}, Vec(1, 0, 1, 0)},
		{OpSin, []Vector{Vec(0, 0.25, 0.5, 0.75)}, Vec(0, 1, 0, -1)},
		{OpCos, []Vector{Vec(0, 0.25, 0.5, 1)}, Vec(1, 0, -1, 1)},
		{OpTan, []Vector{Vec(0, 0.125, -0.125, 0.5)}, Vec(0, 1, -1, 0)},
		{OpASin, []Vector{Vec(0, 1, -1, 0.5)}, Vec(0, 0.25, -0.25, 1.0/12)},
		{OpACos, []Vector{Vec(1, 0, -1, 0.5)}, Vec(0, 0.25, 0.5, 1.0/6)},
		{OpATan, []Vector{Vec(0, 1, -1, 0)}, Vec(0, 0.125, -0.125, 0)},
		{OpATan2, []Vector{Vec(1, 0, 1, -1), Vec(0, 1, 1, 0)},
			Vec(0.25, 0, 0.125, -0.25)},
		{OpSplatX, []Vector{Vec(1, 2, 3, 4)}, Splat(1)},
		{OpSplatY, []Vector{Vec(1, 2, 3, 4)}, Splat(2)},
		{OpSplatZ, []Vector{Vec(1, 2, 3, 4)}, Splat(3)},
		{OpSplatW, []Vector{Vec(1, 2, 3, 4)}, Splat(4)},
		{OpCompose, []Vector{Vec(1, 2, 3, 4), Vec(5, 6, 7, 8), Vec(9, 10, 11, 12),
			Vec(13, 14, 15, 16)}, Vec(1, 6, 11, 16)},
		{OpComposeX, []Vector{Vec(1, 2, 3, 4), Vec(5, 6, 7, 8), Vec(9, 10, 11, 12),
			Vec(13, 14, 15, 16)}, Vec(1, 5, 9, 13)},
		{OpComposeY, []Vector{Vec(1, 2, 3, 4), Vec(5, 6, 7, 8), Vec(9, 10, 11, 12),
			Vec(13, 14, 15, 16)}, Vec(2, 6, 10, 14)},
		{OpComposeZ, []Vector{Vec(1, 2, 3, 4), Vec(5, 6, 7, 8), Vec(9, 10, 11, 12),
			Vec(13, 14, 15, 16)}, Vec(3, 7, 11, 15)},
		{OpComposeW, []Vector{Vec(1, 2, 3, 4), Vec(5, 6, 7, 8), Vec(9, 10, 11, 12),
			Vec(13, 14, 15, 16)}, Vec(4, 8, 12, 16)},
		{OpEaseIn, []Vector{Splat(0), Splat(1), Vec(-1, 0.5, 2, 0.25)},
			Vec(0, 0.5, 1, 0.103515625)},
		{OpEaseIn, []Vector{Splat(2), Splat(4), Vec(2, 3, 4, 5)}, Vec(0, 0.5, 1, 1)},
		{OpEaseInOut, []Vector{Vec(0, 0.5, 1, 0.25)},
			Vec(0.0004, 1, 0.0004, 0.9604*0.0625-1.96*0.25+1)},
		{OpOutput, []Vector{a}, a},
	}
	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%s%v", OpcodeNames[tc.op], tc.srcs), func(t *testing.T) {
			tests.RequireVectorInDelta(t, tc.want, runKernel(t, tc.op, tc.srcs...), 1e-5)
		})
	}
}

func TestKernelLessThanExact(t *testing.T) {
	values := []float32{
		-math.MaxFloat32, -1e20, -3, -1, -0.5, -1e-30, 0, 1e-30, 0.5, 1, 2,
		1e20, math.MaxFloat32,
	}
	for _, x := range values {
		for _, y := range values {
			got := runKernel(t, OpLessThan, Splat(x), Splat(y))
			want := float32(0)
			if x < y {
				want = 1
			}
			require.Equal(t, Splat(want), got, "lessthan(%g, %g)", x, y)
		}
	}
	got := runKernel(t, OpLessThan, Vec(1, 2, -3, 0), Vec(2, 2, -4, 0))
	require.Equal(t, Vec(1, 0, 0, 0), got)

	// subnormal differences
	const tiny = 1.4e-45
	got = runKernel(t, OpLessThan, Vec(0, 0, tiny, 1e-40), Vec(tiny, 1e-40, 0, 0))
	require.Equal(t, Vec(1, 1, 0, 0), got)

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))
	got = runKernel(t, OpLessThan, Vec(nan, 0, nan, inf), Vec(0, nan, nan, inf))
	require.Equal(t, Splat(0), got)
	got = runKernel(t, OpLessThan, Vec(-inf, 0, -inf, 1), Vec(inf, inf, 0, inf))
	require.Equal(t, Splat(1), got)
}

func TestKernelSelectComponentwise(t *testing.T) {
	masks := []float32{-2, -1e-20, 0, 1e-20, 3}
	for _, m := range masks {
		got := runKernel(t, OpSelect, Vec(m, -m, m, 0), Splat(10), Splat(20))
		var want Vector
		for i, lane := range [...]float32{m, -m, m, 0} {
			if lane > 0 {
				want[i] = 10
			} else {
				want[i] = 20
			}
		}
		require.Equal(t, want, got, "mask %g", m)
	}
}

func TestKernelTrigRoundTrip(t *testing.T) {
	for x := float32(-0.25); x <= 0.25; x += 1.0 / 64 {
		s := runKernel(t, OpSin, Splat(x))
		back := runKernel(t, OpASin, s)
		tests.RequireVectorInDelta(t, Splat(x), back, 1e-5)

		// a full turn is the identity
		tests.RequireVectorInDelta(t, s, runKernel(t, OpSin, Splat(x+1)), 1e-5)
	}
}
