// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package tests holds helpers shared by the tests of vecvm packages.
package tests

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/vecvm"
)

// Splats returns one splatted vector per value.
func Splats(values ...float32) []vecvm.Vector {
	out := make([]vecvm.Vector, len(values))
	for i, v := range values {
		out[i] = vecvm.Splat(v)
	}
	return out
}

// Ramp returns n vectors where every lane of vector i is start+i*step.
func Ramp(n int, start, step float32) []vecvm.Vector {
	out := make([]vecvm.Vector, n)
	for i := range out {
		out[i] = vecvm.Splat(start + float32(i)*step)
	}
	return out
}

// Sdump returns a readable dump of vectors, one per line with its index.
func Sdump(buf []vecvm.Vector) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "([]vecvm.Vector len=%d) {", len(buf))
	if len(buf) == 0 {
		sb.WriteString("}\n")
		return sb.String()
	}
	sb.WriteString("\n")
	for i, v := range buf {
		fmt.Fprintf(&sb, "  #%d %s\n", i, v)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// RequireVectorsInDelta fails t unless every lane of got is within delta of
// the same lane of want. NaN lanes must be NaN on both sides.
func RequireVectorsInDelta(t testing.TB, want, got []vecvm.Vector, delta float64) {
	t.Helper()
	require.Equal(t, len(want), len(got), "length mismatch\nwant:%s\ngot:%s",
		Sdump(want), Sdump(got))
	for i := range want {
		for lane := range want[i] {
			w, g := float64(want[i][lane]), float64(got[i][lane])
			if math.IsNaN(w) && math.IsNaN(g) {
				continue
			}
			if math.IsInf(w, 0) && w == g {
				continue
			}
			require.InDelta(t, w, g, delta, "vector #%d lane %d\nwant:%s\ngot:%s",
				i, lane, Sdump(want), Sdump(got))
		}
	}
}

// RequireVectorInDelta is RequireVectorsInDelta for a single vector.
func RequireVectorInDelta(t testing.TB, want, got vecvm.Vector, delta float64) {
	t.Helper()
	RequireVectorsInDelta(t, []vecvm.Vector{want}, []vecvm.Vector{got}, delta)
}
