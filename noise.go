// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import (
	"math"
	"math/rand"
	"sync"
)

const noiseTableDim = 10

// DefaultNoiseSeed seeds the table returned by DefaultNoiseTable.
const DefaultNoiseSeed int64 = 0x5eed

// NoiseTable is the immutable lattice of random vectors sampled by the noise
// opcode. Every lane of every entry is in [-1, 1).
type NoiseTable struct {
	cells [noiseTableDim][noiseTableDim][noiseTableDim]Vector
}

// NewNoiseTable builds a table from seed.
func NewNoiseTable(seed int64) *NoiseTable {
	r := rand.New(rand.NewSource(seed))
	t := &NoiseTable{}
	for z := 0; z < noiseTableDim; z++ {
		for y := 0; y < noiseTableDim; y++ {
			for x := 0; x < noiseTableDim; x++ {
				t.cells[x][y][z] = Vector{
					r.Float32()*2 - 1,
					r.Float32()*2 - 1,
					r.Float32()*2 - 1,
					r.Float32()*2 - 1,
				}
			}
		}
	}
	return t
}

var (
	defaultNoiseOnce  sync.Once
	defaultNoiseTable *NoiseTable
)

// DefaultNoiseTable returns the table shared by VMs created without one. It
// is built on first use.
func DefaultNoiseTable() *NoiseTable {
	defaultNoiseOnce.Do(func() {
		defaultNoiseTable = NewNoiseTable(DefaultNoiseSeed)
	})
	return defaultNoiseTable
}

// Cell returns the lattice entry at (x, y, z).
func (t *NoiseTable) Cell(x, y, z int) Vector {
	return t.cells[x][y][z]
}

// Sample evaluates the noise at p. The xyz lanes of p pick a lattice cell
// after scaling by 0.1 and wrapping into [0, 8); the result is the trilinear
// blend of the eight surrounding entries.
func (t *NoiseTable) Sample(p Vector) Vector {
	const scale = 0.2 * 0.5
	var coords Vector
	for i := range coords {
		c := math.Mod(math.Abs(float64(p[i]*scale)), 8)
		if math.IsNaN(c) {
			c = 0
		}
		coords[i] = float32(c)
	}
	cx, cy, cz := int(coords[0]), int(coords[1]), int(coords[2])
	frac := vsub(coords, vtrunc(coords))

	blend := func(a, b Vector, alpha float32) Vector {
		return vmad(a, Splat(alpha), vmul(b, Splat(1-alpha)))
	}

	ax := frac[0]
	xv1 := blend(t.cells[cx][cy][cz], t.cells[cx+1][cy][cz], ax)
	xv2 := blend(t.cells[cx][cy+1][cz], t.cells[cx+1][cy+1][cz], ax)
	xv3 := blend(t.cells[cx][cy][cz+1], t.cells[cx+1][cy][cz+1], ax)
	xv4 := blend(t.cells[cx][cy+1][cz+1], t.cells[cx+1][cy+1][cz+1], ax)

	ay := frac[1]
	yv1 := blend(xv1, xv2, ay)
	yv2 := blend(xv3, xv4, ay)

	return blend(yv1, yv2, frac[2])
}
