package scenario_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/vecvm"
	"github.com/ozanh/vecvm/asm"
	"github.com/ozanh/vecvm/encoder"
	. "github.com/ozanh/vecvm/scenario"
)

func TestLoadAndRun(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "sparks.toml"))
	require.NoError(t, err)
	require.Equal(t, 2, s.Ticks)
	require.True(t, filepath.IsAbs(s.Dir))

	sys, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sys.Ticks())

	sparks := sys.Emitter("sparks")
	require.Equal(t, "move", sparks.Scripts()[0].Name)
	require.Equal(t, []vecvm.Vector{
		{2, 1, 1, 1},
		{3, 1, 1, 1},
		{4, 1, 1, 1},
	}, sparks.Attribute("position"))

	echoes := sys.Emitter("echoes")
	require.Equal(t, []vecvm.Vector{
		{3, 0, 0, 0},
		{2, 0, 0, 0},
		{1, 0, 0, 0},
		{3.5, 0.5, 0.5, 0.5},
		{2.5, 0.5, 0.5, 0.5},
		{1.5, 0.5, 0.5, 0.5},
	}, echoes.Attribute("position"))
}

func TestProgramImage(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "move.vvm"))
	require.NoError(t, err)
	p, err := asm.Parse(src)
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, encoder.WriteFile(filepath.Join(dir, "move"+ImageExt), p))

	s, err := Decode([]byte(`
ticks = 1

[[emitter]]
name = "p"
capacity = 2
instances = 2
attributes = ["position", "velocity"]

[emitter.defaults]
position = [1.0]
velocity = [0.0, 10.0, 0.0, 0.0]

[[emitter.script]]
file = "move.vvmc"
`))
	require.NoError(t, err)
	s.Dir = dir
	sys, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []vecvm.Vector{{1, 2, 1, 1}, {1, 2, 1, 1}},
		sys.Emitter("p").Attribute("position"))
}

func TestDecodeUnknownKeys(t *testing.T) {
	_, err := Decode([]byte(`
ticks = 1
chunksize = 4

[[emitter]]
name = "p"
colour = "red"
`))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrScenario))
	require.Contains(t, err.Error(), "chunksize")
	require.Contains(t, err.Error(), "emitter.colour")
}

func TestDecodeSyntaxError(t *testing.T) {
	_, err := Decode([]byte("ticks = "))
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.toml"))
	require.Error(t, err)
	require.True(t, errors.Is(err, os.ErrNotExist))
}

func TestBuildErrors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
		err  string
	}{
		{
			name: "no program",
			src: `
[[emitter]]
name = "p"
[[emitter.script]]
name = "s"`,
			err: "no program",
		},
		{
			name: "source and file",
			src: `
[[emitter]]
name = "p"
[[emitter.script]]
name = "s"
source = "done"
file = "s.vvm"`,
			err: "both source and file",
		},
		{
			name: "stage",
			src: `
[[emitter]]
name = "p"
[[emitter.script]]
name = "s"
stage = "render"
source = "done"`,
			err: `unknown stage "render"`,
		},
		{
			name: "vector",
			src: `
[[emitter]]
name = "p"
attributes = ["x"]
[emitter.defaults]
x = [1.0, 2.0]`,
			err: "vector needs 1 or 4 lanes",
		},
		{
			name: "capacity",
			src: `
[[emitter]]
name = "p"
capacity = 1
instances = 2`,
			err: "exceed capacity",
		},
		{
			name: "init",
			src: `
[[emitter]]
name = "p"
capacity = 2
instances = 1
attributes = ["x"]
[emitter.init]
x = [[1.0], [2.0]]`,
			err: "2 values for 1 instances",
		},
		{
			name: "data set size",
			src: `
[[dataset]]
name = "d"`,
			err: "size must be positive",
		},
		{
			name: "data set too large",
			src: `
[[dataset]]
name = "d"
size = 16777217`,
			err: "size exceeds 16777216",
		},
		{
			name: "duplicate emitter",
			src: `
[[emitter]]
name = "p"
[[emitter]]
name = "p"`,
			err: `duplicate emitter "p"`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := Decode([]byte(tc.src))
			require.NoError(t, err)
			_, err = s.Build()
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrScenario), "%v", err)
			require.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestBuildBindError(t *testing.T) {
	s, err := Decode([]byte(`
[[emitter]]
name = "p"
attributes = ["x"]
[[emitter.script]]
name = "s"
source = """
.input y
done
"""`))
	require.NoError(t, err)
	_, err = s.Build()
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown attribute "y"`)
}

func TestVector(t *testing.T) {
	v, err := Vector([]float32{3})
	require.NoError(t, err)
	require.Equal(t, vecvm.Splat(3), v)
	v, err = Vector([]float32{1, 2, 3, 4})
	require.NoError(t, err)
	require.Equal(t, vecvm.Vector{1, 2, 3, 4}, v)
	_, err = Vector(nil)
	require.True(t, errors.Is(err, ErrScenario))
}
