package sim_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/vecvm"
	"github.com/ozanh/vecvm/asm"
	. "github.com/ozanh/vecvm/sim"
	"github.com/ozanh/vecvm/tests"
)

func mustParse(t *testing.T, src string) *vecvm.Program {
	t.Helper()
	p, err := asm.Parse([]byte(src))
	require.NoError(t, err)
	return p
}

func TestTickDoubleBuffering(t *testing.T) {
	e := NewEmitter("counter", 8, "x")
	e.Defaults = map[string]vecvm.Vector{"x": vecvm.Splat(0)}
	e.AddScript(&Script{
		Name: "inc",
		Program: mustParse(t, `
.input x
.output x
.const one 1
add o0, i0, c0
done`),
	})
	require.Equal(t, 3, e.Spawn(3))

	sys := NewSystem(Options{ChunkSize: 2})
	require.NoError(t, sys.AddEmitter(e))
	for tick := 1; tick <= 3; tick++ {
		require.NoError(t, sys.Tick(context.Background()))
		require.Equal(t, tests.Splats(float32(tick), float32(tick), float32(tick)),
			e.Attribute("x"))
	}
	require.Equal(t, 3, sys.Ticks())
}

func TestTickUpdateReadsPreviousTick(t *testing.T) {
	e := NewEmitter("swap", 4, "x", "y")
	e.Defaults = map[string]vecvm.Vector{"x": vecvm.Splat(1)}
	e.AddScript(&Script{
		Name: "y-from-x",
		Program: mustParse(t, `
.input x
.output y
.const ten 10
add o0, i0, c0
done`),
	})
	e.AddScript(&Script{
		Name: "x-from-y",
		Program: mustParse(t, `
.input y
.output x
output o0, i0
done`),
	})
	e.Spawn(2)

	sys := NewSystem(Options{})
	require.NoError(t, sys.AddEmitter(e))
	require.NoError(t, sys.Tick(context.Background()))
	require.Equal(t, tests.Splats(0, 0), e.Attribute("x"))
	require.Equal(t, tests.Splats(11, 11), e.Attribute("y"))
}

func TestTickSharedDataAcrossEmitters(t *testing.T) {
	hits := NewDataSet("hits", 8, "x")

	src := NewEmitter("source", 4, "x")
	src.AddScript(&Script{
		Name: "emit",
		Program: mustParse(t, `
.input x
.const one 1
.dataset hits x
acquireindex t0, s0, c0
shareddatawrite s0, v0, t0, i0
done`),
	})
	src.Spawn(4)
	copy(src.Attribute("x"), tests.Splats(1, 2, 3, 4))

	dst := NewEmitter("sink", 16, "x")
	dst.SpawnFrom = "hits"
	dst.AddScript(&Script{
		Name:  "receive",
		Stage: StageSpawn,
		Program: mustParse(t, `
.output x
.const one 1
.dataset hits x
consumeindex t0, s0, c0
sub t1, t0, c0
shareddataread o0, s0, v0, t1
done`),
	})

	sys := NewSystem(Options{ChunkSize: 3})
	require.NoError(t, sys.AddDataSet(hits))
	require.NoError(t, sys.AddEmitter(src))
	require.NoError(t, sys.AddEmitter(dst))

	require.NoError(t, sys.Tick(context.Background()))
	require.Equal(t, 4, dst.NumInstances())
	require.Equal(t, tests.Splats(4, 3, 2, 1), dst.Attribute("x"))
	require.Equal(t, 0, hits.View.Len())

	require.NoError(t, sys.Tick(context.Background()))
	require.Equal(t, 8, dst.NumInstances())
	require.Equal(t, tests.Splats(4, 3, 2, 1, 4, 3, 2, 1), dst.Attribute("x"))
	require.Equal(t, 4, src.NumInstances())
}

func TestTickEvents(t *testing.T) {
	hits := NewDataSet("hits", 2, "x")
	src := NewEmitter("source", 4, "x")
	src.Defaults = map[string]vecvm.Vector{"x": vecvm.Splat(7)}
	src.AddScript(&Script{
		Name: "emit",
		Program: mustParse(t, `
.input x
.const one 1
.dataset hits x
acquireindex t0, s0, c0
shareddatawrite s0, v0, t0, i0
done`),
	})
	src.Spawn(3)

	sys := NewSystem(Options{})
	require.NoError(t, sys.AddDataSet(hits))
	require.NoError(t, sys.AddEmitter(src))
	require.NoError(t, sys.Tick(context.Background()))
	require.Equal(t, tests.Splats(7, 7), hits.Events("x"))
	require.Nil(t, hits.Events("y"))
}

func TestTickAliveAndSpawnCount(t *testing.T) {
	e := NewEmitter("sparks", 8, "life")
	e.Alive = "life"
	e.SpawnCount = 1
	e.Defaults = map[string]vecvm.Vector{"life": vecvm.Splat(2)}
	e.AddScript(&Script{
		Name: "age",
		Program: mustParse(t, `
.input life
.output life
.const one 1
sub o0, i0, c0
done`),
	})
	e.Spawn(3)

	sys := NewSystem(Options{})
	require.NoError(t, sys.AddEmitter(e))

	require.NoError(t, sys.Tick(context.Background()))
	require.Equal(t, tests.Splats(1, 1, 1, 2), e.Attribute("life"))

	require.NoError(t, sys.Tick(context.Background()))
	require.Equal(t, tests.Splats(1, 2), e.Attribute("life"))
}

func TestTickSpawnScriptConstants(t *testing.T) {
	e := NewEmitter("jets", 4, "v")
	e.SpawnCount = 2
	e.AddScript(&Script{
		Name:      "init",
		Stage:     StageSpawn,
		Constants: map[string]vecvm.Vector{"speed": vecvm.Splat(5)},
		Program: mustParse(t, `
.output v
.const speed 1
output o0, c0
done`),
	})
	sys := NewSystem(Options{})
	require.NoError(t, sys.AddEmitter(e))
	require.NoError(t, sys.Run(context.Background(), 3))
	require.Equal(t, tests.Splats(5, 5, 5, 5), e.Attribute("v"))
	require.Equal(t, 4, e.NumInstances())
}

func TestTickParallelEmitters(t *testing.T) {
	sys := NewSystem(Options{Parallel: 2, ChunkSize: 4})
	var emitters []*Emitter
	for i := 0; i < 8; i++ {
		e := NewEmitter(fmt.Sprintf("e%d", i), 32, "x")
		e.Defaults = map[string]vecvm.Vector{"x": vecvm.Splat(float32(i))}
		e.AddScript(&Script{
			Name: "double",
			Program: mustParse(t, `
.input x
.output x
add o0, i0, i0
done`),
		})
		e.Spawn(10)
		require.NoError(t, sys.AddEmitter(e))
		emitters = append(emitters, e)
	}
	require.NoError(t, sys.Run(context.Background(), 2))
	for i, e := range emitters {
		x := e.Attribute("x")
		require.Len(t, x, 10)
		for _, v := range x {
			require.Equal(t, vecvm.Splat(float32(4*i)), v)
		}
	}
}

func TestTickCanceledKeepsState(t *testing.T) {
	e := NewEmitter("p", 4, "x")
	e.Defaults = map[string]vecvm.Vector{"x": vecvm.Splat(1)}
	e.SpawnCount = 1
	e.AddScript(&Script{
		Name:    "inc",
		Program: mustParse(t, ".input x\n.output x\nadd o0, i0, i0\ndone"),
	})
	e.Spawn(2)

	sys := NewSystem(Options{})
	require.NoError(t, sys.AddEmitter(e))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sys.Tick(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, 0, sys.Ticks())
	require.Equal(t, tests.Splats(1, 1), e.Attribute("x"))
}

func TestBindErrors(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(e *Emitter)
		err   string
	}{
		{
			name: "attribute",
			setup: func(e *Emitter) {
				e.AddScript(&Script{Name: "s",
					Program: mustParse(t, ".input y\ndone")})
			},
			err: `unknown attribute "y"`,
		},
		{
			name: "data set",
			setup: func(e *Emitter) {
				e.AddScript(&Script{Name: "s",
					Program: mustParse(t, ".dataset missing x\ndone")})
			},
			err: `unknown data set "missing"`,
		},
		{
			name: "variable order",
			setup: func(e *Emitter) {
				e.AddScript(&Script{Name: "s",
					Program: mustParse(t, ".dataset hits b a\ndone")})
			},
			err: `variable "b" must be at index 0`,
		},
		{
			name: "constant",
			setup: func(e *Emitter) {
				e.AddScript(&Script{Name: "s",
					Constants: map[string]vecvm.Vector{"k": {}},
					Program:   mustParse(t, "done")})
			},
			err: `unknown constant "k"`,
		},
		{
			name:  "spawn from",
			setup: func(e *Emitter) { e.SpawnFrom = "nope" },
			err:   `unknown spawn data set "nope"`,
		},
		{
			name:  "alive",
			setup: func(e *Emitter) { e.Alive = "life" },
			err:   `unknown alive attribute "life"`,
		},
		{
			name: "invalid program",
			setup: func(e *Emitter) {
				e.AddScript(&Script{Name: "s", Program: &vecvm.Program{Code: []byte{0xff}}})
			},
			err: "script s",
		},
		{
			name:  "no program",
			setup: func(e *Emitter) { e.AddScript(&Script{Name: "s"}) },
			err:   "no program",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sys := NewSystem(Options{})
			require.NoError(t, sys.AddDataSet(NewDataSet("hits", 4, "a", "b")))
			e := NewEmitter("p", 4, "x")
			tc.setup(e)
			require.NoError(t, sys.AddEmitter(e))
			err := sys.Tick(context.Background())
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.err)
			require.Contains(t, err.Error(), "emitter p")
		})
	}
}

func TestSystemDuplicates(t *testing.T) {
	sys := NewSystem(Options{})
	require.NoError(t, sys.AddEmitter(NewEmitter("p", 1)))
	require.Error(t, sys.AddEmitter(NewEmitter("p", 1)))
	require.NoError(t, sys.AddDataSet(NewDataSet("d", 1)))
	require.Error(t, sys.AddDataSet(NewDataSet("d", 1)))
	require.NotNil(t, sys.Emitter("p"))
	require.Nil(t, sys.Emitter("q"))
	require.NotNil(t, sys.DataSet("d"))
}

func TestEmitterSpawnCapacity(t *testing.T) {
	e := NewEmitter("p", 4, "x")
	require.Equal(t, 3, e.Spawn(3))
	require.Equal(t, 1, e.Spawn(3))
	require.Equal(t, 0, e.Spawn(1))
	require.Equal(t, 4, e.NumInstances())
	require.Nil(t, e.Attribute("y"))
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("spawn")
	require.NoError(t, err)
	require.Equal(t, StageSpawn, s)
	require.Equal(t, "spawn", s.String())
	s, err = ParseStage("")
	require.NoError(t, err)
	require.Equal(t, StageUpdate, s)
	_, err = ParseStage("render")
	require.Error(t, err)
}
