// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package scenario loads simulations described in TOML files.
//
//	ticks = 3
//	chunk-size = 128
//
//	[[dataset]]
//	name = "hits"
//	size = 16
//	variables = ["position"]
//
//	[[emitter]]
//	name = "sparks"
//	capacity = 64
//	instances = 2
//	attributes = ["position", "velocity"]
//
//	[emitter.defaults]
//	velocity = [0.0, 1.0, 0.0, 0.0]
//
//	[emitter.init]
//	position = [[1.0, 0.0, 0.0, 0.0], [2.0, 0.0, 0.0, 0.0]]
//
//	[[emitter.script]]
//	name = "move"
//	source = """
//	.input position velocity
//	.output position
//	.const dt 0.1
//	mad o0, i1, c0, i0
//	done
//	"""
//
//	[[emitter.script.constant]]
//	name = "dt"
//	value = [0.5]
//
// Script programs are given inline as assembly or by file name. Files
// ending in .vvmc are program images, any other file is assembly. Vectors
// are written with one lane, which is splatted, or four lanes.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ozanh/vecvm"
	"github.com/ozanh/vecvm/asm"
	"github.com/ozanh/vecvm/encoder"
	"github.com/ozanh/vecvm/sim"
)

// ImageExt is the file name extension of program images.
const ImageExt = ".vvmc"

// ErrScenario is the cause of every error reported for scenario contents.
var ErrScenario = errors.New("invalid scenario")

// Scenario is the contents of a scenario file.
type Scenario struct {
	Ticks     int       `toml:"ticks"`
	ChunkSize int       `toml:"chunk-size"`
	Seed      int64     `toml:"seed"`
	NoiseSeed int64     `toml:"noise-seed"`
	Parallel  int       `toml:"parallel"`
	DataSets  []DataSet `toml:"dataset"`
	Emitters  []Emitter `toml:"emitter"`

	// Dir is the directory script files are relative to.
	Dir string `toml:"-"`
}

// DataSet declares a shared data set.
type DataSet struct {
	Name      string   `toml:"name"`
	Size      int      `toml:"size"`
	Variables []string `toml:"variables"`
}

// Emitter declares an emitter and its scripts.
type Emitter struct {
	Name       string   `toml:"name"`
	Capacity   int      `toml:"capacity"`
	Instances  int      `toml:"instances"`
	Spawn      int      `toml:"spawn"`
	SpawnFrom  string   `toml:"spawn-from"`
	Alive      string   `toml:"alive"`
	Attributes []string `toml:"attributes"`
	// Defaults are the attribute values of spawned instances.
	Defaults map[string][]float32 `toml:"defaults"`
	// Init overrides the defaults of the initial instances, one vector per
	// instance.
	Init    map[string][][]float32 `toml:"init"`
	Scripts []Script               `toml:"script"`
}

// Script declares a program run by an emitter.
type Script struct {
	Name      string     `toml:"name"`
	Stage     string     `toml:"stage"`
	Source    string     `toml:"source"`
	File      string     `toml:"file"`
	Constants []Constant `toml:"constant"`
}

// Constant overrides a program constant.
type Constant struct {
	Name  string    `toml:"name"`
	Value []float32 `toml:"value"`
}

// Decode parses a scenario. Unknown keys are errors.
func Decode(data []byte) (*Scenario, error) {
	var s Scenario
	md, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrScenario,
			strings.Join(keys, ", "))
	}
	return &s, nil
}

// Load parses the scenario file at path.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	s, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	s.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return s, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrScenario, fmt.Sprintf(format, args...))
}

// Vector converts lanes to a vector.
func Vector(lanes []float32) (vecvm.Vector, error) {
	switch len(lanes) {
	case 1:
		return vecvm.Splat(lanes[0]), nil
	case vecvm.ElementsPerVector:
		return vecvm.Vector{lanes[0], lanes[1], lanes[2], lanes[3]}, nil
	}
	return vecvm.Vector{}, invalid("vector needs 1 or 4 lanes, got %d", len(lanes))
}

// Build creates the system of the scenario with its initial instances.
func (s *Scenario) Build() (*sim.System, error) {
	opts := sim.Options{
		ChunkSize: s.ChunkSize,
		Seed:      s.Seed,
		Parallel:  s.Parallel,
	}
	if s.NoiseSeed != 0 {
		opts.Noise = vecvm.NewNoiseTable(s.NoiseSeed)
	}
	sys := sim.NewSystem(opts)

	for _, d := range s.DataSets {
		if d.Name == "" {
			return nil, invalid("data set without name")
		}
		if d.Size <= 0 {
			return nil, invalid("data set %s: size must be positive", d.Name)
		}
		if d.Size > vecvm.MaxSharedDataSize {
			return nil, invalid("data set %s: size exceeds %d", d.Name,
				vecvm.MaxSharedDataSize)
		}
		if err := sys.AddDataSet(sim.NewDataSet(d.Name, d.Size, d.Variables...)); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrScenario, err)
		}
	}
	for i := range s.Emitters {
		e, err := s.buildEmitter(&s.Emitters[i])
		if err != nil {
			return nil, err
		}
		if err := sys.AddEmitter(e); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrScenario, err)
		}
	}
	if err := sys.Bind(); err != nil {
		return nil, err
	}
	return sys, nil
}

func (s *Scenario) buildEmitter(d *Emitter) (*sim.Emitter, error) {
	if d.Name == "" {
		return nil, invalid("emitter without name")
	}
	if d.Instances > d.Capacity {
		return nil, invalid("emitter %s: %d instances exceed capacity %d",
			d.Name, d.Instances, d.Capacity)
	}
	e := sim.NewEmitter(d.Name, d.Capacity, d.Attributes...)
	e.SpawnCount = d.Spawn
	e.SpawnFrom = d.SpawnFrom
	e.Alive = d.Alive
	e.Defaults = make(map[string]vecvm.Vector, len(d.Defaults))
	for name, lanes := range d.Defaults {
		v, err := Vector(lanes)
		if err != nil {
			return nil, fmt.Errorf("emitter %s: default %s: %w", d.Name, name, err)
		}
		e.Defaults[name] = v
	}
	e.Spawn(d.Instances)

	for name, values := range d.Init {
		buf := e.Attribute(name)
		if buf == nil {
			return nil, invalid("emitter %s: init of unknown attribute %q", d.Name, name)
		}
		if len(values) > len(buf) {
			return nil, invalid("emitter %s: init of %s has %d values for %d instances",
				d.Name, name, len(values), len(buf))
		}
		for i, lanes := range values {
			v, err := Vector(lanes)
			if err != nil {
				return nil, fmt.Errorf("emitter %s: init %s: %w", d.Name, name, err)
			}
			buf[i] = v
		}
	}

	for i := range d.Scripts {
		sc, err := s.buildScript(&d.Scripts[i])
		if err != nil {
			return nil, fmt.Errorf("emitter %s: %w", d.Name, err)
		}
		e.AddScript(sc)
	}
	return e, nil
}

func (s *Scenario) buildScript(d *Script) (*sim.Script, error) {
	stage, err := sim.ParseStage(d.Stage)
	if err != nil {
		return nil, fmt.Errorf("%w: script %s: %s", ErrScenario, d.Name, err)
	}
	p, err := s.program(d)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", d.Name, err)
	}
	if d.Name == "" {
		d.Name = p.Name
	}
	sc := &sim.Script{Name: d.Name, Stage: stage, Program: p}
	if len(d.Constants) > 0 {
		sc.Constants = make(map[string]vecvm.Vector, len(d.Constants))
		for _, c := range d.Constants {
			v, err := Vector(c.Value)
			if err != nil {
				return nil, fmt.Errorf("script %s: constant %s: %w", d.Name, c.Name, err)
			}
			sc.Constants[c.Name] = v
		}
	}
	return sc, nil
}

func (s *Scenario) program(d *Script) (*vecvm.Program, error) {
	switch {
	case d.Source != "" && d.File != "":
		return nil, invalid("both source and file given")
	case d.Source != "":
		return asm.Parse([]byte(d.Source))
	case d.File == "":
		return nil, invalid("no program")
	}
	path := d.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.Dir, path)
	}
	if filepath.Ext(path) == ImageExt {
		return encoder.ReadFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return asm.Parse(data)
}

// Run builds the system and runs it for the ticks of the scenario.
func (s *Scenario) Run(ctx context.Context) (*sim.System, error) {
	sys, err := s.Build()
	if err != nil {
		return nil, err
	}
	if err := sys.Run(ctx, s.Ticks); err != nil {
		return sys, err
	}
	return sys, nil
}
