// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package sim drives vector programs tick by tick over particle emitters.
//
// Every emitter keeps two buffers per attribute. In a tick, update scripts
// read the previous buffers and write the next ones, then spawn scripts
// initialize the instances added in the tick. The buffers swap when all
// scripts of the emitter succeed, so outputs of one tick are the inputs of
// the next. Shared data sets are reset at the start of every tick and
// connect the scripts of that tick, for example an update script emitting
// collision events which a spawn script of another emitter consumes.
package sim

import (
	"context"
	"fmt"
	"sort"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/ozanh/vecvm"
)

var log = commonlog.GetLogger("vecvm.sim")

// Stage selects when a script runs within a tick.
type Stage byte

// Stages in the order they run.
const (
	StageUpdate Stage = iota
	StageSpawn
)

func (s Stage) String() string {
	switch s {
	case StageUpdate:
		return "update"
	case StageSpawn:
		return "spawn"
	}
	return fmt.Sprintf("stage(%d)", byte(s))
}

// ParseStage returns the stage named s.
func ParseStage(s string) (Stage, error) {
	switch s {
	case "update", "":
		return StageUpdate, nil
	case "spawn":
		return StageSpawn, nil
	}
	return 0, fmt.Errorf("unknown stage %q", s)
}

// DataSet is a named shared data view with its variable buffers.
type DataSet struct {
	View *vecvm.SharedDataView
}

// NewDataSet creates a data set of size slots per variable.
func NewDataSet(name string, size int, variables ...string) *DataSet {
	view := vecvm.NewSharedDataView(name, size)
	for _, v := range variables {
		view.AddVariable(v, vecvm.NewBuffer(view.Size))
	}
	return &DataSet{View: view}
}

// Name returns the name of the data set.
func (ds *DataSet) Name() string { return ds.View.Name }

// Events returns the records written in the current tick of the named
// variable, or nil if there is no such variable.
func (ds *DataSet) Events(variable string) []vecvm.Vector {
	i := ds.View.VariableIndex(variable)
	if i < 0 {
		return nil
	}
	return ds.View.Buffer(i)[:ds.View.Len()]
}

// Script is a program run by an emitter in one stage of every tick.
// Program inputs and outputs bind to emitter attributes by name and program
// data sets bind to system data sets by name.
type Script struct {
	Name    string
	Stage   Stage
	Program *vecvm.Program
	// Constants override program constants of the same name.
	Constants map[string]vecvm.Vector

	table   *vecvm.ConstantTable
	inputs  []int
	outputs []int
	sets    []*vecvm.SharedDataView
}

// Emitter is a pool of particle instances with the same attributes.
type Emitter struct {
	Name       string
	Attributes []string
	Capacity   int
	// SpawnCount is the number of instances spawned every tick.
	SpawnCount int
	// SpawnFrom names a data set; every event it holds after the update
	// stage of the tick spawns one instance.
	SpawnFrom string
	// Alive names an attribute; instances whose x lane is not positive
	// after the update stage are removed.
	Alive string
	// Defaults holds the initial attribute values of spawned instances.
	Defaults map[string]vecvm.Vector

	scripts []*Script
	buffers [2][][]vecvm.Vector
	cur     int
	live    int
	vm      *vecvm.VM
	spawnDS *DataSet
	alive   int
}

// NewEmitter creates an emitter holding at most capacity instances.
func NewEmitter(name string, capacity int, attributes ...string) *Emitter {
	if capacity < 0 {
		capacity = 0
	}
	e := &Emitter{
		Name:       name,
		Capacity:   capacity,
		Attributes: append([]string(nil), attributes...),
		alive:      -1,
	}
	for i := range e.buffers {
		e.buffers[i] = make([][]vecvm.Vector, len(attributes))
		for j := range attributes {
			e.buffers[i][j] = vecvm.NewBuffer(capacity)
		}
	}
	return e
}

// AddScript appends s to the scripts of its stage.
func (e *Emitter) AddScript(s *Script) *Emitter {
	e.scripts = append(e.scripts, s)
	return e
}

// Scripts returns the scripts of the emitter.
func (e *Emitter) Scripts() []*Script {
	return e.scripts
}

// NumInstances returns the number of live instances.
func (e *Emitter) NumInstances() int {
	return e.live
}

// AttributeIndex returns the index of the named attribute or -1.
func (e *Emitter) AttributeIndex(name string) int {
	for i, a := range e.Attributes {
		if a == name {
			return i
		}
	}
	return -1
}

// Attribute returns the live values of the named attribute, or nil if
// there is no such attribute. The slice is valid until the next tick.
func (e *Emitter) Attribute(name string) []vecvm.Vector {
	i := e.AttributeIndex(name)
	if i < 0 {
		return nil
	}
	return e.buffers[e.cur][i][:e.live]
}

// Spawn adds up to n instances initialized from Defaults and returns the
// number added.
func (e *Emitter) Spawn(n int) int {
	n = e.spawn(e.cur, n)
	e.live += n
	return n
}

func (e *Emitter) spawn(buf, n int) int {
	if rest := e.Capacity - e.live; n > rest {
		n = rest
	}
	if n <= 0 {
		return 0
	}
	for i, name := range e.Attributes {
		v := e.Defaults[name]
		dst := e.buffers[buf][i][e.live : e.live+n]
		for j := range dst {
			dst[j] = v
		}
	}
	return n
}

// compact removes the instances of buf whose alive lane is not positive.
func (e *Emitter) compact(buf int) {
	if e.alive < 0 {
		return
	}
	attrs := e.buffers[buf]
	alive := attrs[e.alive]
	for i := 0; i < e.live; {
		if alive[i][0] > 0 {
			i++
			continue
		}
		last := e.live - 1
		for _, a := range attrs {
			a[i] = a[last]
		}
		e.live--
	}
}

func (e *Emitter) exec(s *Script, buf, first, n int) error {
	args := vecvm.ExecArgs{
		Inputs:       make([][]vecvm.Vector, len(s.inputs)),
		Outputs:      make([][]vecvm.Vector, len(s.outputs)),
		DataSets:     s.sets,
		NumInstances: n,
	}
	prev := e.buffers[e.cur]
	next := e.buffers[buf]
	if s.Stage == StageSpawn {
		prev = next
	}
	for i, a := range s.inputs {
		args.Inputs[i] = prev[a][first : first+n]
	}
	for i, a := range s.outputs {
		args.Outputs[i] = next[a][first : first+n]
	}
	args.Constants = s.table.Build(s.Constants)
	return e.vm.Exec(s.Program.Code, args)
}

// tick runs the scripts of the emitter. The buffers are swapped only if all
// scripts succeed.
func (e *Emitter) tick(ctx context.Context) error {
	next := 1 - e.cur
	for i := range e.Attributes {
		copy(e.buffers[next][i][:e.live], e.buffers[e.cur][i][:e.live])
	}
	live := e.live
	restore := func(err error) error {
		e.live = live
		return err
	}

	for _, s := range e.scripts {
		if s.Stage != StageUpdate {
			continue
		}
		if err := ctx.Err(); err != nil {
			return restore(err)
		}
		if err := e.exec(s, next, 0, e.live); err != nil {
			log.Errorf("emitter %s: script %s: %s", e.Name, s.Name, err)
			return restore(fmt.Errorf("emitter %s: script %s: %w", e.Name, s.Name, err))
		}
	}
	e.compact(next)

	n := e.SpawnCount
	if e.spawnDS != nil {
		n += e.spawnDS.View.Len()
	}
	n = e.spawn(next, n)
	if n > 0 {
		for _, s := range e.scripts {
			if s.Stage != StageSpawn {
				continue
			}
			if err := ctx.Err(); err != nil {
				return restore(err)
			}
			if err := e.exec(s, next, e.live, n); err != nil {
				log.Errorf("emitter %s: script %s: %s", e.Name, s.Name, err)
				return restore(fmt.Errorf("emitter %s: script %s: %w", e.Name, s.Name, err))
			}
		}
	}
	e.live += n
	e.cur = next
	log.Debugf("emitter %s: %d instances, %d spawned", e.Name, e.live, n)
	return nil
}

// Options configures a System.
type Options struct {
	// ChunkSize is passed to the VM of every emitter.
	ChunkSize int
	// Seed seeds the random opcode; emitter i uses Seed+i.
	Seed int64
	// Noise is the table sampled by the noise opcode.
	Noise *vecvm.NoiseTable
	// Parallel limits the number of emitter groups run at once. Zero or
	// less is unlimited.
	Parallel int
}

// System holds the emitters and data sets of a simulation.
type System struct {
	opts     Options
	emitters []*Emitter
	dataSets map[string]*DataSet
	groups   [][]*Emitter
	ticks    int
	bound    bool
}

// NewSystem creates an empty system.
func NewSystem(opts Options) *System {
	return &System{
		opts:     opts,
		dataSets: make(map[string]*DataSet),
	}
}

// AddDataSet adds ds to the system.
func (s *System) AddDataSet(ds *DataSet) error {
	if _, ok := s.dataSets[ds.Name()]; ok {
		return fmt.Errorf("duplicate data set %q", ds.Name())
	}
	s.dataSets[ds.Name()] = ds
	s.bound = false
	return nil
}

// AddEmitter adds e to the system.
func (s *System) AddEmitter(e *Emitter) error {
	if s.Emitter(e.Name) != nil {
		return fmt.Errorf("duplicate emitter %q", e.Name)
	}
	s.emitters = append(s.emitters, e)
	s.bound = false
	return nil
}

// Emitter returns the named emitter or nil.
func (s *System) Emitter(name string) *Emitter {
	for _, e := range s.emitters {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Emitters returns the emitters in the order they were added.
func (s *System) Emitters() []*Emitter {
	return s.emitters
}

// DataSet returns the named data set or nil.
func (s *System) DataSet(name string) *DataSet {
	return s.dataSets[name]
}

// Ticks returns the number of completed ticks.
func (s *System) Ticks() int {
	return s.ticks
}

// Bind resolves the names used by scripts and validates their programs.
// Tick calls it when emitters or data sets were added since the last call.
func (s *System) Bind() error {
	for i, e := range s.emitters {
		if err := s.bindEmitter(e, int64(i)); err != nil {
			return fmt.Errorf("emitter %s: %w", e.Name, err)
		}
	}
	s.groups = s.group()
	s.bound = true
	log.Infof("bound %d emitters in %d groups, %d data sets",
		len(s.emitters), len(s.groups), len(s.dataSets))
	return nil
}

func (s *System) bindEmitter(e *Emitter, index int64) error {
	e.vm = vecvm.NewVM(vecvm.VMOptions{
		ChunkSize: s.opts.ChunkSize,
		Noise:     s.opts.Noise,
		Seed:      s.opts.Seed + index,
	})
	e.alive = -1
	if e.Alive != "" {
		if e.alive = e.AttributeIndex(e.Alive); e.alive < 0 {
			return fmt.Errorf("unknown alive attribute %q", e.Alive)
		}
	}
	e.spawnDS = nil
	if e.SpawnFrom != "" {
		if e.spawnDS = s.dataSets[e.SpawnFrom]; e.spawnDS == nil {
			return fmt.Errorf("unknown spawn data set %q", e.SpawnFrom)
		}
	}
	for name := range e.Defaults {
		if e.AttributeIndex(name) < 0 {
			return fmt.Errorf("default of unknown attribute %q", name)
		}
	}
	for _, sc := range e.scripts {
		if err := s.bindScript(e, sc); err != nil {
			return fmt.Errorf("script %s: %w", sc.Name, err)
		}
	}
	return nil
}

func (s *System) bindScript(e *Emitter, sc *Script) error {
	p := sc.Program
	if p == nil {
		return fmt.Errorf("no program")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	var err error
	if sc.table, err = p.ConstantTable(); err != nil {
		return err
	}
	for name := range sc.Constants {
		if sc.table.Index(name) < 0 {
			return fmt.Errorf("unknown constant %q", name)
		}
	}
	attrs := func(names []string) ([]int, error) {
		out := make([]int, len(names))
		for i, n := range names {
			if out[i] = e.AttributeIndex(n); out[i] < 0 {
				return nil, fmt.Errorf("unknown attribute %q", n)
			}
		}
		return out, nil
	}
	if sc.inputs, err = attrs(p.Inputs); err != nil {
		return err
	}
	if sc.outputs, err = attrs(p.Outputs); err != nil {
		return err
	}
	sc.sets = make([]*vecvm.SharedDataView, len(p.DataSets))
	for i, decl := range p.DataSets {
		ds := s.dataSets[decl.Name]
		if ds == nil {
			return fmt.Errorf("unknown data set %q", decl.Name)
		}
		for j, v := range decl.Variables {
			if k := ds.View.VariableIndex(v); k != j {
				return fmt.Errorf("data set %s: variable %q must be at index %d",
					decl.Name, v, j)
			}
		}
		sc.sets[i] = ds.View
	}
	return nil
}

// group partitions the emitters into groups which share no data set. The
// emitters of a group run sequentially, in the order they were added.
func (s *System) group() [][]*Emitter {
	parent := make([]int, len(s.emitters))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	owner := make(map[*vecvm.SharedDataView]int)
	link := func(i int, v *vecvm.SharedDataView) {
		if j, ok := owner[v]; ok {
			parent[find(i)] = find(j)
			return
		}
		owner[v] = i
	}
	for i, e := range s.emitters {
		if e.spawnDS != nil {
			link(i, e.spawnDS.View)
		}
		for _, sc := range e.scripts {
			for _, v := range sc.sets {
				link(i, v)
			}
		}
	}

	byRoot := make(map[int][]*Emitter)
	var roots []int
	for i, e := range s.emitters {
		r := find(i)
		if _, ok := byRoot[r]; !ok {
			roots = append(roots, r)
		}
		byRoot[r] = append(byRoot[r], e)
	}
	sort.Ints(roots)
	groups := make([][]*Emitter, 0, len(roots))
	for _, r := range roots {
		groups = append(groups, byRoot[r])
	}
	return groups
}

// Tick advances the simulation by one tick. Data sets are reset first.
// Emitter groups sharing no data set run in parallel. An emitter whose
// script fails keeps its previous state.
func (s *System) Tick(ctx context.Context) error {
	if !s.bound {
		if err := s.Bind(); err != nil {
			return err
		}
	}
	for _, ds := range s.dataSets {
		ds.View.Reset()
	}

	g, ctx := errgroup.WithContext(ctx)
	if s.opts.Parallel > 0 {
		g.SetLimit(s.opts.Parallel)
	}
	for _, group := range s.groups {
		g.Go(func() error {
			for _, e := range group {
				if err := e.tick(ctx); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("tick %d: %w", s.ticks, err)
	}
	s.ticks++
	return nil
}

// Run calls Tick n times.
func (s *System) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := s.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}
