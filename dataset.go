// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

// SharedDataView is a bounded group of named buffers one script writes event
// records into and another reads them back from within one tick. All
// variables share one capacity (Size) and one cursor (Counter).
//
// Any access outside [0, Size) is redirected to a dummy cell owned by the
// view: reads see a cell which is always zero, writes land in a cell which
// is never read. Out of range instances still run every instruction and need
// no branch of their own; many of them may overwrite the same discard cell
// within one instruction, which is intended.
//
// A view is not safe for concurrent use. Calls sharing a view within one
// tick must be sequenced by the caller.
type SharedDataView struct {
	Name string
	// Size is the capacity of every variable buffer.
	Size int
	// Counter is the acquire/consume cursor, kept in [0, Size].
	Counter int

	names   []string
	buffers [][]Vector

	readDummy  Vector
	writeDummy Vector
}

// MaxSharedDataSize is the largest view capacity. Cursor indices travel in
// float32 lanes, which hold every integer up to 2^24 exactly.
const MaxSharedDataSize = 1 << 24

// NewSharedDataView returns an empty view with capacity size, clamped to
// [0, MaxSharedDataSize].
func NewSharedDataView(name string, size int) *SharedDataView {
	if size < 0 {
		size = 0
	} else if size > MaxSharedDataSize {
		size = MaxSharedDataSize
	}
	return &SharedDataView{Name: name, Size: size}
}

// AddVariable appends a variable buffer and returns its index. A nil buffer
// declares an absent variable: reads are zero and writes are discarded.
func (v *SharedDataView) AddVariable(name string, buf []Vector) int {
	v.names = append(v.names, name)
	v.buffers = append(v.buffers, buf)
	return len(v.buffers) - 1
}

// SetBuffer replaces the buffer of variable varIdx.
func (v *SharedDataView) SetBuffer(varIdx int, buf []Vector) {
	v.buffers[varIdx] = buf
}

// Buffer returns the buffer of variable varIdx.
func (v *SharedDataView) Buffer(varIdx int) []Vector {
	return v.buffers[varIdx]
}

// VariableIndex returns the index of the named variable or -1.
func (v *SharedDataView) VariableIndex(name string) int {
	for i, n := range v.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Variables returns the variable names in index order.
func (v *SharedDataView) Variables() []string {
	return v.names
}

// NumVariables returns the number of variables.
func (v *SharedDataView) NumVariables() int {
	return len(v.buffers)
}

// Reset moves the cursor back to the start.
func (v *SharedDataView) Reset() {
	v.Counter = 0
}

// Len returns the number of slots between the start and the cursor.
func (v *SharedDataView) Len() int {
	return v.Counter
}

// AcquireIndex returns Counter and advances it by one, clamped to Size. Once
// the view is full it keeps returning Size, which is not a valid index.
func (v *SharedDataView) AcquireIndex() int {
	index := v.Counter
	if v.Counter < v.Size {
		v.Counter++
	}
	return index
}

// AcquireIndexWrap returns Counter and advances it by one modulo Size.
func (v *SharedDataView) AcquireIndexWrap() int {
	if v.Size <= 0 {
		return InvalidIndex
	}
	index := v.Counter
	v.Counter = (v.Counter + 1) % v.Size
	return index
}

// ConsumeIndex returns Counter and decrements it, clamped to 0.
func (v *SharedDataView) ConsumeIndex() int {
	index := v.Counter
	if v.Counter > 0 {
		v.Counter--
	}
	return index
}

// ConsumeIndexWrap returns Counter and decrements it modulo Size.
func (v *SharedDataView) ConsumeIndexWrap() int {
	if v.Size <= 0 {
		return InvalidIndex
	}
	index := v.Counter
	v.Counter = (v.Counter - 1 + v.Size) % v.Size
	return index
}

// ValidIndex reports whether 0 <= i < Size.
func (v *SharedDataView) ValidIndex(i int) bool {
	return i >= 0 && i < v.Size
}

// GetReadBuffer returns the element dataIdx of variable varIdx, or the zero
// cell when dataIdx is not valid or the buffer does not hold it.
func (v *SharedDataView) GetReadBuffer(varIdx, dataIdx int) *Vector {
	if buf := v.buffers[varIdx]; v.ValidIndex(dataIdx) && dataIdx < len(buf) {
		return &buf[dataIdx]
	}
	v.readDummy = Vector{}
	return &v.readDummy
}

// GetWriteBuffer returns the element dataIdx of variable varIdx, or the
// discard cell when dataIdx is not valid or the buffer does not hold it.
func (v *SharedDataView) GetWriteBuffer(varIdx, dataIdx int) *Vector {
	if buf := v.buffers[varIdx]; v.ValidIndex(dataIdx) && dataIdx < len(buf) {
		return &buf[dataIdx]
	}
	return &v.writeDummy
}
