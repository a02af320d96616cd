// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

// RegisterTag names one register table category.
type RegisterTag byte

// Register table categories.
const (
	TagTemporary RegisterTag = iota
	TagInput
	TagOutput
	TagConstant
)

var registerTagNames = [...]string{
	TagTemporary: "temp",
	TagInput:     "input",
	TagOutput:    "output",
	TagConstant:  "const",
}

func (t RegisterTag) String() string {
	if int(t) < len(registerTagNames) {
		return registerTagNames[t]
	}
	return "invalid"
}

// RegisterIndex returns the unified register operand for index in the
// category tag. TagConstant indices are returned unchanged since constants
// are addressed through the source-location mask.
func RegisterIndex(tag RegisterTag, index int) int {
	switch tag {
	case TagInput:
		return FirstInputRegister + index
	case TagOutput:
		return FirstOutputRegister + index
	default:
		return index
	}
}

// SplitRegister returns the category and the category relative index of a
// unified register operand. Operands at or above MaxRegisters return ok false.
func SplitRegister(reg byte) (tag RegisterTag, index int, ok bool) {
	r := int(reg)
	switch {
	case r < FirstInputRegister:
		return TagTemporary, r - FirstTempRegister, true
	case r < FirstOutputRegister:
		return TagInput, r - FirstInputRegister, true
	case r < MaxRegisters:
		return TagOutput, r - FirstOutputRegister, true
	}
	return TagTemporary, 0, false
}

// registerFile is the register window of one execution call. It owns the
// temporary scratch only; inputs, outputs and constants are caller buffers.
type registerFile struct {
	scratch   []Vector
	table     [MaxRegisters][]Vector
	inputs    [][]Vector
	outputs   [][]Vector
	constants []Vector
	chunkSize int
}

func newRegisterFile(chunkSize int) *registerFile {
	return &registerFile{
		scratch:   make([]Vector, NumTempRegisters*chunkSize),
		chunkSize: chunkSize,
	}
}

// attach binds the caller buffers of one call. Bindings left over from a
// previous call are cleared so stale buffers are never addressed.
func (rf *registerFile) attach(inputs, outputs [][]Vector, constants []Vector) {
	rf.inputs = inputs
	rf.outputs = outputs
	rf.constants = constants
	for i := FirstInputRegister; i < MaxRegisters; i++ {
		rf.table[i] = nil
	}
}

func (rf *registerFile) detach() {
	rf.attach(nil, nil, nil)
}

// bind maps the window onto chunk, which holds n instances. Temporaries are
// reused scratch; inputs and outputs are offset by chunk*chunkSize.
func (rf *registerFile) bind(chunk, n int) {
	for i := 0; i < NumTempRegisters; i++ {
		start := i * rf.chunkSize
		rf.table[FirstTempRegister+i] = rf.scratch[start : start+n]
	}
	off := chunk * rf.chunkSize
	for i, buf := range rf.inputs {
		rf.table[FirstInputRegister+i] = buf[off : off+n]
	}
	for i, buf := range rf.outputs {
		rf.table[FirstOutputRegister+i] = buf[off : off+n]
	}
}

func (rf *registerFile) register(reg byte) []Vector {
	return rf.table[reg]
}

func (rf *registerFile) constant(index byte) Vector {
	return rf.constants[index]
}
