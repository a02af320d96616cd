// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import "fmt"

// Operand is a source or destination operand of an instruction.
type Operand struct {
	Kind  SourceKind
	Index byte
}

// Temp returns the operand of temporary register i.
func Temp(i int) Operand { return Operand{Index: byte(RegisterIndex(TagTemporary, i))} }

// In returns the operand of input register i.
func In(i int) Operand { return Operand{Index: byte(RegisterIndex(TagInput, i))} }

// Out returns the operand of output register i.
func Out(i int) Operand { return Operand{Index: byte(RegisterIndex(TagOutput, i))} }

// Const returns the operand of constant i.
func Const(i int) Operand { return Operand{Kind: SourceConstant, Index: byte(i)} }

func (o Operand) String() string {
	if o.Kind == SourceConstant {
		return "c" + itoa(int(o.Index))
	}
	return FormatRegister(o.Index)
}

// MakeInstruction returns the wire form of op with its operand bytes given
// in wire order.
func MakeInstruction(op Opcode, args ...int) ([]byte, error) {
	if !IsValidOpcode(op) {
		return nil, ErrUnknownOpcode.NewError("0x" + hexByte(op))
	}
	if width := OperandWidth(op); width != len(args) {
		return nil, fmt.Errorf("MakeInstruction: %s expected %d operands, but got %d",
			OpcodeNames[op], width, len(args))
	}
	inst := make([]byte, 1+len(args))
	inst[0] = op
	for i, a := range args {
		if a < 0 || a > 255 {
			return nil, ErrInvalidOperand.NewError(OpcodeNames[op], "operand",
				itoa(i), "value", itoa(a), "does not fit a byte")
		}
		inst[i+1] = byte(a)
	}
	return inst, nil
}

// Append appends the wire form of the instruction to buf.
func (ins *Instruction) Append(buf []byte) []byte {
	buf = append(buf, ins.Op)
	switch OpcodeLayouts[ins.Op] {
	case LayoutNone:
		return buf
	case LayoutCursor, LayoutIndexValid:
		buf = append(buf, ins.Set)
	case LayoutDataRead, LayoutDataWrite:
		buf = append(buf, ins.Set, ins.Var)
	}
	buf = append(buf, ins.Mask)
	buf = append(buf, ins.Src[:ins.NumSrc]...)
	if HasDestination(ins.Op) {
		buf = append(buf, ins.Dst)
	}
	return buf
}

// NewInstruction returns the instruction op with the given sources. The
// source-location mask is derived from the operand kinds. set and variable
// are ignored by layouts which have no such operand.
func NewInstruction(op Opcode, set, variable int, dst Operand, srcs ...Operand) (Instruction, error) {
	ins := Instruction{Op: op}
	if !IsValidOpcode(op) {
		return ins, ErrUnknownOpcode.NewError("0x" + hexByte(op))
	}
	ins.NumSrc = OpcodeArity[op]
	if len(srcs) != ins.NumSrc {
		return ins, ErrInvalidOperand.NewError(OpcodeNames[op], "expected",
			itoa(ins.NumSrc), "sources, but got", itoa(len(srcs)))
	}
	if set < 0 || set > 255 || variable < 0 || variable > 255 {
		return ins, ErrInvalidOperand.NewError(OpcodeNames[op],
			"set or variable index out of range")
	}
	ins.Set = byte(set)
	ins.Var = byte(variable)
	for i, s := range srcs {
		if s.Kind == SourceConstant {
			ins.Mask |= 1 << i
		}
		ins.Src[i] = s.Index
	}
	if HasDestination(op) {
		if dst.Kind == SourceConstant {
			return ins, ErrInvalidOperand.NewError(OpcodeNames[op],
				"destination is a constant")
		}
		ins.Dst = dst.Index
	}
	return ins, nil
}

// Builder assembles a Program instruction by instruction. The first error
// is kept and returned by Program; later calls are ignored.
type Builder struct {
	prog     Program
	err      error
	consts   map[string]int
	inputs   map[string]int
	outputs  map[string]int
	dataSets map[string]int
}

// NewBuilder returns a builder of the named program.
func NewBuilder(name string) *Builder {
	return &Builder{
		prog:     Program{Name: name},
		consts:   map[string]int{},
		inputs:   map[string]int{},
		outputs:  map[string]int{},
		dataSets: map[string]int{},
	}
}

// Constant declares the named constant with its default value, once, and
// returns its operand.
func (b *Builder) Constant(name string, value Vector) Operand {
	if i, ok := b.consts[name]; ok {
		return Const(i)
	}
	i := len(b.prog.Constants)
	if i >= MaxConstants {
		b.fail(ErrConstantLimit.NewError("declaring", name))
		return Const(0)
	}
	b.consts[name] = i
	b.prog.Constants = append(b.prog.Constants, NamedConstant{Name: name, Value: value})
	return Const(i)
}

// Input declares the named input attribute and returns its register.
func (b *Builder) Input(name string) Operand {
	i, ok := b.declare(b.inputs, &b.prog.Inputs, name, MaxInputRegisters)
	if !ok {
		b.fail(ErrRegisterLimit.NewError("too many inputs declaring", name))
	}
	return In(i)
}

// Output declares the named output attribute and returns its register.
func (b *Builder) Output(name string) Operand {
	i, ok := b.declare(b.outputs, &b.prog.Outputs, name, MaxOutputRegisters)
	if !ok {
		b.fail(ErrRegisterLimit.NewError("too many outputs declaring", name))
	}
	return Out(i)
}

func (b *Builder) declare(index map[string]int, names *[]string, name string, limit int) (int, bool) {
	if i, ok := index[name]; ok {
		return i, true
	}
	i := len(*names)
	if i >= limit {
		return 0, false
	}
	index[name] = i
	*names = append(*names, name)
	return i, true
}

// DataSet declares the named shared data set with its variables and
// returns its set index.
func (b *Builder) DataSet(name string, variables ...string) int {
	if i, ok := b.dataSets[name]; ok {
		return i
	}
	i := len(b.prog.DataSets)
	b.dataSets[name] = i
	b.prog.DataSets = append(b.prog.DataSets, DataSetDecl{
		Name:      name,
		Variables: append([]string(nil), variables...),
	})
	return i
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Builder) emit(op Opcode, set, variable int, dst Operand, srcs ...Operand) *Builder {
	if b.err != nil {
		return b
	}
	ins, err := NewInstruction(op, set, variable, dst, srcs...)
	if err != nil {
		b.fail(err)
		return b
	}
	b.prog.Code = ins.Append(b.prog.Code)
	return b
}

// Emit appends the kernel instruction op writing dst.
func (b *Builder) Emit(op Opcode, dst Operand, srcs ...Operand) *Builder {
	if OpcodeLayouts[op] != LayoutKernel {
		b.fail(ErrInvalidOperand.NewError(OpcodeName(op), "is not a kernel"))
		return b
	}
	return b.emit(op, 0, 0, dst, srcs...)
}

// Cursor appends acquireindex, acquireindexwrap, consumeindex or
// consumeindexwrap on set, run for instances whose cond.x > 0.
func (b *Builder) Cursor(op Opcode, set int, cond, dst Operand) *Builder {
	if OpcodeLayouts[op] != LayoutCursor {
		b.fail(ErrInvalidOperand.NewError(OpcodeName(op), "is not a cursor opcode"))
		return b
	}
	return b.emit(op, set, 0, dst, cond)
}

// Read appends shareddataread of variable in set at index.
func (b *Builder) Read(set, variable int, index, dst Operand) *Builder {
	return b.emit(OpSharedDataRead, set, variable, dst, index)
}

// Write appends shareddatawrite of value to variable in set at index.
func (b *Builder) Write(set, variable int, index, value Operand) *Builder {
	return b.emit(OpSharedDataWrite, set, variable, Operand{}, index, value)
}

// IndexValid appends shareddataindexvalid of index in set.
func (b *Builder) IndexValid(set int, index, dst Operand) *Builder {
	return b.emit(OpSharedDataIndexValid, set, 0, dst, index)
}

// Done terminates the program.
func (b *Builder) Done() *Builder {
	return b.emit(OpDone, 0, 0, Operand{})
}

// Program returns the built program or the first error.
func (b *Builder) Program() (*Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.prog.Copy(), nil
}
