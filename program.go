// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// DataSetDecl declares a shared data set addressed by a program. Its index
// in Program.DataSets is the set operand of shared data instructions.
type DataSetDecl struct {
	Name      string
	Variables []string
}

// Program holds the bytecode of one script and the declarations the caller
// needs to bind buffers to it. The executor only reads Code.
type Program struct {
	Name      string
	Code      []byte
	Constants []NamedConstant
	Inputs    []string
	Outputs   []string
	DataSets  []DataSetDecl
}

// Copy returns a deep copy of the program.
func (p *Program) Copy() *Program {
	cp := &Program{
		Name:      p.Name,
		Code:      append([]byte(nil), p.Code...),
		Constants: append([]NamedConstant(nil), p.Constants...),
		Inputs:    append([]string(nil), p.Inputs...),
		Outputs:   append([]string(nil), p.Outputs...),
	}
	for _, ds := range p.DataSets {
		cp.DataSets = append(cp.DataSets, DataSetDecl{
			Name:      ds.Name,
			Variables: append([]string(nil), ds.Variables...),
		})
	}
	return cp
}

// ConstantTable returns a constant table for the declared constants.
func (p *Program) ConstantTable() (*ConstantTable, error) {
	return NewConstantTable(p.Constants)
}

// Validate checks every guarantee the executor relies on: known opcodes,
// complete instructions, register operands within the declared inputs,
// outputs and temporaries, constant, set and variable indices within their
// declarations, and termination with a done opcode as the last byte.
func (p *Program) Validate() error {
	if len(p.Constants) > MaxConstants {
		return ErrConstantLimit.NewError(itoa(len(p.Constants)), ">",
			itoa(MaxConstants))
	}
	if len(p.Inputs) > MaxInputRegisters {
		return ErrRegisterLimit.NewError("too many inputs",
			itoa(len(p.Inputs)))
	}
	if len(p.Outputs) > MaxOutputRegisters {
		return ErrRegisterLimit.NewError("too many outputs",
			itoa(len(p.Outputs)))
	}

	pc := 0
	for {
		ins, next, err := ReadInstruction(p.Code, pc)
		if err != nil {
			return err
		}
		if ins.Op == OpDone {
			if next != len(p.Code) {
				return ErrMalformedProgram.NewError("unreachable code after done at offset",
					itoa(pc))
			}
			return nil
		}
		if err := p.validateInstruction(&ins); err != nil {
			return fmt.Errorf("%s at offset %d: %w", OpcodeNames[ins.Op], pc, err)
		}
		pc = next
	}
}

func (p *Program) validateInstruction(ins *Instruction) error {
	layout := OpcodeLayouts[ins.Op]
	if layout != LayoutKernel {
		if int(ins.Set) >= len(p.DataSets) {
			return ErrMalformedProgram.NewError("undeclared data set",
				itoa(int(ins.Set)))
		}
		if layout == LayoutDataRead || layout == LayoutDataWrite {
			if int(ins.Var) >= len(p.DataSets[ins.Set].Variables) {
				return ErrMalformedProgram.NewError("undeclared variable",
					itoa(int(ins.Var)), "of data set", p.DataSets[ins.Set].Name)
			}
		}
	}
	for i, src := range ins.Sources() {
		if SourceKindOf(ins.Mask, i) == SourceConstant {
			if int(src) >= len(p.Constants) {
				return ErrMalformedProgram.NewError("undeclared constant",
					itoa(int(src)))
			}
			continue
		}
		if err := p.validateRegister(src, false); err != nil {
			return err
		}
	}
	if ins.Mask>>ins.NumSrc != 0 {
		return ErrMalformedProgram.NewError("mask 0x"+hexByte(ins.Mask),
			"has bits beyond", itoa(ins.NumSrc), "sources")
	}
	if HasDestination(ins.Op) {
		return p.validateRegister(ins.Dst, true)
	}
	return nil
}

func (p *Program) validateRegister(reg byte, dst bool) error {
	tag, index, ok := SplitRegister(reg)
	if !ok {
		return ErrRegisterLimit.NewError("register", itoa(int(reg)),
			"outside of the register table")
	}
	switch tag {
	case TagInput:
		if dst {
			return ErrRegisterLimit.NewError("input", itoa(index),
				"used as destination")
		}
		if index >= len(p.Inputs) {
			return ErrRegisterLimit.NewError("undeclared input", itoa(index))
		}
	case TagOutput:
		if index >= len(p.Outputs) {
			return ErrRegisterLimit.NewError("undeclared output", itoa(index))
		}
	}
	return nil
}

// Fprint writes declarations and instructions to given Writer in a human
// readable form.
func (p *Program) Fprint(w io.Writer) {
	_, _ = fmt.Fprintf(w, "Program %s\n", p.Name)
	_, _ = fmt.Fprintf(w, "Inputs: %s\n", strings.Join(p.Inputs, " "))
	_, _ = fmt.Fprintf(w, "Outputs: %s\n", strings.Join(p.Outputs, " "))
	_, _ = fmt.Fprintf(w, "DataSets:\n")
	for i, ds := range p.DataSets {
		_, _ = fmt.Fprintf(w, "%4d: %s [%s]\n", i, ds.Name,
			strings.Join(ds.Variables, " "))
	}
	_, _ = fmt.Fprintf(w, "Constants:\n")
	for i, c := range p.Constants {
		_, _ = fmt.Fprintf(w, "%4d: %s %s\n", i, c.Name, c.Value)
	}
	_, _ = fmt.Fprintf(w, "Instructions:\n")
	for _, line := range FormatInstructions(p.Code, 0) {
		_, _ = fmt.Fprintln(w, line)
	}
}

func (p *Program) String() string {
	var buf bytes.Buffer
	p.Fprint(&buf)
	return buf.String()
}

// FormatInstructions returns string representation of bytecode
// instructions, each prefixed with its offset. Decoding stops at the first
// malformed instruction, which is reported in the last line.
func FormatInstructions(code []byte, posOffset int) []string {
	var out []string
	for pc := 0; pc < len(code); {
		ins, next, err := ReadInstruction(code, pc)
		if err != nil {
			out = append(out, fmt.Sprintf("%04d %v", posOffset+pc, err))
			break
		}
		out = append(out, fmt.Sprintf("%04d %s", posOffset+pc, ins.String()))
		pc = next
	}
	return out
}

// Disassemble returns the assembly text of code, one instruction per line.
func Disassemble(code []byte) (string, error) {
	var sb strings.Builder
	for pc := 0; pc < len(code); {
		ins, next, err := ReadInstruction(code, pc)
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(ins.String())
		sb.WriteByte('\n')
		pc = next
	}
	return sb.String(), nil
}

// FormatRegister returns the assembly name of a register operand: t for
// temporaries, i for inputs, o for outputs, r for raw operands beyond the
// register table.
func FormatRegister(reg byte) string {
	tag, index, ok := SplitRegister(reg)
	if !ok {
		return "r" + itoa(int(reg))
	}
	switch tag {
	case TagInput:
		return "i" + itoa(index)
	case TagOutput:
		return "o" + itoa(index)
	default:
		return "t" + itoa(index)
	}
}

func (ins *Instruction) source(i int) string {
	if SourceKindOf(ins.Mask, i) == SourceConstant {
		return "c" + itoa(int(ins.Src[i]))
	}
	return FormatRegister(ins.Src[i])
}

// String returns the assembly text of the instruction. Destinations come
// first, followed by the set and variable operands and the sources.
func (ins *Instruction) String() string {
	name := OpcodeName(ins.Op)
	set := "s" + itoa(int(ins.Set))
	variable := "v" + itoa(int(ins.Var))
	var parts []string
	switch OpcodeLayouts[ins.Op] {
	case LayoutNone:
		return name
	case LayoutKernel:
		parts = append(parts, FormatRegister(ins.Dst))
	case LayoutCursor, LayoutIndexValid:
		parts = append(parts, FormatRegister(ins.Dst), set)
	case LayoutDataRead:
		parts = append(parts, FormatRegister(ins.Dst), set, variable)
	case LayoutDataWrite:
		parts = append(parts, set, variable)
	}
	for i := 0; i < ins.NumSrc; i++ {
		parts = append(parts, ins.source(i))
	}
	return name + " " + strings.Join(parts, ", ")
}
