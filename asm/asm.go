// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package asm translates the text form of vector programs into bytecode.
//
// One instruction is written per line as a mnemonic followed by comma
// separated operands, destination first:
//
//	mul t0, c0, i0        # t0 = const[0] * input[0]
//	add t1, t0, c1
//	output o0, t1
//	acquireindex t2, s0, c2
//	shareddatawrite s0, v1, t2, t1
//	done
//
// Operands are tN temporaries, iN inputs, oN outputs, rN raw register
// operands, cN constants, sN shared data sets and vN set variables. Text
// after # or ; is a comment. A leading decimal offset, as printed by
// vecvm.FormatInstructions, is ignored.
//
// Directives declare what the operands refer to. Declarations are indexed
// in the order they appear:
//
//	.name     integrate
//	.input    position velocity
//	.output   position
//	.const    dt 0.016                # splatted
//	.const    gravity 0 -9.8 0 0
//	.dataset  collisions position normal
package asm

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/ozanh/vecvm"
)

// Error represents an assembler error.
type Error struct {
	Line int
	Text string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("asm: line %d: %q: %v", e.Line, e.Text, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var mnemonics = func() map[string]vecvm.Opcode {
	m := make(map[string]vecvm.Opcode, vecvm.NumOpcodes)
	for op, name := range vecvm.OpcodeNames {
		m[name] = vecvm.Opcode(op)
	}
	return m
}()

// Parse returns the program of src with its declarations. The program is
// not validated; see vecvm.Program.Validate.
func Parse(src []byte) (*vecvm.Program, error) {
	p := &vecvm.Program{}
	sc := bufio.NewScanner(bytes.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		var err error
		if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, ".") {
			err = parseDirective(p, trimmed)
		} else {
			p.Code, err = assembleLine(p.Code, text)
		}
		if err != nil {
			return nil, &Error{Line: line, Text: strings.TrimSpace(text), Err: err}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// Assemble returns the bytecode of src.
func Assemble(src []byte) ([]byte, error) {
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return p.Code, nil
}

// AssembleString is Assemble for a string source.
func AssembleString(src string) ([]byte, error) {
	return Assemble([]byte(src))
}

func parseDirective(p *vecvm.Program, text string) error {
	fields := strings.Fields(stripComment(text))
	if len(fields) < 2 {
		return vecvm.ErrInvalidOperand.NewError("directive", fields[0],
			"needs a name")
	}
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case ".name":
		if len(args) != 1 {
			return vecvm.ErrInvalidOperand.NewError(".name takes one name")
		}
		p.Name = args[0]
	case ".input":
		p.Inputs = append(p.Inputs, args...)
	case ".output":
		p.Outputs = append(p.Outputs, args...)
	case ".const":
		v, err := ParseVector(args[1:])
		if err != nil {
			return err
		}
		p.Constants = append(p.Constants, vecvm.NamedConstant{Name: args[0], Value: v})
	case ".dataset":
		p.DataSets = append(p.DataSets, vecvm.DataSetDecl{
			Name:      args[0],
			Variables: append([]string(nil), args[1:]...),
		})
	default:
		return vecvm.ErrInvalidOperand.NewError("unknown directive", fields[0])
	}
	return nil
}

// ParseVector parses one lane, which is splatted, or four lanes.
func ParseVector(lanes []string) (vecvm.Vector, error) {
	var v vecvm.Vector
	if len(lanes) != 1 && len(lanes) != vecvm.ElementsPerVector {
		return v, vecvm.ErrInvalidOperand.NewError("vector needs 1 or 4 lanes, got",
			strconv.Itoa(len(lanes)))
	}
	for i, s := range lanes {
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return v, vecvm.ErrInvalidOperand.NewError("lane", strconv.Quote(s),
				"is not a number")
		}
		v[i] = float32(f)
	}
	if len(lanes) == 1 {
		v = vecvm.Splat(v[0])
	}
	return v, nil
}

// Format returns the text of p, directives first. Parse of the result
// returns a program equal to p.
func Format(p *vecvm.Program) (string, error) {
	var sb strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&sb, ".name %s\n", p.Name)
	}
	if len(p.Inputs) > 0 {
		fmt.Fprintf(&sb, ".input %s\n", strings.Join(p.Inputs, " "))
	}
	if len(p.Outputs) > 0 {
		fmt.Fprintf(&sb, ".output %s\n", strings.Join(p.Outputs, " "))
	}
	for _, c := range p.Constants {
		v := c.Value
		fmt.Fprintf(&sb, ".const %s %s %s %s %s\n", c.Name, formatLane(v[0]),
			formatLane(v[1]), formatLane(v[2]), formatLane(v[3]))
	}
	for _, ds := range p.DataSets {
		sb.WriteString(strings.TrimSpace(".dataset " + ds.Name + " " +
			strings.Join(ds.Variables, " ")))
		sb.WriteByte('\n')
	}
	text, err := vecvm.Disassemble(p.Code)
	sb.WriteString(text)
	return sb.String(), err
}

func formatLane(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func stripComment(s string) string {
	if i := strings.IndexAny(s, "#;"); i >= 0 {
		return s[:i]
	}
	return s
}

func assembleLine(code []byte, text string) ([]byte, error) {
	fields := strings.Fields(stripComment(text))
	if len(fields) == 0 {
		return code, nil
	}
	if isDecimal(fields[0]) {
		fields = fields[1:]
		if len(fields) == 0 {
			return code, nil
		}
	}
	name := strings.ToLower(fields[0])
	op, ok := mnemonics[name]
	if !ok {
		return nil, vecvm.ErrUnknownOpcode.NewError("mnemonic", fields[0])
	}

	var args []string
	if rest := strings.Join(fields[1:], " "); strings.TrimSpace(rest) != "" {
		for _, a := range strings.Split(rest, ",") {
			args = append(args, strings.TrimSpace(a))
		}
	}

	ins, err := parseInstruction(op, args)
	if err != nil {
		return nil, err
	}
	return ins.Append(code), nil
}

func parseInstruction(op vecvm.Opcode, args []string) (vecvm.Instruction, error) {
	var (
		dst      vecvm.Operand
		set, vr  int
		srcStart int
		err      error
	)
	layout := vecvm.OpcodeLayouts[op]
	want := vecvm.OpcodeArity[op]
	switch layout {
	case vecvm.LayoutKernel:
		want++
		srcStart = 1
	case vecvm.LayoutCursor, vecvm.LayoutIndexValid:
		want += 2
		srcStart = 2
	case vecvm.LayoutDataRead:
		want += 3
		srcStart = 3
	case vecvm.LayoutDataWrite:
		want += 2
		srcStart = 2
	}
	if len(args) != want {
		return vecvm.Instruction{}, vecvm.ErrInvalidOperand.NewError(
			vecvm.OpcodeNames[op], "expects", strconv.Itoa(want),
			"operands, got", strconv.Itoa(len(args)))
	}

	switch layout {
	case vecvm.LayoutKernel:
		dst, err = parseDestination(args[0])
	case vecvm.LayoutCursor, vecvm.LayoutIndexValid:
		if dst, err = parseDestination(args[0]); err == nil {
			set, err = parseIndexed(args[1], 's')
		}
	case vecvm.LayoutDataRead:
		if dst, err = parseDestination(args[0]); err == nil {
			if set, err = parseIndexed(args[1], 's'); err == nil {
				vr, err = parseIndexed(args[2], 'v')
			}
		}
	case vecvm.LayoutDataWrite:
		if set, err = parseIndexed(args[0], 's'); err == nil {
			vr, err = parseIndexed(args[1], 'v')
		}
	}
	if err != nil {
		return vecvm.Instruction{}, err
	}

	srcs := make([]vecvm.Operand, 0, vecvm.MaxSourceOperands)
	for _, a := range args[srcStart:] {
		o, err := parseSource(a)
		if err != nil {
			return vecvm.Instruction{}, err
		}
		srcs = append(srcs, o)
	}
	return vecvm.NewInstruction(op, set, vr, dst, srcs...)
}

func parseSource(s string) (vecvm.Operand, error) {
	if len(s) > 0 && (s[0] == 'c' || s[0] == 'C') {
		i, err := parseNumber(s, vecvm.MaxConstants)
		if err != nil {
			return vecvm.Operand{}, err
		}
		return vecvm.Const(i), nil
	}
	return parseRegister(s)
}

func parseDestination(s string) (vecvm.Operand, error) {
	o, err := parseSource(s)
	if err == nil && o.Kind == vecvm.SourceConstant {
		return o, vecvm.ErrInvalidOperand.NewError("constant", s,
			"used as destination")
	}
	return o, err
}

func parseRegister(s string) (vecvm.Operand, error) {
	if s == "" {
		return vecvm.Operand{}, vecvm.ErrInvalidOperand.NewError("empty operand")
	}
	var (
		tag   vecvm.RegisterTag
		limit int
	)
	switch s[0] {
	case 't', 'T':
		tag, limit = vecvm.TagTemporary, vecvm.NumTempRegisters
	case 'i', 'I':
		tag, limit = vecvm.TagInput, vecvm.MaxInputRegisters
	case 'o', 'O':
		tag, limit = vecvm.TagOutput, vecvm.MaxOutputRegisters
	case 'r', 'R':
		i, err := parseNumber(s, 256)
		if err != nil {
			return vecvm.Operand{}, err
		}
		return vecvm.Operand{Index: byte(i)}, nil
	default:
		return vecvm.Operand{}, vecvm.ErrInvalidOperand.NewError("unknown operand", s)
	}
	i, err := parseNumber(s, limit)
	if err != nil {
		return vecvm.Operand{}, err
	}
	return vecvm.Operand{Index: byte(vecvm.RegisterIndex(tag, i))}, nil
}

func parseIndexed(s string, prefix byte) (int, error) {
	if s == "" || (s[0]|0x20) != prefix {
		return 0, vecvm.ErrInvalidOperand.NewError("expected", string(prefix)+"N,",
			"got", strconv.Quote(s))
	}
	return parseNumber(s, 256)
}

// parseNumber parses the decimal number following the one letter prefix of
// s and checks it is less than limit.
func parseNumber(s string, limit int) (int, error) {
	if len(s) < 2 || !isDecimal(s[1:]) {
		return 0, vecvm.ErrInvalidOperand.NewError("malformed operand", strconv.Quote(s))
	}
	i, err := strconv.Atoi(s[1:])
	if err != nil || i >= limit {
		return 0, vecvm.ErrInvalidOperand.NewError("operand", s, "out of range")
	}
	return i, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
