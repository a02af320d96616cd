// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

// Opcode represents a single byte operation code.
type Opcode = byte

// List of opcodes
const (
	OpDone Opcode = iota
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMad
	OpLerp
	OpRcp
	OpRsq
	OpSqrt
	OpNeg
	OpAbs
	OpExp
	OpExp2
	OpLog
	OpLog2
	OpSin
	OpCos
	OpTan
	OpASin
	OpACos
	OpATan
	OpATan2
	OpCeil
	OpFloor
	OpFmod
	OpFrac
	OpTrunc
	OpClamp
	OpMin
	OpMax
	OpPow
	OpSign
	OpStep
	OpDot
	OpCross
	OpNormalize
	OpRandom
	OpLength
	OpNoise
	OpSplatX
	OpSplatY
	OpSplatZ
	OpSplatW
	OpCompose
	OpComposeX
	OpComposeY
	OpComposeZ
	OpComposeW
	OpLessThan
	OpSelect
	OpEaseIn
	OpEaseInOut
	OpOutput
	OpAcquireIndex
	OpAcquireIndexWrap
	OpConsumeIndex
	OpConsumeIndexWrap
	OpSharedDataRead
	OpSharedDataWrite
	OpSharedDataIndexValid

	// NumOpcodes is the size of the closed opcode set. Any byte greater or
	// equal is malformed.
	NumOpcodes
)

// OpcodeNames are the mnemonics of opcodes.
var OpcodeNames = [...]string{
	OpDone:                 "done",
	OpAdd:                  "add",
	OpSub:                  "sub",
	OpMul:                  "mul",
	OpDiv:                  "div",
	OpMad:                  "mad",
	OpLerp:                 "lerp",
	OpRcp:                  "rcp",
	OpRsq:                  "rsq",
	OpSqrt:                 "sqrt",
	OpNeg:                  "neg",
	OpAbs:                  "abs",
	OpExp:                  "exp",
	OpExp2:                 "exp2",
	OpLog:                  "log",
	OpLog2:                 "log2",
	OpSin:                  "sin",
	OpCos:                  "cos",
	OpTan:                  "tan",
	OpASin:                 "asin",
	OpACos:                 "acos",
	OpATan:                 "atan",
	OpATan2:                "atan2",
	OpCeil:                 "ceil",
	OpFloor:                "floor",
	OpFmod:                 "fmod",
	OpFrac:                 "frac",
	OpTrunc:                "trunc",
	OpClamp:                "clamp",
	OpMin:                  "min",
	OpMax:                  "max",
	OpPow:                  "pow",
	OpSign:                 "sign",
	OpStep:                 "step",
	OpDot:                  "dot",
	OpCross:                "cross",
	OpNormalize:            "normalize",
	OpRandom:               "random",
	OpLength:               "length",
	OpNoise:                "noise",
	OpSplatX:               "splatx",
	OpSplatY:               "splaty",
	OpSplatZ:               "splatz",
	OpSplatW:               "splatw",
	OpCompose:              "compose",
	OpComposeX:             "composex",
	OpComposeY:             "composey",
	OpComposeZ:             "composez",
	OpComposeW:             "composew",
	OpLessThan:             "lessthan",
	OpSelect:               "select",
	OpEaseIn:               "easein",
	OpEaseInOut:            "easeinout",
	OpOutput:               "output",
	OpAcquireIndex:         "acquireindex",
	OpAcquireIndexWrap:     "acquireindexwrap",
	OpConsumeIndex:         "consumeindex",
	OpConsumeIndexWrap:     "consumeindexwrap",
	OpSharedDataRead:       "shareddataread",
	OpSharedDataWrite:      "shareddatawrite",
	OpSharedDataIndexValid: "shareddataindexvalid",
}

// Layout is the operand layout category of an opcode.
type Layout byte

// Operand layouts. Every layout but LayoutNone starts its sources with a
// source-location mask byte.
const (
	// LayoutNone has no operands.
	LayoutNone Layout = iota
	// LayoutKernel is [op][mask][src]×arity[dst].
	LayoutKernel
	// LayoutCursor is [op][set][mask][cond][dst].
	LayoutCursor
	// LayoutDataRead is [op][set][var][mask][index][dst].
	LayoutDataRead
	// LayoutDataWrite is [op][set][var][mask][index][value].
	LayoutDataWrite
	// LayoutIndexValid is [op][set][mask][index][dst].
	LayoutIndexValid
)

var layoutNames = [...]string{
	LayoutNone:       "none",
	LayoutKernel:     "kernel",
	LayoutCursor:     "cursor",
	LayoutDataRead:   "read",
	LayoutDataWrite:  "write",
	LayoutIndexValid: "valid",
}

func (l Layout) String() string {
	if int(l) < len(layoutNames) {
		return layoutNames[l]
	}
	return "invalid"
}

// OpcodeArity is the number of source operands of each opcode.
var OpcodeArity = [...]int{
	OpDone:                 0,
	OpAdd:                  2,
	OpSub:                  2,
	OpMul:                  2,
	OpDiv:                  2,
	OpMad:                  3,
	OpLerp:                 3,
	OpRcp:                  1,
	OpRsq:                  1,
	OpSqrt:                 1,
	OpNeg:                  1,
	OpAbs:                  1,
	OpExp:                  1,
	OpExp2:                 1,
	OpLog:                  1,
	OpLog2:                 1,
	OpSin:                  1,
	OpCos:                  1,
	OpTan:                  1,
	OpASin:                 1,
	OpACos:                 1,
	OpATan:                 1,
	OpATan2:                2,
	OpCeil:                 1,
	OpFloor:                1,
	OpFmod:                 2,
	OpFrac:                 1,
	OpTrunc:                1,
	OpClamp:                3,
	OpMin:                  2,
	OpMax:                  2,
	OpPow:                  2,
	OpSign:                 1,
	OpStep:                 1,
	OpDot:                  2,
	OpCross:                2,
	OpNormalize:            1,
	OpRandom:               1,
	OpLength:               1,
	OpNoise:                1,
	OpSplatX:               1,
	OpSplatY:               1,
	OpSplatZ:               1,
	OpSplatW:               1,
	OpCompose:              4,
	OpComposeX:             4,
	OpComposeY:             4,
	OpComposeZ:             4,
	OpComposeW:             4,
	OpLessThan:             2,
	OpSelect:               3,
	OpEaseIn:               3,
	OpEaseInOut:            1,
	OpOutput:               1,
	OpAcquireIndex:         1, // condition
	OpAcquireIndexWrap:     1, // condition
	OpConsumeIndex:         1, // condition
	OpConsumeIndexWrap:     1, // condition
	OpSharedDataRead:       1, // index
	OpSharedDataWrite:      2, // index, value
	OpSharedDataIndexValid: 1, // index
}

// OpcodeLayouts is the operand layout of each opcode.
var OpcodeLayouts = [...]Layout{
	OpDone:                 LayoutNone,
	OpAcquireIndex:         LayoutCursor,
	OpAcquireIndexWrap:     LayoutCursor,
	OpConsumeIndex:         LayoutCursor,
	OpConsumeIndexWrap:     LayoutCursor,
	OpSharedDataRead:       LayoutDataRead,
	OpSharedDataWrite:      LayoutDataWrite,
	OpSharedDataIndexValid: LayoutIndexValid,
}

func init() {
	// Every opcode not listed above is a kernel.
	for op := OpAdd; op < NumOpcodes; op++ {
		if OpcodeLayouts[op] == LayoutNone {
			OpcodeLayouts[op] = LayoutKernel
		}
	}
}

// IsValidOpcode reports whether op belongs to the closed opcode set.
func IsValidOpcode(op Opcode) bool {
	return op < NumOpcodes
}

// OpcodeName returns the mnemonic of op or a hex form for unknown bytes.
func OpcodeName(op Opcode) string {
	if IsValidOpcode(op) {
		return OpcodeNames[op]
	}
	return "op(0x" + hexByte(op) + ")"
}

// OperandWidth returns the number of bytes following the opcode byte.
func OperandWidth(op Opcode) int {
	arity := OpcodeArity[op]
	switch OpcodeLayouts[op] {
	case LayoutKernel:
		return 1 + arity + 1 // mask, sources, dst
	case LayoutCursor, LayoutIndexValid:
		return 1 + 1 + arity + 1 // set, mask, source, dst
	case LayoutDataRead:
		return 2 + 1 + arity + 1 // set, var, mask, index, dst
	case LayoutDataWrite:
		return 2 + 1 + arity // set, var, mask, index, value
	default:
		return 0
	}
}

// HasDestination reports whether instructions of op write a register.
func HasDestination(op Opcode) bool {
	switch OpcodeLayouts[op] {
	case LayoutNone, LayoutDataWrite:
		return false
	}
	return true
}

// Instruction is a decoded instruction. It is used by tooling; the executor
// decodes in place.
type Instruction struct {
	Op     Opcode
	Set    byte
	Var    byte
	Mask   byte
	NumSrc int
	Src    [MaxSourceOperands]byte
	Dst    byte
}

// Sources returns the source operand indices.
func (ins *Instruction) Sources() []byte {
	return ins.Src[:ins.NumSrc]
}

// ReadInstruction decodes the instruction at offset pc of code and returns it
// with the offset of the next instruction.
func ReadInstruction(code []byte, pc int) (Instruction, int, error) {
	var ins Instruction
	if pc >= len(code) {
		return ins, pc, ErrTruncatedProgram.NewError("offset", itoa(pc),
			"past end of code")
	}
	op := code[pc]
	if !IsValidOpcode(op) {
		return ins, pc, ErrUnknownOpcode.NewError("0x"+hexByte(op), "at offset",
			itoa(pc))
	}
	width := OperandWidth(op)
	if pc+1+width > len(code) {
		return ins, pc, ErrTruncatedProgram.NewError(OpcodeNames[op],
			"at offset", itoa(pc), "needs", itoa(width), "operand bytes")
	}
	ins.Op = op
	ins.NumSrc = OpcodeArity[op]
	operands := code[pc+1 : pc+1+width]
	var off int
	switch OpcodeLayouts[op] {
	case LayoutNone:
		return ins, pc + 1, nil
	case LayoutCursor, LayoutIndexValid:
		ins.Set = operands[0]
		off = 1
	case LayoutDataRead, LayoutDataWrite:
		ins.Set = operands[0]
		ins.Var = operands[1]
		off = 2
	}
	ins.Mask = operands[off]
	off++
	copy(ins.Src[:ins.NumSrc], operands[off:off+ins.NumSrc])
	off += ins.NumSrc
	if HasDestination(op) {
		ins.Dst = operands[off]
	}
	return ins, pc + 1 + width, nil
}
