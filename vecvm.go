// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package vecvm implements a chunked, register based bytecode virtual machine
// which runs straight-line vector programs over large arrays of particle
// attributes, and the shared data views scripts use to hand event records to
// each other within one simulation tick.
//
// A register operand byte addresses one unified table laid out as
// temporaries, then inputs, then outputs. Constants live in a separate table
// selected by the source-location mask of each instruction.
//
// The executor trusts its bytecode. Operand indices, register counts and
// instruction arities are guaranteed by the producer of the program (see
// Program.Validate), never checked while running.
package vecvm

// Register table and chunk limits.
const (
	// ElementsPerVector is the number of lanes in a Vector.
	ElementsPerVector = 4

	// DefaultChunkSize is the number of instances processed together
	// through the whole program before the next chunk begins.
	DefaultChunkSize = 128

	NumTempRegisters   = 64
	MaxInputRegisters  = 64
	MaxOutputRegisters = 64
	MaxConstants       = 256

	FirstTempRegister   = 0
	FirstInputRegister  = FirstTempRegister + NumTempRegisters
	FirstOutputRegister = FirstInputRegister + MaxInputRegisters
	MaxRegisters        = FirstOutputRegister + MaxOutputRegisters

	// MaxSourceOperands is the largest kernel arity.
	MaxSourceOperands = 4
)

// InvalidIndex is the index returned by shared data cursor operations which
// could not produce a slot. It is never valid for any view.
const InvalidIndex = -1

// BigNumber scales the difference in lessthan, twice, so any positive difference
// saturates to one.
const BigNumber float32 = 3.4e+38
