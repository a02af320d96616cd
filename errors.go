// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import (
	"fmt"
	"strconv"
	"strings"
)

// Error represents an error with a name, a message and an optional cause.
type Error struct {
	Name    string
	Message string
	Cause   error
}

// Error implements error interface.
func (o *Error) Error() string {
	name := o.Name
	if name == "" {
		name = "error"
	}
	if o.Message == "" {
		return name
	}
	return fmt.Sprintf("%s: %s", name, o.Message)
}

func (o *Error) Unwrap() error {
	return o.Cause
}

// NewError creates a new Error and sets original Error as its cause which can be unwrapped.
func (o *Error) NewError(messages ...string) *Error {
	return &Error{
		Name:    o.Name,
		Message: strings.Join(messages, " "),
		Cause:   o,
	}
}

var (
	// ErrMalformedProgram represents a bytecode stream which breaks the
	// contract between the program producer and the executor. Executions
	// failing with it leave outputs partially written.
	ErrMalformedProgram = &Error{Name: "MalformedProgramError"}

	// ErrUnknownOpcode represents an opcode byte outside of the closed set.
	ErrUnknownOpcode = &Error{
		Name:  "UnknownOpcodeError",
		Cause: ErrMalformedProgram,
	}

	// ErrTruncatedProgram represents code ending inside an instruction or
	// without a done opcode.
	ErrTruncatedProgram = &Error{
		Name:  "TruncatedProgramError",
		Cause: ErrMalformedProgram,
	}

	// ErrRegisterLimit represents a register operand outside of the register
	// table category it must address.
	ErrRegisterLimit = &Error{
		Name:  "RegisterLimitError",
		Cause: ErrMalformedProgram,
	}

	// ErrConstantLimit represents too many constants for the 8-bit constant
	// index.
	ErrConstantLimit = &Error{
		Name:    "ConstantLimitError",
		Message: "number of constants exceeds the limit",
	}

	// ErrInvalidOperand represents an operand which cannot be encoded.
	ErrInvalidOperand = &Error{Name: "InvalidOperandError"}

	// ErrInvalidArgument represents invalid execution arguments.
	ErrInvalidArgument = &Error{Name: "InvalidArgumentError"}
)

func itoa(i int) string {
	return strconv.Itoa(i)
}

func hexByte(b byte) string {
	return fmt.Sprintf("%02x", b)
}
