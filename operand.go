// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

// SourceKind tells where a source operand is read from.
type SourceKind byte

// Source kinds. A set mask bit selects SourceConstant.
const (
	SourceRegister SourceKind = iota
	SourceConstant
)

func (k SourceKind) String() string {
	if k == SourceConstant {
		return "constant"
	}
	return "register"
}

// MakeSourceMask builds a source-location mask, bit i set when source
// operand i reads the constant table.
func MakeSourceMask(kinds ...SourceKind) byte {
	var mask byte
	for i, k := range kinds {
		if i >= MaxSourceOperands {
			break
		}
		if k == SourceConstant {
			mask |= 1 << i
		}
	}
	return mask
}

// SourceKindOf returns the kind of source operand i in mask.
func SourceKindOf(mask byte, i int) SourceKind {
	return SourceKind((mask >> i) & 1)
}

// decoder reads one program left to right without lookahead.
type decoder struct {
	code []byte
	pc   int
}

func (d *decoder) reset(code []byte) {
	d.code = code
	d.pc = 0
}

// more reports whether the next n bytes are available.
func (d *decoder) more(n int) bool {
	return d.pc+n <= len(d.code)
}

func (d *decoder) op() Opcode {
	op := d.code[d.pc]
	d.pc++
	return op
}

func (d *decoder) next() byte {
	b := d.code[d.pc]
	d.pc++
	return b
}
