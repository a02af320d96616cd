// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

// NamedConstant is a constant declared by a program with its default value.
type NamedConstant struct {
	Name  string
	Value Vector
}

// ConstantTable merges the constants declared by a program with values
// supplied by the caller. The table is built once per tick and is read only
// during execution.
type ConstantTable struct {
	declared []NamedConstant
	index    map[string]int
	buf      []Vector
}

// NewConstantTable returns a table for declared, in declaration order.
func NewConstantTable(declared []NamedConstant) (*ConstantTable, error) {
	if len(declared) > MaxConstants {
		return nil, ErrConstantLimit.NewError(itoa(len(declared)), ">",
			itoa(MaxConstants))
	}
	t := &ConstantTable{
		declared: declared,
		index:    make(map[string]int, len(declared)),
		buf:      make([]Vector, len(declared)),
	}
	for i, c := range declared {
		if _, ok := t.index[c.Name]; !ok {
			t.index[c.Name] = i
		}
	}
	return t, nil
}

// Len returns the number of constants.
func (t *ConstantTable) Len() int {
	return len(t.declared)
}

// Index returns the index of the named constant or -1.
func (t *ConstantTable) Index(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Build returns the constant table with external values overriding declared
// defaults by name. Names not declared by the program are ignored. The
// returned slice is reused by the next Build call.
func (t *ConstantTable) Build(external map[string]Vector) []Vector {
	for i, c := range t.declared {
		if v, ok := external[c.Name]; ok {
			t.buf[i] = v
		} else {
			t.buf[i] = c.Value
		}
	}
	return t.buf
}
