// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package encoder

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/ozanh/vecvm"
)

// EncodeProgramTo encodes given p to w io.Writer.
func EncodeProgramTo(p *vecvm.Program, w io.Writer) error {
	return (*Program)(p).Encode(w)
}

// DecodeProgramFrom decodes *vecvm.Program from given r io.Reader.
func DecodeProgramFrom(r io.Reader) (*vecvm.Program, error) {
	var p Program
	err := p.Decode(r)
	return (*vecvm.Program)(&p), err
}

// Encode writes encoded data of Program to writer.
func (p *Program) Encode(w io.Writer) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	n, err := w.Write(data)
	if err != nil {
		return err
	}

	if n != len(data) {
		return errors.New("short write")
	}
	return nil
}

// Decode decodes Program data from the reader.
func (p *Program) Decode(r io.Reader) error {
	dst := bytes.NewBuffer(nil)
	if _, err := io.Copy(dst, r); err != nil {
		return err
	}
	return p.UnmarshalBinary(dst.Bytes())
}

// WriteFile writes the image of p to the named file.
func WriteFile(name string, p *vecvm.Program) error {
	data, err := (*Program)(p).MarshalBinary()
	if err != nil {
		return err
	}
	return os.WriteFile(name, data, 0o644)
}

// ReadFile reads a program image from the named file and validates it.
func ReadFile(name string) (*vecvm.Program, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var p Program
	if err := p.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	prog := (*vecvm.Program)(&p)
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return prog, nil
}
