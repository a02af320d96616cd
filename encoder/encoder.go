// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

// Package encoder reads and writes program images: a signature and version
// header followed by the canonical CBOR encoding of a vecvm.Program.
package encoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/fxamacker/cbor/v2"

	"github.com/ozanh/vecvm"
)

// Program signature and version are written to the header of encoded
// programs. Programs are encoded with the current ProgramVersion.
const (
	ProgramSignature uint32 = 0x0056564D
	ProgramVersion1  uint16 = 1
	ProgramVersion          = ProgramVersion1
)

const headerSize = 6

var (
	// ErrInvalidImage represents data too short to hold a header.
	ErrInvalidImage = &vecvm.Error{
		Name:    "encoder.Program.UnmarshalBinary",
		Message: "invalid data",
	}
	// ErrSignatureMismatch represents data which is not a program image.
	ErrSignatureMismatch = &vecvm.Error{
		Name:    "encoder.Program.UnmarshalBinary",
		Message: "signature mismatch",
	}
	// ErrUnsupportedVersion represents an image of an unknown version.
	ErrUnsupportedVersion = &vecvm.Error{
		Name:    "encoder.Program.UnmarshalBinary",
		Message: "unsupported version",
	}
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("encoder: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Program implements encoding.BinaryMarshaler and
// encoding.BinaryUnmarshaler for vecvm.Program.
type Program vecvm.Program

type constantV1 struct {
	Name  string       `cbor:"1,keyasint"`
	Value vecvm.Vector `cbor:"2,keyasint"`
}

type dataSetV1 struct {
	Name      string   `cbor:"1,keyasint"`
	Variables []string `cbor:"2,keyasint,omitempty"`
}

type programV1 struct {
	Name      string       `cbor:"1,keyasint,omitempty"`
	Code      []byte       `cbor:"2,keyasint"`
	Constants []constantV1 `cbor:"3,keyasint,omitempty"`
	Inputs    []string     `cbor:"4,keyasint,omitempty"`
	Outputs   []string     `cbor:"5,keyasint,omitempty"`
	DataSets  []dataSetV1  `cbor:"6,keyasint,omitempty"`
}

// MarshalBinary implements encoding.BinaryMarshaler
func (p *Program) MarshalBinary() ([]byte, error) {
	switch ProgramVersion {
	case ProgramVersion1:
		var buf bytes.Buffer
		if err := writeProgramHeader(&buf, ProgramVersion1); err != nil {
			return nil, err
		}
		if err := p.encodeV1(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		panic("invalid Program version:" + strconv.Itoa(int(ProgramVersion)))
	}
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler
func (p *Program) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize {
		return ErrInvalidImage
	}
	if sig := binary.BigEndian.Uint32(data[0:4]); sig != ProgramSignature {
		return ErrSignatureMismatch.NewError("signature mismatch:",
			"0x"+strconv.FormatUint(uint64(sig), 16))
	}
	version := binary.BigEndian.Uint16(data[4:6])
	switch version {
	case ProgramVersion1:
		return p.decodeV1(data[headerSize:])
	default:
		return ErrUnsupportedVersion.NewError("unsupported version:",
			strconv.Itoa(int(version)))
	}
}

func writeProgramHeader(w io.Writer, version uint16) error {
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[0:4], ProgramSignature)
	binary.BigEndian.PutUint16(header[4:6], version)
	_, err := w.Write(header[:])
	return err
}

func (p *Program) encodeV1(w io.Writer) error {
	v := programV1{
		Name:    p.Name,
		Code:    p.Code,
		Inputs:  p.Inputs,
		Outputs: p.Outputs,
	}
	for _, c := range p.Constants {
		v.Constants = append(v.Constants, constantV1{Name: c.Name, Value: c.Value})
	}
	for _, ds := range p.DataSets {
		v.DataSets = append(v.DataSets, dataSetV1{Name: ds.Name, Variables: ds.Variables})
	}
	data, err := cborEncMode.Marshal(&v)
	if err != nil {
		return fmt.Errorf("encoder: marshal program: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func (p *Program) decodeV1(data []byte) error {
	var v programV1
	if err := cbor.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("encoder: unmarshal program: %w", err)
	}
	*p = Program{
		Name:    v.Name,
		Code:    v.Code,
		Inputs:  v.Inputs,
		Outputs: v.Outputs,
	}
	for _, c := range v.Constants {
		p.Constants = append(p.Constants, vecvm.NamedConstant{Name: c.Name, Value: c.Value})
	}
	for _, ds := range v.DataSets {
		p.DataSets = append(p.DataSets, vecvm.DataSetDecl{
			Name:      ds.Name,
			Variables: ds.Variables,
		})
	}
	return nil
}
