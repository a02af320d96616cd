package encoder_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ozanh/vecvm"
	. "github.com/ozanh/vecvm/encoder"
)

func sampleProgram(t testing.TB) *vecvm.Program {
	b := vecvm.NewBuilder("sample")
	g := b.Constant("gravity", vecvm.Vec(0, -9.8, 0, 0))
	dt := b.Constant("dt", vecvm.Splat(1.0/60))
	pos := b.Input("position")
	vel := b.Input("velocity")
	events := b.DataSet("collisions", "position", "normal")
	b.Emit(vecvm.OpMad, vecvm.Temp(0), g, dt, vel).
		Emit(vecvm.OpMad, vecvm.Temp(1), vecvm.Temp(0), dt, pos).
		Emit(vecvm.OpOutput, b.Output("position"), vecvm.Temp(1)).
		Emit(vecvm.OpOutput, b.Output("velocity"), vecvm.Temp(0)).
		Cursor(vecvm.OpAcquireIndex, events, vecvm.Temp(1), vecvm.Temp(2)).
		Write(events, 0, vecvm.Temp(2), vecvm.Temp(1)).
		Done()
	p, err := b.Program()
	require.NoError(t, err)
	require.NoError(t, p.Validate())
	return p
}

func TestProgramRoundTrip(t *testing.T) {
	p := sampleProgram(t)

	var buf bytes.Buffer
	require.NoError(t, EncodeProgramTo(p, &buf))

	data := buf.Bytes()
	require.Equal(t, ProgramSignature, binary.BigEndian.Uint32(data[0:4]))
	require.Equal(t, ProgramVersion, binary.BigEndian.Uint16(data[4:6]))

	got, err := DecodeProgramFrom(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestProgramEncodingIsCanonical(t *testing.T) {
	a, err := (*Program)(sampleProgram(t)).MarshalBinary()
	require.NoError(t, err)
	b, err := (*Program)(sampleProgram(t)).MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestProgramSpecialValues(t *testing.T) {
	p := &vecvm.Program{
		Code: []byte{vecvm.OpDone},
		Constants: []vecvm.NamedConstant{
			{Name: "odd", Value: vecvm.Vec(float32(math.Inf(1)), float32(math.Inf(-1)),
				math.SmallestNonzeroFloat32, math.MaxFloat32)},
			{Name: "nan", Value: vecvm.Splat(float32(math.NaN()))},
		},
	}
	data, err := (*Program)(p).MarshalBinary()
	require.NoError(t, err)

	var got Program
	require.NoError(t, got.UnmarshalBinary(data))
	require.Equal(t, p.Constants[0], got.Constants[0])
	for _, lane := range got.Constants[1].Value {
		require.True(t, math.IsNaN(float64(lane)))
	}
}

func TestProgramUnmarshalErrors(t *testing.T) {
	var p Program
	require.True(t, errors.Is(p.UnmarshalBinary(nil), ErrInvalidImage))
	require.True(t, errors.Is(p.UnmarshalBinary([]byte{0, 0x56, 0x56}), ErrInvalidImage))

	data, err := (*Program)(sampleProgram(t)).MarshalBinary()
	require.NoError(t, err)

	bad := append([]byte(nil), data...)
	bad[1] = 'X'
	err = p.UnmarshalBinary(bad)
	require.True(t, errors.Is(err, ErrSignatureMismatch), "%v", err)

	bad = append([]byte(nil), data...)
	binary.BigEndian.PutUint16(bad[4:6], ProgramVersion+1)
	err = p.UnmarshalBinary(bad)
	require.True(t, errors.Is(err, ErrUnsupportedVersion), "%v", err)
	require.Contains(t, err.Error(), "unsupported version: 2")

	err = p.UnmarshalBinary(data[:len(data)-3])
	require.Error(t, err)
}

func TestProgramFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "sample.vvmc")
	p := sampleProgram(t)
	require.NoError(t, WriteFile(name, p))

	got, err := ReadFile(name)
	require.NoError(t, err)
	require.Equal(t, p, got)

	p.Code = []byte{0xFF}
	require.NoError(t, WriteFile(name, p))
	_, err = ReadFile(name)
	require.True(t, errors.Is(err, vecvm.ErrUnknownOpcode), "%v", err)
}
