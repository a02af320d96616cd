package vecvm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	. "github.com/ozanh/vecvm"
)

func TestSharedDataViewAcquire(t *testing.T) {
	const size = 5
	v := NewSharedDataView("events", size)
	for i := 0; i < size; i++ {
		require.Equal(t, i, v.AcquireIndex())
	}
	require.Equal(t, size, v.AcquireIndex())
	require.Equal(t, size, v.AcquireIndex())
	require.Equal(t, size, v.Counter)
	require.False(t, v.ValidIndex(size))

	w := NewSharedDataView("events", size)
	for i := 0; i < size; i++ {
		require.Equal(t, i, w.AcquireIndexWrap())
	}
	require.Equal(t, 0, w.AcquireIndexWrap())
}

func TestSharedDataViewAcquireWrapSequence(t *testing.T) {
	v := NewSharedDataView("ring", 3)
	var got []int
	for i := 0; i < 5; i++ {
		got = append(got, v.AcquireIndexWrap())
	}
	require.Equal(t, []int{0, 1, 2, 0, 1}, got)
}

func TestSharedDataViewConsume(t *testing.T) {
	v := NewSharedDataView("events", 4)
	v.Counter = 2
	require.Equal(t, 2, v.ConsumeIndex())
	require.Equal(t, 1, v.ConsumeIndex())
	require.Equal(t, 0, v.ConsumeIndex())
	require.Equal(t, 0, v.ConsumeIndex())
	require.Equal(t, 0, v.Counter)

	v.Counter = 1
	var got []int
	for i := 0; i < 5; i++ {
		got = append(got, v.ConsumeIndexWrap())
	}
	require.Equal(t, []int{1, 0, 3, 2, 1}, got)
}

func TestSharedDataViewEmpty(t *testing.T) {
	v := NewSharedDataView("empty", 0)
	require.Equal(t, InvalidIndex, v.AcquireIndexWrap())
	require.Equal(t, InvalidIndex, v.ConsumeIndexWrap())
	require.Equal(t, 0, v.AcquireIndex())
	require.Equal(t, 0, v.ConsumeIndex())
	require.Equal(t, 0, v.Counter)
	require.False(t, v.ValidIndex(0))

	require.Equal(t, 0, NewSharedDataView("negative", -3).Size)
	require.Equal(t, MaxSharedDataSize,
		NewSharedDataView("huge", MaxSharedDataSize+1).Size)
}

func TestSharedDataViewDummyCells(t *testing.T) {
	const size = 4
	buf := NewBuffer(size)
	v := NewSharedDataView("events", size)
	idx := v.AddVariable("position", buf)
	require.Equal(t, 0, idx)

	sentinel := Vec(-7, -7, -7, -7)
	for _, i := range []int{-100, -1, size, size + 1, 1 << 20, InvalidIndex} {
		*v.GetWriteBuffer(idx, i) = sentinel
		require.Equal(t, Vector{}, *v.GetReadBuffer(idx, i), "index %d", i)
	}
	require.Equal(t, NewBuffer(size), buf)

	for i := 0; i < size; i++ {
		*v.GetWriteBuffer(idx, i) = Splat(float32(i))
		require.Same(t, &buf[i], v.GetWriteBuffer(idx, i))
		require.Same(t, &buf[i], v.GetReadBuffer(idx, i))
	}
	require.Equal(t, Splat(3), buf[3])

	// Writing through the read cell never leaks into later reads.
	*v.GetReadBuffer(idx, -1) = sentinel
	require.Equal(t, Vector{}, *v.GetReadBuffer(idx, -1))
}

func TestSharedDataViewAbsentBuffers(t *testing.T) {
	v := NewSharedDataView("events", 8)
	absent := v.AddVariable("absent", nil)
	short := v.AddVariable("short", NewBuffer(2))

	*v.GetWriteBuffer(absent, 3) = Splat(1)
	require.Equal(t, Vector{}, *v.GetReadBuffer(absent, 3))

	*v.GetWriteBuffer(short, 5) = Splat(1)
	require.Equal(t, Vector{}, *v.GetReadBuffer(short, 5))
	require.Equal(t, NewBuffer(2), v.Buffer(short))

	require.Equal(t, []string{"absent", "short"}, v.Variables())
	require.Equal(t, 1, v.VariableIndex("short"))
	require.Equal(t, -1, v.VariableIndex("missing"))
	require.Equal(t, 2, v.NumVariables())

	v.SetBuffer(absent, NewBuffer(8))
	*v.GetWriteBuffer(absent, 3) = Splat(1)
	require.Equal(t, Splat(1), *v.GetReadBuffer(absent, 3))
}

func TestSharedDataViewReset(t *testing.T) {
	v := NewSharedDataView("events", 2)
	v.AcquireIndex()
	v.AcquireIndex()
	require.Equal(t, 2, v.Len())
	v.Reset()
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.AcquireIndex())
}
