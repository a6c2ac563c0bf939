package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoRanks(t *testing.T) (*Endpoint, *Endpoint) {
	t.Helper()
	world, err := NewWorld(2)
	require.NoError(t, err)
	a, err := world.Endpoint(0)
	require.NoError(t, err)
	b, err := world.Endpoint(1)
	require.NoError(t, err)
	return a, b
}

func TestWorld_RankAndSize(t *testing.T) {
	a, b := twoRanks(t)
	assert.Equal(t, 0, a.Rank())
	assert.Equal(t, 1, b.Rank())
	assert.Equal(t, 2, a.Size())
	assert.Equal(t, 2, b.Size())
}

func TestWorld_InvalidSizeAndRank(t *testing.T) {
	_, err := NewWorld(0)
	assert.ErrorIs(t, err, ErrFailure)

	world, err := NewWorld(1)
	require.NoError(t, err)
	_, err = world.Endpoint(1)
	assert.ErrorIs(t, err, ErrFailure)
	_, err = world.Endpoint(-1)
	assert.ErrorIs(t, err, ErrFailure)
}

func TestWorld_StridedSendContiguousRecv(t *testing.T) {
	// GIVEN a sender gathering two strided ranges and a contiguous receiver
	a, b := twoRanks(t)
	sendType, err := a.Commit(TypeSpec{Segments: []Segment{{Offset: 0, Length: 2}, {Offset: 4, Length: 2}}})
	require.NoError(t, err)
	recvType, err := b.Commit(Contiguous(4))
	require.NoError(t, err)

	src := []byte{1, 2, 0xFF, 0xFF, 3, 4}
	dst := make([]byte, 4)

	// WHEN the message is exchanged
	_, err = a.Isend(src, sendType, 1, 7)
	require.NoError(t, err)
	req, err := b.Irecv(dst, recvType, 0, 7)
	require.NoError(t, err)
	require.NoError(t, b.Waitall([]Request{req}))

	// THEN the packed byte sequence skipped the gap
	assert.Equal(t, []byte{1, 2, 3, 4}, dst)
}

func TestWorld_ScatterOnReceive(t *testing.T) {
	// GIVEN a strided receive datatype
	a, b := twoRanks(t)
	sendType, err := a.Commit(Contiguous(4))
	require.NoError(t, err)
	recvType, err := b.Commit(TypeSpec{Segments: []Segment{{Offset: 1, Length: 2}, {Offset: 5, Length: 2}}})
	require.NoError(t, err)

	dst := []byte{9, 9, 9, 9, 9, 9, 9}
	req, err := b.Irecv(dst, recvType, 0, 3)
	require.NoError(t, err)
	_, err = a.Isend([]byte{1, 2, 3, 4}, sendType, 1, 3)
	require.NoError(t, err)
	require.NoError(t, b.Waitall([]Request{req}))

	// THEN only the selected ranges were written
	assert.Equal(t, []byte{9, 1, 2, 9, 9, 3, 4}, dst)
}

func TestWorld_NonOvertaking(t *testing.T) {
	// GIVEN two messages posted on the same (pair, tag)
	a, b := twoRanks(t)
	dt, err := a.Commit(Contiguous(1))
	require.NoError(t, err)

	_, err = a.Isend([]byte{10}, dt, 1, 5)
	require.NoError(t, err)
	_, err = a.Isend([]byte{20}, dt, 1, 5)
	require.NoError(t, err)

	// WHEN two receives are posted in order
	rdt, err := b.Commit(Contiguous(1))
	require.NoError(t, err)
	first := make([]byte, 1)
	second := make([]byte, 1)
	r1, err := b.Irecv(first, rdt, 0, 5)
	require.NoError(t, err)
	r2, err := b.Irecv(second, rdt, 0, 5)
	require.NoError(t, err)
	require.NoError(t, b.Waitall([]Request{r1, r2}))

	// THEN they match the messages in posting order
	assert.Equal(t, byte(10), first[0])
	assert.Equal(t, byte(20), second[0])
}

func TestWorld_SendrecvFused(t *testing.T) {
	a, b := twoRanks(t)
	dt, err := a.Commit(Contiguous(2))
	require.NoError(t, err)
	bdt, err := b.Commit(Contiguous(2))
	require.NoError(t, err)

	aIn, bIn := make([]byte, 2), make([]byte, 2)
	ra, err := a.Sendrecv([]byte{1, 2}, dt, 1, aIn, dt, 1, 9)
	require.NoError(t, err)
	rb, err := b.Sendrecv([]byte{3, 4}, bdt, 0, bIn, bdt, 0, 9)
	require.NoError(t, err)

	require.NoError(t, a.Waitall([]Request{ra}))
	require.NoError(t, b.Waitall([]Request{rb}))
	assert.Equal(t, []byte{3, 4}, aIn)
	assert.Equal(t, []byte{1, 2}, bIn)
}

func TestWorld_SizeMismatchFailsWait(t *testing.T) {
	// GIVEN a 2-byte message and a 4-byte receive datatype
	a, b := twoRanks(t)
	sdt, err := a.Commit(Contiguous(2))
	require.NoError(t, err)
	rdt, err := b.Commit(Contiguous(4))
	require.NoError(t, err)

	_, err = a.Isend([]byte{1, 2}, sdt, 1, 1)
	require.NoError(t, err)
	req, err := b.Irecv(make([]byte, 4), rdt, 0, 1)
	require.NoError(t, err)

	// THEN the mismatch surfaces from Waitall as a transport failure
	assert.ErrorIs(t, b.Waitall([]Request{req}), ErrFailure)
}

func TestCommit_Validation(t *testing.T) {
	a, _ := twoRanks(t)

	_, err := a.Commit(TypeSpec{})
	assert.ErrorIs(t, err, ErrFailure)

	_, err = a.Commit(TypeSpec{Segments: []Segment{{Offset: -1, Length: 4}}})
	assert.ErrorIs(t, err, ErrFailure)

	_, err = a.Commit(TypeSpec{Segments: []Segment{{Offset: 0, Length: 0}}})
	assert.ErrorIs(t, err, ErrFailure)
}

func TestDatatype_UseAfterFree(t *testing.T) {
	a, _ := twoRanks(t)
	dt, err := a.Commit(Contiguous(2))
	require.NoError(t, err)

	dt.Free()
	dt.Free() // idempotent

	_, err = a.Isend([]byte{1, 2}, dt, 1, 1)
	assert.ErrorIs(t, err, ErrFailure)
	_, err = a.Irecv(make([]byte, 2), dt, 1, 1)
	assert.ErrorIs(t, err, ErrFailure)
}

func TestIsend_BufferTooShort(t *testing.T) {
	a, _ := twoRanks(t)
	dt, err := a.Commit(TypeSpec{Segments: []Segment{{Offset: 8, Length: 8}}})
	require.NoError(t, err)

	_, err = a.Isend(make([]byte, 8), dt, 1, 1)
	assert.ErrorIs(t, err, ErrFailure)
}

func TestTypeSpec_Size(t *testing.T) {
	spec := TypeSpec{Segments: []Segment{{Offset: 0, Length: 3}, {Offset: 10, Length: 5}}}
	assert.Equal(t, 8, spec.Size())
	assert.Equal(t, 16, Contiguous(16).Size())
}
