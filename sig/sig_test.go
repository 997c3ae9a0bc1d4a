package sig

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDA(t *testing.T) {
	s, err := IDA("48 8B ?? 05 ?")
	require.NoError(t, err)
	expect.EQ(t, s.Len(), 5)
	elems := s.Elements()
	expect.EQ(t, elems[0], Element{Value: 0x48})
	expect.EQ(t, elems[2], Element{Any: true})
	expect.EQ(t, elems[4], Element{Any: true})

	_, err = IDA("48 XY")
	assert.Error(t, err)
	_, err = IDA("123")
	assert.Error(t, err)

	empty, err := IDA("")
	require.NoError(t, err)
	expect.EQ(t, empty.Len(), 0)
}

func TestString(t *testing.T) {
	s := String("hi", false)
	expect.EQ(t, s.Len(), 2)
	expect.True(t, s.Matches([]byte("hi there")))

	s = String("hi", true)
	expect.EQ(t, s.Len(), 3)
	expect.False(t, s.Matches([]byte("hi there")))
	expect.True(t, s.Matches([]byte{'h', 'i', 0}))
}

func TestMatches(t *testing.T) {
	s, err := IDA("DE ?? BE")
	require.NoError(t, err)
	expect.True(t, s.Matches([]byte{0xDE, 0xAD, 0xBE, 0xEF}))
	expect.True(t, s.Matches([]byte{0xDE, 0x00, 0xBE}))
	expect.False(t, s.Matches([]byte{0xDE, 0xAD, 0xBF}))
	expect.False(t, s.Matches([]byte{0xDE, 0xAD}))
}

func TestSearch(t *testing.T) {
	haystack := []byte{0xAA, 0xDE, 0x01, 0xBE, 0x00, 0xDE, 0x02, 0xBE}
	s, err := IDA("DE ?? BE")
	require.NoError(t, err)

	next, ok := s.Next(haystack)
	require.True(t, ok)
	expect.EQ(t, next, 1)

	prev, ok := s.Prev(haystack)
	require.True(t, ok)
	expect.EQ(t, prev, 5)

	expect.EQ(t, s.All(haystack), []int{1, 5})

	_, ok = s.Next([]byte{0xDE, 0xAD})
	expect.False(t, ok)
	_, ok = s.Prev(nil)
	expect.False(t, ok)
}

func TestOverlappingMatches(t *testing.T) {
	s := Raw([]byte{0xAA, 0xAA})
	expect.EQ(t, s.All([]byte{0xAA, 0xAA, 0xAA}), []int{0, 1})
}
