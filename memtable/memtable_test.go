package memtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganjayant/lsmkv/core"
)

func TestPutGetRoundTrip(t *testing.T) {
	m := New()
	m.Put([]byte("foo"), []byte("bar"))

	value, entryType, found := m.Get([]byte("foo"))
	require.True(t, found)
	assert.Equal(t, core.EntryTypePut, entryType)
	assert.Equal(t, []byte("bar"), value)
}

func TestGetMissingKey(t *testing.T) {
	m := New()
	_, _, found := m.Get([]byte("missing"))
	assert.False(t, found)
}

func TestPutOverwrite(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v1"))
	m.Put([]byte("k"), []byte("v2"))

	value, _, found := m.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, []byte("v2"), value)
	assert.Equal(t, 1, m.Len())
}

func TestDeleteMarksTombstone(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("v"))
	m.Delete([]byte("k"))

	_, entryType, found := m.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, core.EntryTypeDelete, entryType)
}

func TestDeleteWithoutPriorSet(t *testing.T) {
	m := New()
	m.Delete([]byte("k"))

	_, entryType, found := m.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, core.EntryTypeDelete, entryType)
}

func TestSizeIsMonotoneUnderPut(t *testing.T) {
	m := New()
	var last int64
	for i := 0; i < 100; i++ {
		m.Put([]byte{byte(i)}, []byte("some-value"))
		size := m.Size()
		assert.GreaterOrEqual(t, size, last)
		last = size
	}
	assert.Positive(t, last)
}

func TestIteratorYieldsAscendingOrderIncludingTombstones(t *testing.T) {
	m := New()
	m.Put([]byte("c"), []byte("3"))
	m.Put([]byte("a"), []byte("1"))
	m.Put([]byte("b"), []byte("2"))
	m.Delete([]byte("a"))

	it := m.Iterator()
	defer it.Close()

	var keys []string
	var types []core.EntryType
	for it.Next() {
		keys = append(keys, string(it.Key()))
		types = append(types, it.EntryType())
	}

	assert.Equal(t, []string{"a", "b", "c"}, keys)
	assert.Equal(t, []core.EntryType{core.EntryTypeDelete, core.EntryTypePut, core.EntryTypePut}, types)
}

func TestEmptyValueRoundTrips(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte(""))

	value, _, found := m.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, []byte{}, value)
}

func TestValueContainingCRLFRoundTrips(t *testing.T) {
	m := New()
	m.Put([]byte("k"), []byte("line1\r\nline2"))

	value, _, found := m.Get([]byte("k"))
	require.True(t, found)
	assert.Equal(t, []byte("line1\r\nline2"), value)
}
