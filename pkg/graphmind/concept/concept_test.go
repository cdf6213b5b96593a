package concept

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValue(t *testing.T) {
	tests := []struct {
		in      any
		encoded string
		want    any
	}{
		{42, "i:42", int64(42)},
		{uint32(7), "i:7", int64(7)},
		{2.5, "f:2.5", 2.5},
		{true, "b:true", true},
		{"Cambridge", "s:Cambridge", "Cambridge"},
		{[]byte("raw"), "s:raw", "raw"},
	}
	for _, tt := range tests {
		t.Run(tt.encoded, func(t *testing.T) {
			enc := EncodeValue(tt.in)
			assert.Equal(t, tt.encoded, enc)
			got, err := DecodeValue(enc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := DecodeValue("x")
	assert.Error(t, err)
	_, err = DecodeValue("z:1")
	assert.Error(t, err)
}

func TestCompare(t *testing.T) {
	c, ok := Compare(int64(3), 3.5)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	c, ok = Compare("b", "a")
	require.True(t, ok)
	assert.Equal(t, 1, c)

	c, ok = Compare(false, true)
	require.True(t, ok)
	assert.Equal(t, -1, c)

	_, ok = Compare("1", 1)
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{KindEntity, KindRelation, KindResource} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("relationship")
	assert.Error(t, err)
}

func TestNewIDIsUnique(t *testing.T) {
	assert.NotEqual(t, NewID(), NewID())
}
