package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_SetGet(t *testing.T) {
	clock := NewLamportClockWithReplicaID("a", 0)
	doc := NewDocument()

	require.NoError(t, doc.Set("name", "general", clock))
	require.NoError(t, doc.Set("mentions", []string{"u1", "u2"}, clock))

	name, ok := doc.Get("name")
	require.True(t, ok)
	assert.JSONEq(t, `"general"`, string(name))

	doc.Delete("name", clock)
	_, ok = doc.Get("name")
	assert.False(t, ok, "deleted field must not be readable")
	assert.Equal(t, []string{"mentions"}, doc.Keys())
	assert.Equal(t, int64(3), doc.MaxTimestamp())
}

func TestDocument_MergeLastWriterWins(t *testing.T) {
	tests := []struct {
		name     string
		left     Register
		right    Register
		expected string
	}{
		{
			name:     "higher timestamp wins",
			left:     Register{Value: []byte(`"old"`), Timestamp: 1, ReplicaID: "z"},
			right:    Register{Value: []byte(`"new"`), Timestamp: 2, ReplicaID: "a"},
			expected: `"new"`,
		},
		{
			name:     "equal timestamp, higher replica wins",
			left:     Register{Value: []byte(`"from-b"`), Timestamp: 5, ReplicaID: "b"},
			right:    Register{Value: []byte(`"from-a"`), Timestamp: 5, ReplicaID: "a"},
			expected: `"from-b"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Document{Fields: map[string]Register{"k": tt.left}}
			b := &Document{Fields: map[string]Register{"k": tt.right}}

			ab := &Document{Fields: map[string]Register{"k": tt.left}}
			ab.Merge(b)
			ba := &Document{Fields: map[string]Register{"k": tt.right}}
			ba.Merge(a)

			v1, ok := ab.Get("k")
			require.True(t, ok)
			v2, ok := ba.Get("k")
			require.True(t, ok)
			assert.Equal(t, tt.expected, string(v1))
			assert.Equal(t, v1, v2, "merge must be commutative")
		})
	}
}

func TestDocument_EncodeDecode(t *testing.T) {
	clock := NewLamportClockWithReplicaID("a", 0)
	doc := NewDocument()
	require.NoError(t, doc.Set("content", "hello", clock))

	data, err := doc.Encode()
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	attrs := decoded.Attributes()
	assert.Equal(t, json.RawMessage(`"hello"`), attrs["content"])

	empty, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Fields)

	_, err = Decode([]byte{0xc1})
	assert.Error(t, err)
}
