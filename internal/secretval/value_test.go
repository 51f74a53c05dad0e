package secretval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue_EqualIgnoresKeyOrderAndWhitespace(t *testing.T) {
	a, err := Parse([]byte(`{"a":1,"b":2}`))
	require.NoError(t, err)
	b, err := Parse([]byte(`{ "b": 2, "a": 1 }`))
	require.NoError(t, err)
	require.True(t, a.Equal(b))
}

func TestValue_EqualDetectsDifference(t *testing.T) {
	a, err := Parse([]byte(`{"a":1}`))
	require.NoError(t, err)
	b, err := Parse([]byte(`{"a":2}`))
	require.NoError(t, err)
	require.False(t, a.Equal(b))
}

func TestValue_NullEquality(t *testing.T) {
	require.True(t, Null.Equal(Value{}))
	require.True(t, Value{}.IsNull())
}

func TestValue_FromStringRoundTrips(t *testing.T) {
	v := FromString("bar")
	var s string
	require.NoError(t, v.Decode(&s))
	require.Equal(t, "bar", s)
}

func TestValue_MarshalJSONRoundTrip(t *testing.T) {
	v, err := Parse([]byte(`{"x":[1,2,3],"y":"z"}`))
	require.NoError(t, err)
	b, err := json.Marshal(v)
	require.NoError(t, err)

	var back Value
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, v.Equal(back))
}
