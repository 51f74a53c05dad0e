package subst

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpand_Basic(t *testing.T) {
	t.Setenv("FOO", "bar")
	out, err := Expand("prefix-${FOO}-suffix")
	require.NoError(t, err)
	require.Equal(t, "prefix-bar-suffix", out)
}

func TestExpand_MultipleVars(t *testing.T) {
	t.Setenv("A", "1")
	t.Setenv("B", "2")
	out, err := Expand("${A}/${B}")
	require.NoError(t, err)
	require.Equal(t, "1/2", out)
}

func TestExpand_NoVars(t *testing.T) {
	out, err := Expand("/etc/plain/path")
	require.NoError(t, err)
	require.Equal(t, "/etc/plain/path", out)
}

func TestExpand_UnknownVar(t *testing.T) {
	_, err := Expand("${DEFINITELY_NOT_SET_XYZ}")
	require.Error(t, err)
	var se *SubstError
	require.ErrorAs(t, err, &se)
	require.Equal(t, UnknownVar, se.Kind)
	require.True(t, se.Fatal())
}

func TestExpand_UnmatchedRightBrace(t *testing.T) {
	_, err := Expand("foo}bar")
	require.Error(t, err)
	var se *SubstError
	require.ErrorAs(t, err, &se)
	require.Equal(t, RightBrace, se.Kind)
}

func TestExpand_UnterminatedBraceIsFatal(t *testing.T) {
	_, err := Expand("${TEST")
	require.Error(t, err)
	var se *SubstError
	require.ErrorAs(t, err, &se)
	require.Equal(t, RightBrace, se.Kind)
	require.True(t, se.Fatal())
}

func TestTokenize_ConcatenationRoundTrips(t *testing.T) {
	t.Setenv("X", "hello")
	input := "a-${X}-b"
	tokens := Tokenize(input)

	var rebuilt string
	for _, tok := range tokens {
		switch tok.Kind {
		case Str:
			rebuilt += tok.Chunk
		case Var:
			v, ok := os.LookupEnv(tok.Name)
			require.True(t, ok)
			rebuilt += v
		}
	}
	expanded, err := Expand(input)
	require.NoError(t, err)
	require.Equal(t, expanded, rebuilt)
}
