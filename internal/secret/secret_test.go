package secret

import (
	"testing"
	"time"

	"github.com/eburghar/rconfd/internal/secretval"
	"github.com/stretchr/testify/require"
)

func dur(d time.Duration) *time.Duration { return &d }

func TestSecret_IsValid_NoLease(t *testing.T) {
	s := New(secretval.FromString("v"), nil, false, time.Now())
	require.True(t, s.IsValid(time.Now().Add(time.Hour)))
}

func TestSecret_IsValid_WithinLease(t *testing.T) {
	now := time.Now()
	s := New(secretval.FromString("v"), dur(90*time.Second), true, now)
	require.True(t, s.IsValid(now.Add(30*time.Second)))
	require.False(t, s.IsValid(now.Add(91*time.Second)))
}

func TestSecret_ToRenew_AtTwoThirds(t *testing.T) {
	now := time.Now()
	s := New(secretval.FromString("v"), dur(90*time.Second), true, now)
	require.False(t, s.ToRenew(now.Add(59*time.Second)))
	require.True(t, s.ToRenew(now.Add(60*time.Second)))
}

func TestSecret_ToRenew_NotRenewable(t *testing.T) {
	now := time.Now()
	s := New(secretval.FromString("v"), dur(90*time.Second), false, now)
	require.False(t, s.ToRenew(now.Add(time.Hour)))
}

func TestSecret_RenewDelay(t *testing.T) {
	s := New(secretval.FromString("v"), dur(90*time.Second), true, time.Now())
	d, ok := s.RenewDelay()
	require.True(t, ok)
	require.Equal(t, 60*time.Second, d)

	s2 := New(secretval.FromString("v"), dur(90*time.Second), false, time.Now())
	_, ok2 := s2.RenewDelay()
	require.False(t, ok2)
}

func TestSecret_HasLease_ZeroDurationDynamic(t *testing.T) {
	s := New(secretval.FromString("v"), dur(0), false, time.Now())
	require.True(t, s.HasLease())
	require.False(t, s.IsValid(time.Now()))
}

func TestStore_ReserveThenReplace(t *testing.T) {
	st := NewStore()
	st.Reserve("env:str:FOO")
	_, ok := st.Get("env:str:FOO")
	require.False(t, ok, "reserved-but-unfetched path has no present secret")

	changed := st.Replace("env:str:FOO", New(secretval.FromString("bar"), nil, false, time.Now()))
	require.True(t, changed, "first real value after None placeholder is a change")

	s, ok := st.Get("env:str:FOO")
	require.True(t, ok)
	var got string
	require.NoError(t, s.Value.Decode(&got))
	require.Equal(t, "bar", got)
}

func TestStore_ReplaceDeduplicatesIdenticalValue(t *testing.T) {
	st := NewStore()
	st.Replace("p", New(secretval.FromString("same"), nil, false, time.Now()))
	changed := st.Replace("p", New(secretval.FromString("same"), nil, false, time.Now()))
	require.False(t, changed)
}

func TestStore_AnyLeased(t *testing.T) {
	st := NewStore()
	require.False(t, st.AnyLeased())
	st.Replace("p", New(secretval.FromString("v"), nil, false, time.Now()))
	require.False(t, st.AnyLeased())
	st.Replace("q", New(secretval.FromString("v"), dur(0), false, time.Now()))
	require.True(t, st.AnyLeased())
}
