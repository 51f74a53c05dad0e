package timer

import (
	"testing"
	"time"

	"github.com/shoenig/test/must"
)

func TestScheduler_DeliversAfterDelay(t *testing.T) {
	ch := make(chan string, 1)
	sched := New[string](ch)

	start := time.Now()
	sched.Schedule(20*time.Millisecond, "hi")

	select {
	case msg := <-ch:
		must.Eq(t, "hi", msg)
		must.GreaterEq(t, 15*time.Millisecond, time.Since(start))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scheduled message")
	}
}

func TestScheduler_ZeroDelayDeliversImmediately(t *testing.T) {
	ch := make(chan int, 1)
	sched := New[int](ch)
	sched.Schedule(0, 42)

	select {
	case msg := <-ch:
		must.Eq(t, 42, msg)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
