package watcher

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(path string) ChangeEvent {
	return ChangeEvent{Path: path, Op: OpModified, At: time.Now()}
}

func waitForChangeSet(t *testing.T, d *Debouncer, timeout time.Duration) ChangeSet {
	t.Helper()
	select {
	case cs := <-d.Output():
		return cs
	case <-time.After(timeout):
		t.Fatal("timed out waiting for change set")
		return ChangeSet{}
	}
}

func TestDebouncer_CoalescesIntoSingleChangeSet(t *testing.T) {
	// Given: a 100ms quiet window
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	// When: two paths change within the window
	d.Add(ev("a.txt"))
	time.Sleep(50 * time.Millisecond)
	d.Add(ev("b.txt"))

	// Then: exactly one change set arrives once activity stops,
	// containing both paths
	cs := waitForChangeSet(t, d, time.Second)
	assert.Equal(t, []string{"a.txt", "b.txt"}, cs.Paths)
	assert.False(t, cs.SettledAt.IsZero())

	// And: no second change set follows
	select {
	case extra := <-d.Output():
		t.Fatalf("unexpected second change set: %v", extra.Paths)
	case <-time.After(250 * time.Millisecond):
	}
}

func TestDebouncer_EveryEventResetsFullWindow(t *testing.T) {
	// Given: a 150ms quiet window and a steady stream of events
	// arriving every 50ms
	d := NewDebouncer(150 * time.Millisecond)
	defer d.Stop()

	start := time.Now()
	for i := 0; i < 6; i++ {
		d.Add(ev("hot.txt"))
		time.Sleep(50 * time.Millisecond)
	}

	// Then: nothing was emitted while the stream was active
	select {
	case cs := <-d.Output():
		t.Fatalf("change set emitted during active stream: %v", cs.Paths)
	default:
	}

	// And: the set settles a full window after the last event
	cs := waitForChangeSet(t, d, time.Second)
	assert.Equal(t, []string{"hot.txt"}, cs.Paths)
	assert.GreaterOrEqual(t, time.Since(start), 6*50*time.Millisecond+100*time.Millisecond)
}

func TestDebouncer_DeduplicatesPaths(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	// When: the same path changes repeatedly with different operations
	d.Add(ChangeEvent{Path: "f.go", Op: OpCreated})
	d.Add(ChangeEvent{Path: "f.go", Op: OpModified})
	d.Add(ChangeEvent{Path: "f.go", Op: OpDeleted})

	// Then: the path appears once; consumers re-check the disk
	cs := waitForChangeSet(t, d, time.Second)
	assert.Equal(t, []string{"f.go"}, cs.Paths)
}

func TestDebouncer_PathsAreSorted(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(ev("zebra.txt"))
	d.Add(ev("alpha.txt"))
	d.Add(ev("mid.txt"))

	cs := waitForChangeSet(t, d, time.Second)
	assert.Equal(t, []string{"alpha.txt", "mid.txt", "zebra.txt"}, cs.Paths)
}

func TestDebouncer_SeparateQuietPeriodsYieldSeparateSets(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(ev("first.txt"))
	first := waitForChangeSet(t, d, time.Second)

	d.Add(ev("second.txt"))
	second := waitForChangeSet(t, d, time.Second)

	assert.Equal(t, []string{"first.txt"}, first.Paths)
	assert.Equal(t, []string{"second.txt"}, second.Paths)
	assert.True(t, second.SettledAt.After(first.SettledAt))
}

func TestDebouncer_FlushEmitsImmediately(t *testing.T) {
	// Given: a window far longer than the test
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Add(ev("pending.txt"))
	require.Equal(t, 1, d.Pending())

	// When: flushing for shutdown drain
	d.Flush()

	// Then: the batch arrives without waiting for the window
	cs := waitForChangeSet(t, d, time.Second)
	assert.Equal(t, []string{"pending.txt"}, cs.Paths)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncer_StopDiscardsPending(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(ev("doomed.txt"))

	d.Stop()

	_, ok := <-d.Output()
	assert.False(t, ok, "output should be closed with nothing emitted")

	// Add and Stop after Stop are no-ops
	d.Add(ev("late.txt"))
	d.Stop()
}

func TestDebouncer_SlowConsumerKeepsBatch(t *testing.T) {
	// Given: a debouncer whose output channel is completely full
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < cap(d.Output()); i++ {
		d.Add(ev(fmt.Sprintf("fill-%02d.txt", i)))
		d.Flush()
	}

	// When: another batch settles against the full channel
	d.Add(ev("kept.txt"))
	d.Flush()

	// Then: the batch is held, not dropped
	assert.Equal(t, 1, d.Pending())

	// And: once the consumer catches up, the held path arrives
	<-d.Output()
	require.Eventually(t, func() bool {
		select {
		case cs := <-d.Output():
			return len(cs.Paths) == 1 && cs.Paths[0] == "kept.txt"
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestChangeSet_Merge(t *testing.T) {
	earlier := time.Now()
	later := earlier.Add(time.Second)

	a := ChangeSet{Paths: []string{"a.txt", "b.txt"}, SettledAt: earlier}
	b := ChangeSet{Paths: []string{"b.txt", "c.txt"}, SettledAt: later}

	merged := a.Merge(b)

	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, merged.Paths)
	assert.Equal(t, later, merged.SettledAt)

	// Inputs are untouched
	assert.Equal(t, []string{"a.txt", "b.txt"}, a.Paths)
	assert.Equal(t, []string{"b.txt", "c.txt"}, b.Paths)
}

func TestChangeSet_Empty(t *testing.T) {
	assert.True(t, ChangeSet{}.Empty())
	assert.False(t, ChangeSet{Paths: []string{"x"}}.Empty())
}
