package window

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	_, err := New[int](0)
	require.Error(t, err)
	_, err = New[int](-3)
	require.Error(t, err)
}

func TestAppendBelowCapacity(t *testing.T) {
	w, err := New[int](4)
	require.NoError(t, err)

	_, ok := w.Latest()
	require.False(t, ok)
	require.Empty(t, w.Snapshot())

	w.Append(1)
	w.Append(2)
	require.Equal(t, []int{1, 2}, w.Snapshot())
	require.Equal(t, 2, w.Len())
	require.Equal(t, 4, w.Cap())

	last, ok := w.Latest()
	require.True(t, ok)
	require.Equal(t, 2, last)
}

func TestAppendEvictsOldestFirst(t *testing.T) {
	const capacity = 5
	w, err := New[int](capacity)
	require.NoError(t, err)

	for i := 1; i <= capacity+1; i++ {
		w.Append(i)
	}
	require.Equal(t, capacity, w.Len())
	require.Equal(t, []int{2, 3, 4, 5, 6}, w.Snapshot())

	for i := capacity + 2; i <= 3*capacity; i++ {
		w.Append(i)
	}
	require.Equal(t, []int{11, 12, 13, 14, 15}, w.Snapshot())
	last, _ := w.Latest()
	require.Equal(t, 15, last)
}

func TestSnapshotIsACopy(t *testing.T) {
	w, err := New[int](3)
	require.NoError(t, err)
	w.Append(1)

	snap := w.Snapshot()
	snap[0] = 42
	require.Equal(t, []int{1}, w.Snapshot())
}

func TestDefaultCapacity(t *testing.T) {
	w, err := New[string](DefaultCapacity)
	require.NoError(t, err)
	for i := 0; i < DefaultCapacity+1; i++ {
		w.Append("x")
	}
	require.Equal(t, DefaultCapacity, w.Len())
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	const capacity = 64
	w, err := New[int](capacity)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10_000; i++ {
			w.Append(i)
		}
	}()

	for n := 0; n < 1000; n++ {
		snap := w.Snapshot()
		require.LessOrEqual(t, len(snap), capacity)
		for i := 1; i < len(snap); i++ {
			require.Equal(t, snap[i-1]+1, snap[i], "snapshot must be contiguous and ordered")
		}
	}
	wg.Wait()
	require.Equal(t, capacity, w.Len())
}
