package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsPostedWorkInOrder(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, l.Post(func() { got = append(got, i) }))
	}
	require.True(t, l.Do(func() {}))

	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestLoopDrainsBacklogOnClose(t *testing.T) {
	l := NewLoop()

	ran := 0
	for i := 0; i < 3; i++ {
		l.Post(func() { ran++ })
	}
	l.Close()
	require.False(t, l.Post(func() { ran++ }))

	l.Run(context.Background())
	require.Equal(t, 3, ran)
	require.False(t, l.Do(func() {}))
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)

	cancel()
	<-l.Done()
	require.False(t, l.Post(func() {}))
}
