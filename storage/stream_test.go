package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_YieldsAllValues(t *testing.T) {
	s := NewStream(context.Background(), func(_ context.Context, emit func(int) error) error {
		for i := 1; i <= 5; i++ {
			if err := emit(i); err != nil {
				return err
			}
		}
		return nil
	})

	values, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, values)
}

func TestStream_SurfacesProducerError(t *testing.T) {
	boom := fmt.Errorf("listing failed")
	s := NewStream(context.Background(), func(_ context.Context, emit func(string) error) error {
		if err := emit("first"); err != nil {
			return err
		}
		return boom
	})
	defer s.Close()

	require.True(t, s.Next())
	assert.Equal(t, "first", s.Value())
	assert.False(t, s.Next())
	assert.ErrorIs(t, s.Err(), boom)
}

func TestStream_CloseStopsProducer(t *testing.T) {
	produced := make(chan int, 100)
	s := NewStream(context.Background(), func(ctx context.Context, emit func(int) error) error {
		for i := 0; ; i++ {
			if err := emit(i); err != nil {
				return err
			}
			produced <- i
		}
	})

	require.True(t, s.Next())
	require.NoError(t, s.Close())

	// After close the producer unblocks and exits; Next reports done.
	assert.False(t, s.Next())
}

func TestStream_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream(ctx, func(ctx context.Context, emit func(int) error) error {
		<-ctx.Done()
		return ctx.Err()
	})
	defer s.Close()

	cancel()
	assert.False(t, s.Next())
}

func TestFailedStream(t *testing.T) {
	boom := fmt.Errorf("container missing")
	s := FailedStream[Snapshot](context.Background(), boom)

	values, err := Collect(s)
	assert.Empty(t, values)
	assert.ErrorIs(t, err, boom)
}
