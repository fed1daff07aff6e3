package view

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, d.Do(context.Background(), func() error { return nil }))

	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcher_PostFromCallback(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	done := make(chan struct{})
	d.Post(func() {
		d.Post(func() { close(done) })
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
}

func TestDispatcher_DoReturnsError(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	err := d.Do(context.Background(), func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
}

func TestDispatcher_PanicIsContained(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	err := d.Do(context.Background(), func() error { panic("boom") })
	assert.ErrorIs(t, err, errPanicked)

	assert.NoError(t, d.Do(context.Background(), func() error { return nil }), "loop survives")
}

func TestDispatcher_DoHonorsContext(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	release := make(chan struct{})
	d.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Do(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_Close(t *testing.T) {
	d := NewDispatcher()

	var ran atomic.Bool
	d.Close()
	assert.False(t, d.Post(func() { ran.Store(true) }))
	assert.ErrorIs(t, d.Do(context.Background(), func() error { return nil }), ErrClosed)
	d.Close()
	assert.False(t, ran.Load())
}
