//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2025 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTask(ts int64) *Task[*fakeChannel, struct{}] {
	return New(ts, 1, Logic[*fakeChannel, struct{}]{
		Kind:    "noop",
		Process: func(context.Context, *fakeChannel) (struct{}, error) { return struct{}{}, nil },
	}, Options{})
}

func TestSetNextTwice(t *testing.T) {
	head := noopTask(1)
	first := noopTask(2)
	second := noopTask(3)

	require.Nil(t, head.SetNext(first))
	err := head.SetNext(second)
	assert.True(t, errors.Is(err, ErrNextAlreadySet))
	assert.Equal(t, Runnable[*fakeChannel](first), head.Next())
}

func TestSetNextRace(t *testing.T) {
	head := noopTask(1)
	var won atomic.Int32
	wg := sync.WaitGroup{}
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if head.SetNext(noopTask(int64(i+2))) == nil {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}

func TestAwaitNext(t *testing.T) {
	head := noopTask(1)

	next, ok, err := head.AwaitNext(context.Background(), 5*time.Millisecond)
	require.Nil(t, err)
	assert.False(t, ok)
	assert.Nil(t, next)

	go func() {
		time.Sleep(5 * time.Millisecond)
		head.SetNext(noopTask(2))
	}()
	next, ok, err = head.AwaitNext(context.Background(), time.Second)
	require.Nil(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), next.Timestamp())

	other := noopTask(3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err = other.AwaitNext(ctx, time.Second)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestOnce(t *testing.T) {
	var cell Once[int]
	_, ok := cell.Get()
	assert.False(t, ok)

	var installed atomic.Int32
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if cell.Install(i) {
				installed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), installed.Load())
	_, ok = cell.Get()
	assert.True(t, ok)
}

func TestBarrier(t *testing.T) {
	t.Run("released wins over later break", func(t *testing.T) {
		b := NewBarrier(2)
		b.Arrive()
		b.Arrive()
		assert.False(t, b.Break(errors.New("late")))
		assert.Nil(t, b.Wait(context.Background()))
	})

	t.Run("broken barrier never releases", func(t *testing.T) {
		b := NewBarrier(2)
		b.Arrive()
		assert.True(t, b.Break(errors.New("abort")))
		b.Arrive()
		err := b.Wait(context.Background())
		assert.True(t, errors.Is(err, ErrBarrierBroken))
		assert.Contains(t, err.Error(), "abort")
	})
}

func TestClockIsStrictlyIncreasing(t *testing.T) {
	c := NewClock()
	fixed := time.Unix(0, 100)
	c.now = func() time.Time { return fixed }

	assert.Equal(t, int64(100), c.Next())
	assert.Equal(t, int64(101), c.Next())
	c.Advance(500)
	assert.Equal(t, int64(501), c.Next())
}
