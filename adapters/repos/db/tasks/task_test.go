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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	idx int
}

func (c *fakeChannel) ChannelIndex() int {
	return c.idx
}

func channels(n int) []*fakeChannel {
	out := make([]*fakeChannel, n)
	for i := range out {
		out[i] = &fakeChannel{idx: i}
	}
	return out
}

func runAll[R any](t *testing.T, task *Task[*fakeChannel, R], chs []*fakeChannel) []error {
	t.Helper()
	errs := make([]error, len(chs))
	wg := sync.WaitGroup{}
	for i, ch := range chs {
		wg.Add(1)
		go func(i int, ch *fakeChannel) {
			defer wg.Done()
			errs[i] = task.ProcessBy(context.Background(), ch)
		}(i, ch)
	}
	wg.Wait()
	return errs
}

type countingObserver struct {
	done     atomic.Int32
	failed   atomic.Int32
	problems atomic.Int32
}

func (o *countingObserver) TaskDone(_ Kind, _ time.Duration, failed bool) {
	o.done.Add(1)
	if failed {
		o.failed.Add(1)
	}
}

func (o *countingObserver) ChannelProblem(Kind, int, error) {
	o.problems.Add(1)
}

func TestTaskCompletesExactlyOnce(t *testing.T) {
	for _, n := range []int{1, 2, 8, 64} {
		t.Run(fmt.Sprintf("%d channels", n), func(t *testing.T) {
			obs := &countingObserver{}
			var processed atomic.Int32
			task := New(1, n, Logic[*fakeChannel, int]{
				Kind: "count",
				Process: func(_ context.Context, ch *fakeChannel) (int, error) {
					processed.Add(1)
					return ch.idx * 10, nil
				},
			}, Options{Observer: obs})

			waiters := 4
			unblocked := atomic.Int32{}
			wg := sync.WaitGroup{}
			for i := 0; i < waiters; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results, err := task.Wait(context.Background())
					assert.Nil(t, err)
					assert.Len(t, results, n)
					unblocked.Add(1)
				}()
			}

			chs := channels(n)
			for i, ch := range chs {
				assert.False(t, task.IsComplete(), "complete after %d of %d channels", i, n)
				require.Nil(t, task.ProcessBy(context.Background(), ch))
			}
			wg.Wait()

			assert.True(t, task.IsComplete())
			assert.Equal(t, int32(n), processed.Load())
			assert.Equal(t, int32(waiters), unblocked.Load())
			assert.Equal(t, int32(1), obs.done.Load())

			results, err := task.Wait(context.Background())
			require.Nil(t, err)
			for i, r := range results {
				assert.Equal(t, i*10, r)
			}
		})
	}
}

func TestTaskIgnoresDoubleCompletion(t *testing.T) {
	logger, hook := test.NewNullLogger()
	task := New(1, 2, Logic[*fakeChannel, int]{
		Kind:    "double",
		Process: func(context.Context, *fakeChannel) (int, error) { return 1, nil },
	}, Options{Logger: logger})

	ch := &fakeChannel{idx: 0}
	require.Nil(t, task.ProcessBy(context.Background(), ch))
	require.Nil(t, task.ProcessBy(context.Background(), ch))
	assert.False(t, task.IsComplete())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)

	require.Nil(t, task.ProcessBy(context.Background(), &fakeChannel{idx: 1}))
	assert.True(t, task.IsComplete())
}

func TestTaskProblemsAreCollected(t *testing.T) {
	errBoom := errors.New("boom")
	task := New(1, 4, Logic[*fakeChannel, int]{
		Kind: "problems",
		Process: func(_ context.Context, ch *fakeChannel) (int, error) {
			switch ch.idx {
			case 1:
				return 0, errBoom
			case 3:
				panic("channel 3 exploded")
			}
			return ch.idx, nil
		},
	}, Options{})

	for _, err := range runAll(t, task, channels(4)) {
		assert.Nil(t, err)
	}

	results, err := task.Wait(context.Background())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, errBoom))
	var pe *ProblemsError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, []int{1, 3}, pe.FailedChannels())
	assert.Contains(t, pe.ChannelProblem(3).Error(), "channel 3 exploded")
	assert.Nil(t, pe.ChannelProblem(0))
	assert.Contains(t, err.Error(), "channel 1: boom")
	assert.Equal(t, 2, results[2])
	assert.True(t, task.HasProblems())
	assert.Nil(t, task.ProblemForChannel(2))
}

func TestSynchronizingTaskResolvesAfterAllArrivals(t *testing.T) {
	n := 8
	var processed atomic.Int32
	var early atomic.Int32
	var succeeded atomic.Int32

	task := New(1, n, Logic[*fakeChannel, int]{
		Kind:            "sync",
		RequiresBarrier: true,
		Process: func(_ context.Context, ch *fakeChannel) (int, error) {
			// stagger the channels
			time.Sleep(time.Duration(ch.idx) * time.Millisecond)
			processed.Add(1)
			return ch.idx, nil
		},
		Resolve: func(_ *fakeChannel, _ int, outcome Outcome) error {
			if processed.Load() != int32(n) {
				early.Add(1)
			}
			if !outcome.Failed {
				succeeded.Add(1)
			}
			return nil
		},
	}, Options{})

	for _, err := range runAll(t, task, channels(n)) {
		assert.Nil(t, err)
	}
	_, err := task.Wait(context.Background())
	require.Nil(t, err)
	assert.Equal(t, int32(0), early.Load())
	assert.Equal(t, int32(n), succeeded.Load())
}

func TestSynchronizingTaskFailsEverywhere(t *testing.T) {
	n := 6
	var succeeded, failed, post atomic.Int32

	task := New(1, n, Logic[*fakeChannel, int]{
		Kind:            "all-or-nothing",
		RequiresBarrier: true,
		Process: func(_ context.Context, ch *fakeChannel) (int, error) {
			if ch.idx == 4 {
				return 0, errors.New("disk full")
			}
			return ch.idx, nil
		},
		Resolve: func(_ *fakeChannel, _ int, outcome Outcome) error {
			if outcome.Failed {
				failed.Add(1)
				assert.Contains(t, outcome.Problem.Error(), "disk full")
			} else {
				succeeded.Add(1)
			}
			return nil
		},
		PostCompletion: func(*fakeChannel, int) error {
			post.Add(1)
			return nil
		},
	}, Options{})

	runAll(t, task, channels(n))
	_, err := task.Wait(context.Background())
	require.NotNil(t, err)
	assert.Equal(t, int32(0), succeeded.Load())
	assert.Equal(t, int32(n), failed.Load())
	assert.Equal(t, int32(0), post.Load())
}

func TestSynchronizingTaskResolveProblems(t *testing.T) {
	task := New(1, 3, Logic[*fakeChannel, int]{
		Kind:            "resolve-panic",
		RequiresBarrier: true,
		Process:         func(context.Context, *fakeChannel) (int, error) { return 0, nil },
		Resolve: func(ch *fakeChannel, _ int, _ Outcome) error {
			if ch.idx == 2 {
				panic("commit failed")
			}
			return nil
		},
	}, Options{})

	runAll(t, task, channels(3))
	_, err := task.Wait(context.Background())
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "commit failed")
	assert.True(t, task.IsComplete())
}

func TestSynchronizingTaskInterruptedWait(t *testing.T) {
	var abandoned, resolved atomic.Int32
	task := New(1, 2, Logic[*fakeChannel, int]{
		Kind:            "interrupted",
		RequiresBarrier: true,
		Process:         func(context.Context, *fakeChannel) (int, error) { return 7, nil },
		Resolve: func(*fakeChannel, int, Outcome) error {
			resolved.Add(1)
			return nil
		},
		Abandon: func(_ *fakeChannel, result int) {
			assert.Equal(t, 7, result)
			abandoned.Add(1)
		},
	}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- task.ProcessBy(ctx, &fakeChannel{idx: 0})
	}()

	require.Eventually(t, func() bool { return task.barrier.Arrived() == 1 },
		time.Second, time.Millisecond)
	cancel()

	err := <-errc
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	// the late channel finds the barrier broken and rolls back as well
	err = task.ProcessBy(context.Background(), &fakeChannel{idx: 1})
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrBarrierBroken))

	_, err = task.Wait(context.Background())
	require.NotNil(t, err)
	assert.Equal(t, int32(2), abandoned.Load())
	assert.Equal(t, int32(0), resolved.Load())
}

func TestWaitAbortBreaksBarrier(t *testing.T) {
	task := New(1, 2, Logic[*fakeChannel, int]{
		Kind:            "abort",
		RequiresBarrier: true,
		Process:         func(context.Context, *fakeChannel) (int, error) { return 0, nil },
	}, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := task.Wait(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	err = task.ProcessBy(context.Background(), &fakeChannel{idx: 0})
	assert.True(t, errors.Is(err, ErrBarrierBroken))
}

func TestPostCompletionErrorsAreLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	task := New(1, 1, Logic[*fakeChannel, int]{
		Kind:           "post",
		Process:        func(context.Context, *fakeChannel) (int, error) { return 0, nil },
		PostCompletion: func(*fakeChannel, int) error { return errors.New("close source") },
	}, Options{Logger: logger})

	require.Nil(t, task.ProcessBy(context.Background(), &fakeChannel{idx: 0}))
	_, err := task.Wait(context.Background())
	require.Nil(t, err)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "post completion failed", hook.LastEntry().Message)
}
