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

// Package tasks implements the protocol every storage operation rides on: a
// task is created once, chained behind its predecessor and processed by
// every channel worker. Synchronizing tasks hold all channels at a barrier
// between processing and resolving, so that resolution on any channel sees
// the processing outcome of all of them.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/chanstore/entities/errors"
)

// Kind names a task variant.
type Kind string

// Channel is the part of a channel the protocol needs to know about.
type Channel interface {
	ChannelIndex() int
}

// Runnable is what a channel worker sees of a task, independent of the
// task's result type.
type Runnable[C Channel] interface {
	Timestamp() int64
	Kind() Kind
	RequiresBarrier() bool
	// ProcessBy runs the task on ch. It always records the channel's
	// completion before returning. A non-nil error means the barrier wait
	// was interrupted.
	ProcessBy(ctx context.Context, ch C) error
	SetNext(next Runnable[C]) error
	Next() Runnable[C]
	AwaitNext(ctx context.Context, timeout time.Duration) (Runnable[C], bool, error)
}

// Outcome is the global state of a synchronizing task once every channel
// finished processing.
type Outcome struct {
	Failed bool
	// Problem aggregates all problems registered so far, nil unless Failed.
	Problem error
}

// Logic is the channel-local behaviour of a task variant. Only Process is
// mandatory.
type Logic[C Channel, R any] struct {
	Kind            Kind
	RequiresBarrier bool

	// Process does the channel's share of the work.
	Process func(ctx context.Context, ch C) (R, error)
	// Resolve runs after the barrier released. It has to commit when
	// outcome.Failed is false and roll back otherwise.
	Resolve func(ch C, result R, outcome Outcome) error
	// Abandon releases provisional state when the barrier wait was
	// interrupted and Resolve will never run.
	Abandon func(ch C, result R)
	// PostCompletion runs after the channel completed, only if no channel
	// registered a problem.
	PostCompletion func(ch C, result R) error
}

// Observer is informed about task lifecycle events, typically to record
// metrics.
type Observer interface {
	TaskDone(kind Kind, took time.Duration, failed bool)
	ChannelProblem(kind Kind, channel int, err error)
}

type Options struct {
	Logger   logrus.FieldLogger
	Observer Observer
}

type Task[C Channel, R any] struct {
	Slot[C]

	logic     Logic[C, R]
	timestamp int64
	created   time.Time
	logger    logrus.FieldLogger
	observer  Observer

	// each channel writes only its own result slot
	results []R

	mu        sync.Mutex
	problems  []error
	completed []bool
	remaining int
	done      chan struct{}

	barrier *Barrier
}

func New[C Channel, R any](timestamp int64, channelCount int, logic Logic[C, R], opts Options) *Task[C, R] {
	if logic.Process == nil {
		panic(errors.Errorf("task %s has no process function", logic.Kind))
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}

	t := &Task[C, R]{
		logic:     logic,
		timestamp: timestamp,
		created:   time.Now(),
		logger: logger.WithFields(logrus.Fields{
			"action": "task",
			"task":   logic.Kind,
		}),
		observer:  opts.Observer,
		results:   make([]R, channelCount),
		problems:  make([]error, channelCount),
		completed: make([]bool, channelCount),
		remaining: channelCount,
		done:      make(chan struct{}),
	}
	if logic.RequiresBarrier {
		t.barrier = NewBarrier(channelCount)
	}
	return t
}

func (t *Task[C, R]) Timestamp() int64 {
	return t.timestamp
}

func (t *Task[C, R]) Kind() Kind {
	return t.logic.Kind
}

func (t *Task[C, R]) RequiresBarrier() bool {
	return t.logic.RequiresBarrier
}

func (t *Task[C, R]) ChannelCount() int {
	return len(t.results)
}

func (t *Task[C, R]) ProcessBy(ctx context.Context, ch C) error {
	idx := ch.ChannelIndex()

	var result R
	err := func() error {
		defer func() {
			t.complete(idx, result)
		}()

		result = t.process(ctx, ch)
		if t.barrier == nil {
			return nil
		}
		return t.synchronize(ctx, ch, result)
	}()

	if err == nil && !t.HasProblems() && t.logic.PostCompletion != nil {
		if perr := t.safely(func() error { return t.logic.PostCompletion(ch, result) }); perr != nil {
			t.logger.WithField("channel", idx).WithError(perr).
				Error("post completion failed")
		}
	}
	return err
}

func (t *Task[C, R]) process(ctx context.Context, ch C) R {
	var result R
	err := t.safely(func() error {
		var err error
		result, err = t.logic.Process(ctx, ch)
		return err
	})
	if err != nil {
		t.RegisterProblem(ch.ChannelIndex(), err)
	}
	return result
}

func (t *Task[C, R]) synchronize(ctx context.Context, ch C, result R) error {
	idx := ch.ChannelIndex()

	t.barrier.Arrive()
	if err := t.barrier.Wait(ctx); err != nil {
		err = errors.Wrapf(err, "channel %d waiting at barrier", idx)
		t.RegisterProblem(idx, err)
		if t.logic.Abandon != nil {
			if aerr := t.safely(func() error {
				t.logic.Abandon(ch, result)
				return nil
			}); aerr != nil {
				t.RegisterProblem(idx, aerr)
			}
		}
		return err
	}

	if t.logic.Resolve == nil {
		return nil
	}
	outcome := t.outcome()
	if err := t.safely(func() error { return t.logic.Resolve(ch, result, outcome) }); err != nil {
		t.RegisterProblem(idx, errors.Wrap(err, "resolve"))
	}
	return nil
}

// safely runs fn and turns a panic into an error.
func (t *Task[C, R]) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = enterrors.RecoverAsError(r)
		}
	}()
	return fn()
}

func (t *Task[C, R]) outcome() Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pe := t.problemsLocked(); pe != nil {
		return Outcome{Failed: true, Problem: pe}
	}
	return Outcome{}
}

// RegisterProblem records err for channel idx. Several problems of the same
// channel are accumulated.
func (t *Task[C, R]) RegisterProblem(idx int, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	if t.problems[idx] == nil {
		t.problems[idx] = err
	} else {
		t.problems[idx] = multierror.Append(t.problems[idx], err)
	}
	t.mu.Unlock()

	t.logger.WithField("channel", idx).WithError(err).Debug("channel registered problem")
	if t.observer != nil {
		t.observer.ChannelProblem(t.logic.Kind, idx, err)
	}
}

func (t *Task[C, R]) complete(idx int, result R) {
	t.results[idx] = result

	t.mu.Lock()
	if t.completed[idx] {
		t.mu.Unlock()
		t.logger.WithField("channel", idx).Error("channel completed task twice")
		return
	}
	t.completed[idx] = true
	t.remaining--
	last := t.remaining == 0
	failed := t.problemsLocked() != nil
	t.mu.Unlock()

	if last {
		close(t.done)
		if t.observer != nil {
			t.observer.TaskDone(t.logic.Kind, time.Since(t.created), failed)
		}
	}
}

func (t *Task[C, R]) HasProblems() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.problemsLocked() != nil
}

// ProblemForChannel returns the problem registered by channel idx, if any.
func (t *Task[C, R]) ProblemForChannel(idx int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.problems[idx]
}

func (t *Task[C, R]) problemsLocked() *ProblemsError {
	for _, p := range t.problems {
		if p != nil {
			problems := make([]error, len(t.problems))
			copy(problems, t.problems)
			return &ProblemsError{Kind: t.logic.Kind, Problems: problems}
		}
	}
	return nil
}

// Done is closed once every channel completed the task.
func (t *Task[C, R]) Done() <-chan struct{} {
	return t.done
}

// IsComplete reports whether every channel completed the task.
func (t *Task[C, R]) IsComplete() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Wait blocks until every channel completed the task and returns the
// results ordered by channel index. If any channel registered a problem the
// error is a *ProblemsError. When ctx ends first, a synchronizing task's
// barrier is broken so that the channels fail instead of committing work
// nobody waits for anymore.
func (t *Task[C, R]) Wait(ctx context.Context) ([]R, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		if t.barrier != nil {
			t.barrier.Break(ctx.Err())
		}
		return nil, errors.Wrapf(ctx.Err(), "wait for task %s", t.logic.Kind)
	}

	results := make([]R, len(t.results))
	copy(results, t.results)

	t.mu.Lock()
	pe := t.problemsLocked()
	t.mu.Unlock()
	if pe != nil {
		return results, pe
	}
	return results, nil
}
