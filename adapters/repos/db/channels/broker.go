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

package channels

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/weaviate/chanstore/adapters/repos/db/tasks"
)

// taskBroker appends tasks to the chain all channel workers follow. Task
// timestamps are taken under the broker's lock, so chain order and
// timestamp order agree.
type taskBroker struct {
	mu           sync.Mutex
	head         tasks.Runnable[*Channel]
	clock        *tasks.Clock
	controller   *operationController
	channelCount int
	opts         tasks.Options
}

func newTaskBroker(clock *tasks.Clock, controller *operationController, channelCount int,
	opts tasks.Options,
) *taskBroker {
	// workers start behind the chain's first element, it is never processed
	start := tasks.New[*Channel, struct{}](clock.Next(), channelCount, tasks.Logic[*Channel, struct{}]{
		Kind: KindStart,
		Process: func(context.Context, *Channel) (struct{}, error) {
			return struct{}{}, nil
		},
	}, opts)
	return &taskBroker{
		head:         start,
		clock:        clock,
		controller:   controller,
		channelCount: channelCount,
		opts:         opts,
	}
}

func (b *taskBroker) first() tasks.Runnable[*Channel] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head
}

func (b *taskBroker) appendLocked(next tasks.Runnable[*Channel], last tasks.Runnable[*Channel]) error {
	if err := b.head.SetNext(next); err != nil {
		return errors.Wrap(err, "append task")
	}
	b.head = last
	return nil
}

// submit appends a task running logic on every channel.
func submit[R any](b *taskBroker, logic tasks.Logic[*Channel, R]) (*tasks.Task[*Channel, R], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.controller.checkRunning(); err != nil {
		return nil, err
	}
	t := tasks.New(b.clock.Next(), b.channelCount, logic, b.opts)
	if err := b.appendLocked(t, t); err != nil {
		return nil, err
	}
	return t, nil
}

// submitFinal appends a task after which no further tasks are accepted.
func submitFinal[R any](b *taskBroker, logic tasks.Logic[*Channel, R]) (*tasks.Task[*Channel, R], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.controller.mu.Lock()
	defer b.controller.mu.Unlock()

	if err := b.controller.checkRunningLocked(); err != nil {
		return nil, err
	}
	t := tasks.New(b.clock.Next(), b.channelCount, logic, b.opts)
	if err := b.appendLocked(t, t); err != nil {
		return nil, err
	}
	b.controller.running = false
	return t, nil
}

// submitWithFullGC appends a full garbage collection followed by logic. The
// first channel done collecting links the actual task behind the
// collection, all others find it already linked.
func submitWithFullGC[R any](b *taskBroker, logic tasks.Logic[*Channel, R]) (*tasks.Task[*Channel, R], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.controller.checkRunning(); err != nil {
		return nil, err
	}

	gcTimestamp := b.clock.Next()
	t := tasks.New(b.clock.Next(), b.channelCount, logic, b.opts)

	var continuation tasks.Once[tasks.Runnable[*Channel]]
	var gc *tasks.Task[*Channel, bool]
	gc = tasks.New(gcTimestamp, b.channelCount, tasks.Logic[*Channel, bool]{
		Kind: KindPrependedGarbageCollection,
		Process: func(ctx context.Context, c *Channel) (bool, error) {
			defer func() {
				if continuation.Install(t) {
					if err := gc.SetNext(t); err != nil {
						c.logger.WithError(err).Error("link task behind garbage collection")
					}
				}
			}()
			c.monitor.requestFull(gcTimestamp)
			return c.housekeeping.PerformIssuedGarbageCollection(ctx, c, 0)
		},
	}, b.opts)

	if err := b.appendLocked(gc, t); err != nil {
		return nil, err
	}
	return t, nil
}
