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

// Package cyclemanager runs maintenance callbacks periodically on a
// dedicated goroutine.
package cyclemanager

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/chanstore/entities/errors"
)

type (
	// ShouldAbortCallback reports whether a stop was requested, long running
	// callbacks check it to return early.
	ShouldAbortCallback func() bool
	// CycleCallback returns whether it did any work in this cycle.
	CycleCallback func(shouldAbort ShouldAbortCallback) bool
)

type CycleManager interface {
	Start()
	// Stop requests the manager to stop and returns a channel receiving true
	// once it did, or false if ctx ended first. The manager stops in
	// either case.
	Stop(ctx context.Context) chan bool
	StopAndWait(ctx context.Context) error
	Running() bool
}

type cycleManager struct {
	sync.Mutex

	ticker   CycleTicker
	callback CycleCallback
	logger   logrus.FieldLogger

	running bool
	stop    chan struct{}
	stopped chan struct{}
}

func NewManager(ticker CycleTicker, callback CycleCallback, logger logrus.FieldLogger) CycleManager {
	return &cycleManager{
		ticker:   ticker,
		callback: callback,
		logger:   logger.WithField("action", "cyclemanager"),
	}
}

// Start does not block and does nothing if the manager already runs.
func (c *cycleManager) Start() {
	c.Lock()
	defer c.Unlock()

	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})

	stop, stopped := c.stop, c.stopped
	enterrors.GoWrapper(func() {
		defer close(stopped)
		c.loop(stop)
	}, c.logger)
}

func (c *cycleManager) loop(stop <-chan struct{}) {
	c.ticker.Start()
	defer c.ticker.Stop()

	shouldAbort := func() bool {
		select {
		case <-stop:
			return true
		default:
			return false
		}
	}

	for {
		select {
		case <-stop:
			return
		case <-c.ticker.C():
			// stop has priority if both are ready
			if shouldAbort() {
				return
			}
			c.ticker.CycleExecuted(c.execute(shouldAbort))
		}
	}
}

func (c *cycleManager) execute(shouldAbort ShouldAbortCallback) (executed bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("stack", string(debug.Stack())).
				Errorf("cycle callback panic: %v", r)
			executed = false
		}
	}()
	return c.callback(shouldAbort)
}

func (c *cycleManager) Stop(ctx context.Context) chan bool {
	c.Lock()
	defer c.Unlock()

	result := make(chan bool, 1)
	if !c.running {
		result <- true
		close(result)
		return result
	}

	c.running = false
	close(c.stop)
	stopped := c.stopped

	go func() {
		defer close(result)
		select {
		case <-stopped:
			result <- true
		case <-ctx.Done():
			// both may be ready, a finished stop wins
			select {
			case <-stopped:
				result <- true
			default:
				result <- false
			}
		}
	}()
	return result
}

func (c *cycleManager) StopAndWait(ctx context.Context) error {
	if <-c.Stop(ctx) {
		return nil
	}
	return ctx.Err()
}

func (c *cycleManager) Running() bool {
	c.Lock()
	defer c.Unlock()

	return c.running
}

type noopCycleManager struct {
	running bool
}

func NewNoop() CycleManager {
	return &noopCycleManager{}
}

func (c *noopCycleManager) Start() {
	c.running = true
}

func (c *noopCycleManager) Stop(context.Context) chan bool {
	c.running = false
	ch := make(chan bool, 1)
	ch <- true
	close(ch)
	return ch
}

func (c *noopCycleManager) StopAndWait(context.Context) error {
	c.running = false
	return nil
}

func (c *noopCycleManager) Running() bool {
	return c.running
}
