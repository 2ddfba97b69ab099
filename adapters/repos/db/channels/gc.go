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
	"time"

	"github.com/sirupsen/logrus"
)

const markBatchSize = 1024

// gcStep does one unit of collection work: marking a batch of queued ids or
// sweeping the channel. It returns false if there was nothing to do.
func (c *Channel) gcStep() bool {
	if ids := c.monitor.dequeue(c.index, markBatchSize); len(ids) > 0 {
		c.mark(ids)
		return true
	}
	if c.monitor.shouldSweep(c.index) {
		c.sweep()
		return true
	}
	return false
}

func (c *Channel) mark(ids []int64) {
	var refs []int64
	for _, id := range ids {
		e := c.cache.get(id)
		if e == nil {
			if !c.zombies.HandleZombieObjectID(id) {
				c.unexpectedZombies++
			}
			continue
		}
		if e.color == black {
			continue
		}
		e.color = black
		refs = append(refs, e.references...)
	}
	// references have to be queued before the batch is acknowledged, the
	// monitor would see marking as complete otherwise
	c.monitor.enqueue(refs)
	c.monitor.acknowledge(len(ids))
}

func (c *Channel) sweep() {
	var roots []int64
	swept := 0
	for id, e := range c.cache.entities {
		if c.isRoot(e) {
			e.color = white
			roots = append(roots, id)
			continue
		}
		switch e.color {
		case white:
			c.cache.remove(e)
			e.file.remove(e)
			swept++
		case black:
			e.color = white
		}
	}
	c.monitor.sweepDone(c.index, roots)
	c.metrics.swept(swept)
	c.metrics.observeState(c)

	if swept > 0 {
		c.logger.WithFields(logrus.Fields{
			"swept":     swept,
			"remaining": c.cache.len(),
		}).Debug("garbage collection sweep")
	}
}

// collectGarbage runs collection steps until there is no local work left
// or the deadline passed.
func (c *Channel) collectGarbage(deadline time.Time) bool {
	for !c.monitor.isComplete() {
		if !c.gcStep() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
	return true
}

// collectGarbageIssued keeps collecting until collection is complete on all
// channels. While other channels are still busy it waits for work to show
// up in its queue, bounded by the marking wait time.
func (c *Channel) collectGarbageIssued(ctx context.Context, deadline time.Time) (bool, error) {
	for !c.monitor.isComplete() {
		if time.Now().After(deadline) {
			return false, nil
		}
		if c.gcStep() {
			continue
		}

		wait := c.config.MarkingWaitTime
		if remaining := time.Until(deadline); remaining < wait {
			wait = remaining
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-c.monitor.signal(c.index):
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return false, ctx.Err()
		}
		timer.Stop()
	}
	return true, nil
}
