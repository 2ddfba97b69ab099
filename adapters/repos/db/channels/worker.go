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

	"github.com/weaviate/chanstore/adapters/repos/db/tasks"
)

// work is the loop of the channel's goroutine. It follows the task chain
// starting behind current and runs housekeeping whenever the interval
// passed. It returns when the channel was shut down, when housekeeping
// disrupted the storage, or when ctx ends.
func (c *Channel) work(ctx context.Context, current tasks.Runnable[*Channel], controller *operationController) {
	logger := c.logger.WithField("action", "channel_worker")
	logger.Debug("channel worker started")
	defer logger.Debug("channel worker stopped")

	c.processing = true
	interval := c.config.Housekeeping.Interval
	lastHousekeeping := time.Now()

	for {
		wait := interval - time.Since(lastHousekeeping)
		if wait <= 0 {
			if c.housekeepingEnabled.Load() {
				if err := c.houseKeep(); err != nil {
					controller.registerDisruption(c.index, err)
					return
				}
			}
			lastHousekeeping = time.Now()
			continue
		}

		next, ok, err := current.AwaitNext(ctx, wait)
		if err != nil {
			return
		}
		if !ok {
			continue
		}
		current = next

		if err := current.ProcessBy(ctx, c); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithFields(logrus.Fields{
				"task":      current.Kind(),
				"timestamp": current.Timestamp(),
			}).WithError(err).Warn("task interrupted at barrier")
		}
		if !c.processing {
			return
		}
	}
}
