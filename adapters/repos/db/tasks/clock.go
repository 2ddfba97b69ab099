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
	"sync"
	"time"
)

// Clock hands out strictly increasing task timestamps based on wall time.
type Clock struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Next returns a timestamp greater than every one returned before.
func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.now().UnixNano()
	if ts <= c.last {
		ts = c.last + 1
	}
	c.last = ts
	return ts
}

// Advance makes sure later timestamps are greater than ts, for example the
// highest timestamp found in a transactions log at start-up.
func (c *Clock) Advance(ts int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts > c.last {
		c.last = ts
	}
}
