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
	"time"
)

// entityCache indexes the live entities of one channel by object id and
// keeps track of how many record bytes are held in memory.
type entityCache struct {
	entities    map[int64]*entity
	cachedBytes int64

	// cursor is the remaining snapshot of the running cache check
	cursor []int64
}

func newEntityCache() *entityCache {
	return &entityCache{entities: map[int64]*entity{}}
}

func (c *entityCache) get(objectID int64) *entity {
	return c.entities[objectID]
}

func (c *entityCache) len() int {
	return len(c.entities)
}

// put registers e and returns the entity it supersedes, if any.
func (c *entityCache) put(e *entity) *entity {
	old := c.entities[e.objectID]
	if old != nil {
		c.cachedBytes -= old.cachedLength()
	}
	c.entities[e.objectID] = e
	c.cachedBytes += e.cachedLength()
	return old
}

func (c *entityCache) remove(e *entity) {
	if cur, ok := c.entities[e.objectID]; !ok || cur != e {
		return
	}
	delete(c.entities, e.objectID)
	c.cachedBytes -= e.cachedLength()
}

func (c *entityCache) cache(e *entity, data []byte, now time.Time) {
	e.lastTouched = now
	if e.data != nil {
		return
	}
	e.data = data
	c.cachedBytes += e.cachedLength()
}

func (c *entityCache) evict(e *entity) {
	c.cachedBytes -= e.cachedLength()
	e.data = nil
}

// check runs the evaluator over a snapshot of the cache. It returns false
// when the deadline passed before the snapshot was exhausted, the next call
// continues where this one stopped.
func (c *entityCache) check(ev CacheEvaluator, deadline time.Time) bool {
	if len(c.cursor) == 0 {
		c.cursor = make([]int64, 0, len(c.entities))
		for id, e := range c.entities {
			if e.data != nil {
				c.cursor = append(c.cursor, id)
			}
		}
	}

	now := time.Now()
	for i, id := range c.cursor {
		if i%64 == 63 {
			if now = time.Now(); now.After(deadline) {
				c.cursor = c.cursor[i:]
				return false
			}
		}
		e := c.entities[id]
		if e == nil || e.data == nil {
			continue
		}
		if ev.ClearEntityCache(c.cachedBytes, now, e) {
			c.evict(e)
		}
	}
	c.cursor = nil
	return true
}
