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

// CacheEvaluator decides whether the cached bytes of an entity are dropped.
type CacheEvaluator interface {
	ClearEntityCache(cacheSize int64, now time.Time, e *entity) bool
}

type cacheEvaluator struct {
	timeout   time.Duration
	threshold int64
}

func newCacheEvaluator(cfg CacheEvaluatorConfig) *cacheEvaluator {
	return &cacheEvaluator{timeout: cfg.Timeout, threshold: cfg.Threshold}
}

// ClearEntityCache evicts entities that were not touched for timeout. Below
// that the weight of an entity grows with its size and age, entities without
// references weigh double. Once the cache grows close to threshold, heavy
// entities go first.
func (ev *cacheEvaluator) ClearEntityCache(cacheSize int64, now time.Time, e *entity) bool {
	age := now.Sub(e.lastTouched)
	if age >= ev.timeout {
		return true
	}

	shift := 1
	if e.hasReferences() {
		shift = 0
	}
	return ev.threshold-cacheSize < (e.cachedLength()*(age.Milliseconds()>>16))<<shift
}
