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
)

// HousekeepingBroker is the single entry point for housekeeping work on a
// channel, both for the routine cycle and for issued requests. Every
// operation returns true once it has nothing left to do within budget.
type HousekeepingBroker interface {
	PerformFileCleanupCheck(c *Channel, budget time.Duration) (bool, error)
	PerformIssuedFileCleanupCheck(c *Channel, budget time.Duration) (bool, error)

	PerformGarbageCollection(c *Channel, budget time.Duration) (bool, error)
	PerformIssuedGarbageCollection(ctx context.Context, c *Channel, budget time.Duration) (bool, error)

	PerformEntityCacheCheck(c *Channel, budget time.Duration) (bool, error)
	PerformIssuedEntityCacheCheck(c *Channel, budget time.Duration, ev CacheEvaluator) (bool, error)

	PerformTransactionsFileCheck(c *Channel, budget time.Duration) (bool, error)
	PerformIssuedTransactionsFileCheck(c *Channel, checkSize bool) (TransactionsCheck, error)
}

type defaultHousekeepingBroker struct{}

func (defaultHousekeepingBroker) PerformFileCleanupCheck(c *Channel, budget time.Duration) (bool, error) {
	return c.cleanupFiles(deadlineOf(budget))
}

func (defaultHousekeepingBroker) PerformIssuedFileCleanupCheck(c *Channel, budget time.Duration) (bool, error) {
	return c.cleanupFiles(deadlineOf(budget))
}

func (defaultHousekeepingBroker) PerformGarbageCollection(c *Channel, budget time.Duration) (bool, error) {
	return c.collectGarbage(deadlineOf(budget)), nil
}

func (defaultHousekeepingBroker) PerformIssuedGarbageCollection(ctx context.Context, c *Channel,
	budget time.Duration,
) (bool, error) {
	deadline := noDeadline
	if budget > 0 {
		deadline = deadlineOf(budget)
	}
	return c.collectGarbageIssued(ctx, deadline)
}

func (defaultHousekeepingBroker) PerformEntityCacheCheck(c *Channel, budget time.Duration) (bool, error) {
	return c.checkEntityCache(c.cacheEvaluator, deadlineOf(budget)), nil
}

func (defaultHousekeepingBroker) PerformIssuedEntityCacheCheck(c *Channel, budget time.Duration,
	ev CacheEvaluator,
) (bool, error) {
	if ev == nil {
		ev = c.cacheEvaluator
	}
	return c.checkEntityCache(ev, deadlineOf(budget)), nil
}

func (defaultHousekeepingBroker) PerformTransactionsFileCheck(c *Channel, _ time.Duration) (bool, error) {
	return c.checkTransactionsFile()
}

func (defaultHousekeepingBroker) PerformIssuedTransactionsFileCheck(c *Channel, checkSize bool) (TransactionsCheck, error) {
	return c.verifyTransactionsFile(checkSize)
}

// meteredHousekeepingBroker records the duration of every operation and
// whether it ran out of budget.
type meteredHousekeepingBroker struct {
	next HousekeepingBroker
}

func newMeteredHousekeepingBroker(next HousekeepingBroker) *meteredHousekeepingBroker {
	return &meteredHousekeepingBroker{next: next}
}

func (b *meteredHousekeepingBroker) observe(c *Channel, operation string, start time.Time,
	done bool, err error,
) (bool, error) {
	c.metrics.housekeeping(operation, time.Since(start), done || err != nil)
	return done, err
}

func (b *meteredHousekeepingBroker) PerformFileCleanupCheck(c *Channel, budget time.Duration) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformFileCleanupCheck(c, budget)
	return b.observe(c, "file_cleanup", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformIssuedFileCleanupCheck(c *Channel, budget time.Duration) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformIssuedFileCleanupCheck(c, budget)
	return b.observe(c, "issued_file_cleanup", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformGarbageCollection(c *Channel, budget time.Duration) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformGarbageCollection(c, budget)
	return b.observe(c, "garbage_collection", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformIssuedGarbageCollection(ctx context.Context, c *Channel,
	budget time.Duration,
) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformIssuedGarbageCollection(ctx, c, budget)
	return b.observe(c, "issued_garbage_collection", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformEntityCacheCheck(c *Channel, budget time.Duration) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformEntityCacheCheck(c, budget)
	return b.observe(c, "entity_cache", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformIssuedEntityCacheCheck(c *Channel, budget time.Duration,
	ev CacheEvaluator,
) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformIssuedEntityCacheCheck(c, budget, ev)
	return b.observe(c, "issued_entity_cache", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformTransactionsFileCheck(c *Channel, budget time.Duration) (bool, error) {
	start := time.Now()
	done, err := b.next.PerformTransactionsFileCheck(c, budget)
	return b.observe(c, "transactions_file", start, done, err)
}

func (b *meteredHousekeepingBroker) PerformIssuedTransactionsFileCheck(c *Channel, checkSize bool) (TransactionsCheck, error) {
	start := time.Now()
	check, err := b.next.PerformIssuedTransactionsFileCheck(c, checkSize)
	c.metrics.housekeeping("issued_transactions_file", time.Since(start), true)
	return check, err
}
