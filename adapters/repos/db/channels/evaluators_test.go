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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheEvaluator(t *testing.T) {
	ev := newCacheEvaluator(CacheEvaluatorConfig{Timeout: time.Hour, Threshold: 1000})
	now := time.Now()

	cached := func(age time.Duration, references ...int64) *entity {
		return &entity{data: make([]byte, 100), references: references, lastTouched: now.Add(-age)}
	}

	type test struct {
		name      string
		entity    *entity
		cacheSize int64
		expected  bool
	}

	tests := []test{
		{name: "fresh entity below threshold", entity: cached(0), cacheSize: 500, expected: false},
		{name: "fresh entity above threshold", entity: cached(0), cacheSize: 1001, expected: true},
		{name: "timed out", entity: cached(time.Hour), cacheSize: 0, expected: true},
		// 140s are two units of 65536ms: weight 100*2, doubled without references
		{name: "aged without references", entity: cached(140 * time.Second), cacheSize: 700, expected: true},
		{name: "aged with references", entity: cached(140*time.Second, oid(1)), cacheSize: 700, expected: false},
		{name: "aged with room to spare", entity: cached(140 * time.Second), cacheSize: 500, expected: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ev.ClearEntityCache(test.cacheSize, now, test.entity))
		})
	}
}

func TestFileEvaluator(t *testing.T) {
	ev := FileEvaluator{MinimumSize: 100, MaximumSize: 1000, MinimumUseRatio: 0.5, CleanUpHeadFile: true}
	require.Nil(t, ev.Validate())

	file := func(total, live, count int64) *dataFile {
		return &dataFile{total: total, live: live, count: count}
	}

	t.Run("head file", func(t *testing.T) {
		assert.False(t, ev.needsNewHead(file(999, 999, 10)))
		assert.True(t, ev.needsNewHead(file(1000, 1000, 10)))

		assert.False(t, ev.needsRecycling(file(0, 0, 0)), "an empty head is fine")
		assert.True(t, ev.needsRecycling(file(500, 0, 0)))
		assert.False(t, ev.needsRecycling(file(500, 10, 1)))

		noCleanup := ev
		noCleanup.CleanUpHeadFile = false
		assert.False(t, noCleanup.needsRecycling(file(500, 0, 0)))
	})

	t.Run("dissolving", func(t *testing.T) {
		assert.True(t, ev.needsDissolving(file(500, 0, 0)), "empty")
		assert.True(t, ev.needsDissolving(file(50, 50, 1)), "too small")
		assert.True(t, ev.needsDissolving(file(2000, 2000, 2)), "too large")
		assert.False(t, ev.needsDissolving(file(2000, 2000, 1)), "a single large entity stays")
		assert.True(t, ev.needsDissolving(file(500, 200, 3)), "mostly dead")
		assert.False(t, ev.needsDissolving(file(500, 400, 3)))
	})

	t.Run("validation", func(t *testing.T) {
		invalid := []FileEvaluator{
			{MinimumSize: 0, MaximumSize: 10, MinimumUseRatio: 0.5},
			{MinimumSize: 20, MaximumSize: 10, MinimumUseRatio: 0.5},
			{MinimumSize: 1, MaximumSize: 10, MinimumUseRatio: 0},
			{MinimumSize: 1, MaximumSize: 10, MinimumUseRatio: 1.5},
		}
		for _, ev := range invalid {
			assert.NotNil(t, ev.Validate(), "%+v", ev)
		}
		assert.Nil(t, DefaultFileEvaluator().Validate())
	})
}

func TestDenseReferenceExtractor(t *testing.T) {
	x := NewDenseReferenceExtractor(rootType, refsType)

	assert.Equal(t, []int64{oid(1), oid(2)}, x.References(refsType, refs(oid(1), 0, oid(2))))
	assert.Nil(t, x.References(plainType, refs(oid(1))))
	// a trailing partial id is ignored
	assert.Equal(t, []int64{oid(3)}, x.References(rootType, append(refs(oid(3)), 1, 2, 3)))
	assert.Nil(t, x.References(rootType, nil))
}

func TestEntityCache(t *testing.T) {
	c := newEntityCache()
	f := newDataFile(1, nil, 0)

	first := &entity{objectID: oid(1), length: 30, data: make([]byte, 30)}
	assert.Nil(t, c.put(first))
	f.add(first)
	assert.Equal(t, int64(30), c.cachedBytes)

	second := &entity{objectID: oid(1), length: 40}
	assert.Same(t, first, c.put(second))
	assert.Equal(t, int64(0), c.cachedBytes)

	c.cache(second, make([]byte, 40), time.Now())
	assert.Equal(t, int64(40), c.cachedBytes)

	// removing a superseded entity leaves the live one alone
	c.remove(first)
	assert.Same(t, second, c.get(oid(1)))

	done := c.check(evictAll{}, time.Now().Add(time.Second))
	assert.True(t, done)
	assert.Equal(t, int64(0), c.cachedBytes)
	assert.Nil(t, second.data)

	c.remove(second)
	assert.Equal(t, 0, c.len())
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "channel_3", ChannelDirectoryName(3))
	assert.Equal(t, "channel_3_12.dat", DataFileName(3, 12))
	assert.Equal(t, "transactions_3.sft", TransactionsFileName(3))

	number, ok := ParseDataFileName(3, DataFileName(3, 12))
	assert.True(t, ok)
	assert.Equal(t, int64(12), number)

	for _, name := range []string{
		DataFileName(2, 12),
		TransactionsFileName(3),
		"channel_3_x.dat",
		"channel_3_0.dat",
		DataFileName(3, 12) + tmpSuffix,
	} {
		_, ok := ParseDataFileName(3, name)
		assert.False(t, ok, name)
	}
}

func TestConfigValidation(t *testing.T) {
	require.Nil(t, testConfig().Validate())
	require.Nil(t, DefaultConfig().Validate())

	mutations := map[string]func(*Config){
		"channel count":     func(c *Config) { c.ChannelCount = 6 },
		"housekeeping":      func(c *Config) { c.Housekeeping.Interval = 0 },
		"gc budget":         func(c *Config) { c.Housekeeping.GarbageCollectionBudget = 0 },
		"cache":             func(c *Config) { c.Cache.Threshold = 0 },
		"transactions file": func(c *Config) { c.TransactionsFileMaximumSize = 0 },
		"marking wait time": func(c *Config) { c.MarkingWaitTime = 0 },
		"file evaluator":    func(c *Config) { c.FileEvaluator.MinimumUseRatio = 2 },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			assert.NotNil(t, cfg.Validate())
		})
	}
}
