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

	"github.com/pbnjay/memory"
	"github.com/pkg/errors"

	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/importer"
	"github.com/weaviate/chanstore/entities/entityheader"
	"github.com/weaviate/chanstore/entities/objectid"
)

const (
	DefaultHousekeepingInterval = time.Second
	DefaultHousekeepingBudget   = 10 * time.Millisecond
	DefaultMarkingWaitTime      = 100 * time.Millisecond

	DefaultFileMinimumSize             = 1 << 20
	DefaultFileMaximumSize             = 8 << 20
	DefaultMinimumUseRatio             = 0.75
	DefaultTransactionsFileMaximumSize = 100 << 20

	DefaultCacheTimeout = 24 * time.Hour
	fallbackCacheLimit  = 1_000_000_000
)

type Config struct {
	ChannelCount int

	// RootTypeID marks root entities. Garbage collection only runs when it
	// is set, everything not reachable from a root is collected.
	RootTypeID int64
	// ReferenceTypeIDs are the types whose content is a dense array of
	// object ids, used when no ReferenceExtractor is given.
	ReferenceTypeIDs []int64

	HeaderBounds entityheader.Bounds

	Housekeeping  HousekeepingConfig
	FileEvaluator FileEvaluator
	Cache         CacheEvaluatorConfig

	TransactionsFileMaximumSize int64
	MarkingWaitTime             time.Duration

	MaxImportBatchLength int64
	ImportReadMode       importer.ReadMode

	Backup backup.Config
}

type HousekeepingConfig struct {
	Interval time.Duration
	// Budget is the time all operations of one cycle may take together.
	Budget time.Duration

	FileCleanupBudget       time.Duration
	GarbageCollectionBudget time.Duration
	CacheCheckBudget        time.Duration
	TransactionsFileBudget  time.Duration
}

type CacheEvaluatorConfig struct {
	Timeout time.Duration
	// Threshold is the cache size the evaluator steers towards.
	Threshold int64
}

func DefaultConfig() Config {
	return Config{
		ChannelCount: 1,
		HeaderBounds: entityheader.DefaultBounds(),
		Housekeeping: HousekeepingConfig{
			Interval:                DefaultHousekeepingInterval,
			Budget:                  DefaultHousekeepingBudget,
			FileCleanupBudget:       DefaultHousekeepingBudget,
			GarbageCollectionBudget: DefaultHousekeepingBudget,
			CacheCheckBudget:        DefaultHousekeepingBudget,
			TransactionsFileBudget:  DefaultHousekeepingBudget,
		},
		FileEvaluator: DefaultFileEvaluator(),
		Cache: CacheEvaluatorConfig{
			Timeout:   DefaultCacheTimeout,
			Threshold: DefaultCacheThreshold(),
		},
		TransactionsFileMaximumSize: DefaultTransactionsFileMaximumSize,
		MarkingWaitTime:             DefaultMarkingWaitTime,
		MaxImportBatchLength:        importer.DefaultMaxBatchLength,
		ImportReadMode:              importer.ReadModeMmap,
	}
}

// DefaultCacheThreshold is an eighth of the system memory.
func DefaultCacheThreshold() int64 {
	total := memory.TotalMemory()
	if total == 0 {
		return fallbackCacheLimit
	}
	return int64(total / 8)
}

func (c Config) Validate() error {
	if err := objectid.ValidateChannelCount(c.ChannelCount); err != nil {
		return err
	}
	if err := c.HeaderBounds.Validate(); err != nil {
		return errors.Wrap(err, "header bounds")
	}
	h := c.Housekeeping
	if h.Interval <= 0 || h.Budget <= 0 {
		return errors.Errorf("housekeeping interval and budget must be positive, got %s and %s",
			h.Interval, h.Budget)
	}
	for name, b := range map[string]time.Duration{
		"file cleanup":       h.FileCleanupBudget,
		"garbage collection": h.GarbageCollectionBudget,
		"cache check":        h.CacheCheckBudget,
		"transactions file":  h.TransactionsFileBudget,
	} {
		if b <= 0 {
			return errors.Errorf("%s budget must be positive, got %s", name, b)
		}
	}
	if err := c.FileEvaluator.Validate(); err != nil {
		return err
	}
	if c.Cache.Timeout <= 0 || c.Cache.Threshold <= 0 {
		return errors.New("cache timeout and threshold must be positive")
	}
	if c.TransactionsFileMaximumSize <= 0 {
		return errors.New("transactions file maximum size must be positive")
	}
	if c.MarkingWaitTime <= 0 {
		return errors.New("marking wait time must be positive")
	}
	return nil
}
