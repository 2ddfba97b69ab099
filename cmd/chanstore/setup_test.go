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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/adapters/repos/db/channels"
	"github.com/weaviate/chanstore/adapters/repos/db/importer"
	"github.com/weaviate/chanstore/adapters/repos/db/lockfile"
	"github.com/weaviate/chanstore/usecases/config"
)

func TestStorageConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.ChannelCount = 8
	cfg.Storage.RootTypeID = 3
	cfg.Storage.ReferenceTypeIDs = []int64{3, 4}
	cfg.Housekeeping.GarbageCollectionBudget = 3 * time.Millisecond
	cfg.FileEvaluator.MinimumUseRatio = 0.5
	cfg.Import.ReadMode = config.ReadModeRead
	cfg.Backup.BytesPerSecond = 1024

	sc := storageConfig(cfg)
	require.Nil(t, sc.Validate())

	assert.Equal(t, 8, sc.ChannelCount)
	assert.Equal(t, int64(3), sc.RootTypeID)
	assert.Equal(t, []int64{3, 4}, sc.ReferenceTypeIDs)
	assert.Equal(t, 3*time.Millisecond, sc.Housekeeping.GarbageCollectionBudget)
	assert.Equal(t, 0.5, sc.FileEvaluator.MinimumUseRatio)
	assert.Equal(t, importer.ReadModeRead, sc.ImportReadMode)
	assert.Equal(t, 1024, sc.Backup.BytesPerSecond)

	t.Run("threshold falls back to the memory based default", func(t *testing.T) {
		assert.Equal(t, channels.DefaultCacheThreshold(), sc.Cache.Threshold)
	})
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger(config.Logging{Level: "debug", Format: "json"})
	require.Nil(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	_, err = newLogger(config.Logging{Level: "chatty", Format: "text"})
	assert.NotNil(t, err)
}

func TestOpenAndClose(t *testing.T) {
	for _, connector := range []string{config.ConnectorLocal, config.ConnectorBolt} {
		t.Run(connector, func(t *testing.T) {
			ctx := context.Background()
			flags := &config.Flags{
				DataPath:  t.TempDir(),
				Connector: connector,
				Channels:  2,
				LogLevel:  "error",
			}

			a, err := open(ctx, flags)
			require.Nil(t, err)

			_, err = open(ctx, flags)
			require.NotNil(t, err)
			assert.ErrorIs(t, err, lockfile.ErrLocked)

			stats, err := a.storage.Statistics(ctx)
			require.Nil(t, err)
			assert.Len(t, stats.Channels, 2)

			require.Nil(t, a.close(ctx))

			a, err = open(ctx, flags)
			require.Nil(t, err)
			require.Nil(t, a.close(ctx))
		})
	}
}
