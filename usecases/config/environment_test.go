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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentChannelCount(t *testing.T) {
	factors := []struct {
		name        string
		value       []string
		expected    int
		expectedErr bool
	}{
		{"Valid", []string{"8"}, 8, false},
		{"not given", []string{}, DefaultChannelCount, false},
		{"not parsable", []string{"I'm not a number"}, -1, true},
	}
	for _, tt := range factors {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.value) == 1 {
				t.Setenv("CHANSTORE_CHANNEL_COUNT", tt.value[0])
			}
			conf := Default()
			err := FromEnv(&conf)

			if tt.expectedErr {
				require.NotNil(t, err)
			} else {
				require.Nil(t, err)
				require.Equal(t, tt.expected, conf.Storage.ChannelCount)
			}
		})
	}
}

func TestEnvironmentHousekeepingBudget(t *testing.T) {
	t.Run("total budget applies to every operation", func(t *testing.T) {
		t.Setenv("HOUSEKEEPING_BUDGET", "25ms")
		conf := Default()
		require.Nil(t, FromEnv(&conf))

		assert.Equal(t, 25*time.Millisecond, conf.Housekeeping.Budget)
		assert.Equal(t, 25*time.Millisecond, conf.Housekeeping.FileCleanupBudget)
		assert.Equal(t, 25*time.Millisecond, conf.Housekeeping.TransactionsFileBudget)
	})

	t.Run("operation budget refines the total", func(t *testing.T) {
		t.Setenv("HOUSEKEEPING_BUDGET", "25ms")
		t.Setenv("HOUSEKEEPING_GARBAGE_COLLECTION_BUDGET", "5ms")
		conf := Default()
		require.Nil(t, FromEnv(&conf))

		assert.Equal(t, 5*time.Millisecond, conf.Housekeeping.GarbageCollectionBudget)
		assert.Equal(t, 25*time.Millisecond, conf.Housekeeping.CacheCheckBudget)
	})

	t.Run("not parsable", func(t *testing.T) {
		t.Setenv("HOUSEKEEPING_INTERVAL", "soon")
		conf := Default()
		err := FromEnv(&conf)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), "HOUSEKEEPING_INTERVAL")
	})
}

func TestEnvironmentStorage(t *testing.T) {
	t.Setenv("CHANSTORE_ROOT_TYPE_ID", "7")
	t.Setenv("CHANSTORE_REFERENCE_TYPE_IDS", "7, 9,11")
	t.Setenv("FILE_EVALUATOR_MINIMUM_USE_RATIO", "0.5")
	t.Setenv("FILE_EVALUATOR_CLEAN_UP_HEAD_FILE", "false")
	t.Setenv("READ_ONLY", "true")

	conf := Default()
	require.Nil(t, FromEnv(&conf))

	assert.Equal(t, int64(7), conf.Storage.RootTypeID)
	assert.Equal(t, []int64{7, 9, 11}, conf.Storage.ReferenceTypeIDs)
	assert.Equal(t, 0.5, conf.FileEvaluator.MinimumUseRatio)
	assert.False(t, conf.FileEvaluator.CleanUpHeadFile)
	assert.True(t, conf.IsReadOnly())
}

func TestEnvironmentBackup(t *testing.T) {
	t.Setenv("BACKUP_ENABLED", "on")
	t.Setenv("BACKUP_PATH", "/backup")
	t.Setenv("BACKUP_BYTES_PER_SECOND", "1048576")

	conf := Default()
	require.Nil(t, FromEnv(&conf))

	assert.True(t, conf.Backup.Enabled)
	assert.Equal(t, "/backup", conf.Backup.Path)
	assert.Equal(t, 1<<20, conf.Backup.BytesPerSecond)
	assert.False(t, conf.Backup.Verify)
}

func TestEnvironmentUnsetKeepsConfig(t *testing.T) {
	conf := Default()
	conf.Persistence.DataPath = "/from/file"
	conf.Monitoring.Enabled = true

	require.Nil(t, FromEnv(&conf))
	assert.Equal(t, "/from/file", conf.Persistence.DataPath)
	assert.True(t, conf.Monitoring.Enabled)
}
