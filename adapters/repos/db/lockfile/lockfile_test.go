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

package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/usecases/monitoring"
)

func TestAcquireAndRelease(t *testing.T) {
	logger, _ := test.NewNullLogger()
	dir := t.TempDir()

	lock, err := Acquire(dir, time.Hour, logger, nil)
	require.Nil(t, err)

	info, err := ReadInfo(filepath.Join(dir, FileName))
	require.Nil(t, err)
	assert.Equal(t, lock.Info().ID, info.ID)
	assert.Equal(t, os.Getpid(), info.PID)

	// flock locks are per open file description, so a second acquisition
	// from the same process conflicts as well
	_, err = Acquire(dir, time.Hour, logger, nil)
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrLocked))
	assert.Contains(t, err.Error(), info.ID.String())

	require.Nil(t, lock.Release(context.Background()))
	_, err = os.Stat(filepath.Join(dir, FileName))
	assert.True(t, os.IsNotExist(err))

	again, err := Acquire(dir, time.Hour, logger, nil)
	require.Nil(t, err)
	assert.NotEqual(t, info.ID, again.Info().ID)
	require.Nil(t, again.Release(context.Background()))
}

func TestLockFileIsRefreshed(t *testing.T) {
	logger, _ := test.NewNullLogger()
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewPedanticRegistry())
	dir := t.TempDir()

	lock, err := Acquire(dir, 2*time.Millisecond, logger, metrics)
	require.Nil(t, err)
	defer lock.Release(context.Background())

	acquired := lock.Info().Updated
	require.Eventually(t, func() bool {
		info, err := ReadInfo(filepath.Join(dir, FileName))
		return err == nil && info.Updated.After(acquired)
	}, time.Second, time.Millisecond)

	assert.GreaterOrEqual(t,
		testutil.ToFloat64(metrics.LockFileRefreshes.WithLabelValues("success")), float64(1))
}
