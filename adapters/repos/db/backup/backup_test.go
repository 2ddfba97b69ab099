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

package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/afs/localfs"
	"github.com/weaviate/chanstore/entities/storagestate"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

func newFS(t *testing.T) *localfs.FileSystem {
	fs, err := localfs.New(t.TempDir())
	require.Nil(t, err)
	return fs
}

func newHandler(t *testing.T, target afs.FileSystem, config Config) (*Handler, *storagestate.WriteController, *monitoring.PrometheusMetrics) {
	logger, _ := test.NewNullLogger()
	controller := storagestate.NewWriteController(storagestate.AllCapabilities())
	metrics := monitoring.NewPrometheusMetrics(prometheus.NewPedanticRegistry())
	h := NewHandler(target, controller, config, logger, metrics)
	h.Start(context.Background())
	t.Cleanup(func() { h.Stop(context.Background()) })
	return h, controller, metrics
}

func readAll(t *testing.T, fs afs.FileSystem, name string) string {
	t.Helper()
	data, err := afs.ReadAll(fs.Root().Directory("channel_0").File(name))
	require.Nil(t, err)
	return string(data)
}

func TestHandlerAppliesItemsInOrder(t *testing.T) {
	target := newFS(t)
	h, _, metrics := newHandler(t, target, Config{Verify: true})

	require.Nil(t, h.Enqueue(
		Append("channel_0/channel_0_1.dat", 0, []byte("hello")),
		Append("channel_0/channel_0_1.dat", 5, []byte(" world")),
		Truncate("channel_0/channel_0_1.dat", 5),
		Append("channel_0/transactions_0.sft", 0, []byte("log")),
		Replace("channel_0/transactions_0.sft", []byte("compacted")),
		Append("channel_0/channel_0_2.dat", 0, []byte("gone")),
		Delete("channel_0/channel_0_2.dat"),
	))
	require.Nil(t, h.Flush(context.Background()))

	assert.Equal(t, "hello", readAll(t, target, "channel_0_1.dat"))
	assert.Equal(t, "compacted", readAll(t, target, "transactions_0.sft"))
	exists, err := target.Root().Directory("channel_0").File("channel_0_2.dat").Exists()
	require.Nil(t, err)
	assert.False(t, exists)

	assert.Equal(t, float64(4), testutil.ToFloat64(metrics.BackupItems.WithLabelValues("append", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BackupItems.WithLabelValues("truncate", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BackupItems.WithLabelValues("replace", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BackupItems.WithLabelValues("delete", "success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.BackupQueueLength))
}

func TestHandlerDetectsInconsistentAppends(t *testing.T) {
	target := newFS(t)
	h, _, metrics := newHandler(t, target, Config{})

	require.Nil(t, h.Enqueue(Append("channel_0/channel_0_1.dat", 10, []byte("x"))))
	err := h.Flush(context.Background())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrInconsistentBackup))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.BackupItems.WithLabelValues("append", "failure")))
}

func TestHandlerRejectsWhenDisabled(t *testing.T) {
	h, controller, _ := newHandler(t, newFS(t), Config{})
	controller.SetReadOnly(true)

	err := h.Enqueue(Delete("channel_0/channel_0_1.dat"))
	assert.True(t, errors.Is(err, storagestate.ErrBackupDisabled))
}

func TestHandlerThrottles(t *testing.T) {
	target := newFS(t)
	h, _, _ := newHandler(t, target, Config{BytesPerSecond: 1})

	// the first burst is free, the rest waits
	data := make([]byte, minBurst+1)
	require.Nil(t, h.Enqueue(Append("channel_0/channel_0_1.dat", 0, data)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(h.Flush(ctx), context.DeadlineExceeded))
}

func TestSynchronize(t *testing.T) {
	logger, _ := test.NewNullLogger()
	source := newFS(t)

	write := func(fs afs.FileSystem, name, content string) {
		_, err := fs.Root().Directory("channel_0").File(name).Append([]byte(content))
		require.Nil(t, err)
	}

	t.Run("copies missing files and tails", func(t *testing.T) {
		target := newFS(t)
		write(source, "channel_0_1.dat", "0123456789")
		write(source, "transactions_0.sft", "log")
		write(target, "channel_0_1.dat", "01234")
		write(target, "channel_0_9.dat", "stale")

		h := NewHandler(target, storagestate.NewWriteController(storagestate.AllCapabilities()), Config{Verify: true}, logger, nil)
		require.Nil(t, h.Synchronize(context.Background(), source, []string{"channel_0"}))

		assert.Equal(t, "0123456789", readAll(t, target, "channel_0_1.dat"))
		assert.Equal(t, "log", readAll(t, target, "transactions_0.sft"))
		exists, err := target.Root().Directory("channel_0").File("channel_0_9.dat").Exists()
		require.Nil(t, err)
		assert.False(t, exists)
	})

	t.Run("backup ahead", func(t *testing.T) {
		target := newFS(t)
		write(target, "channel_0_1.dat", "0123456789-and-more")
		h := NewHandler(target, storagestate.NewWriteController(storagestate.AllCapabilities()), Config{}, logger, nil)
		err := h.Synchronize(context.Background(), source, []string{"channel_0"})
		assert.True(t, errors.Is(err, ErrBackupAhead))
	})

	t.Run("diverged prefix", func(t *testing.T) {
		target := newFS(t)
		write(target, "channel_0_1.dat", "abc")
		h := NewHandler(target, storagestate.NewWriteController(storagestate.AllCapabilities()), Config{Verify: true}, logger, nil)
		err := h.Synchronize(context.Background(), source, []string{"channel_0"})
		assert.True(t, errors.Is(err, ErrInconsistentBackup))
	})

	t.Run("empty storage with backup", func(t *testing.T) {
		target := newFS(t)
		write(target, "channel_0_1.dat", "data")
		h := NewHandler(target, storagestate.NewWriteController(storagestate.AllCapabilities()), Config{}, logger, nil)
		err := h.Synchronize(context.Background(), newFS(t), []string{"channel_0"})
		assert.True(t, errors.Is(err, ErrStorageEmptyBackupNot))
	})
}
