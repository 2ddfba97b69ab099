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

package errors

import (
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoWrapper_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()

	wg := sync.WaitGroup{}
	wg.Add(1)
	GoWrapper(func() {
		defer wg.Done()
		panic("boom")
	}, logger)
	wg.Wait()

	// the deferred recovery runs after wg.Done, wait for the log entry
	require.Eventually(t, func() bool { return hook.LastEntry() != nil }, time.Second, time.Millisecond)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Contains(t, hook.LastEntry().Message, "boom")
}

func TestErrorGroupWrapper(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("first error is returned", func(t *testing.T) {
		eg := NewErrorGroupWrapper(logger)
		expected := errors.New("failed")
		eg.Go(func() error { return nil })
		eg.Go(func() error { return expected })

		assert.ErrorIs(t, eg.Wait(), expected)
	})

	t.Run("panic becomes an error", func(t *testing.T) {
		eg := NewErrorGroupWrapper(logger, "channel", 3)
		eg.Go(func() error { panic("exploded") })

		err := eg.Wait()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exploded")
	})
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(NewOutOfMemory("cache")))
	assert.True(t, IsTransient(NewTemporary("backup target")))
	assert.True(t, IsTransient(&os.PathError{Op: "write", Path: "x", Err: syscall.EAGAIN}))
	assert.False(t, IsTransient(&os.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}))
	assert.False(t, IsTransient(nil))
}
