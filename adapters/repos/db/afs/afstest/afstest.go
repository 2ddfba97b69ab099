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

// Package afstest holds behaviour tests every afs connector has to pass.
package afstest

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
)

// RunConnectorTests runs the shared suite against file systems built by
// newFS. Each subtest gets its own file system.
func RunConnectorTests(t *testing.T, newFS func(t *testing.T) afs.FileSystem) {
	t.Run("missing file", func(t *testing.T) {
		f := newFS(t).Root().Directory("channel_0").File("missing.dat")

		exists, err := f.Exists()
		require.Nil(t, err)
		assert.False(t, exists)

		_, err = f.Size()
		assert.True(t, errors.Is(err, afs.ErrNotExist))

		// deleting a missing file is not an error
		assert.Nil(t, f.Delete())
	})

	t.Run("ensure creates an empty file", func(t *testing.T) {
		dir := newFS(t).Root().Directory("channel_0")
		require.Nil(t, dir.Ensure())
		f := dir.File("empty.dat")
		require.Nil(t, f.Ensure())
		require.Nil(t, f.Ensure())

		exists, err := f.Exists()
		require.Nil(t, err)
		assert.True(t, exists)

		size, err := f.Size()
		require.Nil(t, err)
		assert.Equal(t, int64(0), size)
	})

	t.Run("append, read and truncate", func(t *testing.T) {
		f := newFS(t).Root().Directory("channel_1").File("channel_1_1.dat")

		size, err := f.Append([]byte("hello "))
		require.Nil(t, err)
		assert.Equal(t, int64(6), size)
		size, err = f.Append([]byte("world"))
		require.Nil(t, err)
		assert.Equal(t, int64(11), size)

		all, err := afs.ReadAll(f)
		require.Nil(t, err)
		assert.Equal(t, "hello world", string(all))

		part, err := afs.ReadRange(f, 6, 5)
		require.Nil(t, err)
		assert.Equal(t, "world", string(part))

		_, err = afs.ReadRange(f, 6, 10)
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF))

		require.Nil(t, f.Truncate(5))
		all, err = afs.ReadAll(f)
		require.Nil(t, err)
		assert.Equal(t, "hello", string(all))
		require.Nil(t, f.Sync())
	})

	t.Run("move replaces the target", func(t *testing.T) {
		dir := newFS(t).Root().Directory("channel_2")
		require.Nil(t, dir.Ensure())
		src := dir.File("transactions_2.tmp")
		dst := dir.File("transactions_2.sft")

		_, err := dst.Append([]byte("old content"))
		require.Nil(t, err)
		_, err = src.Append([]byte("new"))
		require.Nil(t, err)

		require.Nil(t, src.MoveTo(dst))

		exists, err := src.Exists()
		require.Nil(t, err)
		assert.False(t, exists)

		all, err := afs.ReadAll(dst)
		require.Nil(t, err)
		assert.Equal(t, "new", string(all))
	})

	t.Run("copy range and list", func(t *testing.T) {
		dir := newFS(t).Root().Directory("channel_3")
		require.Nil(t, dir.Ensure())
		a := dir.File("channel_3_1.dat")
		b := dir.File("channel_3_2.dat")
		_, err := a.Append([]byte("0123456789"))
		require.Nil(t, err)

		size, err := afs.CopyRange(a, 2, 3, b)
		require.Nil(t, err)
		assert.Equal(t, int64(3), size)

		all, err := afs.ReadAll(b)
		require.Nil(t, err)
		assert.Equal(t, "234", string(all))

		names, err := dir.List()
		require.Nil(t, err)
		assert.Equal(t, []string{"channel_3_1.dat", "channel_3_2.dat"}, names)

		require.Nil(t, a.Delete())
		names, err = dir.List()
		require.Nil(t, err)
		assert.Equal(t, []string{"channel_3_2.dat"}, names)
	})

	t.Run("list of a missing directory is empty", func(t *testing.T) {
		names, err := newFS(t).Root().Directory("nope").List()
		require.Nil(t, err)
		assert.Len(t, names, 0)
	})

	t.Run("paths are relative and slash separated", func(t *testing.T) {
		f := newFS(t).Root().Directory("channel_4").File("channel_4_7.dat")
		assert.Equal(t, "channel_4/channel_4_7.dat", f.Path())
		assert.Equal(t, "channel_4_7.dat", f.Name())
	})
}
