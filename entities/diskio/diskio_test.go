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

package diskio

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.dat"), []byte("12345"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	exists, err := FileExists(filepath.Join(dir, "a.dat"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = FileExists(filepath.Join(dir, "b.dat"))
	require.NoError(t, err)
	assert.False(t, exists)

	sizes, err := GetFileWithSizes(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a.dat": 5}, sizes)

	assert.NoError(t, Fsync(filepath.Join(dir, "a.dat")))
}

func TestSanitizeFilePathJoin(t *testing.T) {
	root := t.TempDir()

	p, err := SanitizeFilePathJoin(root, "channel_0/channel_0_1.dat")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "channel_0", "channel_0_1.dat"), p)

	_, err = SanitizeFilePathJoin(root, "../escape")
	assert.Error(t, err)

	_, err = SanitizeFilePathJoin(root, "/abs")
	assert.Error(t, err)
}

func TestMeteredReader(t *testing.T) {
	var total int64
	r := NewMeteredReader(bytes.NewReader(make([]byte, 1000)), func(read, _ int64) {
		total += read
	})

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Len(t, data, 1000)
	assert.Equal(t, int64(1000), total)
}
