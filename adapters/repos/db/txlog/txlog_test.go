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

package txlog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/adapters/repos/db/afs/localfs"
)

func TestEntryLengths(t *testing.T) {
	tests := []struct {
		entry    Entry
		expected int
	}{
		{FileCreation(1, 1, 0), 26},
		{DataStore(2, 1, 100), 26},
		{DataTransfer(3, 2, 1, 40), 34},
		{FileTruncation(4, 1, 10, 100), 34},
		{FileDeletion(5, 1, 10), 26},
	}

	for _, test := range tests {
		t.Run(test.entry.Type.String(), func(t *testing.T) {
			buf := test.entry.Append(nil)
			assert.Len(t, buf, test.expected)
			assert.Equal(t, byte(test.expected), buf[0])
			assert.Equal(t, byte(test.entry.Type), buf[1])
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	entries := []Entry{
		FileCreation(10, 1, 0),
		DataStore(11, 1, 100),
		FileCreation(12, 2, 0),
		DataStore(13, 2, 7),
		DataTransfer(14, 2, 1, 60),
		FileTruncation(15, 1, 20, 100),
		DataStore(16, 1, 3),
		FileDeletion(17, 1, 23),
		DataStore(18, 2, 0),
	}

	decoded, consistent, err := Decode(Encode(entries...))
	require.Nil(t, err)
	assert.Equal(t, entries, decoded)
	assert.Equal(t, int64(len(Encode(entries...))), consistent)
}

func TestIterateSkipsGaps(t *testing.T) {
	var buf []byte
	buf = FileCreation(1, 1, 0).Append(buf)
	buf = AppendGap(buf, 10)
	buf = DataStore(2, 1, 5).Append(buf)
	buf = AppendGap(buf, MaxGapLength)

	var offsets []int64
	consistent, err := Iterate(buf, func(offset int64, e Entry) error {
		offsets = append(offsets, offset)
		return nil
	})
	require.Nil(t, err)
	assert.Equal(t, int64(len(buf)), consistent)
	assert.Equal(t, []int64{0, 36}, offsets)
}

func TestIterateTornTail(t *testing.T) {
	full := Encode(FileCreation(1, 1, 0), DataStore(2, 1, 5))
	complete := int64(shortEntryLength)

	for cut := 1; cut < shortEntryLength; cut++ {
		entries, consistent, err := Decode(full[:len(full)-cut])
		require.Nil(t, err)
		assert.Len(t, entries, 1)
		assert.Equal(t, complete, consistent)
	}

	// a gap that runs past the end is torn as well, 0xEC announces 20 bytes
	buf := append(FileCreation(1, 1, 0).Append(nil), 0xEC, 0, 0)
	_, consistent, err := Decode(buf)
	require.Nil(t, err)
	assert.Equal(t, complete, consistent)
}

func TestIterateMalformed(t *testing.T) {
	valid := FileCreation(1, 1, 0).Append(nil)

	t.Run("zero length", func(t *testing.T) {
		buf := append(append([]byte{}, valid...), 0, 0, 0)
		_, consistent, err := Decode(buf)
		assert.True(t, errors.Is(err, ErrZeroLengthEntry))
		assert.Equal(t, int64(len(valid)), consistent)
	})

	t.Run("unknown type", func(t *testing.T) {
		buf := DataStore(1, 1, 1).Append(nil)
		buf[1] = 9
		_, _, err := Decode(buf)
		assert.True(t, errors.Is(err, ErrUnknownEntryType))
	})

	t.Run("length mismatch", func(t *testing.T) {
		buf := DataTransfer(1, 2, 1, 1).Append(nil)
		buf[0] = shortEntryLength
		_, _, err := Decode(buf)
		assert.True(t, errors.Is(err, ErrEntryLengthMismatch))
	})
}

func TestFoldLifecycle(t *testing.T) {
	buf := Encode(
		FileCreation(1, 1, 0),
		DataStore(2, 1, 100),
		DataStore(3, 1, 50),
		FileTruncation(4, 1, 120, 150),
	)

	inv, _, err := Fold(buf)
	require.Nil(t, err)
	f, ok := inv.File(1)
	require.True(t, ok)
	assert.Equal(t, int64(120), f.Length)
	assert.False(t, f.Deleted)

	buf = FileDeletion(5, 1, 120).Append(buf)
	inv, _, err = Fold(buf)
	require.Nil(t, err)
	f, ok = inv.File(1)
	require.True(t, ok)
	assert.Equal(t, int64(120), f.Length)
	assert.True(t, f.Deleted)
	assert.Equal(t, int64(5), inv.MaxTimestamp())
	assert.Len(t, inv.LiveFiles(), 0)
}

func TestFoldTracksHeadAndTransfers(t *testing.T) {
	inv, _, err := Fold(Encode(
		FileCreation(1, 1, 0),
		DataStore(2, 1, 80),
		FileCreation(3, 2, 0),
		DataTransfer(4, 2, 1, 30),
		FileDeletion(5, 1, 80),
		DataStore(6, 2, 10),
	))
	require.Nil(t, err)

	head, ok := inv.HeadFile()
	require.True(t, ok)
	assert.Equal(t, int64(2), head.FileNumber)
	assert.Equal(t, int64(40), head.Length)
	assert.Equal(t, int64(2), inv.LastCreated())
}

func TestFoldRejectsInconsistencies(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"non increasing creation", []Entry{FileCreation(1, 2, 0), FileCreation(2, 1, 0)}},
		{"store on unknown file", []Entry{DataStore(1, 1, 10)}},
		{"transfer from unknown file", []Entry{FileCreation(1, 1, 0), DataTransfer(2, 1, 7, 10)}},
		{"growing truncation", []Entry{FileCreation(1, 1, 0), DataStore(2, 1, 10), FileTruncation(3, 1, 11, 10)}},
		{"store after deletion", []Entry{FileCreation(1, 1, 0), FileDeletion(2, 1, 0), DataStore(3, 1, 1)}},
		{"double deletion", []Entry{FileCreation(1, 1, 0), FileDeletion(2, 1, 0), FileDeletion(3, 1, 0)}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, _, err := Fold(Encode(test.entries...))
			assert.True(t, errors.Is(err, ErrInconsistent), "got %v", err)
		})
	}
}

func TestCompact(t *testing.T) {
	inv, _, err := Fold(Encode(
		FileCreation(1, 1, 0),
		DataStore(2, 1, 80),
		FileCreation(3, 2, 0),
		DataTransfer(4, 2, 1, 30),
		FileDeletion(5, 1, 80),
		FileCreation(6, 3, 0),
		FileDeletion(7, 3, 0),
		DataStore(8, 2, 10),
	))
	require.Nil(t, err)

	// file 1 is gone from disk, file 3 is still around
	compacted := Compact(inv, func(n int64) bool { return n == 3 })
	entries, _, err := Decode(compacted)
	require.Nil(t, err)
	assert.Equal(t, []Entry{
		FileCreation(8, 2, 0),
		DataStore(8, 2, 40),
		FileCreation(7, 3, 0),
		FileDeletion(7, 3, 0),
	}, entries)

	again, _, err := Fold(compacted)
	require.Nil(t, err)
	assert.Equal(t, inv.LiveFiles(), again.LiveFiles())
	assert.Equal(t, inv.MaxTimestamp(), again.MaxTimestamp())

	t.Run("last created file survives its removal", func(t *testing.T) {
		compacted := Compact(inv, func(int64) bool { return false })
		again, _, err := Fold(compacted)
		require.Nil(t, err)
		assert.Equal(t, int64(3), again.LastCreated())
		assert.Equal(t, inv.LiveFiles(), again.LiveFiles())
	})
}

func TestCheck(t *testing.T) {
	inv, _, err := Fold(Encode(
		FileCreation(1, 1, 0),
		DataStore(2, 1, 100),
		FileCreation(3, 2, 0),
		FileDeletion(4, 1, 100),
		DataStore(5, 2, 50),
	))
	require.Nil(t, err)

	t.Run("missing live file", func(t *testing.T) {
		_, err := Check(inv, map[int64]int64{}, false)
		assert.True(t, errors.Is(err, ErrInconsistent))
	})

	t.Run("presence only", func(t *testing.T) {
		actions, err := Check(inv, map[int64]int64{2: 10}, false)
		require.Nil(t, err)
		assert.Len(t, actions, 0)
	})

	t.Run("shorter file", func(t *testing.T) {
		_, err := Check(inv, map[int64]int64{2: 10}, true)
		assert.True(t, errors.Is(err, ErrInconsistent))
	})

	t.Run("repairs", func(t *testing.T) {
		actions, err := Check(inv, map[int64]int64{1: 100, 2: 70, 3: 5}, true)
		require.Nil(t, err)
		assert.Equal(t, []Action{
			{Kind: ActionDelete, FileNumber: 1, Size: 100},
			{Kind: ActionTruncate, FileNumber: 2, Size: 50},
			{Kind: ActionDelete, FileNumber: 3, Size: 5},
		}, actions)
	})
}

func TestWriter(t *testing.T) {
	fs, err := localfs.New(t.TempDir())
	require.Nil(t, err)
	dir := fs.Root().Directory("channel_0")
	file := dir.File("transactions_0.sft")

	w, err := OpenWriter(file, 0)
	require.Nil(t, err)

	w.Add(FileCreation(1, 1, 0), DataStore(2, 1, 10))
	assert.True(t, w.Pending())
	pos, data, err := w.Commit()
	require.Nil(t, err)
	assert.Equal(t, int64(0), pos)
	assert.Len(t, data, 2*shortEntryLength)

	w.Add(DataStore(3, 1, 5))
	w.Discard()
	pos, data, err = w.Commit()
	require.Nil(t, err)
	assert.Nil(t, data)
	assert.Equal(t, int64(2*shortEntryLength), pos)

	t.Run("reopen truncates a torn tail", func(t *testing.T) {
		_, err := file.Append([]byte{shortEntryLength, 1, 0, 0})
		require.Nil(t, err)

		w, err := OpenWriter(file, 2*shortEntryLength)
		require.Nil(t, err)
		size, err := file.Size()
		require.Nil(t, err)
		assert.Equal(t, int64(2*shortEntryLength), size)
		assert.Equal(t, size, w.Size())
	})

	t.Run("reopen with a short file fails", func(t *testing.T) {
		_, err := OpenWriter(file, 1000)
		assert.True(t, errors.Is(err, ErrInconsistent))
	})

	t.Run("replace", func(t *testing.T) {
		w, err := OpenWriter(file, 2*shortEntryLength)
		require.Nil(t, err)
		compacted := Encode(FileCreation(2, 1, 0), DataStore(2, 1, 10))
		require.Nil(t, w.Replace(dir.File("transactions_0.tmp"), compacted))

		inv, consistent, err := Fold(compacted)
		require.Nil(t, err)
		assert.Equal(t, w.Size(), consistent)
		f, _ := inv.File(1)
		assert.Equal(t, int64(10), f.Length)
	})
}
