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

package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/entities/entityheader"
	"github.com/weaviate/chanstore/entities/objectid"
)

const typeID = 1000

func oid(n int64) int64 {
	return objectid.ObjectIDBase + n
}

func record(objectID int64, content string) []byte {
	return entityheader.NewRecord(typeID, objectID, []byte(content))
}

func newTestReader(t *testing.T, channels int, maxBatch int64) *Reader {
	logger, _ := test.NewNullLogger()
	ce, err := objectid.NewChannelEvaluator(channels)
	require.Nil(t, err)
	return NewReader(entityheader.NewDefaultEvaluator(), ce, maxBatch, logger, nil)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestScanGroupsContiguousRecordsPerChannel(t *testing.T) {
	r := newTestReader(t, 2, 0)
	data := concat(
		record(oid(0), "a"), record(oid(2), "b"), // channel 0
		record(oid(1), "c"), // channel 1
		record(oid(4), "d"), // channel 0 again, new batch
	)

	perChannel, report := r.Scan("buf", data)
	require.Nil(t, report.Fault)
	assert.Equal(t, 4, report.Entities)
	assert.Equal(t, 3, report.Batches)
	assert.Equal(t, int64(len(data)), report.Bytes)

	require.Len(t, perChannel[0], 2)
	require.Len(t, perChannel[1], 1)
	first := perChannel[0][0]
	assert.Equal(t, 2, first.Count())
	assert.Equal(t, int64(0), first.Offset)
	assert.Equal(t, int64(50), first.Length)
	assert.Equal(t, oid(2), first.MaxObjectID())
	assert.Equal(t, oid(1), perChannel[1][0].First.ObjectID)
	assert.Equal(t, int64(75), perChannel[0][1].Offset)
}

func TestScanGapsAndBatchCap(t *testing.T) {
	r := newTestReader(t, 1, 60)
	data := concat(
		record(oid(1), "a"),
		record(oid(2), "b"),
		record(oid(3), "c"), // exceeds the cap of 60
		entityheader.AppendGap(nil, 16),
		record(oid(4), "d"),
	)

	perChannel, report := r.Scan("buf", data)
	require.Nil(t, report.Fault)
	require.Len(t, perChannel[0], 3)
	assert.Equal(t, 2, perChannel[0][0].Count())
	assert.Equal(t, 1, perChannel[0][1].Count())
	assert.Equal(t, int64(91), perChannel[0][2].Offset)

	var seen []int64
	perChannel[0][0].Each(func(e Entity) { seen = append(seen, e.ObjectID) })
	assert.Equal(t, []int64{oid(1), oid(2)}, seen)
}

func TestScanFaultContainment(t *testing.T) {
	r := newTestReader(t, 2, 0)
	corrupt := record(0, "zero object id")

	t.Run("first record invalid", func(t *testing.T) {
		data := concat(corrupt, record(oid(1), "a"))
		perChannel, report := r.Scan("bad", data)
		require.NotNil(t, report.Fault)
		assert.True(t, errors.Is(report.Fault, &entityheader.HeaderError{Kind: entityheader.ErrObjectIDOutOfRange}))
		assert.Equal(t, int64(0), report.FaultOffset)
		for _, batches := range perChannel {
			assert.Len(t, batches, 0)
		}
	})

	t.Run("later record invalid", func(t *testing.T) {
		data := concat(record(oid(1), "a"), record(oid(2), "b"), record(oid(4), "c"), corrupt, record(oid(6), "d"))
		perChannel, report := r.Scan("bad", data)
		require.NotNil(t, report.Fault)
		assert.Equal(t, int64(75), report.FaultOffset)
		assert.Equal(t, 3, report.Entities)
		require.Len(t, perChannel[1], 1)
		require.Len(t, perChannel[0], 1)
		assert.Equal(t, 2, perChannel[0][0].Count())
	})

	t.Run("truncated tail", func(t *testing.T) {
		data := concat(record(oid(1), "a"), record(oid(3), "b"))
		perChannel, report := r.Scan("torn", data[:len(data)-1])
		require.NotNil(t, report.Fault)
		require.Len(t, perChannel[1], 1)
		assert.Equal(t, 1, perChannel[1][0].Count())
	})
}

func TestRunFeedsChannelQueues(t *testing.T) {
	r := newTestReader(t, 2, 0)
	good := NewBufferSource("good", concat(record(oid(0), "a"), record(oid(1), "b")))
	bad := NewBufferSource("bad", concat(record(oid(3), "c"), record(5, "broken")))
	late := NewBufferSource("late", record(oid(2), "d"))

	run := r.Start(context.Background(), []Source{good, bad, late})

	var ch0, ch1 []SourceSlice
	for s := range run.Queue(0) {
		ch0 = append(ch0, s)
	}
	for s := range run.Queue(1) {
		ch1 = append(ch1, s)
	}

	reports, err := run.Wait(context.Background())
	require.Nil(t, err)
	require.Len(t, reports, 3)
	assert.Nil(t, reports[0].Fault)
	assert.NotNil(t, reports[1].Fault)
	assert.Nil(t, reports[2].Fault)

	require.Len(t, ch0, 2)
	assert.Equal(t, "good", ch0[0].Source)
	assert.Equal(t, "late", ch0[1].Source)
	require.Len(t, ch1, 2)
	assert.Equal(t, "bad", ch1[1].Source)
	assert.Equal(t, int64(25), ch1[1].Length())

	require.Nil(t, run.Close())
	require.Nil(t, run.Close())
}

func TestRunReportsIOFailures(t *testing.T) {
	r := newTestReader(t, 1, 0)
	missing := NewFileSource(filepath.Join(t.TempDir(), "missing.bin"), ReadModeMmap)
	run := r.Start(context.Background(), []Source{missing})

	for range run.Queue(0) {
	}
	reports, err := run.Wait(context.Background())
	require.NotNil(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.Len(t, reports, 1)
	assert.NotNil(t, reports[0].Fault)
}

func TestFileSource(t *testing.T) {
	data := concat(record(oid(1), "hello"), record(oid(2), "world"))
	path := filepath.Join(t.TempDir(), "export.bin")
	require.Nil(t, os.WriteFile(path, data, 0o644))

	for _, mode := range []ReadMode{ReadModeMmap, ReadModeRead} {
		src := NewFileSource(path, mode)
		got, err := src.Open()
		require.Nil(t, err)
		assert.Equal(t, data, []byte(got))
		if mode == ReadModeRead {
			n, _ := src.ReadStats()
			assert.Equal(t, int64(len(data)), n)
		}
		require.Nil(t, src.Close())
		require.Nil(t, src.Close())
	}

	empty := filepath.Join(t.TempDir(), "empty.bin")
	require.Nil(t, os.WriteFile(empty, nil, 0o644))
	got, err := NewFileSource(empty, ReadModeMmap).Open()
	require.Nil(t, err)
	assert.Len(t, got, 0)
}
