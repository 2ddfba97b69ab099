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
	"context"
	"encoding/binary"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/afs/localfs"
	"github.com/weaviate/chanstore/entities/entityheader"
	"github.com/weaviate/chanstore/entities/objectid"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

const (
	rootType  int64 = 1
	refsType  int64 = 2
	plainType int64 = 3
)

func oid(n int64) int64 {
	return objectid.ObjectIDBase + n
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ChannelCount = 4
	cfg.RootTypeID = rootType
	cfg.ReferenceTypeIDs = []int64{rootType, refsType}
	// routine housekeeping stays out of the way unless a test wants it
	cfg.Housekeeping.Interval = time.Hour
	cfg.MarkingWaitTime = 5 * time.Millisecond
	return cfg
}

func refs(ids ...int64) []byte {
	out := make([]byte, 0, 8*len(ids))
	for _, id := range ids {
		out = binary.LittleEndian.AppendUint64(out, uint64(id))
	}
	return out
}

func rootRecord(id int64, children ...int64) []byte {
	return entityheader.NewRecord(rootType, id, refs(children...))
}

func plainRecord(id int64, content string) []byte {
	return entityheader.NewRecord(plainType, id, []byte(content))
}

func concat(records ...[]byte) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}

// objectIDs lists the object ids of a buffer of records in order.
func objectIDs(t *testing.T, data []byte) []int64 {
	t.Helper()
	var ids []int64
	_, err := entityheader.NewDefaultEvaluator().Iterate(data, func(_ int64, h entityheader.Header, _ []byte) error {
		ids = append(ids, h.ObjectID)
		return nil
	}, nil)
	require.Nil(t, err)
	return ids
}

// contents maps object ids to their record content.
func contents(t *testing.T, data []byte) map[int64]string {
	t.Helper()
	out := map[int64]string{}
	_, err := entityheader.NewDefaultEvaluator().Iterate(data, func(_ int64, h entityheader.Header, record []byte) error {
		out[h.ObjectID] = string(record[entityheader.Length:])
		return nil
	}, nil)
	require.Nil(t, err)
	return out
}

func newLocalFS(t *testing.T) *localfs.FileSystem {
	fs, err := localfs.New(t.TempDir())
	require.Nil(t, err)
	return fs
}

type testStorage struct {
	*Storage
	metrics *monitoring.PrometheusMetrics
	hook    *test.Hook
}

func startStorage(t *testing.T, cfg Config, deps Dependencies) *testStorage {
	t.Helper()
	logger, hook := test.NewNullLogger()
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if deps.Metrics == nil {
		deps.Metrics = monitoring.NewPrometheusMetrics(prometheus.NewPedanticRegistry())
	}
	s, err := New(cfg, deps)
	require.Nil(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.Nil(t, s.Start(ctx))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return &testStorage{Storage: s, metrics: deps.Metrics, hook: hook}
}

func (s *testStorage) shutdown(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.Nil(t, s.Shutdown(ctx))
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// faultyFS fails appends to files whose path starts with a configured
// prefix.
type faultyFS struct {
	afs.FileSystem

	mu     sync.Mutex
	prefix string
}

func (f *faultyFS) failAppends(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefix = prefix
}

func (f *faultyFS) fails(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prefix != "" && strings.HasPrefix(path, f.prefix)
}

func (f *faultyFS) Root() afs.Directory {
	return &faultyDir{dir: f.FileSystem.Root(), fs: f}
}

type faultyDir struct {
	dir afs.Directory
	fs  *faultyFS
}

func (d *faultyDir) Name() string            { return d.dir.Name() }
func (d *faultyDir) Path() string            { return d.dir.Path() }
func (d *faultyDir) Ensure() error           { return d.dir.Ensure() }
func (d *faultyDir) List() ([]string, error) { return d.dir.List() }

func (d *faultyDir) Directory(name string) afs.Directory {
	return &faultyDir{dir: d.dir.Directory(name), fs: d.fs}
}

func (d *faultyDir) File(name string) afs.File {
	return &faultyFile{File: d.dir.File(name), fs: d.fs}
}

type faultyFile struct {
	afs.File
	fs *faultyFS
}

func (f *faultyFile) Append(p []byte) (int64, error) {
	if f.fs.fails(f.Path()) {
		return 0, errors.Errorf("injected append failure on %s", f.Path())
	}
	return f.File.Append(p)
}
