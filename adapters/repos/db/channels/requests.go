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
	"time"

	"github.com/pkg/errors"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/importer"
	"github.com/weaviate/chanstore/adapters/repos/db/tasks"
	"github.com/weaviate/chanstore/entities/objectid"
)

const (
	KindStart                      tasks.Kind = "start"
	KindInitialize                 tasks.Kind = "initialize"
	KindStore                      tasks.Kind = "store"
	KindLoadObjects                tasks.Kind = "load_objects"
	KindLoadRoots                  tasks.Kind = "load_roots"
	KindGarbageCollection          tasks.Kind = "garbage_collection"
	KindFullGarbageCollection      tasks.Kind = "full_garbage_collection"
	KindPrependedGarbageCollection tasks.Kind = "prepended_garbage_collection"
	KindFileCheck                  tasks.Kind = "file_check"
	KindCacheCheck                 tasks.Kind = "cache_check"
	KindTransactionsFileCheck      tasks.Kind = "transactions_file_check"
	KindExport                     tasks.Kind = "export"
	KindImport                     tasks.Kind = "import"
	KindStatistics                 tasks.Kind = "statistics"
	KindShutdown                   tasks.Kind = "shutdown"
)

func initializeLogic(ranges objectid.RangeEvaluator) tasks.Logic[*Channel, initResult] {
	return tasks.Logic[*Channel, initResult]{
		Kind:            KindInitialize,
		RequiresBarrier: true,
		Process: func(_ context.Context, c *Channel) (initResult, error) {
			return c.initialize()
		},
		Resolve: func(c *Channel, _ initResult, outcome tasks.Outcome) error {
			if outcome.Failed {
				c.reset()
			}
			return nil
		},
		Abandon: func(c *Channel, _ initResult) {
			c.reset()
		},
		PostCompletion: func(_ *Channel, result initResult) error {
			if result.MaxObjectID > 0 {
				ranges.EvaluateObjectIDRange(objectid.ObjectIDBase, result.MaxObjectID)
			}
			return nil
		},
	}
}

// writeLogic is shared by stores and imports: the first phase writes data
// files, the second one commits on every channel or rolls back on every
// channel.
func writeLogic(kind tasks.Kind, ranges objectid.RangeEvaluator,
	write func(ctx context.Context, c *Channel, w *pendingWrite) error,
	done func(c *Channel),
) tasks.Logic[*Channel, *pendingWrite] {
	origin := originStore
	if kind == KindImport {
		origin = originImport
	}
	return tasks.Logic[*Channel, *pendingWrite]{
		Kind:            kind,
		RequiresBarrier: true,
		Process: func(ctx context.Context, c *Channel) (w *pendingWrite, err error) {
			w = c.beginWrite(origin)
			defer func() {
				if r := recover(); r != nil {
					if rerr := c.rollbackWrite(w); rerr != nil {
						c.logger.WithError(rerr).Error("roll back write after panic")
					}
					panic(r)
				}
			}()
			return w, write(ctx, c, w)
		},
		Resolve: func(c *Channel, w *pendingWrite, outcome tasks.Outcome) error {
			if w == nil {
				return nil
			}
			if outcome.Failed {
				return c.rollbackWrite(w)
			}
			return c.commitWrite(w, c.files.clock.Next())
		},
		Abandon: func(c *Channel, w *pendingWrite) {
			if err := c.rollbackWrite(w); err != nil {
				c.logger.WithError(err).Error("roll back abandoned write")
			}
		},
		PostCompletion: func(c *Channel, w *pendingWrite) error {
			if done != nil {
				done(c)
			}
			if w != nil && w.maxObjectID > 0 {
				ranges.EvaluateObjectIDRange(objectid.ObjectIDBase, w.maxObjectID)
			}
			return nil
		},
	}
}

func storeLogic(perChannel [][]byte, ranges objectid.RangeEvaluator) tasks.Logic[*Channel, *pendingWrite] {
	return writeLogic(KindStore, ranges, func(_ context.Context, c *Channel, w *pendingWrite) error {
		return c.writeRecords(w, perChannel[c.index])
	}, nil)
}

func importLogic(run *importer.Run, ranges objectid.RangeEvaluator) tasks.Logic[*Channel, *pendingWrite] {
	return writeLogic(KindImport, ranges, func(ctx context.Context, c *Channel, w *pendingWrite) error {
		// queues are buffered for the whole run, the reader never waits for
		// a channel that stopped early
		for slice := range run.Queue(c.index) {
			if err := c.writeImport(w, slice); err != nil {
				return err
			}
		}
		if _, err := run.Wait(ctx); err != nil {
			return errors.Wrap(err, "read import sources")
		}
		return nil
	}, func(*Channel) {
		// the caller reports the error of its own Close
		_ = run.Close()
	})
}

func loadObjectsLogic(ids []int64) tasks.Logic[*Channel, []byte] {
	return tasks.Logic[*Channel, []byte]{
		Kind: KindLoadObjects,
		Process: func(_ context.Context, c *Channel) ([]byte, error) {
			return c.loadObjects(ids)
		},
	}
}

func loadRootsLogic() tasks.Logic[*Channel, []byte] {
	return tasks.Logic[*Channel, []byte]{
		Kind: KindLoadRoots,
		Process: func(_ context.Context, c *Channel) ([]byte, error) {
			return c.loadRoots()
		},
	}
}

func garbageCollectionLogic(budget time.Duration) tasks.Logic[*Channel, bool] {
	return tasks.Logic[*Channel, bool]{
		Kind: KindGarbageCollection,
		Process: func(ctx context.Context, c *Channel) (bool, error) {
			return c.housekeeping.PerformIssuedGarbageCollection(ctx, c, budget)
		},
	}
}

func fullGarbageCollectionLogic(requested int64) tasks.Logic[*Channel, bool] {
	return tasks.Logic[*Channel, bool]{
		Kind: KindFullGarbageCollection,
		Process: func(ctx context.Context, c *Channel) (bool, error) {
			c.monitor.requestFull(requested)
			return c.housekeeping.PerformIssuedGarbageCollection(ctx, c, 0)
		},
	}
}

func fileCheckLogic(budget time.Duration) tasks.Logic[*Channel, bool] {
	return tasks.Logic[*Channel, bool]{
		Kind: KindFileCheck,
		Process: func(_ context.Context, c *Channel) (bool, error) {
			return c.housekeeping.PerformIssuedFileCleanupCheck(c, budget)
		},
	}
}

func cacheCheckLogic(budget time.Duration, ev CacheEvaluator) tasks.Logic[*Channel, bool] {
	return tasks.Logic[*Channel, bool]{
		Kind: KindCacheCheck,
		Process: func(_ context.Context, c *Channel) (bool, error) {
			return c.housekeeping.PerformIssuedEntityCacheCheck(c, budget, ev)
		},
	}
}

func transactionsFileCheckLogic(checkSize bool) tasks.Logic[*Channel, TransactionsCheck] {
	return tasks.Logic[*Channel, TransactionsCheck]{
		Kind: KindTransactionsFileCheck,
		Process: func(_ context.Context, c *Channel) (TransactionsCheck, error) {
			return c.housekeeping.PerformIssuedTransactionsFileCheck(c, checkSize)
		},
	}
}

// exportLogic copies every channel to target. With consolidate the data
// files are rewritten first, so records dropped by garbage collection are
// not part of the copy.
func exportLogic(target afs.FileSystem, consolidate bool) tasks.Logic[*Channel, ExportResult] {
	return tasks.Logic[*Channel, ExportResult]{
		Kind: KindExport,
		Process: func(_ context.Context, c *Channel) (ExportResult, error) {
			if consolidate {
				if err := c.consolidate(); err != nil {
					return ExportResult{Channel: c.index}, err
				}
			}
			return c.export(target)
		},
	}
}

func statisticsLogic() tasks.Logic[*Channel, ChannelStatistics] {
	return tasks.Logic[*Channel, ChannelStatistics]{
		Kind: KindStatistics,
		Process: func(_ context.Context, c *Channel) (ChannelStatistics, error) {
			return c.statistics(), nil
		},
	}
}

// shutdownLogic stops every channel worker once all of them reached the
// task, so no channel stops while others still wait for it.
func shutdownLogic() tasks.Logic[*Channel, struct{}] {
	return tasks.Logic[*Channel, struct{}]{
		Kind:            KindShutdown,
		RequiresBarrier: true,
		Process: func(context.Context, *Channel) (struct{}, error) {
			return struct{}{}, nil
		},
		Resolve: func(c *Channel, _ struct{}, _ tasks.Outcome) error {
			c.processing = false
			return nil
		},
	}
}
