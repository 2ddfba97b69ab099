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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/importer"
	"github.com/weaviate/chanstore/adapters/repos/db/tasks"
	"github.com/weaviate/chanstore/entities/entityheader"
	enterrors "github.com/weaviate/chanstore/entities/errors"
	"github.com/weaviate/chanstore/entities/objectid"
	"github.com/weaviate/chanstore/entities/storagestate"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

// Dependencies are the collaborators of a Storage. Only FileSystem is
// required.
type Dependencies struct {
	FileSystem afs.FileSystem
	// Backup enables mirroring of every file change into a second file
	// system when set.
	Backup afs.FileSystem

	WriteController    *storagestate.WriteController
	RangeEvaluator     objectid.RangeEvaluator
	ReferenceExtractor ReferenceExtractor
	ZombieHandler      ZombieHandler
	CacheEvaluator     CacheEvaluator
	HousekeepingBroker HousekeepingBroker

	Logger  logrus.FieldLogger
	Metrics *monitoring.PrometheusMetrics
}

// Storage is the request layer of the engine. Every request becomes a task
// that all channels process in the order the requests arrived.
type Storage struct {
	config Config
	fs     afs.FileSystem

	evaluator       *entityheader.Evaluator
	channelIndexes  *objectid.ChannelEvaluator
	writeController *storagestate.WriteController
	ranges          objectid.RangeEvaluator
	highWaterMark   *objectid.HighWaterMark

	clock      *tasks.Clock
	operations *operationController
	monitor    *markMonitor
	mirror     *mirror
	backup     *backup.Handler
	reader     *importer.Reader
	channels   []*Channel
	taskOpts   tasks.Options

	housekeepingEnabled atomic.Bool

	mu      sync.Mutex
	started bool
	broker  *taskBroker
	cancel  context.CancelFunc
	workers sync.WaitGroup

	logger  logrus.FieldLogger
	metrics *monitoring.PrometheusMetrics
}

func New(config Config, deps Dependencies) (*Storage, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid storage config")
	}
	if deps.FileSystem == nil {
		return nil, errors.New("no file system given")
	}
	evaluator, err := entityheader.NewEvaluator(config.HeaderBounds)
	if err != nil {
		return nil, err
	}
	channelIndexes, err := objectid.NewChannelEvaluator(config.ChannelCount)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
	}
	logger = logger.WithField("component", "storage")

	s := &Storage{
		config:          config,
		fs:              deps.FileSystem,
		evaluator:       evaluator,
		channelIndexes:  channelIndexes,
		writeController: deps.WriteController,
		highWaterMark:   objectid.NewHighWaterMark(objectid.ObjectIDBase),
		clock:           tasks.NewClock(),
		operations:      newOperationController(logger),
		logger:          logger,
		metrics:         deps.Metrics,
	}
	if s.writeController == nil {
		s.writeController = storagestate.NewWriteController(storagestate.AllCapabilities())
	}
	s.ranges = s.highWaterMark
	if deps.RangeEvaluator != nil {
		s.ranges = rangeEvaluators{s.highWaterMark, deps.RangeEvaluator}
	}

	s.monitor = newMarkMonitor(channelIndexes, config.RootTypeID != 0, logger)
	s.mirror = &mirror{logger: logger.WithField("action", "backup_mirror")}
	if deps.Backup != nil {
		s.backup = backup.NewHandler(deps.Backup, s.writeController, config.Backup, logger, deps.Metrics)
		s.mirror.handler = s.backup
	}
	s.reader = importer.NewReader(evaluator, channelIndexes, config.MaxImportBatchLength, logger, deps.Metrics)

	s.taskOpts = tasks.Options{Logger: logger}
	if deps.Metrics != nil {
		s.taskOpts.Observer = taskObserver{metrics: deps.Metrics}
	}

	extractor := deps.ReferenceExtractor
	if extractor == nil {
		extractor = NewDenseReferenceExtractor(config.ReferenceTypeIDs...)
	}
	zombies := deps.ZombieHandler
	if zombies == nil {
		zombies = newZombieHandler(logger, deps.Metrics)
	}
	cacheEvaluator := deps.CacheEvaluator
	if cacheEvaluator == nil {
		cacheEvaluator = newCacheEvaluator(config.Cache)
	}
	housekeeping := deps.HousekeepingBroker
	if housekeeping == nil {
		housekeeping = defaultHousekeepingBroker{}
	}
	if deps.Metrics != nil {
		housekeeping = newMeteredHousekeepingBroker(housekeeping)
	}

	s.channels = make([]*Channel, config.ChannelCount)
	for i := range s.channels {
		channelLogger := logger.WithField("channel", i)
		dir := s.fs.Root().Directory(ChannelDirectoryName(i))
		s.channels[i] = &Channel{
			index:               i,
			config:              &s.config,
			evaluator:           evaluator,
			channels:            channelIndexes,
			extractor:           extractor,
			zombies:             zombies,
			cacheEvaluator:      cacheEvaluator,
			controller:          s.writeController,
			monitor:             s.monitor,
			housekeeping:        housekeeping,
			files:               newFileManager(i, dir, s.clock, s.writeController, s.mirror, channelLogger),
			cache:               newEntityCache(),
			housekeepingEnabled: &s.housekeepingEnabled,
			logger:              channelLogger,
			metrics:             newChannelMetrics(deps.Metrics, i),
		}
	}
	return s, nil
}

type rangeEvaluators []objectid.RangeEvaluator

func (r rangeEvaluators) EvaluateObjectIDRange(lower, upper int64) {
	for _, ev := range r {
		ev.EvaluateObjectIDRange(lower, upper)
	}
}

func (s *Storage) ChannelCount() int {
	return len(s.channels)
}

func (s *Storage) WriteController() *storagestate.WriteController {
	return s.writeController
}

// HighWaterMark is the highest object id that entered the storage.
func (s *Storage) HighWaterMark() int64 {
	return s.highWaterMark.Current()
}

func (s *Storage) IsRunning() bool {
	return s.operations.checkRunning() == nil
}

// Start launches the channel workers and loads every channel. With a backup
// configured, the backup is brought up to date before mirroring starts.
func (s *Storage) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("storage already started")
	}

	s.monitor.reset()
	s.housekeepingEnabled.Store(false)
	s.broker = newTaskBroker(s.clock, s.operations, len(s.channels), s.taskOpts)
	s.operations.activate()

	// workers outlive the start request
	workerCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	first := s.broker.first()
	for _, c := range s.channels {
		c := c
		s.workers.Add(1)
		enterrors.GoWrapper(func() {
			defer s.workers.Done()
			c.work(workerCtx, first, s.operations)
		}, c.logger)
	}

	t, err := submit(s.broker, initializeLogic(s.ranges))
	if err == nil {
		_, err = t.Wait(ctx)
	}
	if err != nil {
		s.stopWorkers()
		return errors.Wrap(err, "initialize channels")
	}

	if s.backup != nil {
		dirs := make([]string, len(s.channels))
		for i := range s.channels {
			dirs[i] = ChannelDirectoryName(i)
		}
		if err := s.backup.Synchronize(ctx, s.fs, dirs); err != nil {
			s.stopWorkers()
			return errors.Wrap(err, "synchronize backup")
		}
		s.backup.Start(context.Background())
		s.mirror.active.Store(true)
	}

	s.housekeepingEnabled.Store(true)
	s.started = true
	s.logger.WithFields(logrus.Fields{
		"channels":        len(s.channels),
		"high_water_mark": s.highWaterMark.Current(),
	}).Info("storage started")
	return nil
}

func (s *Storage) stopWorkers() {
	s.operations.deactivate()
	s.cancel()
	s.workers.Wait()
}

// Shutdown stops accepting requests, lets every channel finish the tasks
// submitted before and waits for all workers to exit, bounded by ctx.
func (s *Storage) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	var merr *multierror.Error
	t, err := submitFinal(s.broker, shutdownLogic())
	switch {
	case err == nil:
		if _, err := t.Wait(ctx); err != nil {
			merr = multierror.Append(merr, err)
		}
	case errors.Is(err, ErrNotRunning):
		if disruption := s.operations.disruption(); disruption != nil {
			s.logger.WithError(disruption).Warn("shutting down disrupted storage")
		}
		s.cancel()
	default:
		merr = multierror.Append(merr, err)
		s.cancel()
	}

	exited := make(chan struct{})
	enterrors.GoWrapper(func() {
		s.workers.Wait()
		close(exited)
	}, s.logger)
	select {
	case <-exited:
	case <-ctx.Done():
		merr = multierror.Append(merr, errors.Wrap(ctx.Err(), "wait for channel workers"))
	}
	s.cancel()
	<-exited

	s.housekeepingEnabled.Store(false)
	if s.backup != nil {
		s.mirror.active.Store(false)
		if err := s.backup.Stop(ctx); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, "stop backup"))
		}
	}

	s.logger.Info("storage shut down")
	return merr.ErrorOrNil()
}

func (s *Storage) currentBroker() (*taskBroker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, ErrNotRunning
	}
	return s.broker, nil
}

type StoreResult struct {
	Entities int   `json:"entities"`
	Bytes    int64 `json:"bytes"`
}

// Store writes a buffer of complete records. Either all channels commit
// their share or none does.
func (s *Storage) Store(ctx context.Context, records []byte) (StoreResult, error) {
	if err := s.writeController.ValidateIsWritable(); err != nil {
		return StoreResult{}, err
	}
	perChannel := make([][]byte, len(s.channels))
	if _, err := s.evaluator.Iterate(records, func(_ int64, h entityheader.Header, record []byte) error {
		channel := s.channelIndexes.ChannelIndex(h.ObjectID)
		perChannel[channel] = append(perChannel[channel], record...)
		return nil
	}, nil); err != nil {
		return StoreResult{}, errors.Wrap(err, "invalid records")
	}

	broker, err := s.currentBroker()
	if err != nil {
		return StoreResult{}, err
	}
	t, err := submit(broker, storeLogic(perChannel, s.ranges))
	if err != nil {
		return StoreResult{}, err
	}
	writes, err := t.Wait(ctx)
	if err != nil {
		return StoreResult{}, err
	}

	var result StoreResult
	for _, w := range writes {
		if w == nil {
			continue
		}
		result.Entities += len(w.entities)
		for _, n := range w.appended {
			result.Bytes += n
		}
	}
	return result, nil
}

// LoadByObjectIDs returns the records of all given ids that are stored,
// grouped by channel. Unknown ids are skipped.
func (s *Storage) LoadByObjectIDs(ctx context.Context, ids []int64) ([]byte, error) {
	return s.load(ctx, loadObjectsLogic(ids))
}

// LoadRoots returns the records of all root entities.
func (s *Storage) LoadRoots(ctx context.Context) ([]byte, error) {
	return s.load(ctx, loadRootsLogic())
}

func (s *Storage) load(ctx context.Context, logic tasks.Logic[*Channel, []byte]) ([]byte, error) {
	results, err := run(ctx, s, logic)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, data := range results {
		out = append(out, data...)
	}
	return out, nil
}

// IssueGarbageCollection collects garbage until collection is complete or
// budget is used up. It reports whether collection completed.
func (s *Storage) IssueGarbageCollection(ctx context.Context, budget time.Duration) (bool, error) {
	if budget <= 0 {
		return false, errors.Errorf("garbage collection budget must be positive, got %s", budget)
	}
	results, err := run(ctx, s, garbageCollectionLogic(budget))
	return allDone(results), err
}

// IssueFullGarbageCollection runs garbage collection until two consecutive
// cycles found nothing left to collect.
func (s *Storage) IssueFullGarbageCollection(ctx context.Context) error {
	_, err := run(ctx, s, fullGarbageCollectionLogic(s.clock.Next()))
	return err
}

// IssueFileCheck dissolves data files the file evaluator rejects.
func (s *Storage) IssueFileCheck(ctx context.Context, budget time.Duration) (bool, error) {
	if err := s.writeController.ValidateIsFileCleanupEnabled(); err != nil {
		return false, err
	}
	results, err := run(ctx, s, fileCheckLogic(budget))
	return allDone(results), err
}

// IssueCacheCheck evicts cached entity data. A nil evaluator uses the
// configured one.
func (s *Storage) IssueCacheCheck(ctx context.Context, budget time.Duration, ev CacheEvaluator) (bool, error) {
	results, err := run(ctx, s, cacheCheckLogic(budget, ev))
	return allDone(results), err
}

// IssueTransactionsFileCheck verifies every channel's transactions log
// against its data files.
func (s *Storage) IssueTransactionsFileCheck(ctx context.Context, checkSize bool) ([]TransactionsCheck, error) {
	return run(ctx, s, transactionsFileCheckLogic(checkSize))
}

// ExportChannels copies the live files of all channels to target. With
// performGC a full garbage collection runs right before the copy and the
// data files are consolidated, so the copy holds reachable entities only.
func (s *Storage) ExportChannels(ctx context.Context, target afs.FileSystem, performGC bool) ([]ExportResult, error) {
	broker, err := s.currentBroker()
	if err != nil {
		return nil, err
	}
	var t *tasks.Task[*Channel, ExportResult]
	if performGC {
		t, err = submitWithFullGC(broker, exportLogic(target, true))
	} else {
		t, err = submit(broker, exportLogic(target, false))
	}
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx)
}

// ImportFiles imports the records of the given files. A file holding
// invalid data is imported up to the first invalid record, the report tells
// where it stopped.
func (s *Storage) ImportFiles(ctx context.Context, paths []string) ([]importer.SourceReport, error) {
	sources := make([]importer.Source, len(paths))
	for i, p := range paths {
		sources[i] = importer.NewFileSource(p, s.config.ImportReadMode)
	}
	return s.importSources(ctx, sources)
}

func (s *Storage) ImportData(ctx context.Context, buffers [][]byte) ([]importer.SourceReport, error) {
	sources := make([]importer.Source, len(buffers))
	for i, data := range buffers {
		sources[i] = importer.NewBufferSource(fmt.Sprintf("buffer-%d", i), data)
	}
	return s.importSources(ctx, sources)
}

func (s *Storage) importSources(ctx context.Context, sources []importer.Source) ([]importer.SourceReport, error) {
	if err := s.writeController.ValidateIsWritable(); err != nil {
		return nil, err
	}
	broker, err := s.currentBroker()
	if err != nil {
		return nil, err
	}

	importRun := s.reader.Start(ctx, sources)
	t, err := submit(broker, importLogic(importRun, s.ranges))
	if err != nil {
		// nobody drains the queues, they are buffered for the whole run
		_, _ = importRun.Wait(context.Background())
		return nil, multierror.Append(err, importRun.Close()).ErrorOrNil()
	}

	_, err = t.Wait(ctx)
	if ctx.Err() != nil {
		// channels may still read mapped sources
		enterrors.GoWrapper(func() {
			<-t.Done()
			_ = importRun.Close()
		}, s.logger)
		return nil, err
	}

	reports, rerr := importRun.Wait(ctx)
	var merr *multierror.Error
	merr = multierror.Append(merr, err, rerr, importRun.Close())
	return reports, merr.ErrorOrNil()
}

type Statistics struct {
	CreatedAt         time.Time           `json:"createdAt"`
	Channels          []ChannelStatistics `json:"channels"`
	EntityCount       int                 `json:"entityCount"`
	TotalLength       int64               `json:"totalLength"`
	LiveLength        int64               `json:"liveLength"`
	DataFiles         int                 `json:"dataFiles"`
	UnexpectedZombies int64               `json:"unexpectedZombies"`
	HighWaterMark     int64               `json:"highWaterMark"`
	GC                GCState             `json:"gc"`
}

func (s *Storage) Statistics(ctx context.Context) (Statistics, error) {
	results, err := run(ctx, s, statisticsLogic())
	if err != nil {
		return Statistics{}, err
	}
	stats := Statistics{
		CreatedAt:     time.Now(),
		Channels:      results,
		HighWaterMark: s.highWaterMark.Current(),
		GC:            s.monitor.state(),
	}
	for _, ch := range results {
		stats.EntityCount += ch.EntityCount
		stats.DataFiles += len(ch.Files)
		stats.UnexpectedZombies += ch.UnexpectedZombies
		for _, f := range ch.Files {
			stats.TotalLength += f.TotalLength
			stats.LiveLength += f.LiveLength
		}
	}
	return stats, nil
}

func run[R any](ctx context.Context, s *Storage, logic tasks.Logic[*Channel, R]) ([]R, error) {
	broker, err := s.currentBroker()
	if err != nil {
		return nil, err
	}
	t, err := submit(broker, logic)
	if err != nil {
		return nil, err
	}
	return t.Wait(ctx)
}

func allDone(results []bool) bool {
	for _, done := range results {
		if !done {
			return false
		}
	}
	return len(results) > 0
}
