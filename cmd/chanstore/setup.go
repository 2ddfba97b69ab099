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

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/afs/boltfs"
	"github.com/weaviate/chanstore/adapters/repos/db/afs/localfs"
	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/channels"
	"github.com/weaviate/chanstore/adapters/repos/db/importer"
	"github.com/weaviate/chanstore/adapters/repos/db/lockfile"
	"github.com/weaviate/chanstore/entities/storagestate"
	"github.com/weaviate/chanstore/usecases/config"
	"github.com/weaviate/chanstore/usecases/monitoring"
)

const boltFileName = "chanstore.db"

// app is everything a command needs while the storage is open.
type app struct {
	config   config.Config
	logger   *logrus.Logger
	registry *prometheus.Registry
	metrics  *monitoring.PrometheusMetrics

	lock    *lockfile.LockFile
	fs      afs.FileSystem
	backup  afs.FileSystem
	storage *channels.Storage
}

func newLogger(cfg config.Logging) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// storageConfig translates the process configuration into the one of the
// storage engine.
func storageConfig(cfg config.Config) channels.Config {
	sc := channels.DefaultConfig()
	sc.ChannelCount = cfg.Storage.ChannelCount
	sc.RootTypeID = cfg.Storage.RootTypeID
	sc.ReferenceTypeIDs = cfg.Storage.ReferenceTypeIDs
	sc.TransactionsFileMaximumSize = cfg.Storage.TransactionsFileMaximumSize
	sc.MarkingWaitTime = cfg.Storage.MarkingWaitTime

	sc.Housekeeping = channels.HousekeepingConfig{
		Interval:                cfg.Housekeeping.Interval,
		Budget:                  cfg.Housekeeping.Budget,
		FileCleanupBudget:       cfg.Housekeeping.FileCleanupBudget,
		GarbageCollectionBudget: cfg.Housekeeping.GarbageCollectionBudget,
		CacheCheckBudget:        cfg.Housekeeping.CacheCheckBudget,
		TransactionsFileBudget:  cfg.Housekeeping.TransactionsFileBudget,
	}
	sc.FileEvaluator = channels.FileEvaluator{
		MinimumSize:     cfg.FileEvaluator.MinimumSize,
		MaximumSize:     cfg.FileEvaluator.MaximumSize,
		MinimumUseRatio: cfg.FileEvaluator.MinimumUseRatio,
		CleanUpHeadFile: cfg.FileEvaluator.CleanUpHeadFile,
	}

	sc.Cache.Timeout = cfg.Cache.Timeout
	if cfg.Cache.Threshold > 0 {
		sc.Cache.Threshold = cfg.Cache.Threshold
	}

	sc.MaxImportBatchLength = cfg.Import.MaxBatchLength
	sc.ImportReadMode = importer.ReadModeMmap
	if cfg.Import.ReadMode == config.ReadModeRead {
		sc.ImportReadMode = importer.ReadModeRead
	}

	sc.Backup = backup.Config{
		BytesPerSecond: cfg.Backup.BytesPerSecond,
		Verify:         cfg.Backup.Verify,
		MaxRetryTime:   cfg.Backup.MaxRetryTime,
	}
	return sc
}

func openFileSystem(cfg config.Persistence) (afs.FileSystem, error) {
	switch cfg.Connector {
	case config.ConnectorBolt:
		if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create data path %q", cfg.DataPath)
		}
		fs, err := boltfs.Open(filepath.Join(cfg.DataPath, boltFileName))
		if err != nil {
			return nil, err
		}
		return fs, nil
	default:
		fs, err := localfs.New(cfg.DataPath)
		if err != nil {
			return nil, err
		}
		return fs, nil
	}
}

// open loads the configuration, locks the data path and starts the storage.
// Every successful open must be followed by close.
func open(ctx context.Context, flags *config.Flags) (*app, error) {
	bootLogger := logrus.New()
	var loader config.ChanstoreConfig
	if err := loader.LoadConfig(flags, bootLogger); err != nil {
		return nil, err
	}
	cfg := loader.Config

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &app{
		config:   cfg,
		logger:   logger,
		registry: registry,
		metrics:  monitoring.NewPrometheusMetrics(registry),
	}

	a.lock, err = lockfile.Acquire(cfg.Persistence.DataPath, cfg.Persistence.LockFileRefreshInterval,
		logger, a.metrics)
	if err != nil {
		return nil, err
	}

	if err := a.start(ctx); err != nil {
		if cerr := a.close(ctx); cerr != nil {
			logger.WithError(cerr).Warn("cleanup after failed start")
		}
		return nil, err
	}
	return a, nil
}

func (a *app) start(ctx context.Context) error {
	fs, err := openFileSystem(a.config.Persistence)
	if err != nil {
		return errors.Wrap(err, "open data path")
	}
	a.fs = fs

	deps := channels.Dependencies{
		FileSystem:      a.fs,
		WriteController: storagestate.NewWriteController(storagestate.AllCapabilities()),
		Logger:          a.logger,
		Metrics:         a.metrics,
	}
	if a.config.IsReadOnly() {
		deps.WriteController.SetReadOnly(true)
	}
	if a.config.Backup.Enabled {
		backupFS, err := localfs.New(a.config.Backup.Path)
		if err != nil {
			return errors.Wrap(err, "open backup path")
		}
		a.backup = backupFS
		deps.Backup = backupFS
	}

	a.storage, err = channels.New(storageConfig(a.config), deps)
	if err != nil {
		return err
	}
	return a.storage.Start(ctx)
}

// close shuts the storage down and releases every resource open acquired,
// bounded by the configured shutdown timeout.
func (a *app) close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.ShutdownTimeout)
	defer cancel()

	var merr *multierror.Error
	if a.storage != nil {
		if err := a.storage.Shutdown(ctx); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, "shutdown storage"))
		}
	}
	for _, fs := range []afs.FileSystem{a.backup, a.fs} {
		if fs == nil {
			continue
		}
		if err := fs.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if a.lock != nil {
		if err := a.lock.Release(ctx); err != nil {
			merr = multierror.Append(merr, errors.Wrap(err, "release lock file"))
		}
	}
	return merr.ErrorOrNil()
}
