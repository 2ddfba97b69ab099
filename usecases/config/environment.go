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

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	entcfg "github.com/weaviate/chanstore/entities/config"
)

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv("PERSISTENCE_DATA_PATH"); v != "" {
		config.Persistence.DataPath = v
	}
	if v := os.Getenv("PERSISTENCE_CONNECTOR"); v != "" {
		config.Persistence.Connector = v
	}
	if err := parseDuration("PERSISTENCE_LOCK_FILE_REFRESH_INTERVAL", func(d time.Duration) {
		config.Persistence.LockFileRefreshInterval = d
	}); err != nil {
		return err
	}

	if err := parseInt("CHANSTORE_CHANNEL_COUNT", func(i int64) {
		config.Storage.ChannelCount = int(i)
	}); err != nil {
		return err
	}
	if err := parseInt("CHANSTORE_ROOT_TYPE_ID", func(i int64) {
		config.Storage.RootTypeID = i
	}); err != nil {
		return err
	}
	if v := os.Getenv("CHANSTORE_REFERENCE_TYPE_IDS"); v != "" {
		ids, err := parseIntList(v)
		if err != nil {
			return errors.Wrap(err, "parse CHANSTORE_REFERENCE_TYPE_IDS")
		}
		config.Storage.ReferenceTypeIDs = ids
	}
	if err := parseInt("CHANSTORE_TRANSACTIONS_FILE_MAXIMUM_SIZE", func(i int64) {
		config.Storage.TransactionsFileMaximumSize = i
	}); err != nil {
		return err
	}
	if err := parseDuration("CHANSTORE_MARKING_WAIT_TIME", func(d time.Duration) {
		config.Storage.MarkingWaitTime = d
	}); err != nil {
		return err
	}

	if err := parseDuration("HOUSEKEEPING_INTERVAL", func(d time.Duration) {
		config.Housekeeping.Interval = d
	}); err != nil {
		return err
	}
	// HOUSEKEEPING_BUDGET sets the total and every operation budget at once,
	// the per operation variables below refine it.
	if err := parseDuration("HOUSEKEEPING_BUDGET", func(d time.Duration) {
		config.Housekeeping.Budget = d
		config.Housekeeping.FileCleanupBudget = d
		config.Housekeeping.GarbageCollectionBudget = d
		config.Housekeeping.CacheCheckBudget = d
		config.Housekeeping.TransactionsFileBudget = d
	}); err != nil {
		return err
	}
	for name, target := range map[string]*time.Duration{
		"HOUSEKEEPING_FILE_CLEANUP_BUDGET":       &config.Housekeeping.FileCleanupBudget,
		"HOUSEKEEPING_GARBAGE_COLLECTION_BUDGET": &config.Housekeeping.GarbageCollectionBudget,
		"HOUSEKEEPING_CACHE_CHECK_BUDGET":        &config.Housekeeping.CacheCheckBudget,
		"HOUSEKEEPING_TRANSACTIONS_FILE_BUDGET":  &config.Housekeeping.TransactionsFileBudget,
	} {
		if err := parseDuration(name, func(d time.Duration) { *target = d }); err != nil {
			return err
		}
	}

	if err := parseInt("FILE_EVALUATOR_MINIMUM_SIZE", func(i int64) {
		config.FileEvaluator.MinimumSize = i
	}); err != nil {
		return err
	}
	if err := parseInt("FILE_EVALUATOR_MAXIMUM_SIZE", func(i int64) {
		config.FileEvaluator.MaximumSize = i
	}); err != nil {
		return err
	}
	if v := os.Getenv("FILE_EVALUATOR_MINIMUM_USE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrap(err, "parse FILE_EVALUATOR_MINIMUM_USE_RATIO as float")
		}
		config.FileEvaluator.MinimumUseRatio = ratio
	}
	if entcfg.Disabled(os.Getenv("FILE_EVALUATOR_CLEAN_UP_HEAD_FILE")) {
		config.FileEvaluator.CleanUpHeadFile = false
	}

	if err := parseDuration("CACHE_TIMEOUT", func(d time.Duration) {
		config.Cache.Timeout = d
	}); err != nil {
		return err
	}
	if err := parseInt("CACHE_THRESHOLD", func(i int64) {
		config.Cache.Threshold = i
	}); err != nil {
		return err
	}

	if err := parseInt("IMPORT_MAX_BATCH_LENGTH", func(i int64) {
		config.Import.MaxBatchLength = i
	}); err != nil {
		return err
	}
	if v := os.Getenv("IMPORT_READ_MODE"); v != "" {
		config.Import.ReadMode = v
	}

	if entcfg.Enabled(os.Getenv("BACKUP_ENABLED")) {
		config.Backup.Enabled = true
	}
	if v := os.Getenv("BACKUP_PATH"); v != "" {
		config.Backup.Path = v
	}
	if err := parseInt("BACKUP_BYTES_PER_SECOND", func(i int64) {
		config.Backup.BytesPerSecond = int(i)
	}); err != nil {
		return err
	}
	if entcfg.Enabled(os.Getenv("BACKUP_VERIFY")) {
		config.Backup.Verify = true
	}
	if err := parseDuration("BACKUP_MAX_RETRY_TIME", func(d time.Duration) {
		config.Backup.MaxRetryTime = d
	}); err != nil {
		return err
	}

	if entcfg.Enabled(os.Getenv("PROMETHEUS_MONITORING_ENABLED")) {
		config.Monitoring.Enabled = true
	}
	if err := parseInt("PROMETHEUS_MONITORING_PORT", func(i int64) {
		config.Monitoring.Port = int(i)
	}); err != nil {
		return err
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		config.Logging.Format = v
	}

	if entcfg.Enabled(os.Getenv("READ_ONLY")) {
		config.OperationalMode = READ_ONLY
	}
	if err := parseDuration("SHUTDOWN_TIMEOUT", func(d time.Duration) {
		config.ShutdownTimeout = d
	}); err != nil {
		return err
	}

	return nil
}

func parseInt(envName string, cb func(i int64)) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}
	asInt, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "parse %s as int", envName)
	}
	cb(asInt)
	return nil
}

func parseDuration(envName string, cb func(d time.Duration)) error {
	v := os.Getenv(envName)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return errors.Wrapf(err, "parse %s as duration", envName)
	}
	cb(d)
	return nil
}

// parseIntList accepts a comma separated list such as "1,2,7".
func parseIntList(v string) ([]int64, error) {
	parts := strings.Split(v, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
