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
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/txlog"
)

const transferChunkLength = 1 << 20

type housekeepingOperation struct {
	name   string
	budget func(HousekeepingConfig) time.Duration
	run    func(b HousekeepingBroker, c *Channel, budget time.Duration) (bool, error)
}

var housekeepingOperations = []housekeepingOperation{
	{
		name:   "file_cleanup",
		budget: func(h HousekeepingConfig) time.Duration { return h.FileCleanupBudget },
		run:    HousekeepingBroker.PerformFileCleanupCheck,
	},
	{
		name:   "garbage_collection",
		budget: func(h HousekeepingConfig) time.Duration { return h.GarbageCollectionBudget },
		run:    HousekeepingBroker.PerformGarbageCollection,
	},
	{
		name:   "entity_cache",
		budget: func(h HousekeepingConfig) time.Duration { return h.CacheCheckBudget },
		run:    HousekeepingBroker.PerformEntityCacheCheck,
	},
	{
		name:   "transactions_file",
		budget: func(h HousekeepingConfig) time.Duration { return h.TransactionsFileBudget },
		run:    HousekeepingBroker.PerformTransactionsFileCheck,
	},
}

// houseKeep runs one housekeeping cycle. The operations take turns, every
// cycle starts with the one after the last one that ran.
func (c *Channel) houseKeep() error {
	cfg := c.config.Housekeeping
	start := time.Now()

	for i := 0; i < len(housekeepingOperations); i++ {
		remaining := cfg.Budget - time.Since(start)
		if i > 0 && remaining <= 0 {
			return nil
		}
		op := housekeepingOperations[c.housekeepingCursor]
		c.housekeepingCursor = (c.housekeepingCursor + 1) % len(housekeepingOperations)

		budget := op.budget(cfg)
		if remaining > 0 && remaining < budget {
			budget = remaining
		}
		if _, err := op.run(c.housekeeping, c, budget); err != nil {
			return errors.Wrapf(err, "housekeeping %s", op.name)
		}
	}
	return nil
}

// cleanupFiles rotates the head file when it is full or only holds dead
// data, and dissolves files the evaluator rejects.
func (c *Channel) cleanupFiles(deadline time.Time) (bool, error) {
	if !c.controller.IsFileCleanupEnabled() {
		return true, nil
	}
	fm := c.files
	if fm.head == nil {
		return true, nil
	}

	ev := c.config.FileEvaluator
	if ev.needsNewHead(fm.head) || ev.needsRecycling(fm.head) {
		if _, err := fm.createHeadFile(); err != nil {
			return false, err
		}
	}

	for _, f := range fm.sortedFiles() {
		if f == fm.head || !ev.needsDissolving(f) {
			continue
		}
		done, err := c.dissolve(f, deadline)
		if err != nil || !done {
			return done, err
		}
		if time.Now().After(deadline) {
			return false, nil
		}
	}
	return true, nil
}

// dissolve moves the live entities of f to the head file in chunks and
// deletes f once it is empty.
func (c *Channel) dissolve(f *dataFile, deadline time.Time) (bool, error) {
	fm := c.files
	for f.count > 0 {
		if err := c.transfer(f, c.transferChunk(f)); err != nil {
			return false, err
		}
		if f.count > 0 && time.Now().After(deadline) {
			return false, nil
		}
	}

	if !c.controller.IsDeletionEnabled() {
		c.logger.WithField("file", f.file.Path()).Debug("file deletion is disabled, keeping emptied data file")
		return true, nil
	}
	return true, fm.deleteFile(f)
}

// consolidate rewrites every data file that still holds dead records, so
// that afterwards the files contain live entities only. A rescan of the
// files finds swept and superseded records otherwise.
func (c *Channel) consolidate() error {
	if !c.controller.IsFileCleanupEnabled() {
		return nil
	}
	fm := c.files
	if fm.head == nil {
		return nil
	}
	if fm.head.live < fm.head.total {
		if _, err := fm.createHeadFile(); err != nil {
			return err
		}
	}

	dissolved := 0
	for _, f := range fm.sortedFiles() {
		if f == fm.head || f.live == f.total {
			continue
		}
		if _, err := c.dissolve(f, noDeadline); err != nil {
			return errors.Wrapf(err, "consolidate %s", f.file.Path())
		}
		dissolved++
	}
	if dissolved > 0 {
		c.logger.WithField("files", dissolved).Debug("consolidated data files")
	}
	c.metrics.observeState(c)
	return nil
}

// transferChunk picks the next entities of f in file order, at most
// transferChunkLength bytes but always at least one entity.
func (c *Channel) transferChunk(f *dataFile) []*entity {
	all := make([]*entity, 0, len(f.entities))
	for _, e := range f.entities {
		all = append(all, e)
	}
	sort.Slice(all, func(a, b int) bool {
		return all[a].position < all[b].position
	})

	var length int64
	for i, e := range all {
		if i > 0 && length+e.length > transferChunkLength {
			return all[:i]
		}
		length += e.length
	}
	return all
}

func (c *Channel) transfer(source *dataFile, entities []*entity) error {
	fm := c.files
	now := time.Now()

	var buf []byte
	for _, e := range entities {
		data := e.data
		if data == nil {
			var err error
			if data, err = fm.read(source, e.position, e.length); err != nil {
				return err
			}
		}
		buf = append(buf, data...)
	}

	head := fm.head
	before := head.total
	position, err := fm.write(head, buf)
	if err != nil {
		return err
	}
	fm.addEntries(txlog.DataTransfer(fm.clock.Next(), head.number, source.number, int64(len(buf))))
	if err := fm.commit(backup.Append(head.file.Path(), position, buf)); err != nil {
		if rerr := fm.rollback(head, before); rerr != nil {
			c.logger.WithError(rerr).Error("roll back failed transfer")
		}
		return err
	}

	offset := position
	for _, e := range entities {
		source.remove(e)
		e.position = offset
		head.add(e)
		if e.data != nil {
			e.lastTouched = now
		}
		offset += e.length
	}
	c.metrics.stored(originTransfer, len(buf))

	c.logger.WithFields(logrus.Fields{
		"source":   source.file.Path(),
		"target":   head.file.Path(),
		"entities": len(entities),
		"bytes":    len(buf),
	}).Trace("transferred entities")
	return nil
}

func (c *Channel) checkEntityCache(ev CacheEvaluator, deadline time.Time) bool {
	done := c.cache.check(ev, deadline)
	c.metrics.observeState(c)
	return done
}

// checkTransactionsFile compacts the log once it grew beyond its maximum.
func (c *Channel) checkTransactionsFile() (bool, error) {
	fm := c.files
	if fm.log == nil || !c.controller.IsFileCleanupEnabled() {
		return true, nil
	}
	if fm.log.Size() <= c.config.TransactionsFileMaximumSize {
		return true, nil
	}
	return true, fm.compact()
}

func deadlineOf(budget time.Duration) time.Time {
	return time.Now().Add(budget)
}

// noDeadline stands in for an unlimited budget.
var noDeadline = time.Unix(1<<40, 0)
