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
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/txlog"
	enterrors "github.com/weaviate/chanstore/entities/errors"
)

type TransactionsCheck struct {
	Channel   int            `json:"channel"`
	LogLength int64          `json:"logLength"`
	Entries   int            `json:"entries"`
	Actions   []txlog.Action `json:"actions,omitempty"`
	// Repaired counts the actions that were applied.
	Repaired int `json:"repaired"`
}

// verifyTransactionsFile reads the log back from disk and checks that it
// describes exactly the files the channel works with. Files the log does not
// explain are removed when the write controller allows it.
func (c *Channel) verifyTransactionsFile(checkSize bool) (TransactionsCheck, error) {
	fm := c.files
	check := TransactionsCheck{Channel: c.index}
	if fm.log == nil {
		return check, nil
	}

	content, err := afs.ReadAll(fm.log.File())
	if err != nil {
		return check, err
	}
	inv, consistent, err := txlog.Fold(content)
	if err != nil {
		return check, err
	}
	check.LogLength = consistent
	check.Entries = inv.EntryCount()
	if consistent != fm.log.Size() {
		return check, errors.Wrapf(txlog.ErrInconsistent, "transactions log %s is consistent up to %d, expected %d",
			fm.log.File().Path(), consistent, fm.log.Size())
	}

	for number, f := range fm.files {
		entry, ok := inv.File(number)
		if !ok || entry.Deleted || entry.Length != f.total {
			return check, errors.Wrapf(txlog.ErrInconsistent, "data file %s has %d bytes, log says %+v",
				f.file.Path(), f.total, entry)
		}
	}

	present, err := fm.presentFiles()
	if err != nil {
		return check, err
	}
	if check.Actions, err = txlog.Check(inv, present, checkSize); err != nil {
		return check, err
	}

	for _, action := range check.Actions {
		f := fm.fileHandle(action.FileNumber)
		logger := c.logger.WithFields(logrus.Fields{
			"file":   f.Path(),
			"repair": action.Kind.String(),
		})
		switch action.Kind {
		case txlog.ActionDelete:
			if !c.controller.IsDeletionEnabled() {
				logger.Info("file deletion is disabled, leaving stale data file")
				continue
			}
			if err := f.Delete(); err != nil {
				return check, err
			}
			fm.mirror.send(backup.Delete(f.Path()))
		case txlog.ActionTruncate:
			if !c.controller.IsFileCleanupEnabled() {
				logger.Info("file cleanup is disabled, leaving data file tail")
				continue
			}
			if err := f.Truncate(action.Size); err != nil {
				return check, err
			}
			fm.mirror.send(backup.Truncate(f.Path(), action.Size))
		}
		logger.Warn("repaired data file")
		check.Repaired++
	}
	return check, nil
}

type ChannelStatistics struct {
	Channel                int              `json:"channel"`
	EntityCount            int              `json:"entityCount"`
	CachedBytes            int64            `json:"cachedBytes"`
	TransactionsFileLength int64            `json:"transactionsFileLength"`
	HeadFile               int64            `json:"headFile"`
	Files                  []FileStatistics `json:"files"`
	// UnexpectedZombies counts references marking could not resolve and the
	// zombie handler did not expect.
	UnexpectedZombies int64 `json:"unexpectedZombies"`
}

func (c *Channel) statistics() ChannelStatistics {
	stats := ChannelStatistics{
		Channel:           c.index,
		EntityCount:       c.cache.len(),
		CachedBytes:       c.cache.cachedBytes,
		UnexpectedZombies: c.unexpectedZombies,
	}
	if c.files.log != nil {
		stats.TransactionsFileLength = c.files.log.Size()
	}
	if c.files.head != nil {
		stats.HeadFile = c.files.head.number
	}
	for _, f := range c.files.sortedFiles() {
		stats.Files = append(stats.Files, f.statistics())
	}
	return stats
}

type ExportResult struct {
	Channel int      `json:"channel"`
	Files   []string `json:"files"`
	Bytes   int64    `json:"bytes"`
}

const (
	exportCopyChunk       = 8 << 20
	exportCopyConcurrency = 4
)

// export copies the live data files and the transactions log into the
// channel's directory below target. The copy is a loadable storage on its
// own.
func (c *Channel) export(target afs.FileSystem) (ExportResult, error) {
	fm := c.files
	result := ExportResult{Channel: c.index}
	dir := target.Root().Directory(ChannelDirectoryName(c.index))
	if err := dir.Ensure(); err != nil {
		return result, err
	}

	type copyJob struct {
		source afs.File
		length int64
	}
	var jobs []copyJob
	for _, f := range fm.sortedFiles() {
		jobs = append(jobs, copyJob{source: f.file, length: f.total})
	}
	if fm.log != nil {
		jobs = append(jobs, copyJob{source: fm.log.File(), length: fm.log.Size()})
	}

	eg := enterrors.NewErrorGroupWrapper(c.logger, "channel", c.index)
	eg.SetLimit(exportCopyConcurrency)
	for _, job := range jobs {
		job := job
		eg.Go(func() error {
			return copyFile(job.source, dir.File(job.source.Name()), job.length)
		}, job.source.Path())
		result.Files = append(result.Files, afs.Join(dir.Path(), job.source.Name()))
		result.Bytes += job.length
	}
	if err := eg.Wait(); err != nil {
		return result, errors.Wrapf(err, "export channel %d", c.index)
	}
	return result, nil
}

func copyFile(source, target afs.File, length int64) error {
	if err := target.Delete(); err != nil {
		return err
	}
	if err := target.Ensure(); err != nil {
		return err
	}
	for offset := int64(0); offset < length; offset += exportCopyChunk {
		n := length - offset
		if n > exportCopyChunk {
			n = exportCopyChunk
		}
		if _, err := afs.CopyRange(source, offset, n, target); err != nil {
			return err
		}
	}
	return target.Sync()
}
