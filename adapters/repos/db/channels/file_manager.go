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
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/afs"
	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/tasks"
	"github.com/weaviate/chanstore/adapters/repos/db/txlog"
	"github.com/weaviate/chanstore/entities/storagestate"
)

// mirror forwards file lifecycle events of all channels to the backup.
// It stays inactive until the backup was synchronized at start-up.
type mirror struct {
	handler *backup.Handler
	active  atomic.Bool
	logger  logrus.FieldLogger
}

func (m *mirror) enabled() bool {
	return m != nil && m.handler != nil && m.active.Load()
}

func (m *mirror) send(items ...backup.Item) {
	if !m.enabled() || len(items) == 0 {
		return
	}
	if err := m.handler.Enqueue(items...); err != nil {
		if errors.Is(err, storagestate.ErrBackupDisabled) {
			m.logger.WithError(err).Debug("backup item dropped")
			return
		}
		m.logger.WithError(err).Warn("enqueue backup item")
	}
}

// fileManager owns the data files and the transactions log of one channel.
type fileManager struct {
	channel    int
	dir        afs.Directory
	clock      *tasks.Clock
	controller *storagestate.WriteController
	mirror     *mirror
	logger     logrus.FieldLogger

	files      map[int64]*dataFile
	head       *dataFile
	lastNumber int64

	log       *txlog.Writer
	inventory *txlog.Inventory
	pending   []txlog.Entry
}

func newFileManager(channel int, dir afs.Directory, clock *tasks.Clock,
	controller *storagestate.WriteController, mirror *mirror, logger logrus.FieldLogger,
) *fileManager {
	fm := &fileManager{
		channel:    channel,
		dir:        dir,
		clock:      clock,
		controller: controller,
		mirror:     mirror,
		logger:     logger,
	}
	fm.reset()
	return fm
}

func (fm *fileManager) reset() {
	fm.files = map[int64]*dataFile{}
	fm.head = nil
	fm.lastNumber = 0
	fm.log = nil
	fm.inventory = txlog.NewInventory()
	fm.pending = nil
}

func (fm *fileManager) logFile() afs.File {
	return fm.dir.File(TransactionsFileName(fm.channel))
}

func (fm *fileManager) fileHandle(number int64) afs.File {
	return fm.dir.File(DataFileName(fm.channel, number))
}

// presentFiles lists the data files on disk with their sizes.
func (fm *fileManager) presentFiles() (map[int64]int64, error) {
	names, err := fm.dir.List()
	if err != nil {
		return nil, err
	}
	present := map[int64]int64{}
	for _, name := range names {
		number, ok := ParseDataFileName(fm.channel, name)
		if !ok {
			continue
		}
		size, err := fm.dir.File(name).Size()
		if err != nil {
			return nil, errors.Wrapf(err, "size of %s", name)
		}
		present[number] = size
	}
	return present, nil
}

// open reads the transactions log, repairs the data files against it and
// prepares the live files for scanning.
func (fm *fileManager) open() error {
	fm.reset()
	if err := fm.dir.Ensure(); err != nil {
		return errors.Wrapf(err, "ensure channel directory %s", fm.dir.Path())
	}

	logFile := fm.logFile()
	var content []byte
	exists, err := logFile.Exists()
	if err != nil {
		return err
	}
	if exists {
		if content, err = afs.ReadAll(logFile); err != nil {
			return errors.Wrap(err, "read transactions log")
		}
	}

	inv, consistent, err := txlog.Fold(content)
	if err != nil {
		return errors.Wrapf(err, "fold transactions log %s", logFile.Path())
	}
	if consistent < int64(len(content)) {
		fm.logger.WithFields(logrus.Fields{
			"file":       logFile.Path(),
			"consistent": consistent,
			"length":     len(content),
		}).Warn("transactions log has a torn tail, cutting it off")
	}

	present, err := fm.presentFiles()
	if err != nil {
		return err
	}
	actions, err := txlog.Check(inv, present, true)
	if err != nil {
		return err
	}
	if err := fm.repair(actions); err != nil {
		return err
	}

	if fm.log, err = txlog.OpenWriter(logFile, consistent); err != nil {
		return err
	}
	fm.inventory = inv
	fm.lastNumber = inv.LastCreated()
	fm.clock.Advance(inv.MaxTimestamp())

	for _, entry := range inv.LiveFiles() {
		fm.files[entry.FileNumber] = newDataFile(entry.FileNumber, fm.fileHandle(entry.FileNumber), entry.Length)
	}
	if head, ok := inv.HeadFile(); ok {
		fm.head = fm.files[head.FileNumber]
	}
	return nil
}

func (fm *fileManager) repair(actions []txlog.Action) error {
	for _, action := range actions {
		f := fm.fileHandle(action.FileNumber)
		logger := fm.logger.WithFields(logrus.Fields{
			"file":   f.Path(),
			"repair": action.Kind.String(),
			"size":   action.Size,
		})
		if !fm.controller.IsWritable() {
			logger.Warn("storage is read-only, leaving inconsistent data file as is")
			continue
		}
		switch action.Kind {
		case txlog.ActionTruncate:
			// appends continue at the logged length, so the tail has to go
			logger.Warn("data file is longer than logged, truncating")
			if err := f.Truncate(action.Size); err != nil {
				return err
			}
		case txlog.ActionDelete:
			if !fm.controller.IsDeletionEnabled() {
				logger.Warn("file deletion is disabled, leaving data file that is not live")
				continue
			}
			logger.Warn("data file is not live according to the log, deleting")
			if err := f.Delete(); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortedFiles returns the live files ordered by number.
func (fm *fileManager) sortedFiles() []*dataFile {
	files := make([]*dataFile, 0, len(fm.files))
	for _, f := range fm.files {
		files = append(files, f)
	}
	sort.Slice(files, func(a, b int) bool {
		return files[a].number < files[b].number
	})
	return files
}

func (fm *fileManager) addEntries(entries ...txlog.Entry) {
	fm.pending = append(fm.pending, entries...)
	fm.log.Add(entries...)
}

func (fm *fileManager) discard() {
	fm.pending = nil
	if fm.log != nil {
		fm.log.Discard()
	}
}

// commit writes the pending log entries. On success the backup receives
// items first, followed by the log append.
func (fm *fileManager) commit(items ...backup.Item) error {
	entries := fm.pending
	fm.pending = nil
	position, data, err := fm.log.Commit()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := fm.inventory.Accept(e); err != nil {
			return errors.Wrapf(err, "channel %d", fm.channel)
		}
	}
	if len(data) > 0 {
		items = append(items, backup.Append(fm.log.File().Path(), position, data))
	}
	fm.mirror.send(items...)
	return nil
}

// createHeadFile starts a new empty head file and commits its creation.
func (fm *fileManager) createHeadFile() (*dataFile, error) {
	if err := fm.controller.ValidateIsWritable(); err != nil {
		return nil, err
	}
	number := fm.lastNumber + 1
	handle := fm.fileHandle(number)
	if err := handle.Ensure(); err != nil {
		return nil, errors.Wrapf(err, "create data file %s", handle.Path())
	}
	fm.addEntries(txlog.FileCreation(fm.clock.Next(), number, 0))
	if err := fm.commit(backup.Truncate(handle.Path(), 0)); err != nil {
		return nil, err
	}

	f := newDataFile(number, handle, 0)
	fm.files[number] = f
	fm.head = f
	fm.lastNumber = number

	fm.logger.WithField("file", handle.Path()).Debug("created head file")
	return f, nil
}

// ensureHead makes sure there is a head file with room left.
func (fm *fileManager) ensureHead(ev FileEvaluator) (*dataFile, error) {
	if fm.head == nil || ev.needsNewHead(fm.head) {
		return fm.createHeadFile()
	}
	return fm.head, nil
}

// write appends data to f without logging it. The caller logs a DATA_STORE
// or DATA_TRANSFER once the data is meant to stay.
func (fm *fileManager) write(f *dataFile, data []byte) (int64, error) {
	position := f.total
	size, err := f.file.Append(data)
	if err != nil {
		return 0, errors.Wrapf(err, "append %d bytes to %s", len(data), f.file.Path())
	}
	if size != position+int64(len(data)) {
		return 0, errors.Errorf("append to %s: expected size %d, got %d",
			f.file.Path(), position+int64(len(data)), size)
	}
	f.total = size
	return position, nil
}

// rollback cuts f back to length after an uncommitted write.
func (fm *fileManager) rollback(f *dataFile, length int64) error {
	if f.total == length {
		return nil
	}
	if err := f.file.Truncate(length); err != nil {
		return errors.Wrapf(err, "roll back %s to %d", f.file.Path(), length)
	}
	f.total = length
	return nil
}

func (fm *fileManager) read(f *dataFile, position, length int64) ([]byte, error) {
	return afs.ReadRange(f.file, position, length)
}

// deleteFile logs the deletion of an emptied file and removes it.
func (fm *fileManager) deleteFile(f *dataFile) error {
	if f == fm.head {
		return errors.Errorf("refusing to delete head file %s", f.file.Path())
	}
	fm.addEntries(txlog.FileDeletion(fm.clock.Next(), f.number, f.total))
	if err := fm.commit(); err != nil {
		return err
	}
	delete(fm.files, f.number)
	if err := f.file.Delete(); err != nil {
		return err
	}
	fm.mirror.send(backup.Delete(f.file.Path()))

	fm.logger.WithFields(logrus.Fields{
		"file":   f.file.Path(),
		"length": f.total,
	}).Debug("deleted dissolved data file")
	return nil
}

// compact rewrites the transactions log to its minimal form.
func (fm *fileManager) compact() error {
	before := fm.log.Size()
	data := txlog.Compact(fm.inventory, func(number int64) bool {
		exists, err := fm.fileHandle(number).Exists()
		return err != nil || exists
	})

	tmp := fm.dir.File(TransactionsFileName(fm.channel) + tmpSuffix)
	if err := fm.log.Replace(tmp, data); err != nil {
		return err
	}
	inv, _, err := txlog.Fold(data)
	if err != nil {
		return errors.Wrap(err, "fold compacted transactions log")
	}
	fm.inventory = inv
	fm.mirror.send(backup.Replace(fm.log.File().Path(), data))

	fm.logger.WithFields(logrus.Fields{
		"before": before,
		"after":  len(data),
	}).Info("compacted transactions log")
	return nil
}
