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
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/adapters/repos/db/backup"
	"github.com/weaviate/chanstore/adapters/repos/db/importer"
	"github.com/weaviate/chanstore/adapters/repos/db/txlog"
	"github.com/weaviate/chanstore/entities/entityheader"
)

// pendingWrite is what a store or import wrote in its first phase. It is
// either committed or rolled back once all channels are done writing.
type pendingWrite struct {
	origin string

	files    []*dataFile
	before   map[*dataFile]int64
	appended map[*dataFile]int64
	entities []*entity

	maxObjectID int64
}

// beginWrite registers a store in progress with the mark monitor, sweeping
// is held back until the write is committed or rolled back.
func (c *Channel) beginWrite(origin string) *pendingWrite {
	c.monitor.registerStore(c.index)
	return &pendingWrite{
		origin:   origin,
		before:   map[*dataFile]int64{},
		appended: map[*dataFile]int64{},
	}
}

// writeChunk appends a run of records to the head file. entities carry
// offsets relative to chunkOffset. Record bytes are cached when cache is set.
func (c *Channel) writeChunk(w *pendingWrite, chunk []byte, chunkOffset int64,
	entities []importer.Entity, cache bool,
) error {
	head, err := c.files.ensureHead(c.config.FileEvaluator)
	if err != nil {
		return err
	}
	if _, ok := w.before[head]; !ok {
		w.before[head] = head.total
		w.files = append(w.files, head)
	}

	position, err := c.files.write(head, chunk)
	if err != nil {
		return err
	}
	w.appended[head] += int64(len(chunk))

	for _, ent := range entities {
		rel := ent.Offset - chunkOffset
		record := chunk[rel : rel+ent.Length]
		e := &entity{
			objectID:   ent.ObjectID,
			typeID:     ent.TypeID,
			length:     ent.Length,
			file:       head,
			position:   position + rel,
			references: c.extractor.References(ent.TypeID, record[entityheader.Length:]),
			color:      gray,
		}
		if cache {
			e.data = record
		}
		w.entities = append(w.entities, e)
		if ent.ObjectID > w.maxObjectID {
			w.maxObjectID = ent.ObjectID
		}
	}
	return nil
}

// writeRecords stores a buffer of complete records that all belong to
// this channel.
func (c *Channel) writeRecords(w *pendingWrite, records []byte) error {
	var entities []importer.Entity
	if _, err := c.evaluator.Iterate(records, func(offset int64, h entityheader.Header, _ []byte) error {
		entities = append(entities, importer.Entity{
			Offset:   offset,
			Length:   h.Length,
			TypeID:   h.TypeID,
			ObjectID: h.ObjectID,
		})
		return nil
	}, nil); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return c.writeChunk(w, records, 0, entities, true)
}

// writeImport copies the batches of every slice into the head files,
// rolling over to new files whenever the head is full.
func (c *Channel) writeImport(w *pendingWrite, slice importer.SourceSlice) error {
	for _, batch := range slice.Batches {
		var entities []importer.Entity
		batch.Each(func(e importer.Entity) {
			entities = append(entities, e)
		})
		chunk := slice.Data[batch.Offset : batch.Offset+batch.Length]
		if err := c.writeChunk(w, chunk, batch.Offset, entities, false); err != nil {
			return errors.Wrapf(err, "import batch of %s at offset %d", slice.Source, batch.Offset)
		}
	}
	return nil
}

// commitWrite logs the written data, makes the new entities live and hands
// them to the garbage collector as gray.
func (c *Channel) commitWrite(w *pendingWrite, timestamp int64) error {
	defer c.monitor.completeStore(c.index)

	var items []backup.Item
	for _, f := range w.files {
		n := w.appended[f]
		if n == 0 {
			continue
		}
		c.files.addEntries(txlog.DataStore(timestamp, f.number, n))
		if c.files.mirror.enabled() {
			data, err := c.files.read(f, w.before[f], n)
			if err != nil {
				c.files.discard()
				return multierror.Append(err, c.undoFiles(w))
			}
			items = append(items, backup.Append(f.file.Path(), w.before[f], data))
		}
	}
	if err := c.files.commit(items...); err != nil {
		return multierror.Append(err, c.undoFiles(w))
	}

	now := time.Now()
	ids := make([]int64, 0, len(w.entities))
	for _, e := range w.entities {
		e.lastTouched = now
		c.register(e)
		ids = append(ids, e.objectID)
	}
	c.monitor.enqueue(ids)

	var written int64
	for _, n := range w.appended {
		written += n
	}
	c.metrics.stored(w.origin, int(written))
	if w.origin == originImport {
		c.metrics.importedEntities(len(w.entities))
	}
	c.metrics.observeState(c)

	c.logger.WithFields(logrus.Fields{
		"origin":   w.origin,
		"entities": len(w.entities),
		"bytes":    written,
	}).Trace("committed write")
	return nil
}

// rollbackWrite drops everything a write left behind.
func (c *Channel) rollbackWrite(w *pendingWrite) error {
	if w == nil {
		return nil
	}
	defer c.monitor.completeStore(c.index)
	c.files.discard()
	return c.undoFiles(w)
}

func (c *Channel) undoFiles(w *pendingWrite) error {
	var merr *multierror.Error
	for _, f := range w.files {
		if err := c.files.rollback(f, w.before[f]); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	w.files = nil
	w.entities = nil
	return merr.ErrorOrNil()
}
