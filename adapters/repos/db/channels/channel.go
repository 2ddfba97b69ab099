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
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/chanstore/entities/entityheader"
	"github.com/weaviate/chanstore/entities/objectid"
	"github.com/weaviate/chanstore/entities/storagestate"
)

// Channel is one independent partition of the storage. All of its state is
// owned by its worker goroutine, other goroutines only reach it through
// tasks or through the mark monitor.
type Channel struct {
	index  int
	config *Config

	evaluator      *entityheader.Evaluator
	channels       *objectid.ChannelEvaluator
	extractor      ReferenceExtractor
	zombies        ZombieHandler
	cacheEvaluator CacheEvaluator
	controller     *storagestate.WriteController
	monitor        *markMonitor
	housekeeping   HousekeepingBroker

	files *fileManager
	cache *entityCache

	processing          bool
	housekeepingEnabled *atomic.Bool
	housekeepingCursor  int
	unexpectedZombies   int64

	logger  logrus.FieldLogger
	metrics *channelMetrics
}

func (c *Channel) ChannelIndex() int {
	return c.index
}

// reset brings the channel back to the state it had right after creation.
func (c *Channel) reset() {
	c.files.reset()
	c.cache = newEntityCache()
	c.housekeepingCursor = 0
	c.unexpectedZombies = 0
	c.metrics.observeState(c)
}

type initResult struct {
	Entities    int
	Files       int
	Roots       []int64
	MaxObjectID int64
}

// initialize loads the channel from its directory: the transactions log
// decides which data files are live, scanning them rebuilds the entity
// index. Later records of an object supersede earlier ones.
func (c *Channel) initialize() (initResult, error) {
	c.reset()
	if err := c.files.open(); err != nil {
		return initResult{}, err
	}

	for _, f := range c.files.sortedFiles() {
		if err := c.scan(f); err != nil {
			return initResult{}, err
		}
	}

	if c.files.head == nil && c.controller.IsWritable() {
		if _, err := c.files.createHeadFile(); err != nil {
			return initResult{}, errors.Wrap(err, "create first data file")
		}
	}

	var roots []int64
	var maxObjectID int64
	for id, e := range c.cache.entities {
		if c.isRoot(e) {
			roots = append(roots, id)
		}
		if id > maxObjectID {
			maxObjectID = id
		}
	}
	c.monitor.registerRoots(roots)
	c.metrics.observeState(c)

	c.logger.WithFields(logrus.Fields{
		"entities": c.cache.len(),
		"files":    len(c.files.files),
		"roots":    len(roots),
	}).Debug("channel initialized")

	return initResult{
		Entities:    c.cache.len(),
		Files:       len(c.files.files),
		Roots:       roots,
		MaxObjectID: maxObjectID,
	}, nil
}

func (c *Channel) scan(f *dataFile) error {
	content, err := c.files.read(f, 0, f.total)
	if err != nil {
		return err
	}
	consistent, err := c.evaluator.Iterate(content, func(offset int64, h entityheader.Header, record []byte) error {
		if owner := c.channels.ChannelIndex(h.ObjectID); owner != c.index {
			return errors.Errorf("object %d belongs to channel %d", h.ObjectID, owner)
		}
		e := &entity{
			objectID:   h.ObjectID,
			typeID:     h.TypeID,
			length:     h.Length,
			file:       f,
			position:   offset,
			references: c.extractor.References(h.TypeID, record[entityheader.Length:]),
		}
		c.register(e)
		return nil
	}, nil)
	if err != nil {
		return errors.Wrapf(err, "scan data file %s at offset %d", f.file.Path(), consistent)
	}
	return nil
}

// register makes e the live version of its object.
func (c *Channel) register(e *entity) {
	if old := c.cache.put(e); old != nil {
		old.file.remove(old)
	}
	e.file.add(e)
}

func (c *Channel) isRoot(e *entity) bool {
	return c.config.RootTypeID != 0 && e.typeID == c.config.RootTypeID
}

// record returns the complete record of e, reading it from its data file if
// it is not cached.
func (c *Channel) record(e *entity, now time.Time) ([]byte, error) {
	if e.data != nil {
		e.lastTouched = now
		return e.data, nil
	}
	data, err := c.files.read(e.file, e.position, e.length)
	if err != nil {
		return nil, err
	}
	c.cache.cache(e, data, now)
	return data, nil
}

func (c *Channel) loadObjects(ids []int64) ([]byte, error) {
	now := time.Now()
	var out []byte
	for _, id := range ids {
		if c.channels.ChannelIndex(id) != c.index {
			continue
		}
		e := c.cache.get(id)
		if e == nil {
			continue
		}
		data, err := c.record(e, now)
		if err != nil {
			return nil, errors.Wrapf(err, "load object %d", id)
		}
		out = append(out, data...)
	}
	c.metrics.observeState(c)
	return out, nil
}

func (c *Channel) loadRoots() ([]byte, error) {
	now := time.Now()
	var out []byte
	for _, e := range c.cache.entities {
		if !c.isRoot(e) {
			continue
		}
		data, err := c.record(e, now)
		if err != nil {
			return nil, errors.Wrapf(err, "load root %d", e.objectID)
		}
		out = append(out, data...)
	}
	return out, nil
}

func (c *Channel) lookup(id int64) (*entity, bool) {
	e := c.cache.get(id)
	return e, e != nil
}
