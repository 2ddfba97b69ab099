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
	"github.com/weaviate/chanstore/adapters/repos/db/afs"
)

type dataFile struct {
	number int64
	file   afs.File

	total int64
	live  int64
	count int64

	entities map[int64]*entity
}

func newDataFile(number int64, file afs.File, total int64) *dataFile {
	return &dataFile{
		number:   number,
		file:     file,
		total:    total,
		entities: map[int64]*entity{},
	}
}

func (f *dataFile) add(e *entity) {
	e.file = f
	f.entities[e.objectID] = e
	f.live += e.length
	f.count++
}

func (f *dataFile) remove(e *entity) {
	if cur, ok := f.entities[e.objectID]; !ok || cur != e {
		return
	}
	delete(f.entities, e.objectID)
	f.live -= e.length
	f.count--
}

func (f *dataFile) useRatio() float64 {
	if f.total == 0 {
		return 1
	}
	return float64(f.live) / float64(f.total)
}

type FileStatistics struct {
	Number      int64 `json:"number"`
	TotalLength int64 `json:"totalLength"`
	LiveLength  int64 `json:"liveLength"`
	EntityCount int64 `json:"entityCount"`
}

func (f *dataFile) statistics() FileStatistics {
	return FileStatistics{
		Number:      f.number,
		TotalLength: f.total,
		LiveLength:  f.live,
		EntityCount: f.count,
	}
}
