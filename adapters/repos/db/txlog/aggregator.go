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

package txlog

import (
	"sort"

	"github.com/pkg/errors"
)

// FileEntry is the accumulated state of one data file.
type FileEntry struct {
	FileNumber int64
	Length     int64
	Deleted    bool
	// Timestamp of the last entry that touched the file.
	Timestamp int64
}

func (f FileEntry) IsEmpty() bool {
	return f.Length == 0
}

// Inventory is the data file state reconstructed from a transactions log.
type Inventory struct {
	files        map[int64]*FileEntry
	lastCreated  int64
	maxTimestamp int64
	entries      int
}

func NewInventory() *Inventory {
	return &Inventory{files: map[int64]*FileEntry{}}
}

// Fold iterates buf and accepts every entry into a new inventory. The
// returned length is the consistent prefix of buf.
func Fold(buf []byte) (*Inventory, int64, error) {
	inv := NewInventory()
	consistent, err := Iterate(buf, func(offset int64, e Entry) error {
		return errors.Wrapf(inv.Accept(e), "entry at offset %d", offset)
	})
	if err != nil {
		return nil, consistent, err
	}
	return inv, consistent, nil
}

// Accept applies e to the inventory. Entries violating the lifecycle of a
// file are rejected with ErrInconsistent and leave the inventory unchanged.
func (inv *Inventory) Accept(e Entry) error {
	if e.Type == TypeFileCreation {
		if e.FileNumber <= inv.lastCreated {
			return errors.Wrapf(ErrInconsistent, "%s: file numbers must increase, last was %d",
				e, inv.lastCreated)
		}
		inv.files[e.FileNumber] = &FileEntry{
			FileNumber: e.FileNumber,
			Length:     e.Length,
			Timestamp:  e.Timestamp,
		}
		inv.lastCreated = e.FileNumber
		inv.touch(e)
		return nil
	}

	file, err := inv.live(e, e.FileNumber)
	if err != nil {
		return err
	}

	switch e.Type {
	case TypeDataStore:
		file.Length += e.Length
	case TypeDataTransfer:
		if _, err := inv.live(e, e.SourceFile()); err != nil {
			return err
		}
		file.Length += e.Length
	case TypeFileTruncation:
		if e.Length > file.Length {
			return errors.Wrapf(ErrInconsistent, "%s: truncation would grow file from %d",
				e, file.Length)
		}
		file.Length = e.Length
	case TypeFileDeletion:
		file.Deleted = true
	default:
		return errors.Wrapf(ErrUnknownEntryType, "%s", e)
	}
	file.Timestamp = e.Timestamp
	inv.touch(e)
	return nil
}

func (inv *Inventory) live(e Entry, fileNumber int64) (*FileEntry, error) {
	file, ok := inv.files[fileNumber]
	if !ok {
		return nil, errors.Wrapf(ErrInconsistent, "%s: unknown file %d", e, fileNumber)
	}
	if file.Deleted {
		return nil, errors.Wrapf(ErrInconsistent, "%s: file %d is already deleted", e, fileNumber)
	}
	return file, nil
}

func (inv *Inventory) touch(e Entry) {
	if e.Timestamp > inv.maxTimestamp {
		inv.maxTimestamp = e.Timestamp
	}
	inv.entries++
}

// File returns a copy of the state of fileNumber.
func (inv *Inventory) File(fileNumber int64) (FileEntry, bool) {
	f, ok := inv.files[fileNumber]
	if !ok {
		return FileEntry{}, false
	}
	return *f, true
}

// Files returns all known files ordered by file number.
func (inv *Inventory) Files() []FileEntry {
	out := make([]FileEntry, 0, len(inv.files))
	for _, f := range inv.files {
		out = append(out, *f)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].FileNumber < out[b].FileNumber
	})
	return out
}

// LiveFiles returns the files that are not deleted, ordered by file number.
func (inv *Inventory) LiveFiles() []FileEntry {
	all := inv.Files()
	out := all[:0]
	for _, f := range all {
		if !f.Deleted {
			out = append(out, f)
		}
	}
	return out
}

// HeadFile is the live file with the highest number, the one new data is
// appended to.
func (inv *Inventory) HeadFile() (FileEntry, bool) {
	live := inv.LiveFiles()
	if len(live) == 0 {
		return FileEntry{}, false
	}
	return live[len(live)-1], true
}

// LastCreated is the highest file number ever created, deleted or not.
func (inv *Inventory) LastCreated() int64 {
	return inv.lastCreated
}

func (inv *Inventory) MaxTimestamp() int64 {
	return inv.maxTimestamp
}

// EntryCount is the number of entries accepted so far.
func (inv *Inventory) EntryCount() int {
	return inv.entries
}
