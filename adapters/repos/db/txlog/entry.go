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

// Package txlog models the per-channel transactions log: an append-only
// ledger of data file lifecycle events. Folding the log reconstructs which
// data files exist and how long they are supposed to be, without trusting
// the directory listing.
package txlog

import (
	"fmt"

	"github.com/pkg/errors"
)

type EntryType uint8

const (
	TypeFileCreation   EntryType = 0
	TypeDataStore      EntryType = 1
	TypeDataTransfer   EntryType = 2
	TypeFileTruncation EntryType = 3
	TypeFileDeletion   EntryType = 4
)

const (
	// [1B entry length][1B type][8B timestamp][8B length]
	headerLength = 18
	// + [8B file number]
	shortEntryLength = headerLength + 8
	// + [8B special]
	longEntryLength = shortEntryLength + 8

	// MaxGapLength is the largest gap a single length byte can express.
	MaxGapLength = 128
)

var (
	ErrZeroLengthEntry     = errors.New("zero length transactions entry")
	ErrUnknownEntryType    = errors.New("unknown transactions entry type")
	ErrEntryLengthMismatch = errors.New("transactions entry length does not match its type")
	ErrInconsistent        = errors.New("inconsistent transactions log")
)

func (t EntryType) String() string {
	switch t {
	case TypeFileCreation:
		return "FILE_CREATION"
	case TypeDataStore:
		return "DATA_STORE"
	case TypeDataTransfer:
		return "DATA_TRANSFER"
	case TypeFileTruncation:
		return "FILE_TRUNCATION"
	case TypeFileDeletion:
		return "FILE_DELETION"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// EncodedLength is the fixed wire length of entries of type t, or 0 for
// unknown types.
func (t EntryType) EncodedLength() int {
	switch t {
	case TypeFileCreation, TypeDataStore, TypeFileDeletion:
		return shortEntryLength
	case TypeDataTransfer, TypeFileTruncation:
		return longEntryLength
	default:
		return 0
	}
}

// Entry is one decoded transactions log entry. The meaning of Length and
// Special depends on the type:
//
//	FILE_CREATION    Length: initial file length
//	DATA_STORE       Length: bytes appended
//	DATA_TRANSFER    Length: bytes appended to FileNumber, Special: source file
//	FILE_TRUNCATION  Length: new length, Special: old length
//	FILE_DELETION    Length: length at deletion
type Entry struct {
	Type       EntryType
	Timestamp  int64
	Length     int64
	FileNumber int64
	Special    int64
}

func FileCreation(timestamp, fileNumber, length int64) Entry {
	return Entry{Type: TypeFileCreation, Timestamp: timestamp, Length: length, FileNumber: fileNumber}
}

func DataStore(timestamp, fileNumber, delta int64) Entry {
	return Entry{Type: TypeDataStore, Timestamp: timestamp, Length: delta, FileNumber: fileNumber}
}

func DataTransfer(timestamp, targetFile, sourceFile, length int64) Entry {
	return Entry{
		Type: TypeDataTransfer, Timestamp: timestamp, Length: length,
		FileNumber: targetFile, Special: sourceFile,
	}
}

func FileTruncation(timestamp, fileNumber, newLength, oldLength int64) Entry {
	return Entry{
		Type: TypeFileTruncation, Timestamp: timestamp, Length: newLength,
		FileNumber: fileNumber, Special: oldLength,
	}
}

func FileDeletion(timestamp, fileNumber, length int64) Entry {
	return Entry{Type: TypeFileDeletion, Timestamp: timestamp, Length: length, FileNumber: fileNumber}
}

// SourceFile is the file a DATA_TRANSFER copied from.
func (e Entry) SourceFile() int64 {
	return e.Special
}

// OldLength is the length a FILE_TRUNCATION started from.
func (e Entry) OldLength() int64 {
	return e.Special
}

func (e Entry) String() string {
	switch e.Type {
	case TypeDataTransfer:
		return fmt.Sprintf("%s(ts=%d, file=%d, source=%d, length=%d)",
			e.Type, e.Timestamp, e.FileNumber, e.Special, e.Length)
	case TypeFileTruncation:
		return fmt.Sprintf("%s(ts=%d, file=%d, length=%d, old=%d)",
			e.Type, e.Timestamp, e.FileNumber, e.Length, e.Special)
	default:
		return fmt.Sprintf("%s(ts=%d, file=%d, length=%d)",
			e.Type, e.Timestamp, e.FileNumber, e.Length)
	}
}
