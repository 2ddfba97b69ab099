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

type ActionKind int

const (
	// ActionTruncate cuts a file back to its logged length. The tail is a
	// store that never got committed.
	ActionTruncate ActionKind = iota
	// ActionDelete removes a file the log considers deleted or never knew.
	ActionDelete
)

func (k ActionKind) String() string {
	if k == ActionTruncate {
		return "truncate"
	}
	return "delete"
}

// Action is a repair the caller has to apply to the data files.
type Action struct {
	Kind       ActionKind
	FileNumber int64
	// Size is the target length for truncations and the current length for
	// deletions.
	Size int64
}

// Check compares inv against the data files actually present, given as file
// number to size. A live file that is missing is an error. With checkSize
// the length has to match exactly: a shorter file is an error, a longer one
// is repaired by truncation. Files that are deleted or unknown to the log
// are scheduled for deletion.
func Check(inv *Inventory, present map[int64]int64, checkSize bool) ([]Action, error) {
	var actions []Action
	for _, f := range inv.Files() {
		size, exists := present[f.FileNumber]
		if f.Deleted {
			if exists {
				actions = append(actions, Action{Kind: ActionDelete, FileNumber: f.FileNumber, Size: size})
			}
			continue
		}

		if !exists {
			return nil, errors.Wrapf(ErrInconsistent, "data file %d is missing", f.FileNumber)
		}
		if !checkSize {
			continue
		}
		if size < f.Length {
			return nil, errors.Wrapf(ErrInconsistent, "data file %d has %d bytes, log expects %d",
				f.FileNumber, size, f.Length)
		}
		if size > f.Length {
			actions = append(actions, Action{Kind: ActionTruncate, FileNumber: f.FileNumber, Size: f.Length})
		}
	}

	for number, size := range present {
		if _, known := inv.files[number]; !known {
			actions = append(actions, Action{Kind: ActionDelete, FileNumber: number, Size: size})
		}
	}
	sortActions(actions)
	return actions, nil
}

func sortActions(actions []Action) {
	sort.SliceStable(actions, func(a, b int) bool {
		return actions[a].FileNumber < actions[b].FileNumber
	})
}
