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

// Compact rewrites the state of inv as the shortest equivalent log. Every
// live file is described by its creation plus one DATA_STORE carrying the
// accumulated length. Deleted files are kept (creation plus deletion) only
// while present reports them as still existing on disk, so a later check
// can finish removing them. The last created file is always kept, so file
// numbers are never handed out twice.
func Compact(inv *Inventory, present func(fileNumber int64) bool) []byte {
	var buf []byte
	for _, f := range inv.Files() {
		if f.Deleted && !present(f.FileNumber) && f.FileNumber != inv.LastCreated() {
			continue
		}
		buf = FileCreation(f.Timestamp, f.FileNumber, 0).Append(buf)
		if f.Length > 0 {
			buf = DataStore(f.Timestamp, f.FileNumber, f.Length).Append(buf)
		}
		if f.Deleted {
			buf = FileDeletion(f.Timestamp, f.FileNumber, f.Length).Append(buf)
		}
	}
	return buf
}
