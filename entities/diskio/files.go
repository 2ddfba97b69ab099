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

package diskio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func FileExists(file string) (bool, error) {
	_, err := os.Stat(file)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func Fsync(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Sync()
}

// GetFileWithSizes lists the regular files of dirPath with their sizes.
func GetFileWithSizes(dirPath string) (map[string]int64, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	fileSizes := make(map[string]int64, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				// removed concurrently
				continue
			}
			return nil, err
		}
		fileSizes[entry.Name()] = info.Size()
	}

	return fileSizes, nil
}

// SanitizeFilePathJoin joins rootPath and relativeFilePath and rejects
// results that escape rootPath.
func SanitizeFilePathJoin(rootPath string, relativeFilePath string) (string, error) {
	cleanFilePath := filepath.Clean(filepath.FromSlash(relativeFilePath))
	if filepath.IsAbs(cleanFilePath) {
		return "", fmt.Errorf("relative file path %q is an absolute path", relativeFilePath)
	}
	finalPath := filepath.Join(rootPath, cleanFilePath)

	rel, err := filepath.Rel(rootPath, finalPath)
	if err != nil {
		return "", fmt.Errorf("make %q relative to %q: %w", finalPath, rootPath, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("file path %q is outside root %q", finalPath, rootPath)
	}
	return finalPath, nil
}
