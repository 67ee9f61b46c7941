package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DiskUsageBytes returns the total size in bytes of the given files and directories.
// Empty and missing paths count as zero.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return 0, err
		}
	}
	return total, nil
}

// ProjectUsage returns the on-disk size of every project_<id> directory under root,
// keyed by project id. Directories starting with '.' (staging, trash, locks) are skipped.
func ProjectUsage(root string) (map[string]int64, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, err
	}
	usage := make(map[string]int64)
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "project_") {
			continue
		}
		n, err := DiskUsageBytes(filepath.Join(root, e.Name()))
		if err != nil {
			return nil, err
		}
		usage[strings.TrimPrefix(e.Name(), "project_")] = n
	}
	return usage, nil
}
