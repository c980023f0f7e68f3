package validation

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Binary byte units.
const (
	BytesPerKB int64 = 1024
	BytesPerMB int64 = 1024 * BytesPerKB
	BytesPerGB int64 = 1024 * BytesPerMB
)

// MinDatabaseFreeBytes is the free space the SQLite directory should keep
// for the database, its WAL and rollback journal.
const MinDatabaseFreeBytes = 64 * BytesPerMB

// DiskSpace describes the filesystem holding a path.
type DiskSpace struct {
	Path  string
	Total int64
	Free  int64
}

// DiskSpaceError reports insufficient free space.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, FormatBytes(e.Required), FormatBytes(e.Available))
}

// GetDiskSpace reports the filesystem containing path. A missing path is
// resolved to its nearest existing parent directory.
func GetDiskSpace(path string) (*DiskSpace, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if parent := filepath.Dir(path); parent != path {
				return GetDiskSpace(parent)
			}
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}
	return &DiskSpace{Path: path, Total: total, Free: free}, nil
}

// CheckDiskSpace returns a *DiskSpaceError when path has less than required
// bytes free.
func CheckDiskSpace(path string, required int64) error {
	info, err := GetDiskSpace(path)
	if err != nil {
		return err
	}
	if info.Free < required {
		return &DiskSpaceError{Path: info.Path, Required: required, Available: info.Free}
	}
	return nil
}

// FormatBytes renders a byte count with binary units, e.g. "1.50 KB".
func FormatBytes(n int64) string {
	switch {
	case n < 0:
		return "0 B"
	case n >= BytesPerGB:
		return fmt.Sprintf("%.2f GB", float64(n)/float64(BytesPerGB))
	case n >= BytesPerMB:
		return fmt.Sprintf("%.2f MB", float64(n)/float64(BytesPerMB))
	case n >= BytesPerKB:
		return fmt.Sprintf("%.2f KB", float64(n)/float64(BytesPerKB))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
