package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DatabasePath extracts the file path from a SQLite DSN. It returns ""
// for in-memory databases.
func DatabasePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || p == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	return p
}

// EnsureParentDir creates the directory that will hold the SQLite file
// named by dsn. It is a no-op for in-memory databases and bare filenames.
func EnsureParentDir(dsn string) (string, error) {
	p := DatabasePath(dsn)
	if p == "" {
		return "", nil
	}

	dir := filepath.Dir(p)
	if dir == "." {
		return dir, nil
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
