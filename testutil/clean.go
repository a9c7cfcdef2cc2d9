package testutil

import (
	"os"
	"path/filepath"
)

// CleanDir empties the directory dirname, keeping the entries named in keeps. A missing
// directory is already clean.
func CleanDir(dirname string, keeps []string) error {
	entries, err := os.ReadDir(dirname)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}

	keep := make(map[string]bool, len(keeps))
	for _, k := range keeps {
		keep[k] = true
	}

	for _, e := range entries {
		if keep[e.Name()] {
			continue
		}
		err = os.RemoveAll(filepath.Join(dirname, e.Name()))
		if err != nil {
			return err
		}
	}
	return nil
}
