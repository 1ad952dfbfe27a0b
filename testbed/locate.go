package testbed

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// findClassExecutable looks for a test class executable named after the class
// in each test path, in order. An exact name match wins over a file with an
// extension (Class.sh, Class.py, ...). Directories are searched recursively.
func findClassExecutable(testPaths []string, class string) (string, error) {
	for _, root := range testPaths {
		var candidates []string
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			name := d.Name()
			if name == class || strings.HasPrefix(name, class+".") {
				candidates = append(candidates, path)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("failed to search test path %s: %w", root, err)
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			exactI := filepath.Base(candidates[i]) == class
			exactJ := filepath.Base(candidates[j]) == class
			if exactI != exactJ {
				return exactI
			}
			return candidates[i] < candidates[j]
		})
		for _, c := range candidates {
			if isExecutable(c) {
				return c, nil
			}
		}
	}
	return "", fmt.Errorf("unable to find test class %s in test paths %v", class, testPaths)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0
}
