package specifier

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ParseLines coalesces physical lines into logical specifier strings. A line
// continues the previous item when that item ends in ':' or ','. Blank lines
// and lines starting with '#' are dropped.
func ParseLines(lines []string) []string {
	var items []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if n := len(items); n > 0 && (strings.HasSuffix(items[n-1], ":") || strings.HasSuffix(items[n-1], ",")) {
			items[n-1] += line
			continue
		}
		items = append(items, line)
	}
	return items
}

// ParseFile reads a test file and parses the specifiers it contains.
func ParseFile(path string) ([]Specifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open test file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read test file %s: %w", path, err)
	}
	return Parse(ParseLines(lines))
}
