// Package fsutil provides the rewrite-temp-rename and append helpers
// every file-backed store in this module shares (spec.md §4.3–§4.8):
// load the whole file into memory, and durably rewrite it by handing
// the final bytes to an atomic writer rather than hand-rolling
// os.Rename races.
package fsutil

import (
	"bufio"
	"os"

	"github.com/moby/sys/atomicwriter"
)

// ReadLines returns every non-empty line of path. A missing file is not
// an error — it yields an empty slice, matching the "missing file ⇒
// empty result" contract used throughout spec.md §4.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}

// WriteLines atomically rewrites path with lines joined by '\n', each
// followed by a trailing newline. Crash-safe: atomicwriter writes to a
// sibling temp file and renames over the original (spec.md §6.3/§7).
func WriteLines(path string, lines []string) error {
	var buf []byte
	for _, l := range lines {
		buf = append(buf, l...)
		buf = append(buf, '\n')
	}
	return atomicwriter.WriteFile(path, buf, 0o644)
}

// AppendLine appends a single line (plus newline) to path, creating it
// if necessary. Pure appends are not crash-atomic across the rename
// boundary — a torn final line from a mid-write crash is tolerated by
// readers skipping records that fail to parse (spec.md §7) — but they
// never require a full-file rewrite, so the common "record a new
// message" path stays O(1).
func AppendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return err
	}
	return nil
}
