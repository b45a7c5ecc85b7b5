package fsutil

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/moby/sys/atomicwriter"
)

// Counter is a process-wide, file-persisted monotonic allocator. It
// backs the message-id counters spec.md §4.7/§4.8 require to survive
// restarts, and the group-id allocator DESIGN.md substitutes for the
// source's wall-clock-seconds scheme (spec.md §9's open question).
type Counter struct {
	mu   sync.Mutex
	path string
	next uint64
}

// LoadCounter reads the last persisted value from path (0 if absent)
// and returns a Counter that will hand out next+1, next+2, ...
func LoadCounter(path string) (*Counter, error) {
	c := &Counter{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return c, nil // tolerate a torn/empty counter file; restart from 0
	}
	c.next = v
	return c, nil
}

// Next allocates and durably persists the next id.
func (c *Counter) Next() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	if err := atomicwriter.WriteFile(c.path, []byte(strconv.FormatUint(c.next, 10)), 0o644); err != nil {
		c.next--
		return 0, err
	}
	return c.next, nil
}

// Bump raises the counter to at least v without persisting — used at
// startup when recovering the high-water mark by scanning existing
// per-group logs (spec.md §4.8's init step).
func (c *Counter) Bump(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.next {
		c.next = v
	}
}
