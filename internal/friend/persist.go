package friend

import (
	"strconv"
	"strings"

	"chatserver/internal/store/fsutil"
)

func (s *Store) loadLocked() ([]Edge, error) {
	lines, err := fsutil.ReadLines(s.path)
	if err != nil {
		return nil, err
	}
	edges := make([]Edge, 0, len(lines))
	for _, line := range lines {
		e, ok := parseEdge(line)
		if !ok {
			continue
		}
		edges = append(edges, e)
	}
	return edges, nil
}

func (s *Store) saveLocked(edges []Edge) error {
	lines := make([]string, 0, len(edges))
	for _, e := range edges {
		lines = append(lines, renderEdge(e))
	}
	return fsutil.WriteLines(s.path, lines)
}

func parseEdge(line string) (Edge, bool) {
	f := strings.Split(line, "|")
	if len(f) != 4 {
		return Edge{}, false
	}
	ts, err := strconv.ParseInt(f[3], 10, 64)
	if err != nil {
		return Edge{}, false
	}
	return Edge{From: f[0], To: f[1], Status: Status(f[2]), Timestamp: ts}, true
}

func renderEdge(e Edge) string {
	return strings.Join([]string{e.From, e.To, string(e.Status), strconv.FormatInt(e.Timestamp, 10)}, "|")
}
