// Package gm implements the group message store (spec.md §4.8):
// one append-only log per group, with membership-gated send/history
// and a counter recovered by scanning existing logs at startup.
package gm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatserver/internal/apperr"
	"chatserver/internal/store/fsutil"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit      = 100
)

// Record is one persisted group message (spec.md §4.8).
type Record struct {
	MsgID   int64
	FromID  int64
	Payload string
	Ts      int64
}

// Accounts is the subset of account.Store this package needs.
type Accounts interface {
	Username(id int64) (string, bool)
}

// Groups reports group membership. A nonexistent group and a group the
// caller does not belong to are indistinguishable here by design — both
// fold into NotMember (spec.md §4.8).
type Groups interface {
	IsMember(groupID int64, username string) (bool, error)
}

// Store is the group-conversation registry, backed by spec.md §6.3's
// gm/<group_id> logs.
type Store struct {
	mu       sync.Mutex
	dir      string
	accounts Accounts
	groups   Groups
	counter  *fsutil.Counter
}

var errNotMember = apperr.New(apperr.KindPermission, 403, "not_group_member", "caller is not a member of this group")

// New creates the gm/ directory if needed, loads the persisted
// message-id counter, and bumps it to the highest id actually found
// across existing logs — recovering state if the counter file was lost
// or left behind a crash that landed a log append without its matching
// counter persist.
func New(dir, counterPath string, accounts Accounts, groups Groups) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Internal(err)
	}
	counter, err := fsutil.LoadCounter(counterPath)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	var max uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lines, err := fsutil.ReadLines(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, apperr.Internal(err)
		}
		for _, line := range lines {
			r, ok := parseRecord(line)
			if !ok {
				continue
			}
			if uint64(r.MsgID) > max {
				max = uint64(r.MsgID)
			}
		}
	}
	counter.Bump(max)
	return &Store{dir: dir, accounts: accounts, groups: groups, counter: counter}, nil
}

// Send appends a new message from fromID into groupID, returning its
// newly allocated id. Does not perform push fan-out — that is the
// handler's responsibility (spec.md §4.10).
func (s *Store) Send(fromID, groupID int64, payload string) (int64, error) {
	if payload == "" || strings.ContainsAny(payload, "| \t\r\n") {
		return 0, apperr.New(apperr.KindValidation, 422, "invalid_fields", "payload must not contain '|', space, or newline")
	}
	fromUsername, ok := s.accounts.Username(fromID)
	if !ok {
		return 0, apperr.Internal(fmt.Errorf("gm: sender %d has no account record", fromID))
	}
	isMember, err := s.groups.IsMember(groupID, fromUsername)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	if !isMember {
		return 0, errNotMember
	}

	id, err := s.counter.Next()
	if err != nil {
		return 0, apperr.Internal(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{MsgID: int64(id), FromID: fromID, Payload: payload, Ts: time.Now().Unix()}
	if err := fsutil.AppendLine(s.logPath(groupID), renderRecord(rec)); err != nil {
		return 0, apperr.Internal(err)
	}
	return rec.MsgID, nil
}

// History returns up to limit messages from groupID, most-recent-first,
// as "msg_id:from_username:payload:ts" comma-joined entries. viewerID
// must be a member.
func (s *Store) History(viewerID, groupID int64, limit int) (string, error) {
	viewerUsername, ok := s.accounts.Username(viewerID)
	if !ok {
		return "", apperr.Internal(fmt.Errorf("gm: viewer %d has no account record", viewerID))
	}
	isMember, err := s.groups.IsMember(groupID, viewerUsername)
	if err != nil {
		return "", apperr.Internal(err)
	}
	if !isMember {
		return "", errNotMember
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	lines, err := fsutil.ReadLines(s.logPath(groupID))
	s.mu.Unlock()
	if err != nil {
		return "", apperr.Internal(err)
	}

	recs := make([]Record, 0, len(lines))
	for _, line := range lines {
		r, ok := parseRecord(line)
		if !ok {
			continue
		}
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].MsgID > recs[j].MsgID })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	entries := make([]string, 0, len(recs))
	for _, r := range recs {
		fromUsername, ok := s.accounts.Username(r.FromID)
		if !ok {
			continue
		}
		entries = append(entries, strconv.FormatInt(r.MsgID, 10)+":"+fromUsername+":"+r.Payload+":"+strconv.FormatInt(r.Ts, 10))
	}
	return strings.Join(entries, ","), nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

func (s *Store) logPath(groupID int64) string {
	return filepath.Join(s.dir, strconv.FormatInt(groupID, 10))
}

func parseRecord(line string) (Record, bool) {
	f := strings.Split(line, "|")
	if len(f) != 4 {
		return Record{}, false
	}
	msgID, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return Record{}, false
	}
	fromID, err := strconv.ParseInt(f[1], 10, 64)
	if err != nil {
		return Record{}, false
	}
	ts, err := strconv.ParseInt(f[3], 10, 64)
	if err != nil {
		return Record{}, false
	}
	return Record{MsgID: msgID, FromID: fromID, Payload: f[2], Ts: ts}, true
}

func renderRecord(r Record) string {
	return strings.Join([]string{
		strconv.FormatInt(r.MsgID, 10), strconv.FormatInt(r.FromID, 10), r.Payload, strconv.FormatInt(r.Ts, 10),
	}, "|")
}
