// Package pm implements the private message store (spec.md §4.7):
// per-pair append-only conversation logs, unread tracking, and history
// retrieval.
package pm

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

// Record is one persisted message (spec.md §3).
type Record struct {
	MsgID    int64
	FromID   int64
	Payload  string
	Ts       int64
	ReadFlag bool
}

// Accounts is the subset of account.Store this package needs.
type Accounts interface {
	Username(id int64) (string, bool)
	UserID(username string) (int64, bool)
}

// Store is the private-conversation registry, backed by spec.md §6.3's
// pm/<min_id>_<max_id> logs and pm/.msg_id counter.
type Store struct {
	mu       sync.Mutex
	dir      string
	accounts Accounts
	counter  *fsutil.Counter
}

// New creates the pm/ directory if needed and loads the persisted
// message-id counter.
func New(dir string, accounts Accounts) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Internal(err)
	}
	c, err := fsutil.LoadCounter(filepath.Join(dir, ".msg_id"))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Store{dir: dir, accounts: accounts, counter: c}, nil
}

var (
	errSelf         = apperr.New(apperr.KindValidation, 422, "cannot_send_to_self", "cannot message yourself")
	errUserNotFound = apperr.New(apperr.KindNotFound, 404, "user_not_found", "user not found")
	errBadPayload   = apperr.New(apperr.KindValidation, 422, "invalid_fields", "payload must not contain '|', space, or newline")
)

// ValidPayload enforces spec.md §3's opaque-token invariant.
func ValidPayload(payload string) bool {
	return payload != "" && !strings.ContainsAny(payload, "| \t\r\n")
}

// Send appends a new message from fromID to toUsername, returning its
// newly allocated id. Does not perform push delivery — that is the
// handler's responsibility (spec.md §4.7).
func (s *Store) Send(fromID int64, toUsername, payload string) (int64, error) {
	if !ValidPayload(payload) {
		return 0, errBadPayload
	}
	fromUsername, ok := s.accounts.Username(fromID)
	if !ok {
		return 0, apperr.Internal(fmt.Errorf("pm: sender %d has no account record", fromID))
	}
	if fromUsername == toUsername {
		return 0, errSelf
	}
	toID, ok := s.accounts.UserID(toUsername)
	if !ok {
		return 0, errUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.counter.Next()
	if err != nil {
		return 0, apperr.Internal(err)
	}
	rec := Record{MsgID: int64(id), FromID: fromID, Payload: payload, Ts: time.Now().Unix()}
	if err := fsutil.AppendLine(s.pairPath(fromID, toID), renderRecord(rec)); err != nil {
		return 0, apperr.Internal(err)
	}
	return rec.MsgID, nil
}

// History returns up to limit messages between viewerID and
// otherUsername, most-recent-first, as
// "msg_id:from_username:payload:ts" comma-joined entries.
func (s *Store) History(viewerID int64, otherUsername string, limit int) (string, error) {
	otherID, ok := s.accounts.UserID(otherUsername)
	if !ok {
		return "", errUserNotFound
	}
	limit = clampLimit(limit)

	s.mu.Lock()
	recs, err := s.loadPairLocked(viewerID, otherID)
	s.mu.Unlock()
	if err != nil {
		return "", apperr.Internal(err)
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

// Conversations enumerates every pair file touching userID and returns
// "other_username:unread_count" comma-joined entries.
func (s *Store) Conversations(userID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", apperr.Internal(err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		a, b, ok := parsePairFilename(e.Name())
		if !ok {
			continue
		}
		var otherID int64
		switch userID {
		case a:
			otherID = b
		case b:
			otherID = a
		default:
			continue
		}
		recs, err := s.loadRecordsLocked(e.Name())
		if err != nil {
			return "", apperr.Internal(err)
		}
		unread := 0
		for _, r := range recs {
			if r.FromID == otherID && !r.ReadFlag {
				unread++
			}
		}
		otherUsername, ok := s.accounts.Username(otherID)
		if !ok {
			continue
		}
		out = append(out, otherUsername+":"+strconv.Itoa(unread))
	}
	sort.Strings(out)
	return strings.Join(out, ","), nil
}

// MarkRead rewrites the conversation log, setting read_flag=1 on every
// record whose sender is otherUsername — idempotent and safe to re-run
// (spec.md §9).
func (s *Store) MarkRead(viewerID int64, otherUsername string) error {
	otherID, ok := s.accounts.UserID(otherUsername)
	if !ok {
		return errUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.pairPath(viewerID, otherID)
	recs, err := s.loadRecordsLocked(filepath.Base(path))
	if err != nil {
		return apperr.Internal(err)
	}
	changed := false
	for i := range recs {
		if recs[i].FromID == otherID && !recs[i].ReadFlag {
			recs[i].ReadFlag = true
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.saveRecordsLocked(path, recs)
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

func (s *Store) pairPath(a, b int64) string {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return filepath.Join(s.dir, fmt.Sprintf("%d_%d", lo, hi))
}

func (s *Store) loadPairLocked(a, b int64) ([]Record, error) {
	return s.loadRecordsLocked(filepath.Base(s.pairPath(a, b)))
}

func (s *Store) loadRecordsLocked(name string) ([]Record, error) {
	lines, err := fsutil.ReadLines(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(lines))
	for _, line := range lines {
		r, ok := parseRecord(line)
		if !ok {
			continue
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func (s *Store) saveRecordsLocked(path string, recs []Record) error {
	lines := make([]string, 0, len(recs))
	for _, r := range recs {
		lines = append(lines, renderRecord(r))
	}
	return fsutil.WriteLines(path, lines)
}

func parsePairFilename(name string) (int64, int64, bool) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

func parseRecord(line string) (Record, bool) {
	f := strings.Split(line, "|")
	if len(f) != 5 {
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
	return Record{MsgID: msgID, FromID: fromID, Payload: f[2], Ts: ts, ReadFlag: f[4] == "1"}, true
}

func renderRecord(r Record) string {
	read := "0"
	if r.ReadFlag {
		read = "1"
	}
	return strings.Join([]string{
		strconv.FormatInt(r.MsgID, 10), strconv.FormatInt(r.FromID, 10), r.Payload,
		strconv.FormatInt(r.Ts, 10), read,
	}, "|")
}
