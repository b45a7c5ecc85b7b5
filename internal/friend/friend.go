// Package friend implements the file-backed friendship edge store
// (spec.md §4.5): pending/accepted/rejected edges, symmetric semantics,
// reverse lookup, and online-status joins.
package friend

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatserver/internal/apperr"
)

// Status is one of the three edge states spec.md §3 names.
type Status string

const (
	Pending  Status = "PENDING"
	Accepted Status = "ACCEPTED"
	Rejected Status = "REJECTED"
)

// Edge is a directed friendship tuple (spec.md §3). The semantic graph
// is undirected once Accepted; From/To only matter for who invited whom.
type Edge struct {
	From      string
	To        string
	Status    Status
	Timestamp int64
}

// Accounts is the subset of account.Store this package needs, kept as
// an interface so friend doesn't import account directly (and so tests
// can use a fake).
type Accounts interface {
	Username(id int64) (string, bool)
	UserID(username string) (int64, bool)
	Exists(username string) bool
}

// OnlineChecker reports whether a user id currently has a live
// session — injected so Store never calls into the session registry
// while holding its own mutex (spec.md §5's lock-ordering rule).
type OnlineChecker interface {
	IsOnline(userID int64) bool
}

// Store is the friendship edge registry, backed by spec.md §6.3's
// friends.db.
type Store struct {
	mu       sync.Mutex
	path     string
	accounts Accounts
	online   OnlineChecker
}

// New builds a Store backed by path.
func New(path string, accounts Accounts, online OnlineChecker) *Store {
	return &Store{path: path, accounts: accounts, online: online}
}

var (
	errSelf           = apperr.New(apperr.KindValidation, 422, "cannot_invite_self", "cannot friend yourself")
	errUserNotFound   = apperr.New(apperr.KindNotFound, 404, "user_not_found", "user not found")
	errAlreadyFriends = apperr.New(apperr.KindConflict, 409, "already_friend_or_pending", "a pending or accepted edge already exists")
	errInviteNotFound = apperr.New(apperr.KindNotFound, 404, "invite_not_found", "no matching pending invite")
	errFriendNotFound = apperr.New(apperr.KindNotFound, 404, "friend_not_found", "not a friend")
)

func errAcceptSelf() error {
	return apperr.New(apperr.KindValidation, 422, "cannot_accept_self", "cannot accept yourself")
}
func errRejectSelf() error {
	return apperr.New(apperr.KindValidation, 422, "cannot_reject_self", "cannot reject yourself")
}
func errDeleteSelf() error {
	return apperr.New(apperr.KindValidation, 422, "cannot_delete_self", "cannot unfriend yourself")
}

// Invite creates a PENDING edge from the user identified by fromID to
// toUsername.
func (s *Store) Invite(fromID int64, toUsername string) error {
	fromUsername, ok := s.accounts.Username(fromID)
	if !ok {
		return apperr.Internal(fmt.Errorf("friend: inviter %d has no account record", fromID))
	}
	if fromUsername == toUsername {
		return errSelf
	}
	if !s.accounts.Exists(toUsername) {
		return errUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.loadLocked()
	if err != nil {
		return apperr.Internal(err)
	}
	for _, e := range edges {
		if touches(e, fromUsername, toUsername) && (e.Status == Pending || e.Status == Accepted) {
			return errAlreadyFriends
		}
	}
	edges = append(edges, Edge{From: fromUsername, To: toUsername, Status: Pending, Timestamp: now()})
	if err := s.saveLocked(edges); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Accept promotes the PENDING edge (fromUsername → toID) to Accepted.
func (s *Store) Accept(toID int64, fromUsername string) error {
	return s.resolvePending(toID, fromUsername, errAcceptSelf(), func(edges []Edge, idx int) []Edge {
		edges[idx].Status = Accepted
		edges[idx].Timestamp = now()
		return edges
	})
}

// Reject removes the PENDING edge (fromUsername → toID).
func (s *Store) Reject(toID int64, fromUsername string) error {
	return s.resolvePending(toID, fromUsername, errRejectSelf(), func(edges []Edge, idx int) []Edge {
		return append(edges[:idx], edges[idx+1:]...)
	})
}

func (s *Store) resolvePending(toID int64, fromUsername string, selfErr error, mutate func([]Edge, int) []Edge) error {
	toUsername, ok := s.accounts.Username(toID)
	if !ok {
		return apperr.Internal(fmt.Errorf("friend: user %d has no account record", toID))
	}
	if toUsername == fromUsername {
		return selfErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.loadLocked()
	if err != nil {
		return apperr.Internal(err)
	}
	idx := -1
	for i, e := range edges {
		if e.From == fromUsername && e.To == toUsername && e.Status == Pending {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errInviteNotFound
	}
	edges = mutate(edges, idx)
	if err := s.saveLocked(edges); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// Pending returns the comma-separated usernames with a PENDING invite
// addressed to userID.
func (s *Store) Pending(userID int64) (string, error) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return "", apperr.Internal(fmt.Errorf("friend: user %d has no account record", userID))
	}

	s.mu.Lock()
	edges, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		return "", apperr.Internal(err)
	}

	var names []string
	for _, e := range edges {
		if e.To == username && e.Status == Pending {
			names = append(names, e.From)
		}
	}
	return strings.Join(names, ","), nil
}

// List returns "username:online|offline" for every ACCEPTED edge
// touching userID, joined in either direction.
func (s *Store) List(userID int64) (string, error) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return "", apperr.Internal(fmt.Errorf("friend: user %d has no account record", userID))
	}

	s.mu.Lock()
	edges, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		return "", apperr.Internal(err)
	}

	var entries []string
	for _, e := range edges {
		if e.Status != Accepted {
			continue
		}
		var other string
		switch {
		case e.From == username:
			other = e.To
		case e.To == username:
			other = e.From
		default:
			continue
		}
		status := "offline"
		if otherID, ok := s.accounts.UserID(other); ok && s.online != nil && s.online.IsOnline(otherID) {
			status = "online"
		}
		entries = append(entries, other+":"+status)
	}
	return strings.Join(entries, ","), nil
}

// Delete removes the ACCEPTED edge between userID and otherUsername, in
// either direction.
func (s *Store) Delete(userID int64, otherUsername string) error {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return apperr.Internal(fmt.Errorf("friend: user %d has no account record", userID))
	}
	if username == otherUsername {
		return errDeleteSelf()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.loadLocked()
	if err != nil {
		return apperr.Internal(err)
	}
	idx := -1
	for i, e := range edges {
		if e.Status == Accepted && touches(e, username, otherUsername) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errFriendNotFound
	}
	edges = append(edges[:idx], edges[idx+1:]...)
	if err := s.saveLocked(edges); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

func touches(e Edge, a, b string) bool {
	return (e.From == a && e.To == b) || (e.From == b && e.To == a)
}

func now() int64 { return time.Now().Unix() }
