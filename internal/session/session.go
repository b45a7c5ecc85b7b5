// Package session implements the in-memory session registry (spec.md
// §4.4): tokens mapped to (user, connection, chat-mode) tuples, with
// idle timeout, single-login enforcement, and disconnect cleanup.
package session

import (
	"encoding/hex"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"chatserver/internal/apperr"
)

// DefaultCapacity matches the source's fixed 1000-slot table. The
// sessions live in growable maps, so nothing is preallocated, but the
// count is still enforced: Create fails with a 500 internal_error once
// this many sessions are active.
const DefaultCapacity = 1000

// DefaultTimeout is used when the configured idle timeout is <= 0
// (spec.md §4.4).
const DefaultTimeout = time.Hour

const tokenLen = 32

// Connection is the minimal surface the registry needs from a
// connection handle: a stable identity for bookkeeping, and a
// best-effort way to deliver a push frame. Session holds these as weak
// references — Push failing silently is expected once a peer has gone
// away but cleanup hasn't run yet (spec.md §4.4).
type Connection interface {
	ID() uint64
	Push(line string) bool
}

// Session is one authenticated (token, user, connection) tuple
// (spec.md §3).
type Session struct {
	Token         string
	UserID        int64
	Conn          Connection
	CreatedAt     time.Time
	LastActivity  time.Time
	ChatPartnerID int64 // 0 = none
	ChatGroupID   int64 // 0 = none
}

// Registry is the single in-memory session table. All operations
// serialize under mu (spec.md §5).
type Registry struct {
	mu       sync.Mutex
	timeout  time.Duration
	capacity int
	byToken  map[string]*Session
	byUser   map[int64]*Session
	byConn   map[uint64]*Session
}

// New builds a Registry. timeout <= 0 uses DefaultTimeout.
func New(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		timeout:  timeout,
		capacity: DefaultCapacity,
		byToken:  make(map[string]*Session),
		byUser:   make(map[int64]*Session),
		byConn:   make(map[uint64]*Session),
	}
}

var (
	errAlreadyLoggedIn = apperr.New(apperr.KindConflict, 409, "already_logged_in", "user already has an active session")
	errFull            = apperr.New(apperr.KindInternal, 500, "internal_error", "session table is full")
	errNotFound        = apperr.New(apperr.KindAuth, 401, "invalid_token", "unknown session token")
	errExpired         = apperr.New(apperr.KindAuth, 401, "invalid_token", "session expired")
)

// Create starts a new session for userID on conn. Any existing session
// bound to the same connection is expired first; then, if another
// session already exists for userID (on a different connection),
// AlreadyLoggedIn is returned (spec.md §4.4).
func (r *Registry) Create(userID int64, conn Connection) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reapLocked()

	if old, ok := r.byConn[conn.ID()]; ok {
		r.removeLocked(old)
	}
	if _, ok := r.byUser[userID]; ok {
		return "", errAlreadyLoggedIn
	}
	if len(r.byToken) >= r.capacity {
		return "", errFull
	}

	var token string
	for attempt := 0; attempt < 10; attempt++ {
		t, err := newToken()
		if err != nil {
			return "", apperr.Internal(err)
		}
		if _, exists := r.byToken[t]; !exists {
			token = t
			break
		}
	}
	if token == "" {
		return "", errTokenCollision
	}

	now := time.Now()
	s := &Session{
		Token:        token,
		UserID:       userID,
		Conn:         conn,
		CreatedAt:    now,
		LastActivity: now,
	}
	r.byToken[token] = s
	r.byUser[userID] = s
	r.byConn[conn.ID()] = s
	return token, nil
}

// Validate checks token liveness, refreshing LastActivity on success.
func (r *Registry) Validate(token string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return 0, errNotFound
	}
	if time.Since(s.LastActivity) >= r.timeout {
		r.removeLocked(s)
		return 0, errExpired
	}
	s.LastActivity = time.Now()
	return s.UserID, nil
}

// Destroy ends a session explicitly (LOGOUT).
func (r *Registry) Destroy(token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byToken[token]
	if !ok {
		return errNotFound
	}
	r.removeLocked(s)
	return nil
}

// RemoveByConnection invalidates every session bound to connID — called
// when a worker observes end-of-stream or a transport error.
func (r *Registry) RemoveByConnection(connID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byConn[connID]; ok {
		r.removeLocked(s)
	}
}

func (r *Registry) removeLocked(s *Session) {
	delete(r.byToken, s.Token)
	if cur, ok := r.byUser[s.UserID]; ok && cur == s {
		delete(r.byUser, s.UserID)
	}
	if cur, ok := r.byConn[s.Conn.ID()]; ok && cur == s {
		delete(r.byConn, s.Conn.ID())
	}
}

// reapLocked evicts every session past its idle timeout. Called
// opportunistically from Create so expiry doesn't require a background
// goroutine (spec.md §4.4: "expired sessions are also reaped lazily on
// any registry operation").
func (r *Registry) reapLocked() {
	now := time.Now()
	for _, s := range r.byToken {
		if now.Sub(s.LastActivity) >= r.timeout {
			r.removeLocked(s)
		}
	}
}

// IsOnline reports whether userID currently has a live session.
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// GetConnection returns userID's current connection handle, if online.
func (r *Registry) GetConnection(userID int64) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	return s.Conn, true
}

// SetChatPartner records that the session owned by userID is viewing
// its 1:1 conversation with partnerID (0 clears it). Not found is
// tolerated silently since the caller has already validated the token.
func (r *Registry) SetChatPartner(userID, partnerID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok {
		s.ChatPartnerID = partnerID
	}
}

// GetChatPartner returns userID's current chat_partner_id, or 0.
func (r *Registry) GetChatPartner(userID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok {
		return s.ChatPartnerID
	}
	return 0
}

// IsChattingWith reports whether userID's session is currently focused
// on a 1:1 conversation with partnerID — the push-delivery gate for
// PM_SEND (spec.md §4.10).
func (r *Registry) IsChattingWith(userID, partnerID int64) bool {
	return r.GetChatPartner(userID) == partnerID
}

// SetChatGroup records that userID's session is viewing groupID (0
// clears it).
func (r *Registry) SetChatGroup(userID, groupID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok {
		s.ChatGroupID = groupID
	}
}

// GetChatGroup returns userID's current chat_group_id, or 0.
func (r *Registry) GetChatGroup(userID int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byUser[userID]; ok {
		return s.ChatGroupID
	}
	return 0
}

// IsChattingInGroup reports whether userID's session is currently
// focused on groupID's chat mode — the push-delivery gate for GM_SEND
// and the GM_JOIN/GM_LEAVE/GM_KICKED notifications (spec.md §4.10).
func (r *Registry) IsChattingInGroup(userID, groupID int64) bool {
	return r.GetChatGroup(userID) == groupID
}

func newToken() (string, error) {
	b, err := uuid.GenerateRandomBytes(tokenLen / 2)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

var errTokenCollision = apperr.New(apperr.KindInternal, 500, "internal_error", "could not allocate a unique session token")
