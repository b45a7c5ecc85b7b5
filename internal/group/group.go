// Package group implements the file-backed group store (spec.md §4.6):
// single-owner groups, membership lists, and ownership-gated mutations.
package group

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"chatserver/internal/apperr"
	"chatserver/internal/store/fsutil"
)

// Group is one chat group (spec.md §3).
type Group struct {
	ID        int64
	Name      string
	Owner     string
	CreatedAt int64
}

// Accounts is the subset of account.Store this package needs.
type Accounts interface {
	Username(id int64) (string, bool)
	UserID(username string) (int64, bool)
	Exists(username string) bool
}

// Store is the group + membership registry, backed by spec.md §6.3's
// groups.db and group_members.db.
type Store struct {
	mu          sync.Mutex
	groupsPath  string
	membersPath string
	accounts    Accounts
	counter     *fsutil.Counter
}

// New builds a Store. counterPath persists the group-id allocator —
// DESIGN.md's resolution of spec.md §9's open question about
// wall-clock-seconds collisions.
func New(groupsPath, membersPath, counterPath string, accounts Accounts) (*Store, error) {
	c, err := fsutil.LoadCounter(counterPath)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &Store{groupsPath: groupsPath, membersPath: membersPath, accounts: accounts, counter: c}, nil
}

var (
	errPermissionOwner  = apperr.New(apperr.KindPermission, 403, "not_group_owner", "caller is not the group owner")
	errPermissionMember = apperr.New(apperr.KindPermission, 403, "not_group_member", "caller is not a group member")
	errGroupNotFound    = apperr.New(apperr.KindValidation, 400, "invalid_group_id", "group does not exist")
	errMemberNotFound   = apperr.New(apperr.KindNotFound, 404, "member_not_found", "user is not a member of this group")
	errUserNotFound     = apperr.New(apperr.KindNotFound, 404, "user_not_found", "user not found")
	errAlreadyMember    = apperr.New(apperr.KindConflict, 409, "already_member", "user is already a member")
	errOwnerCannotLeave = apperr.New(apperr.KindValidation, 422, "owner_cannot_leave", "the owner cannot leave their own group")
)

// Create allocates a group owned by ownerID and adds the owner as the
// first member.
func (s *Store) Create(ownerID int64, name string) (int64, error) {
	ownerUsername, ok := s.accounts.Username(ownerID)
	if !ok {
		return 0, apperr.Internal(fmt.Errorf("group: owner %d has no account record", ownerID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.counter.Next()
	if err != nil {
		return 0, apperr.Internal(err)
	}
	g := Group{ID: int64(id), Name: name, Owner: ownerUsername, CreatedAt: time.Now().Unix()}

	// Two appends under the same store mutex; a crash between them
	// leaves the group without its membership row (spec.md §7
	// explicitly accepts this narrow window).
	if err := fsutil.AppendLine(s.groupsPath, renderGroup(g)); err != nil {
		return 0, apperr.Internal(err)
	}
	if err := fsutil.AppendLine(s.membersPath, renderMember(g.ID, ownerUsername)); err != nil {
		return 0, apperr.Internal(err)
	}
	return g.ID, nil
}

// List returns the comma-separated group ids userID belongs to.
func (s *Store) List(userID int64) (string, error) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return "", apperr.Internal(fmt.Errorf("group: user %d has no account record", userID))
	}

	s.mu.Lock()
	members, err := s.loadMembersLocked()
	s.mu.Unlock()
	if err != nil {
		return "", apperr.Internal(err)
	}

	var ids []string
	for _, m := range members {
		if m.username == username {
			ids = append(ids, strconv.FormatInt(m.groupID, 10))
		}
	}
	return strings.Join(ids, ","), nil
}

// ListMembers returns the comma-separated usernames in groupID. The
// caller must already be a member.
func (s *Store) ListMembers(userID, groupID int64) (string, error) {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return "", apperr.Internal(fmt.Errorf("group: user %d has no account record", userID))
	}

	s.mu.Lock()
	members, err := s.loadMembersLocked()
	s.mu.Unlock()
	if err != nil {
		return "", apperr.Internal(err)
	}

	var names []string
	isMember := false
	for _, m := range members {
		if m.groupID != groupID {
			continue
		}
		if m.username == username {
			isMember = true
		}
		names = append(names, m.username)
	}
	if !isMember {
		return "", errPermissionMember
	}
	return strings.Join(names, ","), nil
}

// AddMember adds username to groupID. callerID must own the group.
func (s *Store) AddMember(callerID, groupID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok, err := s.findGroupLocked(groupID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return errGroupNotFound
	}
	if err := s.requireOwnerLocked(callerID, g); err != nil {
		return err
	}
	if !s.accounts.Exists(username) {
		return errUserNotFound
	}

	members, err := s.loadMembersLocked()
	if err != nil {
		return apperr.Internal(err)
	}
	for _, m := range members {
		if m.groupID == groupID && m.username == username {
			return errAlreadyMember
		}
	}
	if err := fsutil.AppendLine(s.membersPath, renderMember(groupID, username)); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RemoveMember removes username from groupID. callerID must own the
// group; the owner itself can never be removed this way.
func (s *Store) RemoveMember(callerID, groupID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok, err := s.findGroupLocked(groupID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return errGroupNotFound
	}
	if err := s.requireOwnerLocked(callerID, g); err != nil {
		return err
	}
	if username == g.Owner {
		return errPermissionOwner
	}

	members, err := s.loadMembersLocked()
	if err != nil {
		return apperr.Internal(err)
	}
	idx := -1
	for i, m := range members {
		if m.groupID == groupID && m.username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errMemberNotFound
	}
	members = append(members[:idx], members[idx+1:]...)
	return s.saveMembersLocked(members)
}

// Leave removes userID from groupID's membership. The owner cannot
// leave their own group.
func (s *Store) Leave(userID, groupID int64) error {
	username, ok := s.accounts.Username(userID)
	if !ok {
		return apperr.Internal(fmt.Errorf("group: user %d has no account record", userID))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok, err := s.findGroupLocked(groupID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !ok {
		return errGroupNotFound
	}
	if username == g.Owner {
		return errOwnerCannotLeave
	}

	members, err := s.loadMembersLocked()
	if err != nil {
		return apperr.Internal(err)
	}
	idx := -1
	for i, m := range members {
		if m.groupID == groupID && m.username == username {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errMemberNotFound
	}
	members = append(members[:idx], members[idx+1:]...)
	return s.saveMembersLocked(members)
}

// Group returns a group's record by id.
func (s *Store) Group(groupID int64) (Group, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findGroupLocked(groupID)
}

// Members returns every username currently in groupID, without an
// authorization check — used internally by push fan-out (spec.md
// §4.10), which already knows the sender is a member.
func (s *Store) Members(groupID int64) ([]string, error) {
	s.mu.Lock()
	members, err := s.loadMembersLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, apperr.Internal(err)
	}
	var names []string
	for _, m := range members {
		if m.groupID == groupID {
			names = append(names, m.username)
		}
	}
	return names, nil
}

// IsMember reports whether username belongs to groupID.
func (s *Store) IsMember(groupID int64, username string) (bool, error) {
	s.mu.Lock()
	members, err := s.loadMembersLocked()
	s.mu.Unlock()
	if err != nil {
		return false, apperr.Internal(err)
	}
	for _, m := range members {
		if m.groupID == groupID && m.username == username {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) requireOwnerLocked(callerID int64, g Group) error {
	callerUsername, ok := s.accounts.Username(callerID)
	if !ok {
		return apperr.Internal(fmt.Errorf("group: caller %d has no account record", callerID))
	}
	if callerUsername != g.Owner {
		return errPermissionOwner
	}
	return nil
}
