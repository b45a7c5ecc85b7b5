package group

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/apperr"
)

type fakeAccounts struct{ byID map[int64]string }

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byID: map[int64]string{}} }
func (f *fakeAccounts) add(id int64, username string) { f.byID[id] = username }
func (f *fakeAccounts) Username(id int64) (string, bool) { v, ok := f.byID[id]; return v, ok }
func (f *fakeAccounts) UserID(username string) (int64, bool) {
	for id, u := range f.byID {
		if u == username {
			return id, true
		}
	}
	return 0, false
}
func (f *fakeAccounts) Exists(username string) bool { _, ok := f.UserID(username); return ok }

func newStore(t *testing.T, accounts Accounts) *Store {
	dir := t.TempDir()
	s, err := New(
		filepath.Join(dir, "groups.db"),
		filepath.Join(dir, "group_members.db"),
		filepath.Join(dir, "groups.counter"),
		accounts,
	)
	require.NoError(t, err)
	return s
}

func TestCreateAddListMembers(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := newStore(t, accounts)

	gid, err := s.Create(1, "study")
	require.NoError(t, err)
	assert.EqualValues(t, 1, gid)

	require.NoError(t, s.AddMember(1, gid, "bob"))

	list, err := s.List(2)
	require.NoError(t, err)
	assert.Equal(t, "1", list)

	members, err := s.ListMembers(2, gid)
	require.NoError(t, err)
	assert.Equal(t, "alice,bob", members)
}

func TestAddMemberRequiresOwner(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := newStore(t, accounts)

	gid, err := s.Create(1, "study")
	require.NoError(t, err)

	err = s.AddMember(2, gid, "bob")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}

func TestAddMemberOwnershipCheckedBeforeUsernameExists(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := newStore(t, accounts)

	gid, err := s.Create(1, "study")
	require.NoError(t, err)

	err = s.AddMember(2, gid, "nobody")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}

func TestOwnerCannotLeaveOrBeRemoved(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	s := newStore(t, accounts)

	gid, err := s.Create(1, "study")
	require.NoError(t, err)

	err = s.Leave(1, gid)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	err = s.RemoveMember(1, gid, "alice")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermission))
}

func TestSequentialGroupIDsDoNotCollide(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	s := newStore(t, accounts)

	g1, err := s.Create(1, "a")
	require.NoError(t, err)
	g2, err := s.Create(1, "b")
	require.NoError(t, err)
	assert.NotEqual(t, g1, g2)
}
