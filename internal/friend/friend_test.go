package friend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/apperr"
)

type fakeAccounts struct {
	byID   map[int64]string
	online map[string]int64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{byID: map[int64]string{}, online: map[string]int64{}}
}

func (f *fakeAccounts) add(id int64, username string) {
	f.byID[id] = username
	f.online[username] = id
}

func (f *fakeAccounts) Username(id int64) (string, bool) { v, ok := f.byID[id]; return v, ok }
func (f *fakeAccounts) UserID(username string) (int64, bool) {
	v, ok := f.online[username]
	return v, ok
}
func (f *fakeAccounts) Exists(username string) bool { _, ok := f.online[username]; return ok }

type fakeOnline struct{ ids map[int64]bool }

func (f *fakeOnline) IsOnline(id int64) bool { return f.ids[id] }

func TestInviteAcceptList(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	online := &fakeOnline{ids: map[int64]bool{2: true}}

	s := New(filepath.Join(t.TempDir(), "friends.db"), accounts, online)

	require.NoError(t, s.Invite(1, "bob"))

	pending, err := s.Pending(2)
	require.NoError(t, err)
	assert.Equal(t, "alice", pending)

	require.NoError(t, s.Accept(2, "alice"))

	listA, err := s.List(1)
	require.NoError(t, err)
	assert.Equal(t, "bob:online", listA)

	listB, err := s.List(2)
	require.NoError(t, err)
	assert.Equal(t, "alice:offline", listB)
}

func TestInviteRejectsSelfAndDuplicate(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := New(filepath.Join(t.TempDir(), "friends.db"), accounts, &fakeOnline{})

	err := s.Invite(1, "alice")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, s.Invite(1, "bob"))
	err = s.Invite(1, "bob")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestDeleteRemovesAcceptedEdge(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := New(filepath.Join(t.TempDir(), "friends.db"), accounts, &fakeOnline{})

	require.NoError(t, s.Invite(1, "bob"))
	require.NoError(t, s.Accept(2, "alice"))

	require.NoError(t, s.Delete(1, "bob"))

	list, err := s.List(1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRejectRemovesPendingEdge(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	s := New(filepath.Join(t.TempDir(), "friends.db"), accounts, &fakeOnline{})

	require.NoError(t, s.Invite(1, "bob"))
	require.NoError(t, s.Reject(2, "alice"))

	pending, err := s.Pending(2)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
