package gm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatserver/internal/apperr"
)

type fakeAccounts struct{ byID map[int64]string }

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byID: map[int64]string{}} }
func (f *fakeAccounts) add(id int64, username string) { f.byID[id] = username }
func (f *fakeAccounts) Username(id int64) (string, bool) { v, ok := f.byID[id]; return v, ok }

type fakeGroups struct{ members map[int64]map[string]bool }

func newFakeGroups() *fakeGroups { return &fakeGroups{members: map[int64]map[string]bool{}} }
func (f *fakeGroups) addMember(groupID int64, username string) {
	if f.members[groupID] == nil {
		f.members[groupID] = map[string]bool{}
	}
	f.members[groupID][username] = true
}
func (f *fakeGroups) IsMember(groupID int64, username string) (bool, error) {
	return f.members[groupID][username], nil
}

func TestSendRequiresMembership(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	groups := newFakeGroups()
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "gm"), filepath.Join(dir, "gm.counter"), accounts, groups)
	require.NoError(t, err)

	_, err = s.Send(1, 10, "hello")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindPermission))

	groups.addMember(10, "alice")
	id, err := s.Send(1, 10, "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id)
}

func TestHistoryOrderingAndLimit(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	accounts.add(2, "bob")
	groups := newFakeGroups()
	groups.addMember(10, "alice")
	groups.addMember(10, "bob")
	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "gm"), filepath.Join(dir, "gm.counter"), accounts, groups)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Send(1, 10, "msg")
		require.NoError(t, err)
	}

	hist, err := s.History(2, 10, 2)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hist, "3:alice:msg:"))
	assert.Equal(t, 2, strings.Count(hist, ",")+1)
}

func TestCounterRecoveredFromExistingLogs(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.add(1, "alice")
	groups := newFakeGroups()
	groups.addMember(10, "alice")
	dir := t.TempDir()
	counterPath := filepath.Join(dir, "gm.counter")

	s1, err := New(dir, counterPath, accounts, groups)
	require.NoError(t, err)
	id1, err := s1.Send(1, 10, "hello")
	require.NoError(t, err)
	assert.EqualValues(t, 1, id1)

	// Drop the persisted counter so only the log scan can recover it.
	require.NoError(t, os.Remove(counterPath))

	s2, err := New(dir, counterPath, accounts, groups)
	require.NoError(t, err)
	id2, err := s2.Send(1, 10, "world")
	require.NoError(t, err)
	assert.EqualValues(t, 2, id2)
}
